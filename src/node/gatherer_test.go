package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

func share(index int) tss.SignatureShare {
	return tss.SignatureShare{MemberIndex: index, X: "1", Y: "2", Raw: "1:2"}
}

func TestGathererQuorumTrimsToTarget(t *testing.T) {
	g := newGatherer(2, nil)
	for i := 0; i < 3; i++ {
		g.contact()
	}
	g.doneIssuing()

	require.True(t, g.accept(share(0)))
	require.False(t, g.quorumReached())
	require.True(t, g.accept(share(1)))
	require.True(t, g.quorumReached())
	require.False(t, g.accept(share(2)), "third share must be skipped")

	shares, done, err := g.step()
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, shares, 2)

	contacted, received, accepted, errs, skipped := g.counts()
	require.Equal(t, 3, contacted)
	require.Equal(t, 3, received)
	require.Equal(t, 2, accepted)
	require.Zero(t, errs)
	require.Equal(t, 1, skipped)
}

func TestGathererInsufficientOnlyAfterIssuing(t *testing.T) {
	g := newGatherer(2, nil)
	g.contact()
	g.fail()

	// more members may still be contacted
	_, done, err := g.step()
	require.NoError(t, err)
	require.False(t, done)

	g.contact()
	g.doneIssuing()
	_, done, _ = g.step()
	require.False(t, done)

	require.True(t, g.accept(share(1)))
	shares, done, err := g.step()
	require.True(t, done)
	require.Nil(t, shares)

	var quorumErr *types.QuorumError
	require.ErrorAs(t, err, &quorumErr)
	require.Equal(t, types.QuorumInsufficient, quorumErr.Reason)
	require.Equal(t, 1, quorumErr.Accepted)
	require.Equal(t, 1, quorumErr.Errors)
	require.Equal(t, 2, quorumErr.Contacted)
}

func TestGathererDiscardsAfterTerminal(t *testing.T) {
	g := newGatherer(1, nil)
	g.contact()
	g.contact()
	g.doneIssuing()

	err := g.expire(types.QuorumTimeout)
	require.Equal(t, types.QuorumTimeout, err.Reason)

	require.False(t, g.accept(share(0)))
	g.fail()
	g.skip()

	_, received, accepted, errs, skipped := g.counts()
	require.Zero(t, received)
	require.Zero(t, accepted)
	require.Zero(t, errs)
	require.Zero(t, skipped)
}

func TestGathererProgressOnlyOnChange(t *testing.T) {
	var reports []Progress
	g := newGatherer(3, func(p Progress) { reports = append(reports, p) })
	for i := 0; i < 3; i++ {
		g.contact()
	}
	g.doneIssuing()

	g.step()
	require.Empty(t, reports)

	g.accept(share(0))
	g.step()
	g.step()
	g.fail()
	g.step()

	require.Equal(t, []Progress{
		{Received: 1, QuorumTarget: 3, Successes: 1, Errors: 0},
		{Received: 2, QuorumTarget: 3, Successes: 1, Errors: 1},
	}, reports)
}

func TestGathererWaitWakesOnResponse(t *testing.T) {
	g := newGatherer(1, nil)
	g.contact()
	g.doneIssuing()

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.accept(share(0))
	}()

	shares, err := g.wait(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, []tss.SignatureShare{share(0)}, shares)
}

func TestGathererWaitDeadline(t *testing.T) {
	g := newGatherer(2, nil)
	g.contact()
	g.contact()
	g.doneIssuing()
	g.accept(share(0))

	start := time.Now()
	_, err := g.wait(context.Background(), 30*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	var quorumErr *types.QuorumError
	require.ErrorAs(t, err, &quorumErr)
	require.Equal(t, types.QuorumTimeout, quorumErr.Reason)
	require.Equal(t, 1, quorumErr.Accepted)
}

func TestGathererWaitContextCancelled(t *testing.T) {
	g := newGatherer(1, nil)
	g.contact()
	g.doneIssuing()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.wait(ctx, time.Minute)
	require.True(t, errors.Is(err, context.Canceled))

	var quorumErr *types.QuorumError
	require.ErrorAs(t, err, &quorumErr)
	require.Equal(t, types.QuorumCancelled, quorumErr.Reason)
	require.False(t, g.accept(share(0)))
	require.True(t, g.done())
}
