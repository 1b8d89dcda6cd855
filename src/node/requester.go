package node

import (
	"context"
	"strconv"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

// shareCall issues one signing RPC to a member.
type shareCall func(ctx context.Context, c ICosigner) (*cosigner.SignResult, error)

type issueMode int

const (
	// issueUntilQuorum stops contacting further members once the quorum is complete.
	issueUntilQuorum issueMode = iota
	// issueAll contacts every member immediately.
	issueAll
)

// collect fans call out to the committee and waits for the gatherer to resolve.
// In-flight requests are never cancelled, their late responses are discarded.
func (s *ThresholdSigner) collect(
	ctx context.Context,
	log log.Logger,
	info *committee.Info,
	hash string,
	mode issueMode,
	call shareCall,
) ([]tss.SignatureShare, error) {
	params := tss.Params{Threshold: info.Threshold, Participants: info.Participants}

	g := newGatherer(info.Threshold, func(p Progress) {
		log.Debug(
			"Signature shares progress",
			"received", p.Received,
			"quorum", p.QuorumTarget,
			"successes", p.Successes,
			"errors", p.Errors,
		)
		if s.onProgress != nil {
			s.onProgress(p)
		}
	})

	for _, m := range info.SortedMembers() {
		if mode == issueUntilQuorum && g.quorumReached() {
			break
		}
		g.contact()

		c, err := s.dial(m)
		if err != nil {
			s.shareFailed(log, g, m.Index, "dial", &types.TransportError{MemberIndex: m.Index, Err: err})
			continue
		}

		go s.requestShare(ctx, log, g, info, params, hash, c, call)
	}
	g.doneIssuing()

	shares, err := g.wait(ctx, s.deadline())

	contacted, received, accepted, errors, skipped := g.counts()
	log.Debug(
		"Signature share collection finished",
		"contacted", contacted,
		"received", received,
		"accepted", accepted,
		"errors", errors,
		"skipped", skipped,
	)
	return shares, err
}

func (s *ThresholdSigner) requestShare(
	ctx context.Context,
	log log.Logger,
	g *gatherer,
	info *committee.Info,
	params tss.Params,
	hash string,
	c ICosigner,
	call shareCall,
) {
	index := c.GetIndex()

	rpcCtx, cancel := context.WithTimeout(ctx, s.rpcTimeout)
	defer cancel()

	start := time.Now()
	res, err := call(rpcCtx, c)
	if err != nil {
		s.shareFailed(log, g, index, "transport", &types.TransportError{MemberIndex: index, Err: err})
		return
	}
	metrics.TimedMemberShareLag.WithLabelValues(strconv.Itoa(index)).Observe(time.Since(start).Seconds())

	raw, err := res.Candidate()
	if err != nil {
		s.shareFailed(log, g, index, "status", &types.TransportError{MemberIndex: index, Err: err})
		return
	}

	share, err := tss.ParseSignatureShare(index, raw)
	if err != nil {
		s.shareFailed(log, g, index, "malformed", &types.TransportError{MemberIndex: index, Err: err})
		return
	}

	s.admit(ctx, log, g, info, params, hash, share)
}

func (s *ThresholdSigner) shareFailed(log log.Logger, g *gatherer, index int, reason string, err error) {
	metrics.TotalShareErrors.WithLabelValues(strconv.Itoa(index), reason).Inc()
	log.Error("Failed to get signature share", "member", index, "reason", reason, "err", err)
	g.fail()
}
