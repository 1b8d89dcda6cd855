package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

// Progress is reported whenever the number of received responses changed.
type Progress struct {
	Received     int
	QuorumTarget int
	Successes    int
	Errors       int
}

type ProgressFunc func(Progress)

// gatherer accumulates the responses of one signing request until it reaches a terminal
// state: quorum reached, every contacted member responded without quorum, or deadline.
// It resolves exactly once, responses recorded after that are discarded.
type gatherer struct {
	mu sync.Mutex

	target    int
	accepted  []tss.SignatureShare
	contacted int
	received  int
	// receivedPrev is the received count at the last progress report.
	receivedPrev int
	errors       int
	skipped      int
	issuingDone  bool
	terminal     bool

	wake       chan struct{}
	onProgress ProgressFunc
}

func newGatherer(target int, onProgress ProgressFunc) *gatherer {
	return &gatherer{
		target:     target,
		accepted:   make([]tss.SignatureShare, 0, target),
		wake:       make(chan struct{}, 1),
		onProgress: onProgress,
	}
}

func (g *gatherer) notify() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// contact registers a member a request is about to be sent to.
func (g *gatherer) contact() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contacted++
}

// doneIssuing marks that no more members will be contacted.
func (g *gatherer) doneIssuing() {
	g.mu.Lock()
	g.issuingDone = true
	g.mu.Unlock()
	g.notify()
}

func (g *gatherer) quorumReached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.accepted) >= g.target
}

// done reports whether the gatherer reached a terminal state.
func (g *gatherer) done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminal
}

// accept records a verified share. A share arriving once the quorum is complete is
// counted as skipped, so the accepted set never exceeds the target.
func (g *gatherer) accept(share tss.SignatureShare) (accepted bool) {
	g.mu.Lock()
	defer g.notify()
	defer g.mu.Unlock()

	if g.terminal {
		return false
	}
	g.received++
	if len(g.accepted) >= g.target {
		g.skipped++
		return false
	}
	g.accepted = append(g.accepted, share)
	return true
}

// skip records a response that was not verified because the quorum was already complete.
func (g *gatherer) skip() {
	g.mu.Lock()
	defer g.notify()
	defer g.mu.Unlock()

	if g.terminal {
		return
	}
	g.received++
	g.skipped++
}

// fail records a negative outcome for one member.
func (g *gatherer) fail() {
	g.mu.Lock()
	defer g.notify()
	defer g.mu.Unlock()

	if g.terminal {
		return
	}
	g.received++
	g.errors++
}

func (g *gatherer) quorumError(reason types.QuorumReason) *types.QuorumError {
	return &types.QuorumError{
		Reason:    reason,
		Threshold: g.target,
		Accepted:  len(g.accepted),
		Errors:    g.errors,
		Contacted: g.contacted,
	}
}

// evaluate checks for a terminal state. It must be called with g.mu held.
func (g *gatherer) evaluate() (shares []tss.SignatureShare, done bool, err error) {
	if len(g.accepted) >= g.target {
		g.terminal = true
		shares = make([]tss.SignatureShare, len(g.accepted))
		copy(shares, g.accepted)
		return shares, true, nil
	}
	if g.issuingDone && g.received >= g.contacted {
		g.terminal = true
		return nil, true, g.quorumError(types.QuorumInsufficient)
	}
	return nil, false, nil
}

// progress returns the progress to report, if any. It must be called with g.mu held.
func (g *gatherer) progress() (Progress, bool) {
	if g.received == g.receivedPrev {
		return Progress{}, false
	}
	g.receivedPrev = g.received
	return Progress{
		Received:     g.received,
		QuorumTarget: g.target,
		Successes:    len(g.accepted),
		Errors:       g.errors,
	}, true
}

func (g *gatherer) step() ([]tss.SignatureShare, bool, error) {
	g.mu.Lock()
	p, report := g.progress()
	shares, done, err := g.evaluate()
	g.mu.Unlock()

	if report && g.onProgress != nil {
		g.onProgress(p)
	}
	return shares, done, err
}

// wait blocks until the gatherer reaches a terminal state, the deadline passes or ctx is done.
// A done ctx resolves as QuorumCancelled, never as a timeout.
// On success exactly target shares are returned.
func (g *gatherer) wait(ctx context.Context, deadline time.Duration) ([]tss.SignatureShare, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		// Responses failed by a cancelled ctx must not resolve as insufficient.
		if ctx.Err() != nil {
			return nil, g.cancel(ctx)
		}
		if shares, done, err := g.step(); done {
			return shares, err
		}

		select {
		case <-g.wake:
		case <-timer.C:
			if shares, done, err := g.step(); done {
				return shares, err
			}
			return nil, g.expire(types.QuorumTimeout)
		case <-ctx.Done():
			return nil, g.cancel(ctx)
		}
	}
}

func (g *gatherer) cancel(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ctx.Err(), g.expire(types.QuorumCancelled))
}

func (g *gatherer) expire(reason types.QuorumReason) *types.QuorumError {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal = true
	return g.quorumError(reason)
}

// counts returns a snapshot of the counters for logging.
func (g *gatherer) counts() (contacted, received, accepted, errors, skipped int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contacted, g.received, len(g.accepted), g.errors, g.skipped
}
