package node

import (
	"context"
	"fmt"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/chain"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/types"
)

// VerifierSource returns a message verifier bound to a live endpoint of a chain.
type VerifierSource interface {
	ForChain(ctx context.Context, chainName string) (chain.MessageVerifier, error)
}

var _ VerifierSource = &chain.Verifiers{}

// Prechecker confirms with the source chain message proxy that every message of a batch
// was really emitted there. Failures are logged as critical. Unless strict, signing goes on.
type Prechecker struct {
	logger    log.Logger
	verifiers VerifierSource
	strict    bool
}

// NewPrechecker returns a Prechecker. A nil verifiers source reports every checked batch as unverifiable.
func NewPrechecker(logger log.Logger, verifiers VerifierSource, strict bool) *Prechecker {
	return &Prechecker{
		logger:    logger,
		verifiers: verifiers,
		strict:    strict,
	}
}

// Check verifies the messages of batch when direction requires it.
// It only returns an error in strict mode.
func (p *Prechecker) Check(ctx context.Context, direction types.Direction, batch *types.MessageBatch) error {
	if p == nil || !direction.RequiresPrecheck() || batch.Len() == 0 {
		return nil
	}

	log := p.logger.With(
		"direction", string(direction),
		"src_chain", batch.SourceChainName,
		"dst_chain", batch.DestinationChainName,
		"start", batch.StartIndex,
	)

	if p.verifiers == nil {
		return p.failed(log, batch, batch.Len(), fmt.Errorf("no message proxy verifier configured"))
	}

	verifier, err := p.verifiers.ForChain(ctx, batch.SourceChainName)
	if err != nil {
		return p.failed(log, batch, batch.Len(), err)
	}

	failures := 0
	var lastErr error
	for i, msg := range chain.OutgoingMessages(batch) {
		ok, err := verifier.VerifyOutgoingMessageData(ctx, msg)
		if err == nil && ok {
			continue
		}
		failures++
		if err == nil {
			err = fmt.Errorf("message proxy does not confirm message %d", batch.MessageIndex(i))
		}
		lastErr = err
		log.Error(
			"Outgoing message pre-check failed",
			"severity", "critical",
			"message_index", batch.MessageIndex(i),
			"err", err,
		)
	}

	if failures == 0 {
		log.Debug("Outgoing messages confirmed by message proxy", "count", batch.Len())
		return nil
	}
	return p.failed(log, batch, failures, lastErr)
}

func (p *Prechecker) failed(log log.Logger, batch *types.MessageBatch, failures int, err error) error {
	metrics.TotalPrecheckFailures.WithLabelValues(batch.SourceChainName).Add(float64(failures))
	log.Error(
		"Outgoing messages could not be confirmed",
		"severity", "critical",
		"failures", failures,
		"total", batch.Len(),
		"strict", p.strict,
		"err", err,
	)
	if !p.strict {
		return nil
	}
	return fmt.Errorf("%d of %d messages failed the message proxy pre-check: %w", failures, batch.Len(), err)
}
