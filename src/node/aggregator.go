package node

import (
	"context"
	"errors"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

// aggregate glues the accepted shares and verifies the result against the common public key.
func (s *ThresholdSigner) aggregate(
	ctx context.Context,
	log log.Logger,
	info *committee.Info,
	hash string,
	shares []tss.SignatureShare,
) (*tss.AggregateResult, error) {
	params := tss.Params{Threshold: info.Threshold, Participants: info.Participants}

	res, err := s.provider.Aggregate(ctx, params, hash, shares)
	if err != nil {
		metrics.TotalAggregationFailures.Inc()
		var aggErr *types.AggregationError
		if !errors.As(err, &aggErr) {
			err = &types.AggregationError{Err: err}
		}
		return nil, err
	}

	if err := s.provider.VerifyAggregate(ctx, params, hash, res.Signature, info.CommonPublicKey); err != nil {
		metrics.TotalInvalidSignature.Inc()
		var verErr *types.AggregateVerificationError
		if !errors.As(err, &verErr) {
			err = &types.AggregateVerificationError{Err: err}
		}
		return nil, err
	}

	log.Debug("Aggregated signature verified", "X", res.Signature.X, "Y", res.Signature.Y)
	return res, nil
}
