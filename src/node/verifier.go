package node

import (
	"context"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

// admit verifies a candidate share against the member key and the locally computed hash
// before handing it to the gatherer. Nothing is verified once the quorum is complete or the
// request has resolved.
func (s *ThresholdSigner) admit(
	ctx context.Context,
	log log.Logger,
	g *gatherer,
	info *committee.Info,
	params tss.Params,
	hash string,
	share tss.SignatureShare,
) {
	if g.done() {
		log.Debug("Discarding signature share, request already resolved", "member", share.MemberIndex)
		return
	}
	if g.quorumReached() {
		metrics.TotalSharesSkipped.Inc()
		log.Debug("Skipping signature share, quorum already reached", "member", share.MemberIndex)
		g.skip()
		return
	}

	pk, err := info.PublicKey(share.MemberIndex)
	if err != nil {
		s.shareFailed(log, g, share.MemberIndex, "public_key", err)
		return
	}

	if err := s.provider.VerifyShare(ctx, params, hash, share, pk); err != nil {
		s.shareFailed(log, g, share.MemberIndex, "verify",
			&types.ShareVerificationError{MemberIndex: share.MemberIndex, Err: err})
		return
	}

	if !g.accept(share) {
		if g.done() {
			log.Debug("Discarding verified signature share, request already resolved", "member", share.MemberIndex)
			return
		}
		metrics.TotalSharesSkipped.Inc()
		log.Debug("Discarding verified signature share, quorum already reached", "member", share.MemberIndex)
		return
	}
	log.Debug("Accepted signature share", "member", share.MemberIndex)
}
