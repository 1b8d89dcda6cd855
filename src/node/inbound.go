package node

import (
	"context"
	"fmt"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

type InboundConfig struct {
	Logger log.Logger
	// KeyManager is needed by everything but VerifyReadyHash.
	KeyManager IKeyManager
	Committee  CommitteeSource
	// Provider is only needed by VerifyReadyHash.
	Provider       tss.CryptoProvider
	Prechecker     *Prechecker
	ScalarHashMode types.ScalarHashMode
}

// InboundSigner answers the signing requests other committee members send to this node.
// The payload hash is always recomputed here, a hash supplied by the caller is never signed.
type InboundSigner struct {
	logger         log.Logger
	keyManager     IKeyManager
	committee      CommitteeSource
	provider       tss.CryptoProvider
	prechecker     *Prechecker
	scalarHashMode types.ScalarHashMode
}

var _ cosigner.Handler = &InboundSigner{}

func NewInboundSigner(config InboundConfig) (*InboundSigner, error) {
	if config.Committee == nil {
		return nil, types.NewConfigurationError("inbound signer needs a committee")
	}
	s := &InboundSigner{
		logger:         config.Logger,
		keyManager:     config.KeyManager,
		committee:      config.Committee,
		provider:       config.Provider,
		prechecker:     config.Prechecker,
		scalarHashMode: config.ScalarHashMode,
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	if s.scalarHashMode == "" {
		s.scalarHashMode = types.ScalarHashDigest
	}
	if err := s.scalarHashMode.Validate(); err != nil {
		return nil, types.NewConfigurationError("%v", err)
	}
	return s, nil
}

// HandleVerifyAndSign pre-checks the batch on its source chain and signs its hash with the local key share.
func (s *InboundSigner) HandleVerifyAndSign(
	ctx context.Context,
	req *cosigner.VerifyAndSignRequest,
) (*cosigner.SignResult, error) {
	direction, batch, err := req.ToBatch()
	if err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(cosigner.MethodVerifyAndSign).Inc()
		return nil, err
	}

	hash := types.HashBatch(batch)
	log := s.logger.With(
		"correlation_id", req.Trace.CorrelationID,
		"direction", string(direction),
		"src_chain", batch.SourceChainName,
		"dst_chain", batch.DestinationChainName,
		"start", batch.StartIndex,
		"count", batch.Len(),
		"hash", hash,
	)

	if err := s.prechecker.Check(ctx, direction, batch); err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(cosigner.MethodVerifyAndSign).Inc()
		log.Error("Refusing to sign messages", "err", err)
		return nil, err
	}

	return s.signHash(ctx, log, cosigner.MethodVerifyAndSign, hash)
}

// HandleSignScalar signs the hash of a 256 bit value with the local key share.
func (s *InboundSigner) HandleSignScalar(ctx context.Context, req *cosigner.SignU256Request) (*cosigner.SignResult, error) {
	value, err := types.ParseScalar(req.ValueToSign)
	if err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(cosigner.MethodSignU256).Inc()
		return nil, err
	}
	hash, err := types.HashScalar(value, s.scalarHashMode)
	if err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(cosigner.MethodSignU256).Inc()
		return nil, err
	}

	log := s.logger.With(
		"correlation_id", req.Trace.CorrelationID,
		"value", value.String(),
		"hash", hash,
	)
	return s.signHash(ctx, log, cosigner.MethodSignU256, hash)
}

// SignReadyHash signs an already computed hash with the local key share.
func (s *InboundSigner) SignReadyHash(ctx context.Context, hash string) (*cosigner.SignResult, error) {
	return s.signHash(ctx, s.logger.With("hash", hash), "sign_ready_hash", hash)
}

// VerifyReadyHash verifies the share of member index over an already computed hash.
func (s *InboundSigner) VerifyReadyHash(ctx context.Context, hash string, index int, rawShare string) error {
	if s.provider == nil {
		return types.NewConfigurationError("verifying a share needs a crypto provider")
	}

	info, err := s.committeeInfo()
	if err != nil {
		return err
	}
	pk, err := info.PublicKey(index)
	if err != nil {
		return err
	}
	share, err := tss.ParseSignatureShare(index, rawShare)
	if err != nil {
		return err
	}

	params := tss.Params{Threshold: info.Threshold, Participants: info.Participants}
	if err := s.provider.VerifyShare(ctx, params, hash, share, pk); err != nil {
		return &types.ShareVerificationError{MemberIndex: index, Err: err}
	}
	return nil
}

func (s *InboundSigner) committeeInfo() (*committee.Info, error) {
	info, err := s.committee.Info()
	if err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *InboundSigner) signHash(ctx context.Context, log log.Logger, method, hash string) (*cosigner.SignResult, error) {
	if s.keyManager == nil {
		return nil, types.NewConfigurationError("signing with the local key share needs a key manager")
	}
	info, err := s.committeeInfo()
	if err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(method).Inc()
		return nil, err
	}

	start := time.Now()
	res, err := s.keyManager.BLSSignMessageHash(ctx, hash, info.Threshold, info.Participants)
	if err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(method).Inc()
		log.Error("Key manager failed to sign", "err", err)
		return nil, fmt.Errorf("key manager failed to sign %s: %w", hash, err)
	}
	if _, err := res.Candidate(); err != nil {
		metrics.TotalLocalShareErrors.WithLabelValues(method).Inc()
		log.Error("Key manager returned no usable share", "err", err)
		return res, nil
	}

	metrics.TotalLocalShares.WithLabelValues(method).Inc()
	metrics.MetricsTimeKeeper.SetPreviousLocalShare(time.Now())
	log.Info("Signed with local key share", "duration_ms", float64(time.Since(start).Microseconds())/1000)
	return res, nil
}
