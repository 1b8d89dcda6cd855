package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/metrics"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
)

const (
	kindMessages = "messages"
	kindScalar   = "scalar"

	DefaultStepInterval = 500 * time.Millisecond
	DefaultMaxSteps     = 1800
	DefaultRPCTimeout   = 30 * time.Second
)

type SignerConfig struct {
	Logger   log.Logger
	Provider tss.CryptoProvider
	// Dial reaches committee members, RemoteDialer(nil) when unset.
	Dial DialFunc
	// Prechecker confirms S2M and S2S batches with the source chain. Nil skips the pre-check.
	Prechecker *Prechecker
	// Disabled resolves batches unsigned after the pre-check.
	Disabled       bool
	StepInterval   time.Duration
	MaxSteps       int
	RPCTimeout     time.Duration
	ScalarHashMode types.ScalarHashMode
	// OnProgress is called whenever the number of received responses of a request changed.
	OnProgress ProgressFunc
}

// ThresholdSigner collects threshold BLS signatures from a committee.
// It holds no per-request state: every call gathers into its own state and resolves once.
type ThresholdSigner struct {
	logger         log.Logger
	provider       tss.CryptoProvider
	dial           DialFunc
	prechecker     *Prechecker
	disabled       bool
	stepInterval   time.Duration
	maxSteps       int
	rpcTimeout     time.Duration
	scalarHashMode types.ScalarHashMode
	onProgress     ProgressFunc
}

func NewThresholdSigner(config SignerConfig) (*ThresholdSigner, error) {
	if config.Provider == nil {
		return nil, types.NewConfigurationError("threshold signer needs a crypto provider")
	}
	s := &ThresholdSigner{
		logger:         config.Logger,
		provider:       config.Provider,
		dial:           config.Dial,
		prechecker:     config.Prechecker,
		disabled:       config.Disabled,
		stepInterval:   config.StepInterval,
		maxSteps:       config.MaxSteps,
		rpcTimeout:     config.RPCTimeout,
		scalarHashMode: config.ScalarHashMode,
		onProgress:     config.OnProgress,
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	if s.dial == nil {
		s.dial = RemoteDialer(nil)
	}
	if s.stepInterval <= 0 {
		s.stepInterval = DefaultStepInterval
	}
	if s.maxSteps <= 0 {
		s.maxSteps = DefaultMaxSteps
	}
	if s.rpcTimeout <= 0 {
		s.rpcTimeout = DefaultRPCTimeout
	}
	if s.scalarHashMode == "" {
		s.scalarHashMode = types.ScalarHashDigest
	}
	if err := s.scalarHashMode.Validate(); err != nil {
		return nil, types.NewConfigurationError("%v", err)
	}
	return s, nil
}

// deadline is the longest a request waits for the quorum.
func (s *ThresholdSigner) deadline() time.Duration {
	return s.stepInterval * time.Duration(s.maxSteps)
}

type MessagesRequest struct {
	Direction types.Direction
	Batch     *types.MessageBatch
	Committee *committee.Info
	// CorrelationID is only used for tracing, a random one is generated when empty.
	CorrelationID string
}

type ScalarRequest struct {
	Value         *big.Int
	Committee     *committee.Info
	CorrelationID string
}

// Outcome is the single resolution of a signing request. The original payload is always set.
// Result is nil when Err is set, and when signing is disabled.
type Outcome struct {
	Err    error
	Batch  *types.MessageBatch
	Value  *big.Int
	Result *tss.AggregateResult
}

func resolve(out chan<- Outcome, o Outcome) {
	out <- o
	close(out)
}

// SignMessages requests a threshold signature over the hash of a message batch.
// Precondition failures are returned directly, everything else resolves through the channel,
// which receives exactly one Outcome and is then closed.
func (s *ThresholdSigner) SignMessages(ctx context.Context, req MessagesRequest) (<-chan Outcome, error) {
	if req.Batch == nil {
		return nil, errors.New("message batch is missing")
	}
	if err := req.Direction.Validate(); err != nil {
		return nil, err
	}
	if req.Committee == nil && !s.disabled {
		return nil, types.NewConfigurationError("committee info is missing")
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	out := make(chan Outcome, 1)
	go s.signMessages(ctx, req, out)
	return out, nil
}

func (s *ThresholdSigner) signMessages(ctx context.Context, req MessagesRequest, out chan<- Outcome) {
	batch := req.Batch
	log := s.logger.With(
		"correlation_id", req.CorrelationID,
		"direction", string(req.Direction),
		"src_chain", batch.SourceChainName,
		"dst_chain", batch.DestinationChainName,
		"start", batch.StartIndex,
		"count", batch.Len(),
	)

	metrics.TotalSignRequests.WithLabelValues(kindMessages).Inc()
	start := time.Now()

	if err := s.prechecker.Check(ctx, req.Direction, batch); err != nil {
		log.Error("Refusing to sign messages", "err", err)
		resolve(out, Outcome{Err: err, Batch: batch})
		return
	}

	if s.disabled {
		metrics.TotalSigningDisabled.Inc()
		log.Info("Signing is disabled, passing messages through unsigned")
		resolve(out, Outcome{Batch: batch})
		return
	}

	info := req.Committee
	if err := info.Validate(); err != nil {
		log.Error("Invalid committee", "err", err)
		resolve(out, Outcome{Err: err, Batch: batch})
		return
	}

	hash := types.HashBatch(batch)
	log = log.With("hash", hash)

	wire := cosigner.NewVerifyAndSignRequest(req.Direction, batch, req.CorrelationID)
	call := func(ctx context.Context, c ICosigner) (*cosigner.SignResult, error) {
		return c.VerifyAndSign(ctx, wire.ForMember(c.GetIndex()))
	}

	res, err := s.sign(ctx, log, info, hash, issueUntilQuorum, call)
	if err != nil {
		resolve(out, Outcome{Err: fmt.Errorf("failed to sign messages %s: %w", describeBatch(batch), err), Batch: batch})
		return
	}

	s.signed(log, kindMessages, start)
	resolve(out, Outcome{Batch: batch, Result: res})
}

// SignScalar requests a threshold signature over a 256 bit value.
// It resolves the same way as SignMessages.
func (s *ThresholdSigner) SignScalar(ctx context.Context, req ScalarRequest) (<-chan Outcome, error) {
	if req.Committee == nil && !s.disabled {
		return nil, types.NewConfigurationError("committee info is missing")
	}
	hash, err := types.HashScalar(req.Value, s.scalarHashMode)
	if err != nil {
		return nil, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	out := make(chan Outcome, 1)
	go s.signScalar(ctx, req, hash, out)
	return out, nil
}

func (s *ThresholdSigner) signScalar(ctx context.Context, req ScalarRequest, hash string, out chan<- Outcome) {
	log := s.logger.With(
		"correlation_id", req.CorrelationID,
		"value", req.Value.String(),
		"hash", hash,
	)

	metrics.TotalSignRequests.WithLabelValues(kindScalar).Inc()
	start := time.Now()

	if s.disabled {
		metrics.TotalSigningDisabled.Inc()
		log.Info("Signing is disabled, passing value through unsigned")
		resolve(out, Outcome{Value: req.Value})
		return
	}

	info := req.Committee
	if err := info.Validate(); err != nil {
		log.Error("Invalid committee", "err", err)
		resolve(out, Outcome{Err: err, Value: req.Value})
		return
	}

	wire := &cosigner.SignU256Request{
		ValueToSign: req.Value.String(),
		Trace:       cosigner.Trace{CorrelationID: req.CorrelationID},
	}
	call := func(ctx context.Context, c ICosigner) (*cosigner.SignResult, error) {
		return c.SignU256(ctx, wire.ForMember(c.GetIndex()))
	}

	res, err := s.sign(ctx, log, info, hash, issueAll, call)
	if err != nil {
		resolve(out, Outcome{Err: fmt.Errorf("failed to sign value %s: %w", req.Value, err), Value: req.Value})
		return
	}

	s.signed(log, kindScalar, start)
	resolve(out, Outcome{Value: req.Value, Result: res})
}

// sign runs collection, aggregation and aggregate verification for one request.
func (s *ThresholdSigner) sign(
	ctx context.Context,
	log log.Logger,
	info *committee.Info,
	hash string,
	mode issueMode,
	call shareCall,
) (*tss.AggregateResult, error) {
	start := time.Now()

	shares, err := s.collect(ctx, log, info, hash, mode, call)
	if err != nil {
		var quorumErr *types.QuorumError
		if errors.As(err, &quorumErr) {
			switch quorumErr.Reason {
			case types.QuorumInsufficient:
				metrics.TotalInsufficientShares.Inc()
			case types.QuorumTimeout:
				metrics.TotalQuorumTimeouts.Inc()
			}
		}
		log.Error("Failed to collect signature shares", "err", err)
		return nil, err
	}
	metrics.TimedQuorumLag.Observe(time.Since(start).Seconds())

	res, err := s.aggregate(ctx, log, info, hash, shares)
	if err != nil {
		log.Error("Failed to aggregate signature", "err", err)
		return nil, err
	}
	return res, nil
}

func (s *ThresholdSigner) signed(log log.Logger, kind string, start time.Time) {
	elapsed := time.Since(start)
	metrics.TotalSigned.WithLabelValues(kind).Inc()
	metrics.TimedSignLag.WithLabelValues(kind).Observe(elapsed.Seconds())
	metrics.MetricsTimeKeeper.SetPreviousAggregate(time.Now())

	log.Info(
		"Signed",
		"duration_ms", float64(elapsed.Microseconds())/1000,
	)
}

func describeBatch(b *types.MessageBatch) string {
	if b.Len() == 0 {
		return fmt.Sprintf("from %s to %s (empty)", b.SourceChainName, b.DestinationChainName)
	}
	return fmt.Sprintf("%d..%d from %s to %s",
		b.StartIndex, b.MessageIndex(b.Len()-1), b.SourceChainName, b.DestinationChainName)
}
