package node_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaykit/imasigner/src/chain"
	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/cosigner"
	"github.com/relaykit/imasigner/src/node"
	"github.com/relaykit/imasigner/src/tss"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

var commonKey = types.BLSPublicKey{"c0", "c1", "c2", "c3"}

func memberKey(index int) types.BLSPublicKey {
	return types.BLSPublicKey{fmt.Sprintf("pk%d", index), "a", "b", "c"}
}

func validShare(index int) string {
	return fmt.Sprintf("%d:%d", 100+index, 200+index)
}

func testCommittee(t, n int) *committee.Info {
	info := &committee.Info{
		Threshold:       t,
		Participants:    n,
		CommonPublicKey: commonKey,
	}
	for i := 0; i < n; i++ {
		info.Members = append(info.Members, committee.Member{
			Index:     i,
			Endpoint:  fmt.Sprintf("http://node%d:15000", i),
			PublicKey: memberKey(i),
		})
	}
	return info
}

func testBatch() *types.MessageBatch {
	return &types.MessageBatch{
		SourceChainName:      "elated-tan-skat",
		DestinationChainName: "Mainnet",
		StartIndex:           12,
		Messages: []types.Message{
			{
				Sender:              common.HexToAddress("0x01"),
				DestinationContract: common.HexToAddress("0x02"),
				Data:                []byte("transfer"),
			},
			{
				Sender:              common.HexToAddress("0x03"),
				DestinationContract: common.HexToAddress("0x04"),
				Data:                []byte("mint"),
			},
		},
	}
}

// fakeProvider accepts a share when it matches validShare and the member key, and the
// hash is the one the test expects.
type fakeProvider struct {
	mu sync.Mutex

	wantHash     string
	verified     []int
	aggregated   [][]tss.SignatureShare
	aggErr       error
	verifyAggErr error
}

func (p *fakeProvider) VerifyShare(
	_ context.Context,
	_ tss.Params,
	hash string,
	share tss.SignatureShare,
	pk types.BLSPublicKey,
) error {
	p.mu.Lock()
	p.verified = append(p.verified, share.MemberIndex)
	p.mu.Unlock()

	if p.wantHash != "" && hash != p.wantHash {
		return fmt.Errorf("unexpected hash %s", hash)
	}
	if pk != memberKey(share.MemberIndex) {
		return errors.New("wrong public key")
	}
	if share.String() != validShare(share.MemberIndex) {
		return errors.New("signature share does not verify")
	}
	return nil
}

func (p *fakeProvider) Aggregate(
	_ context.Context,
	params tss.Params,
	hash string,
	shares []tss.SignatureShare,
) (*tss.AggregateResult, error) {
	p.mu.Lock()
	p.aggregated = append(p.aggregated, shares)
	p.mu.Unlock()

	if p.aggErr != nil {
		return nil, p.aggErr
	}
	if len(shares) != params.Threshold {
		return nil, fmt.Errorf("glue needs exactly %d shares, got %d", params.Threshold, len(shares))
	}
	return &tss.AggregateResult{
		Signature:  tss.G1Point{X: "sigX", Y: "sigY"},
		SourceHash: hash,
		HashPoint:  tss.G1Point{X: "hX", Y: "hY"},
		Hint:       "1",
	}, nil
}

func (p *fakeProvider) HashToCurve(_ context.Context, _ tss.Params, _ string) (*tss.HashPoint, error) {
	return &tss.HashPoint{Point: tss.G1Point{X: "hX", Y: "hY"}, Hint: "1"}, nil
}

func (p *fakeProvider) VerifyAggregate(
	_ context.Context,
	_ tss.Params,
	_ string,
	sig tss.G1Point,
	common types.BLSPublicKey,
) error {
	if p.verifyAggErr != nil {
		return p.verifyAggErr
	}
	if common != commonKey || sig.X != "sigX" {
		return errors.New("aggregate does not verify")
	}
	return nil
}

func (p *fakeProvider) verifiedMembers() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.verified...)
}

func (p *fakeProvider) aggregations() [][]tss.SignatureShare {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]tss.SignatureShare(nil), p.aggregated...)
}

type fakeCosigner struct {
	index  int
	share  string
	status int32
	err    error
	// block, when set, holds the response until it is closed or the request context ends.
	block chan struct{}

	calls   atomic.Int32
	mu      sync.Mutex
	batches []*cosigner.VerifyAndSignRequest
	values  []*cosigner.SignU256Request
}

func newFakeCosigner(index int) *fakeCosigner {
	return &fakeCosigner{index: index, share: validShare(index)}
}

func (c *fakeCosigner) GetIndex() int      { return c.index }
func (c *fakeCosigner) GetAddress() string { return fmt.Sprintf("http://node%d:15000", c.index) }

func (c *fakeCosigner) respond(ctx context.Context) (*cosigner.SignResult, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &cosigner.SignResult{SignatureShare: c.share, Status: c.status}, nil
}

func (c *fakeCosigner) VerifyAndSign(ctx context.Context, req *cosigner.VerifyAndSignRequest) (*cosigner.SignResult, error) {
	c.mu.Lock()
	c.batches = append(c.batches, req)
	c.mu.Unlock()
	return c.respond(ctx)
}

func (c *fakeCosigner) SignU256(ctx context.Context, req *cosigner.SignU256Request) (*cosigner.SignResult, error) {
	c.mu.Lock()
	c.values = append(c.values, req)
	c.mu.Unlock()
	return c.respond(ctx)
}

func fakeCosigners(n int) []*fakeCosigner {
	out := make([]*fakeCosigner, n)
	for i := range out {
		out[i] = newFakeCosigner(i)
	}
	return out
}

type testSigner struct {
	*node.ThresholdSigner
	dials atomic.Int32
}

func newTestSigner(
	t *testing.T,
	provider tss.CryptoProvider,
	cosigners []*fakeCosigner,
	mutate func(cfg *node.SignerConfig),
) *testSigner {
	t.Helper()
	ts := &testSigner{}

	cfg := node.SignerConfig{
		Provider: provider,
		Dial: func(m committee.Member) (node.ICosigner, error) {
			ts.dials.Add(1)
			if m.Index >= len(cosigners) {
				return nil, fmt.Errorf("no route to %s", m.Endpoint)
			}
			return cosigners[m.Index], nil
		},
		StepInterval: 10 * time.Millisecond,
		MaxSteps:     1000,
		RPCTimeout:   time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := node.NewThresholdSigner(cfg)
	require.NoError(t, err)
	ts.ThresholdSigner = s
	return ts
}

// awaitOutcome reads the single outcome of a request and checks the channel is closed afterwards.
func awaitOutcome(t *testing.T, ch <-chan node.Outcome, timeout time.Duration) node.Outcome {
	t.Helper()
	var o node.Outcome
	select {
	case got, ok := <-ch:
		require.True(t, ok, "outcome channel closed without an outcome")
		o = got
	case <-time.After(timeout):
		t.Fatal("timed out waiting for the signing outcome")
	}

	_, ok := <-ch
	require.False(t, ok, "outcome channel must be closed after the single outcome")
	return o
}

type fakeVerifier struct {
	mu      sync.Mutex
	checked []uint64
	reject  map[uint64]bool
	err     error
}

func (v *fakeVerifier) VerifyOutgoingMessageData(_ context.Context, msg chain.OutgoingMessageData) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checked = append(v.checked, msg.MsgCounter.Uint64())
	if v.err != nil {
		return false, v.err
	}
	return !v.reject[msg.MsgCounter.Uint64()], nil
}

func (v *fakeVerifier) checkedCounters() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint64(nil), v.checked...)
}

type fakeVerifierSource struct {
	verifier *fakeVerifier
	chains   []string
	err      error
}

func (s *fakeVerifierSource) ForChain(_ context.Context, chainName string) (chain.MessageVerifier, error) {
	s.chains = append(s.chains, chainName)
	if s.err != nil {
		return nil, s.err
	}
	return s.verifier, nil
}
