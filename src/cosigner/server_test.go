package cosigner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu       sync.Mutex
	batches  []*VerifyAndSignRequest
	scalars  []*SignU256Request
	failWith error
}

func (h *fakeHandler) HandleVerifyAndSign(_ context.Context, req *VerifyAndSignRequest) (*SignResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, req)
	if h.failWith != nil {
		return nil, h.failWith
	}
	return &SignResult{SignatureShare: "11:22"}, nil
}

func (h *fakeHandler) HandleSignScalar(_ context.Context, req *SignU256Request) (*SignResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scalars = append(h.scalars, req)
	if h.failWith != nil {
		return nil, h.failWith
	}
	return &SignResult{Status: 3, ErrorMessage: "scalar signing disabled"}, nil
}

func (h *fakeHandler) received() ([]*VerifyAndSignRequest, []*SignU256Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*VerifyAndSignRequest(nil), h.batches...), append([]*SignU256Request(nil), h.scalars...)
}

func startTestServer(t *testing.T, h Handler) *RemoteCosigner {
	t.Helper()

	srv := NewServer(&ServerConfig{
		Logger:        log.NewNopLogger(),
		ListenAddress: "tcp://127.0.0.1:0",
		Handler:       h,
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	remote, err := NewRemoteCosigner(1, fmt.Sprintf("tcp://%s", srv.Addr()), nil)
	require.NoError(t, err)
	return remote
}

func TestRemoteCosignerVerifyAndSign(t *testing.T) {
	h := &fakeHandler{}
	remote := startTestServer(t, h)

	batch := testBatch()
	req := NewVerifyAndSignRequest(types.DirectionS2S, batch, "corr-1").ForMember(1)

	res, err := remote.VerifyAndSign(context.Background(), req)
	require.NoError(t, err)

	share, err := res.Candidate()
	require.NoError(t, err)
	require.Equal(t, "11:22", share)

	batches, _ := h.received()
	require.Len(t, batches, 1)
	got := batches[0]
	require.Equal(t, "corr-1", got.Trace.CorrelationID)
	require.Equal(t, int32(1), got.Trace.MemberIndex)

	_, decoded, err := got.ToBatch()
	require.NoError(t, err)
	require.Equal(t, types.HashBatch(batch), types.HashBatch(decoded))
}

func TestRemoteCosignerSignU256(t *testing.T) {
	h := &fakeHandler{}
	remote := startTestServer(t, h)

	res, err := remote.SignU256(context.Background(), &SignU256Request{ValueToSign: "123456"})
	require.NoError(t, err)
	require.Equal(t, int32(3), res.Status)

	_, err = res.Candidate()
	require.Error(t, err)

	_, scalars := h.received()
	require.Len(t, scalars, 1)
	require.Equal(t, "123456", scalars[0].ValueToSign)
}

func TestRemoteCosignerHandlerError(t *testing.T) {
	remote := startTestServer(t, &fakeHandler{failWith: errors.New("message proxy disagrees")})

	_, err := remote.VerifyAndSign(
		context.Background(),
		NewVerifyAndSignRequest(types.DirectionM2S, testBatch(), "corr-2"),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "message proxy disagrees")
}

func TestRemoteCosignerUnreachable(t *testing.T) {
	remote, err := NewRemoteCosigner(0, "tcp://127.0.0.1:1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, remote.GetIndex())
	require.Equal(t, "tcp://127.0.0.1:1", remote.GetAddress())

	_, err = remote.SignU256(context.Background(), &SignU256Request{ValueToSign: "1"})
	require.Error(t, err)
}
