package cosigner

import (
	"context"
	"fmt"
	"net/http"

	client "github.com/cometbft/cometbft/rpc/jsonrpc/client"
)

// RemoteCosigner requests signature shares from one committee node over JSON-RPC.
type RemoteCosigner struct {
	index   int
	address string
	client  *client.Client
}

// NewRemoteCosigner returns a RemoteCosigner for the member with the given index.
// httpClient may be shared between cosigners, nil selects the default transport.
func NewRemoteCosigner(index int, address string, httpClient *http.Client) (*RemoteCosigner, error) {
	var (
		c   *client.Client
		err error
	)
	if httpClient == nil {
		c, err = client.New(address)
	} else {
		c, err = client.NewWithHTTPClient(address, httpClient)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create client for member %d at %s: %w", index, address, err)
	}

	return &RemoteCosigner{
		index:   index,
		address: address,
		client:  c,
	}, nil
}

// GetIndex returns the zero based member index of the remote cosigner
func (cosigner *RemoteCosigner) GetIndex() int {
	return cosigner.index
}

// GetAddress returns the RPC URL of the remote cosigner
func (cosigner *RemoteCosigner) GetAddress() string {
	return cosigner.address
}

// VerifyAndSign asks the member to verify the batch on its own chain view and sign its hash.
func (cosigner *RemoteCosigner) VerifyAndSign(ctx context.Context, req *VerifyAndSignRequest) (*SignResult, error) {
	res := new(SignResponse)
	if _, err := cosigner.client.Call(ctx, MethodVerifyAndSign, req.params(), res); err != nil {
		return nil, err
	}
	if res.SignResult == nil {
		return nil, fmt.Errorf("%s response carries no signResult", MethodVerifyAndSign)
	}
	return res.SignResult, nil
}

// SignU256 asks the member to sign a scalar value.
func (cosigner *RemoteCosigner) SignU256(ctx context.Context, req *SignU256Request) (*SignResult, error) {
	res := new(SignResponse)
	if _, err := cosigner.client.Call(ctx, MethodSignU256, req.params(), res); err != nil {
		return nil, err
	}
	if res.SignResult == nil {
		return nil, fmt.Errorf("%s response carries no signResult", MethodSignU256)
	}
	return res.SignResult, nil
}
