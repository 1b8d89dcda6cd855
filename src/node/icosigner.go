package node

import (
	"context"
	"net/http"

	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/cosigner"
)

// ICosigner is a committee member that can be asked for a signature share.
type ICosigner interface {
	// GetIndex gets the zero based member index of the cosigner
	GetIndex() int

	// Get the JSON-RPC URL
	GetAddress() string

	// Verify a message batch against the member's own chain view and sign its hash
	VerifyAndSign(ctx context.Context, req *cosigner.VerifyAndSignRequest) (*cosigner.SignResult, error)

	// Sign a scalar value
	SignU256(ctx context.Context, req *cosigner.SignU256Request) (*cosigner.SignResult, error)
}

var _ ICosigner = &cosigner.RemoteCosigner{}

// DialFunc returns the cosigner used to reach a committee member.
type DialFunc func(m committee.Member) (ICosigner, error)

// RemoteDialer dials committee members over JSON-RPC sharing one connection pool.
func RemoteDialer(httpClient *http.Client) DialFunc {
	return func(m committee.Member) (ICosigner, error) {
		c, err := cosigner.NewRemoteCosigner(m.Index, m.Endpoint, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// IKeyManager signs with the key share of this node.
type IKeyManager interface {
	BLSSignMessageHash(ctx context.Context, messageHash string, t, n int) (*cosigner.SignResult, error)
}

var _ IKeyManager = &cosigner.KeyManager{}

// CommitteeSource provides the current committee snapshot.
type CommitteeSource interface {
	Info() (*committee.Info, error)
}

var _ CommitteeSource = &committee.Directory{}
