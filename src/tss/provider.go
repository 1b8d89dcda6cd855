package tss

import (
	"context"

	"github.com/relaykit/imasigner/src/types"
)

// CryptoProvider is the set of BLS operations the signer needs.
// Curve arithmetic is never done in process: implementations delegate it.
type CryptoProvider interface {
	// VerifyShare checks one member's share over hash against that member's public key.
	VerifyShare(ctx context.Context, p Params, hash string, share SignatureShare, pk types.BLSPublicKey) error

	// Aggregate glues threshold shares into one signature and maps hash onto G1.
	Aggregate(ctx context.Context, p Params, hash string, shares []SignatureShare) (*AggregateResult, error)

	// HashToCurve maps hash onto G1.
	HashToCurve(ctx context.Context, p Params, hash string) (*HashPoint, error)

	// VerifyAggregate checks a glued signature against the committee common public key.
	VerifyAggregate(ctx context.Context, p Params, hash string, sig G1Point, common types.BLSPublicKey) error
}
