package tss

import (
	"fmt"
	"strings"
)

// Params are the threshold parameters passed to every BLS tool invocation.
type Params struct {
	Threshold    int
	Participants int
}

// G1Point is an affine point given as decimal coordinates.
type G1Point struct {
	X string `json:"X"`
	Y string `json:"Y"`
}

// SignatureShare is one committee member's partial signature over the request hash.
type SignatureShare struct {
	MemberIndex int
	X           string
	Y           string
	// Raw is the share exactly as returned by the member, "X:Y".
	Raw string
}

func (s SignatureShare) String() string {
	return s.X + ":" + s.Y
}

// ParseSignatureShare parses a "X:Y" share returned by member index.
func ParseSignatureShare(index int, raw string) (SignatureShare, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SignatureShare{}, fmt.Errorf("malformed signature share %q from member %d, expected X:Y", raw, index)
	}
	return SignatureShare{
		MemberIndex: index,
		X:           parts[0],
		Y:           parts[1],
		Raw:         raw,
	}, nil
}

// HashPoint is the hash of a message mapped onto G1 together with the hint the
// destination chain needs to repeat the mapping.
type HashPoint struct {
	Point G1Point `json:"hashPoint"`
	Hint  string  `json:"hint"`
}

// AggregateResult is the proof of quorum handed to the relay layer.
type AggregateResult struct {
	Signature  G1Point
	SourceHash string
	HashPoint  G1Point
	Hint       string
}
