package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// ScalarHashMode selects how a scalar value is turned into the payload that is signed.
type ScalarHashMode string

const (
	// ScalarHashDigest signs keccak256 of the canonical 32 byte value.
	ScalarHashDigest ScalarHashMode = "digest"
	// ScalarHashRaw signs the canonical 32 byte value itself.
	ScalarHashRaw ScalarHashMode = "raw"
)

func (m ScalarHashMode) Validate() error {
	switch m {
	case ScalarHashDigest, ScalarHashRaw:
		return nil
	default:
		return fmt.Errorf("unknown scalar hash mode %q, expected %q or %q", string(m), ScalarHashDigest, ScalarHashRaw)
	}
}

// canon32 left-pads b with zero bytes to 32 bytes.
func canon32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

// canon32BE is the 32 byte big-endian encoding of n.
func canon32BE(n uint64) []byte {
	return math.PaddedBigBytes(new(big.Int).SetUint64(n), 32)
}

// BatchDigest computes the running keccak256 hash of a message batch.
//
// The accumulator is seeded with the source chain name hash and the start index,
// then every message is folded into it in order, so reordering messages changes the digest.
func BatchDigest(b *MessageBatch) common.Hash {
	chainHash := crypto.Keccak256([]byte(b.SourceChainName))
	acc := crypto.Keccak256(canon32(chainHash), canon32BE(b.StartIndex))

	for _, m := range b.Messages {
		acc = crypto.Keccak256(
			acc,
			canon32(m.Sender.Bytes()),
			canon32(m.DestinationContract.Bytes()),
			m.Data,
		)
	}

	return common.BytesToHash(acc)
}

// HashBatch returns the 0x prefixed hex digest of a message batch.
func HashBatch(b *MessageBatch) string {
	return BatchDigest(b).Hex()
}

// CanonicalScalar returns the 32 byte big-endian representation of v.
func CanonicalScalar(v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("scalar value is nil")
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("scalar value %s is negative", v)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("scalar value %s does not fit in 256 bits", v)
	}
	return math.PaddedBigBytes(v, 32), nil
}

// HashScalar returns the 0x prefixed hex payload for v according to mode.
func HashScalar(v *big.Int, mode ScalarHashMode) (string, error) {
	canonical, err := CanonicalScalar(v)
	if err != nil {
		return "", err
	}
	switch mode {
	case ScalarHashDigest:
		return hexutil.Encode(crypto.Keccak256(canonical)), nil
	case ScalarHashRaw:
		return hexutil.Encode(canonical), nil
	default:
		return "", mode.Validate()
	}
}

// ParseScalar parses a decimal or 0x prefixed hex value of at most 256 bits.
func ParseScalar(s string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("invalid 256 bit value %q", s)
	}
	return v, nil
}

// Strip0x removes a leading 0x from a hex digest. External BLS tools and the
// key management service take digests without the prefix.
func Strip0x(hash string) string {
	if strings.HasPrefix(hash, "0x") || strings.HasPrefix(hash, "0X") {
		return hash[2:]
	}
	return hash
}
