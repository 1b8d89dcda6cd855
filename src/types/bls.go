package types

import (
	"fmt"
)

// BLSPublicKey is a G2 public key given as its four field element coordinates.
type BLSPublicKey [4]string

// Incomplete reports whether any coordinate of the key is missing.
func (pk BLSPublicKey) Incomplete() bool {
	for _, e := range pk {
		if e == "" {
			return true
		}
	}
	return false
}

func (pk BLSPublicKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", pk[0], pk[1], pk[2], pk[3])
}
