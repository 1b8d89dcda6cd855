package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Direction is the relay direction of a message batch.
type Direction string

const (
	DirectionM2S Direction = "M2S" // mainnet to schain
	DirectionS2M Direction = "S2M" // schain to mainnet
	DirectionS2S Direction = "S2S" // schain to schain
)

func (d Direction) Validate() error {
	switch d {
	case DirectionM2S, DirectionS2M, DirectionS2S:
		return nil
	default:
		return fmt.Errorf("unknown direction %q, expected one of M2S, S2M, S2S", string(d))
	}
}

// RequiresPrecheck reports whether outgoing messages of this direction are checked
// against the source chain message proxy before signing.
// M2S is not checked.
func (d Direction) RequiresPrecheck() bool {
	return d == DirectionS2M || d == DirectionS2S
}

type Message struct {
	Sender              common.Address
	DestinationContract common.Address
	Data                []byte
}

// MessageBatch is an ordered run of messages starting at StartIndex on the source chain.
// A batch must not be modified after it has been handed to a signer.
type MessageBatch struct {
	SourceChainName      string
	DestinationChainName string
	SourceChainID        string
	DestinationChainID   string
	StartIndex           uint64
	Messages             []Message
}

func (b *MessageBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Messages)
}

// MessageIndex returns the source chain counter of the i-th message of the batch.
func (b *MessageBatch) MessageIndex(i int) uint64 {
	return b.StartIndex + uint64(i)
}
