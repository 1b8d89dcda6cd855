package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/relaykit/imasigner/src/types"
)

const methodVerifyOutgoingMessageData = "verifyOutgoingMessageData"

// MessageProxyABI is the part of the message proxy contract used for the pre-check.
const MessageProxyABI = `[{
	"inputs": [{
		"components": [
			{"internalType": "bytes32", "name": "dstChainHash", "type": "bytes32"},
			{"internalType": "uint256", "name": "msgCounter", "type": "uint256"},
			{"internalType": "address", "name": "srcContract", "type": "address"},
			{"internalType": "address", "name": "dstContract", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"internalType": "struct MessageProxy.OutgoingMessageData",
		"name": "message",
		"type": "tuple"
	}],
	"name": "verifyOutgoingMessageData",
	"outputs": [{"internalType": "bool", "name": "isValidMessage", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}]`

// OutgoingMessageData is one message as recorded by the source chain message proxy.
type OutgoingMessageData struct {
	DstChainHash [32]byte
	MsgCounter   *big.Int
	SrcContract  common.Address
	DstContract  common.Address
	Data         []byte
}

// OutgoingMessages returns the message proxy records the messages of batch are expected to match.
func OutgoingMessages(batch *types.MessageBatch) []OutgoingMessageData {
	dstChainHash := crypto.Keccak256Hash([]byte(batch.DestinationChainName))

	out := make([]OutgoingMessageData, 0, batch.Len())
	for i, m := range batch.Messages {
		out = append(out, OutgoingMessageData{
			DstChainHash: dstChainHash,
			MsgCounter:   new(big.Int).SetUint64(batch.MessageIndex(i)),
			SrcContract:  m.Sender,
			DstContract:  m.DestinationContract,
			Data:         m.Data,
		})
	}
	return out
}

// MessageVerifier confirms that a message was really emitted by the source chain.
type MessageVerifier interface {
	VerifyOutgoingMessageData(ctx context.Context, msg OutgoingMessageData) (bool, error)
}

var _ MessageVerifier = &MessageProxyVerifier{}

// MessageProxyVerifier asks the message proxy contract through a read-only call.
type MessageProxyVerifier struct {
	caller ethereum.ContractCaller
	proxy  common.Address
	abi    abi.ABI
	closer func()
}

func NewMessageProxyVerifier(caller ethereum.ContractCaller, proxy common.Address) (*MessageProxyVerifier, error) {
	parsed, err := abi.JSON(strings.NewReader(MessageProxyABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message proxy ABI: %w", err)
	}
	return &MessageProxyVerifier{
		caller: caller,
		proxy:  proxy,
		abi:    parsed,
	}, nil
}

// DialMessageProxyVerifier connects to rpcURL and checks the endpoint answers before returning.
func DialMessageProxyVerifier(
	ctx context.Context,
	logger log.Logger,
	rpcURL string,
	proxy common.Address,
) (*MessageProxyVerifier, error) {
	var client *ethclient.Client

	err := retry.Do(
		func() error {
			c, err := ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				return err
			}
			if _, err := c.ChainID(ctx); err != nil {
				c.Close()
				return err
			}
			client = c
			return nil
		},
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("Retrying chain endpoint", "url", rpcURL, "attempt", n+1, "err", err)
		}),
		retry.DelayType(retry.BackOffDelay),
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	v, err := NewMessageProxyVerifier(client, proxy)
	if err != nil {
		client.Close()
		return nil, err
	}
	v.closer = client.Close
	return v, nil
}

func (v *MessageProxyVerifier) VerifyOutgoingMessageData(ctx context.Context, msg OutgoingMessageData) (bool, error) {
	input, err := v.abi.Pack(methodVerifyOutgoingMessageData, msg)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s call: %w", methodVerifyOutgoingMessageData, err)
	}

	output, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &v.proxy, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("%s call failed: %w", methodVerifyOutgoingMessageData, err)
	}

	res, err := v.abi.Unpack(methodVerifyOutgoingMessageData, output)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s result: %w", methodVerifyOutgoingMessageData, err)
	}
	if len(res) != 1 {
		return false, errors.New("unexpected verifyOutgoingMessageData result length")
	}
	ok, isBool := res[0].(bool)
	if !isBool {
		return false, fmt.Errorf("unexpected verifyOutgoingMessageData result type %T", res[0])
	}
	return ok, nil
}

// Close releases the underlying chain connection if the verifier owns one.
func (v *MessageProxyVerifier) Close() {
	if v.closer != nil {
		v.closer()
	}
}
