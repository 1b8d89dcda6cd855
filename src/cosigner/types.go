package cosigner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/relaykit/imasigner/src/types"
)

const (
	MethodVerifyAndSign      = "skale_imaVerifyAndSign"
	MethodSignU256           = "skale_imaBSU256"
	MethodBLSSignMessageHash = "blsSignMessageHash"

	// StatusOK is the only status a committee member or the key manager reports for a usable share.
	StatusOK = 0
)

// Uint64 is written as a JSON number. Decimal strings are accepted when reading.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(u), 10)), nil
}

func (u *Uint64) UnmarshalJSON(bz []byte) error {
	s := strings.Trim(strings.TrimSpace(string(bz)), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unsigned integer %s: %w", string(bz), err)
	}
	*u = Uint64(v)
	return nil
}

// OutgoingMessage is the wire form of types.Message.
type OutgoingMessage struct {
	Sender              string `json:"sender"`
	DestinationContract string `json:"destinationContract"`
	Data                string `json:"data"`
}

// Trace is attached to every request for log correlation only.
type Trace struct {
	CorrelationID string `json:"correlationId"`
	MemberIndex   int32  `json:"memberIndex"`
	Timestamp     string `json:"ts,omitempty"`
}

// VerifyAndSignRequest is the parameter set of skale_imaVerifyAndSign.
type VerifyAndSignRequest struct {
	Direction       string            `json:"direction"`
	StartMessageIdx Uint64            `json:"startMessageIdx"`
	SrcChainName    string            `json:"srcChainName"`
	DstChainName    string            `json:"dstChainName"`
	SrcChainID      string            `json:"srcChainID"`
	DstChainID      string            `json:"dstChainID"`
	Messages        []OutgoingMessage `json:"messages"`
	Trace           Trace             `json:"qa"`
}

// NewVerifyAndSignRequest builds the request sent to every committee member for batch.
func NewVerifyAndSignRequest(
	direction types.Direction,
	batch *types.MessageBatch,
	correlationID string,
) *VerifyAndSignRequest {
	messages := make([]OutgoingMessage, 0, batch.Len())
	for _, m := range batch.Messages {
		messages = append(messages, OutgoingMessage{
			Sender:              m.Sender.Hex(),
			DestinationContract: m.DestinationContract.Hex(),
			Data:                hexutil.Encode(m.Data),
		})
	}

	return &VerifyAndSignRequest{
		Direction:       string(direction),
		StartMessageIdx: Uint64(batch.StartIndex),
		SrcChainName:    batch.SourceChainName,
		DstChainName:    batch.DestinationChainName,
		SrcChainID:      batch.SourceChainID,
		DstChainID:      batch.DestinationChainID,
		Messages:        messages,
		Trace:           Trace{CorrelationID: correlationID},
	}
}

// ForMember returns a copy of the request carrying the trace of member index.
func (r *VerifyAndSignRequest) ForMember(index int) *VerifyAndSignRequest {
	cp := *r
	cp.Trace.MemberIndex = int32(index)
	cp.Trace.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return &cp
}

// ToBatch decodes the wire messages back into a batch. The receiving node hashes the
// decoded batch itself and never trusts a digest supplied by the caller.
func (r *VerifyAndSignRequest) ToBatch() (types.Direction, *types.MessageBatch, error) {
	direction := types.Direction(r.Direction)
	if err := direction.Validate(); err != nil {
		return "", nil, err
	}

	batch := &types.MessageBatch{
		SourceChainName:      r.SrcChainName,
		DestinationChainName: r.DstChainName,
		SourceChainID:        r.SrcChainID,
		DestinationChainID:   r.DstChainID,
		StartIndex:           uint64(r.StartMessageIdx),
		Messages:             make([]types.Message, 0, len(r.Messages)),
	}

	for i, m := range r.Messages {
		if !common.IsHexAddress(m.Sender) {
			return "", nil, fmt.Errorf("message %d: invalid sender address %q", i, m.Sender)
		}
		if !common.IsHexAddress(m.DestinationContract) {
			return "", nil, fmt.Errorf("message %d: invalid destination contract address %q", i, m.DestinationContract)
		}
		var data []byte
		if m.Data != "" {
			var err error
			data, err = hexutil.Decode(m.Data)
			if err != nil {
				return "", nil, fmt.Errorf("message %d: invalid data: %w", i, err)
			}
		}
		batch.Messages = append(batch.Messages, types.Message{
			Sender:              common.HexToAddress(m.Sender),
			DestinationContract: common.HexToAddress(m.DestinationContract),
			Data:                data,
		})
	}

	return direction, batch, nil
}

func (r *VerifyAndSignRequest) params() map[string]interface{} {
	return map[string]interface{}{
		"direction":       r.Direction,
		"startMessageIdx": r.StartMessageIdx,
		"srcChainName":    r.SrcChainName,
		"dstChainName":    r.DstChainName,
		"srcChainID":      r.SrcChainID,
		"dstChainID":      r.DstChainID,
		"messages":        r.Messages,
		"qa":              r.Trace,
	}
}

// SignU256Request is the parameter set of skale_imaBSU256.
type SignU256Request struct {
	// ValueToSign is the decimal or 0x hex form of the scalar.
	ValueToSign string `json:"valueToSign"`
	Trace       Trace  `json:"qa"`
}

func (r *SignU256Request) ForMember(index int) *SignU256Request {
	cp := *r
	cp.Trace.MemberIndex = int32(index)
	cp.Trace.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return &cp
}

func (r *SignU256Request) params() map[string]interface{} {
	return map[string]interface{}{
		"valueToSign": r.ValueToSign,
		"qa":          r.Trace,
	}
}

// SignResult is what a committee member or the key manager returns for one signing request.
type SignResult struct {
	SignatureShare string `json:"signatureShare"`
	Status         int32  `json:"status"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

// Candidate returns the share carried by the result if it may be verified: the status is
// zero and the share is a non-empty "X:Y" pair.
func (r *SignResult) Candidate() (string, error) {
	if r == nil {
		return "", fmt.Errorf("empty sign result")
	}
	if r.Status != StatusOK {
		if r.ErrorMessage != "" {
			return "", fmt.Errorf("sign result status %d: %s", r.Status, r.ErrorMessage)
		}
		return "", fmt.Errorf("sign result status %d", r.Status)
	}
	if r.SignatureShare == "" {
		return "", fmt.Errorf("sign result carries no signature share")
	}
	if !strings.Contains(r.SignatureShare, ":") {
		return "", fmt.Errorf("signature share %q is not an X:Y pair", r.SignatureShare)
	}
	return r.SignatureShare, nil
}

// SignResponse wraps SignResult in the committee node JSON-RPC result.
type SignResponse struct {
	SignResult *SignResult `json:"signResult"`
}
