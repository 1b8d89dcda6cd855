package cosigner

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

func testBatch() *types.MessageBatch {
	return &types.MessageBatch{
		SourceChainName:      "Mainnet",
		DestinationChainName: "elated-tan-skat",
		SourceChainID:        "0x1",
		DestinationChainID:   "0x7b",
		StartIndex:           41,
		Messages: []types.Message{
			{
				Sender:              common.HexToAddress("0x7aa5E36AA15E93D10F4F26357C30F052DacDde5F"),
				DestinationContract: common.HexToAddress("0xd2AAa00100000000000000000000000000000000"),
				Data:                []byte{0x01, 0x02, 0x03},
			},
			{
				Sender:              common.HexToAddress("0x0000000000000000000000000000000000000001"),
				DestinationContract: common.HexToAddress("0x0000000000000000000000000000000000000002"),
			},
		},
	}
}

func TestVerifyAndSignRequestRoundTrip(t *testing.T) {
	batch := testBatch()
	req := NewVerifyAndSignRequest(types.DirectionS2M, batch, "abc")

	require.Equal(t, "S2M", req.Direction)
	require.Equal(t, Uint64(41), req.StartMessageIdx)
	require.Equal(t, "0x010203", req.Messages[0].Data)
	require.Equal(t, "0x", req.Messages[1].Data)

	direction, decoded, err := req.ToBatch()
	require.NoError(t, err)
	require.Equal(t, types.DirectionS2M, direction)
	require.Equal(t, types.HashBatch(batch), types.HashBatch(decoded))
}

func TestVerifyAndSignRequestForMember(t *testing.T) {
	req := NewVerifyAndSignRequest(types.DirectionM2S, testBatch(), "abc")
	m := req.ForMember(2)

	require.Equal(t, int32(2), m.Trace.MemberIndex)
	require.NotEmpty(t, m.Trace.Timestamp)
	require.Equal(t, int32(0), req.Trace.MemberIndex)
	require.Equal(t, "abc", m.Trace.CorrelationID)
}

func TestToBatchRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *VerifyAndSignRequest)
	}{
		{"direction", func(r *VerifyAndSignRequest) { r.Direction = "X2Y" }},
		{"sender", func(r *VerifyAndSignRequest) { r.Messages[0].Sender = "0x1234" }},
		{"destination", func(r *VerifyAndSignRequest) { r.Messages[1].DestinationContract = "nope" }},
		{"data", func(r *VerifyAndSignRequest) { r.Messages[0].Data = "0xzz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewVerifyAndSignRequest(types.DirectionS2S, testBatch(), "abc")
			tt.mutate(req)
			_, _, err := req.ToBatch()
			require.Error(t, err)
		})
	}
}

func TestUint64JSON(t *testing.T) {
	var v struct {
		A Uint64 `json:"a"`
		B Uint64 `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 18446744073709551615, "b": "12"}`), &v))
	require.Equal(t, Uint64(18446744073709551615), v.A)
	require.Equal(t, Uint64(12), v.B)

	bz, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 18446744073709551615, "b": 12}`, string(bz))

	require.Error(t, json.Unmarshal([]byte(`{"a": -1}`), &v))
}

func TestSignResultCandidate(t *testing.T) {
	tests := []struct {
		name    string
		res     *SignResult
		share   string
		wantErr bool
	}{
		{"ok", &SignResult{SignatureShare: "1:2"}, "1:2", false},
		{"nil", nil, "", true},
		{"status", &SignResult{SignatureShare: "1:2", Status: 7}, "", true},
		{"status with message", &SignResult{Status: 7, ErrorMessage: "no key"}, "", true},
		{"empty share", &SignResult{}, "", true},
		{"not a pair", &SignResult{SignatureShare: "12"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share, err := tt.res.Candidate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.share, share)
		})
	}
}
