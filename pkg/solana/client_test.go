package solana

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybbus/jsonrpc"
)

func TestSignatureStatus(t *testing.T) {
	zero, one := 0, 1

	testCases := []struct {
		s         SignatureStatus
		confirmed bool
		finalized bool
	}{
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "random",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusProcessed,
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &one,
				ConfirmationStatus: "",
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusConfirmed,
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusFinalized,
			},
			confirmed: true,
			finalized: true,
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.confirmed, tc.s.Confirmed())
		assert.Equal(t, tc.finalized, tc.s.Finalized())
	}
}

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     int               `json:"id"`
}

func newTestRPCServer(t *testing.T, handler func(req rpcRequest) (interface{}, *jsonrpc.RPCError)) Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)

	return New(server.URL)
}

func TestClient_SimulateTransaction(t *testing.T) {
	keys := generateKeys(t, 2)
	tx := NewLegacyTransaction(public(keys[0]), NewInstruction(public(keys[1]), []byte{1}))
	require.NoError(t, tx.Sign(keys[0]))

	c := newTestRPCServer(t, func(req rpcRequest) (interface{}, *jsonrpc.RPCError) {
		assert.Equal(t, "simulateTransaction", req.Method)
		require.Len(t, req.Params, 2)

		var encoded string
		require.NoError(t, json.Unmarshal(req.Params[0], &encoded))
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, tx.Marshal(), raw)

		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": map[string]interface{}{
				"err":           map[string]interface{}{"InstructionError": []interface{}{1, map[string]interface{}{"Custom": 6002}}},
				"logs":          []string{"Program log: Instruction: Borrow", "Program log: AnchorError"},
				"unitsConsumed": 1234,
			},
		}, nil
	})

	result, err := c.SimulateTransaction(tx, CommitmentProcessed)
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.EqualValues(t, 1234, result.UnitsConsumed)
	assert.Len(t, result.Logs, 2)

	ixnErr := result.Err.InstructionError()
	require.NotNil(t, ixnErr)
	assert.Equal(t, 1, ixnErr.Index)
	require.NotNil(t, ixnErr.CustomError())
	assert.Equal(t, CustomError(6002), *ixnErr.CustomError())
}

func TestClient_GetAccountInfo(t *testing.T) {
	owner := generateKeys(t, 1)[0]
	account := generateKeys(t, 1)[0]

	c := newTestRPCServer(t, func(req rpcRequest) (interface{}, *jsonrpc.RPCError) {
		assert.Equal(t, "getAccountInfo", req.Method)

		var address string
		require.NoError(t, json.Unmarshal(req.Params[0], &address))
		if address != base58.Encode(public(account)) {
			return map[string]interface{}{"value": nil}, nil
		}

		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   42,
				"owner":      base58.Encode(public(owner)),
				"data":       []string{base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), "base64"},
				"executable": false,
			},
		}, nil
	})

	info, err := c.GetAccountInfo(public(account), CommitmentProcessed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, info.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)
	assert.Equal(t, public(owner), info.Owner)

	_, err = c.GetAccountInfo(public(owner), CommitmentProcessed)
	assert.Equal(t, ErrNoAccountInfo, err)
}

func TestClient_GetSignatureStatuses(t *testing.T) {
	var sigs [2]Signature
	sigs[0][0] = 1
	sigs[1][0] = 2

	c := newTestRPCServer(t, func(req rpcRequest) (interface{}, *jsonrpc.RPCError) {
		assert.Equal(t, "getSignatureStatuses", req.Method)
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               9,
					"confirmations":      nil,
					"confirmationStatus": "finalized",
					"err":                nil,
				},
				nil,
			},
		}, nil
	})

	statuses, err := c.GetSignatureStatuses(sigs[:])
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.NotNil(t, statuses[0])
	assert.True(t, statuses[0].Finalized())
	assert.Nil(t, statuses[0].ErrorResult)
	assert.Nil(t, statuses[1])
}

func TestNewSignatureStatus(t *testing.T) {
	processed := NewSignatureStatus(1, CommitmentProcessed, nil)
	assert.False(t, processed.Confirmed())

	confirmed := NewSignatureStatus(1, CommitmentConfirmed, nil)
	assert.True(t, confirmed.Confirmed())
	assert.False(t, confirmed.Finalized())

	finalized := NewSignatureStatus(1, CommitmentFinalized, nil)
	assert.True(t, finalized.Finalized())
}
