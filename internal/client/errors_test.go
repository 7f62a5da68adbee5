package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason FailureReason
	}{
		{
			name:   "already initialized",
			raw:    `{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: The contract has already been initialized"}}}}`,
			reason: ReasonAlreadyInitialized,
		},
		{
			name:   "legacy guest panic",
			raw:    `{"ActionError":{"index":0,"kind":{"FunctionCallError":{"HostError":{"GuestPanic":{"panic_msg":"Already initialized"}}}}}}`,
			reason: ReasonAlreadyInitialized,
		},
		{
			name:   "deposit too small",
			raw:    `{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: Deposit < MIN_REQUIRED_INITIAL_DEPOSIT"}}}}`,
			reason: ReasonInsufficientDeposit,
		},
		{
			name:   "other panic",
			raw:    `{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: predecessor != current"}}}}`,
			reason: ReasonExecution,
		},
		{
			name:   "lack balance for state",
			raw:    `{"ActionError":{"index":0,"kind":{"LackBalanceForState":{"account_id":"a.testnet","amount":"1"}}}}`,
			reason: ReasonNotEnoughBalance,
		},
		{
			name:   "not enough balance",
			raw:    `{"TxExecutionError":{"InvalidTxError":{"NotEnoughBalance":{"signer_id":"benjiman.testnet","balance":"1","cost":"2"}}}}`,
			reason: ReasonNotEnoughBalance,
		},
		{
			name:   "invalid nonce",
			raw:    `{"InvalidTxError":{"InvalidNonce":{"tx_nonce":1,"ak_nonce":5}}}`,
			reason: ReasonInvalidNonce,
		},
		{
			name:   "unknown access key",
			raw:    `{"InvalidTxError":{"InvalidAccessKeyError":{"AccessKeyNotFound":{}}}}`,
			reason: ReasonAccessKeyMissing,
		},
		{
			name:   "string timeout",
			raw:    `"Timeout"`,
			reason: ReasonTimeout,
		},
		{
			name:   "string missing key",
			raw:    `"access key ed25519:abc does not exist while viewing"`,
			reason: ReasonAccessKeyMissing,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, detail := classifyFailure([]byte(tc.raw))
			assert.Equal(t, tc.reason, reason)
			assert.NotEmpty(t, detail)
		})
	}
}

func TestCallErrorFromRPCError(t *testing.T) {
	rpcErr := &jsonrpc.RPCError{
		Code:    -32000,
		Message: "Server error",
		Data: map[string]interface{}{
			"TxExecutionError": map[string]interface{}{
				"InvalidTxError": map[string]interface{}{
					"NotEnoughBalance": map[string]interface{}{"signer_id": "benjiman.testnet"},
				},
			},
		},
	}

	err := callError("linkdrop.testnet", "send", fmt.Errorf("wrapped: %w", rpcErr))
	reason, ok := ReasonOf(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonNotEnoughBalance, reason)
	assert.ErrorIs(t, err, rpcErr)
}

func TestCallErrorTimeout(t *testing.T) {
	err := callError("linkdrop.testnet", "send", context.DeadlineExceeded)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonTimeout, reason)
}

func TestCallErrorTransport(t *testing.T) {
	err := callError("linkdrop.testnet", "send", errors.New("connection refused"))
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonTransport, reason)
	assert.Contains(t, err.Error(), "linkdrop.testnet.send")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsConnectionError(fmt.Errorf("x: %w", &ConnectionError{Endpoint: "http://x", Err: errors.New("down")})))
	assert.False(t, IsConnectionError(errors.New("down")))
	assert.True(t, IsContractCallError(&ContractCallError{Reason: ReasonExecution}))
	_, ok := ReasonOf(errors.New("plain"))
	assert.False(t, ok)
}
