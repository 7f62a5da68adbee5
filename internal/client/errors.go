package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/tidwall/gjson"
)

// FailureReason is the structured cause of a rejected or reverted call
type FailureReason string

const (
	ReasonAlreadyInitialized  FailureReason = "already_initialized"
	ReasonInsufficientDeposit FailureReason = "insufficient_deposit"
	ReasonNotEnoughBalance    FailureReason = "not_enough_balance"
	ReasonAccessKeyMissing    FailureReason = "access_key_missing"
	ReasonInvalidNonce        FailureReason = "invalid_nonce"
	ReasonTimeout             FailureReason = "timeout"
	ReasonExecution           FailureReason = "execution"
	ReasonTransport           FailureReason = "transport"
)

// ConnectionError is returned when the RPC session cannot be established
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if error is ConnectionError
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// ContractCallError is returned when a contract call is rejected by the node
// or reverted during execution
type ContractCallError struct {
	ContractID string
	Method     string
	Reason     FailureReason
	Detail     string
	TxHash     string // empty when the transaction never executed
	Err        error
}

func (e *ContractCallError) Error() string {
	msg := fmt.Sprintf("call %s.%s failed (%s)", e.ContractID, e.Method, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ContractCallError) Unwrap() error {
	return e.Err
}

// IsContractCallError checks if error is ContractCallError
func IsContractCallError(err error) bool {
	var target *ContractCallError
	return errors.As(err, &target)
}

// ReasonOf returns the failure reason of a ContractCallError anywhere in err's chain
func ReasonOf(err error) (FailureReason, bool) {
	var target *ContractCallError
	if errors.As(err, &target) {
		return target.Reason, true
	}
	return "", false
}

// classifyFailure maps a NEAR failure object (execution outcome status.Failure,
// or RPC error data) to a reason and a human readable detail
func classifyFailure(raw []byte) (FailureReason, string) {
	if !gjson.ValidBytes(raw) {
		return classifyMessage(string(raw))
	}

	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		return classifyMessage(root.String())
	}

	// RPC errors wrap the outcome failure one level deeper
	if inner := root.Get("TxExecutionError"); inner.Exists() {
		return classifyFailure([]byte(inner.Raw))
	}

	if tx := root.Get("InvalidTxError"); tx.Exists() {
		switch {
		case tx.Get("NotEnoughBalance").Exists():
			return ReasonNotEnoughBalance, tx.Raw
		case tx.Get("InvalidNonce").Exists():
			return ReasonInvalidNonce, tx.Raw
		case tx.Get("InvalidAccessKeyError").Exists():
			return ReasonAccessKeyMissing, tx.Raw
		case tx.Get("SignerDoesNotExist").Exists():
			return ReasonAccessKeyMissing, tx.Raw
		}
		return ReasonExecution, tx.Raw
	}

	kind := root.Get("ActionError.kind")
	if !kind.Exists() {
		// Older nodes report the action error kind at the top level
		kind = root
	}

	if call := kind.Get("FunctionCallError"); call.Exists() {
		for _, path := range []string{"ExecutionError", "HostError.GuestPanic.panic_msg", "EvmError", "WasmTrap"} {
			if msg := call.Get(path); msg.Exists() && msg.Type == gjson.String {
				return classifyPanic(msg.String())
			}
		}
		return ReasonExecution, call.Raw
	}
	if kind.Get("LackBalanceForState").Exists() {
		return ReasonNotEnoughBalance, kind.Raw
	}
	return ReasonExecution, root.Raw
}

// classifyPanic classifies a contract panic message
func classifyPanic(msg string) (FailureReason, string) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "already been initialized"), strings.Contains(lower, "already initialized"):
		return ReasonAlreadyInitialized, msg
	case strings.Contains(msg, "MIN_REQUIRED_INITIAL_DEPOSIT"), strings.Contains(lower, "deposit <"):
		return ReasonInsufficientDeposit, msg
	}
	return ReasonExecution, msg
}

// classifyMessage classifies the free-form string data some RPC errors carry
func classifyMessage(msg string) (FailureReason, string) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return ReasonTimeout, msg
	case strings.Contains(lower, "access key") && (strings.Contains(lower, "does not exist") || strings.Contains(lower, "never been observed")):
		return ReasonAccessKeyMissing, msg
	case strings.Contains(lower, "account") && strings.Contains(lower, "does not exist"):
		return ReasonAccessKeyMissing, msg
	}
	return classifyPanic(msg)
}

// callError wraps a transport-level error from a call against contractID
func callError(contractID, method string, err error) error {
	if err == nil {
		return nil
	}
	var cc *ContractCallError
	if errors.As(err, &cc) {
		return &ContractCallError{ContractID: contractID, Method: method, Reason: cc.Reason, Detail: cc.Detail, TxHash: cc.TxHash, Err: cc.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ContractCallError{ContractID: contractID, Method: method, Reason: ReasonTimeout, Detail: "request timed out", Err: err}
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		reason, detail := ReasonTransport, rpcErr.Message
		if rpcErr.Data != nil {
			if data, mErr := json.Marshal(rpcErr.Data); mErr == nil {
				reason, detail = classifyFailure(data)
			}
		} else {
			reason, detail = classifyMessage(rpcErr.Message)
		}
		if reason == ReasonExecution && rpcErr.Data == nil {
			reason = ReasonTransport
		}
		return &ContractCallError{ContractID: contractID, Method: method, Reason: reason, Detail: detail, Err: err}
	}

	return &ContractCallError{ContractID: contractID, Method: method, Reason: ReasonTransport, Detail: err.Error(), Err: err}
}
