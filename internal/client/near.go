package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
)

// rpcCaller is the part of the solana-go JSON-RPC client we use
type rpcCaller interface {
	CallForInto(ctx context.Context, out interface{}, method string, params []interface{}) error
}

// NearClient is a client for working with NEAR JSON-RPC
type NearClient struct {
	rpcClient rpcCaller
	rpcURL    string
	timeout   time.Duration
}

// NewNearClient creates a new NEAR client for the given node URL.
// timeout bounds every single RPC round-trip; zero means no bound.
func NewNearClient(rpcURL string, timeout time.Duration) *NearClient {
	return &NearClient{
		rpcClient: jsonrpc.NewClient(rpcURL),
		rpcURL:    rpcURL,
		timeout:   timeout,
	}
}

func (c *NearClient) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if params == nil {
		params = []interface{}{}
	}
	return c.rpcClient.CallForInto(ctx, out, method, params)
}

// Status queries node status. Any failure is a ConnectionError.
func (c *NearClient) Status(ctx context.Context) (*model.NodeStatus, error) {
	var status model.NodeStatus
	if err := c.call(ctx, &status, "status"); err != nil {
		return nil, &ConnectionError{Endpoint: c.rpcURL, Err: err}
	}
	if status.ChainID == "" {
		return nil, &ConnectionError{Endpoint: c.rpcURL, Err: errors.New("node returned empty chain id")}
	}
	return &status, nil
}

// ViewAccessKey returns nonce and a recent block hash for the given access key
func (c *NearClient) ViewAccessKey(ctx context.Context, accountID, publicKey string) (*model.AccessKeyView, error) {
	var view model.AccessKeyView
	path := fmt.Sprintf("access_key/%s/%s", accountID, publicKey)
	if err := c.call(ctx, &view, "query", path, ""); err != nil {
		return nil, err
	}
	if view.Error != "" {
		// older nodes answer a missing key with a result carrying an error message
		reason, detail := classifyMessage(view.Error)
		return nil, &ContractCallError{ContractID: accountID, Method: "view_access_key", Reason: reason, Detail: detail}
	}
	return &view, nil
}

// CallView runs a read-only contract method and returns its raw return value
func (c *NearClient) CallView(ctx context.Context, contractID, method string, args interface{}) ([]byte, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var res model.CallResult
	path := fmt.Sprintf("call/%s/%s", contractID, method)
	if err := c.call(ctx, &res, "query", path, base58.Encode(argsJSON)); err != nil {
		return nil, callError(contractID, method, err)
	}
	if res.Error != "" {
		reason, detail := classifyMessage(res.Error)
		return nil, &ContractCallError{ContractID: contractID, Method: method, Reason: reason, Detail: detail}
	}
	return res.Bytes(), nil
}

// BroadcastTxCommit submits a signed transaction and waits for its final outcome
func (c *NearClient) BroadcastTxCommit(ctx context.Context, signedTx []byte) (*model.Outcome, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "broadcast_tx_commit", base64.StdEncoding.EncodeToString(signedTx)); err != nil {
		return nil, err
	}
	return parseOutcome(raw)
}

// FunctionCall signs a single function call with key on behalf of signerID,
// submits it and waits for the outcome. A failed outcome is returned together
// with a ContractCallError describing it.
func (c *NearClient) FunctionCall(ctx context.Context, signerID string, key solana.PrivateKey, contractID, method string, args interface{}, gas uint64, deposit *uint256.Int) (*model.Outcome, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	pub := key.PublicKey()
	view, err := c.ViewAccessKey(ctx, signerID, "ed25519:"+pub.String())
	if err != nil {
		var cc *ContractCallError
		errors.As(callError(contractID, method, err), &cc)
		if cc.Reason == ReasonExecution {
			cc.Reason = ReasonAccessKeyMissing
		}
		cc.Detail = fmt.Sprintf("access key of %s: %s", signerID, cc.Detail)
		return nil, cc
	}

	blockHash, err := base58.Decode(view.BlockHash)
	if err != nil || len(blockHash) != 32 {
		return nil, fmt.Errorf("invalid block hash %q from node", view.BlockHash)
	}

	tx := &Transaction{
		SignerID:   signerID,
		PublicKey:  pub,
		Nonce:      view.Nonce + 1,
		ReceiverID: contractID,
		Actions: []FunctionCallAction{{
			MethodName: method,
			Args:       argsJSON,
			Gas:        gas,
			Deposit:    deposit,
		}},
	}
	copy(tx.BlockHash[:], blockHash)

	signed, hash, err := tx.Sign(key)
	if err != nil {
		return nil, err
	}

	outcome, err := c.BroadcastTxCommit(ctx, signed)
	if err != nil {
		ce := callError(contractID, method, err)
		var cc *ContractCallError
		if errors.As(ce, &cc) {
			cc.TxHash = base58.Encode(hash[:])
		}
		return nil, ce
	}

	if !outcome.Succeeded() {
		reason, detail := classifyFailure(outcome.Failure)
		return outcome, &ContractCallError{
			ContractID: contractID,
			Method:     method,
			Reason:     reason,
			Detail:     detail,
			TxHash:     outcome.TxHash,
		}
	}
	return outcome, nil
}

// parseOutcome decodes the parts of FinalExecutionOutcome we need
func parseOutcome(raw []byte) (*model.Outcome, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid execution outcome")
	}
	res := gjson.ParseBytes(raw)

	outcome := &model.Outcome{
		TxHash:   res.Get("transaction_outcome.id").String(),
		GasBurnt: res.Get("transaction_outcome.outcome.gas_burnt").Uint(),
	}
	if outcome.TxHash == "" {
		outcome.TxHash = res.Get("transaction.hash").String()
	}

	res.Get("receipts_outcome.#.outcome.logs|@flatten").ForEach(func(_, log gjson.Result) bool {
		outcome.Logs = append(outcome.Logs, log.String())
		return true
	})
	for _, r := range res.Get("receipts_outcome").Array() {
		outcome.GasBurnt += r.Get("outcome.gas_burnt").Uint()
	}

	status := res.Get("status")
	switch {
	case status.Get("Failure").Exists():
		outcome.Failure = json.RawMessage(status.Get("Failure").Raw)
	case status.Get("SuccessValue").Exists():
		value, err := base64.StdEncoding.DecodeString(status.Get("SuccessValue").String())
		if err != nil {
			return nil, fmt.Errorf("failed to decode success value: %w", err)
		}
		outcome.SuccessValue = value
	case status.Get("SuccessReceiptId").Exists():
		outcome.SuccessValue = []byte{}
	default:
		return nil, fmt.Errorf("transaction %s did not finish: status %s", outcome.TxHash, status.Raw)
	}
	return outcome, nil
}
