// Package testutil provides an in-process NEAR JSON-RPC node for tests.
package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AlexZinkM/near-linkdrop/internal/client"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

// Linkdrop contract constants (yoctoNEAR)
var (
	minStorageCost        = uint256.MustFromDecimal("1000000000000000000000")
	minAccessKeyAllowance = uint256.MustFromDecimal("20000000000000000000000")
	newAccountMinimum     = uint256.MustFromDecimal("1820000000000000000000")
)

// Call records one executed function call
type Call struct {
	Signer   string
	Receiver string
	Method   string
	Args     map[string]interface{}
	Gas      uint64
	Deposit  *uint256.Int
	TxHash   string
}

// NearNode is a fake NEAR node speaking enough JSON-RPC for the linkdrop flow:
// status, query access_key/…, query call/…/get_key_balance and broadcast_tx_commit
// for new_default_meta and send.
type NearNode struct {
	Server  *httptest.Server
	ChainID string

	mu          sync.Mutex
	accessKeys  map[string]uint64 // account|public key -> nonce
	initialized map[string]bool   // contract -> initialized
	linkdrops   map[string]*uint256.Int
	calls       []Call
	sendPanic   string
	initPanic   string
	rejectTx    json.RawMessage
	statusFails bool
}

// NewNearNode starts a fake node; it is closed when the test ends
func NewNearNode(t testing.TB, chainID string) *NearNode {
	t.Helper()
	n := &NearNode{
		ChainID:     chainID,
		accessKeys:  make(map[string]uint64),
		initialized: make(map[string]bool),
		linkdrops:   make(map[string]*uint256.Int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Server.Close)
	return n
}

// URL returns the node RPC endpoint
func (n *NearNode) URL() string {
	return n.Server.URL
}

// AddAccessKey registers a full access key for accountID
func (n *NearNode) AddAccessKey(accountID, publicKey string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accessKeys[accountID+"|"+publicKey] = 100
}

// SetInitialized marks a contract as already initialized
func (n *NearNode) SetInitialized(contractID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.initialized[contractID] = true
}

// FailSend makes every send call panic with msg
func (n *NearNode) FailSend(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendPanic = msg
}

// FailInit makes every new_default_meta call panic with msg
func (n *NearNode) FailInit(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.initPanic = msg
}

// RejectTransactions makes broadcast_tx_commit answer with an RPC error carrying data
func (n *NearNode) RejectTransactions(data string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejectTx = json.RawMessage(data)
}

// FailStatus makes the status method answer with an RPC error
func (n *NearNode) FailStatus() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusFails = true
}

// Calls returns all executed function calls in order
func (n *NearNode) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

// KeyBalance returns the stored linkdrop balance for a public key
func (n *NearNode) KeyBalance(publicKey string) (*uint256.Int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.linkdrops[publicKey]
	return v, ok
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (n *NearNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var params []string
	_ = json.Unmarshal(req.Params, &params)

	n.mu.Lock()
	result, rerr := n.dispatch(req.Method, params)
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *NearNode) dispatch(method string, params []string) (interface{}, *rpcError) {
	switch method {
	case "status":
		if n.statusFails {
			return nil, &rpcError{Code: -32000, Message: "Server error", Data: json.RawMessage(`"node is syncing"`)}
		}
		return map[string]interface{}{
			"chain_id":  n.ChainID,
			"version":   map[string]string{"version": "fake", "build": "test"},
			"sync_info": map[string]interface{}{"latest_block_hash": blockHash(), "latest_block_height": 1, "syncing": false},
		}, nil
	case "query":
		if len(params) != 2 {
			return nil, &rpcError{Code: -32602, Message: "Invalid params"}
		}
		return n.query(params[0], params[1])
	case "broadcast_tx_commit":
		if len(params) != 1 {
			return nil, &rpcError{Code: -32602, Message: "Invalid params"}
		}
		return n.broadcast(params[0])
	}
	return nil, &rpcError{Code: -32601, Message: "Method not found"}
}

func (n *NearNode) query(path, data string) (interface{}, *rpcError) {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) != 3 {
		return nil, &rpcError{Code: -32602, Message: "Invalid params"}
	}
	switch parts[0] {
	case "access_key":
		nonce, ok := n.accessKeys[parts[1]+"|"+parts[2]]
		if !ok {
			msg := fmt.Sprintf("access key %s does not exist while viewing", parts[2])
			return nil, &rpcError{Code: -32000, Message: "Server error", Data: mustJSON(msg)}
		}
		return map[string]interface{}{
			"nonce":        nonce,
			"permission":   "FullAccess",
			"block_hash":   blockHash(),
			"block_height": 1,
		}, nil
	case "call":
		args, err := base58.Decode(data)
		if err != nil {
			return nil, &rpcError{Code: -32602, Message: "Invalid params"}
		}
		return n.view(parts[1], parts[2], args), nil
	}
	return nil, &rpcError{Code: -32602, Message: "Invalid params"}
}

func (n *NearNode) view(contractID, method string, rawArgs []byte) interface{} {
	if method != "get_key_balance" {
		return map[string]interface{}{"error": "wasm execution failed with error: MethodNotFound", "logs": []string{}}
	}
	var args struct {
		Key string `json:"key"`
	}
	_ = json.Unmarshal(rawArgs, &args)
	balance, ok := n.linkdrops[args.Key]
	if !ok {
		return map[string]interface{}{"error": "wasm execution failed with error: Smart contract panicked: Key missing", "logs": []string{}}
	}
	value, _ := json.Marshal(balance.Dec())
	out := make([]int, len(value))
	for i, b := range value {
		out[i] = int(b)
	}
	return map[string]interface{}{"result": out, "logs": []string{}, "block_hash": blockHash(), "block_height": 1}
}

func (n *NearNode) broadcast(encoded string) (interface{}, *rpcError) {
	if n.rejectTx != nil {
		return nil, &rpcError{Code: -32000, Message: "Server error", Data: n.rejectTx}
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "Invalid params"}
	}
	st, err := client.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "Invalid params", Data: mustJSON(err.Error())}
	}
	if ok, _ := st.Verify(); !ok {
		return nil, invalidTx(`{"InvalidSignature":null}`)
	}

	tx := st.Transaction
	keyID := tx.SignerID + "|ed25519:" + tx.PublicKey.String()
	nonce, ok := n.accessKeys[keyID]
	if !ok {
		return nil, invalidTx(`{"InvalidAccessKeyError":{"AccessKeyNotFound":{}}}`)
	}
	if tx.Nonce <= nonce {
		return nil, invalidTx(fmt.Sprintf(`{"InvalidNonce":{"tx_nonce":%d,"ak_nonce":%d}}`, tx.Nonce, nonce))
	}
	n.accessKeys[keyID] = tx.Nonce

	hash, _ := tx.Hash()
	txHash := base58.Encode(hash[:])

	var failure string
	for _, action := range tx.Actions {
		var args map[string]interface{}
		_ = json.Unmarshal(action.Args, &args)
		n.calls = append(n.calls, Call{
			Signer:   tx.SignerID,
			Receiver: tx.ReceiverID,
			Method:   action.MethodName,
			Args:     args,
			Gas:      action.Gas,
			Deposit:  action.Deposit,
			TxHash:   txHash,
		})
		failure = n.execute(tx.ReceiverID, action.MethodName, args, action.Deposit)
		if failure != "" {
			break
		}
	}

	status := map[string]interface{}{"SuccessValue": ""}
	if failure != "" {
		status = map[string]interface{}{
			"Failure": map[string]interface{}{
				"ActionError": map[string]interface{}{
					"index": 0,
					"kind": map[string]interface{}{
						"FunctionCallError": map[string]string{"ExecutionError": "Smart contract panicked: " + failure},
					},
				},
			},
		}
	}
	return map[string]interface{}{
		"status":      status,
		"transaction": map[string]interface{}{"hash": txHash, "signer_id": tx.SignerID, "receiver_id": tx.ReceiverID},
		"transaction_outcome": map[string]interface{}{
			"id":      txHash,
			"outcome": map[string]interface{}{"gas_burnt": 2428000000000, "logs": []string{}},
		},
		"receipts_outcome": []interface{}{
			map[string]interface{}{"id": txHash, "outcome": map[string]interface{}{"gas_burnt": 5000000000000, "logs": []string{"executed " + tx.Actions[0].MethodName}}},
		},
	}, nil
}

// execute applies a linkdrop contract method and returns a panic message on failure
func (n *NearNode) execute(contractID, method string, args map[string]interface{}, deposit *uint256.Int) string {
	switch method {
	case "new_default_meta":
		if n.initPanic != "" {
			return n.initPanic
		}
		if n.initialized[contractID] {
			return "The contract has already been initialized"
		}
		n.initialized[contractID] = true
		return ""
	case "send":
		if !n.initialized[contractID] {
			return "The contract is not initialized"
		}
		if n.sendPanic != "" {
			return n.sendPanic
		}
		pk, _ := args["public_key"].(string)
		existing, exists := n.linkdrops[pk]

		required := new(uint256.Int).Add(minStorageCost, minAccessKeyAllowance)
		required.Add(required, newAccountMinimum)
		if exists {
			required = uint256.NewInt(1)
		}
		if deposit.Lt(required) {
			return "Deposit < MIN_REQUIRED_INITIAL_DEPOSIT"
		}

		if exists {
			n.linkdrops[pk] = new(uint256.Int).Add(existing, deposit)
			return ""
		}
		amount := new(uint256.Int).Sub(deposit, minAccessKeyAllowance)
		n.linkdrops[pk] = amount.Sub(amount, minStorageCost)
		return ""
	}
	return "MethodResolveError(MethodNotFound)"
}

func invalidTx(inner string) *rpcError {
	return &rpcError{
		Code:    -32000,
		Message: "Server error",
		Data:    json.RawMessage(`{"TxExecutionError":{"InvalidTxError":` + inner + `}}`),
	}
}

func blockHash() string {
	sum := sha256.Sum256([]byte("block"))
	return base58.Encode(sum[:])
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
