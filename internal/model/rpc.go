package model

import "encoding/json"

// NodeStatus is the subset of the `status` response we use
type NodeStatus struct {
	ChainID  string      `json:"chain_id"`
	Version  NodeVersion `json:"version"`
	SyncInfo SyncInfo    `json:"sync_info"`
}

// NodeVersion is the node build reported by `status`
type NodeVersion struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

// SyncInfo is the chain head reported by `status`
type SyncInfo struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	Syncing           bool   `json:"syncing"`
}

// AccessKeyView is the response of query access_key/<account>/<pk>
type AccessKeyView struct {
	Nonce       uint64          `json:"nonce"`
	Permission  json.RawMessage `json:"permission"`
	BlockHash   string          `json:"block_hash"`
	BlockHeight uint64          `json:"block_height"`
	Error       string          `json:"error,omitempty"`
}

// CallResult is the response of query call/<contract>/<method>
type CallResult struct {
	Result      []int    `json:"result"` // raw bytes as a JSON number array
	Logs        []string `json:"logs"`
	BlockHash   string   `json:"block_hash"`
	BlockHeight uint64   `json:"block_height"`
	Error       string   `json:"error,omitempty"`
}

// Bytes returns the view call return value as bytes
func (r *CallResult) Bytes() []byte {
	out := make([]byte, len(r.Result))
	for i, b := range r.Result {
		out[i] = byte(b)
	}
	return out
}

// Outcome is a decoded final execution outcome of a broadcast transaction
type Outcome struct {
	TxHash       string
	SuccessValue []byte          // decoded SuccessValue, nil when the call failed
	Failure      json.RawMessage // raw status.Failure object, nil on success
	Logs         []string
	GasBurnt     uint64
}

// Succeeded reports whether the transaction executed without failure
func (o *Outcome) Succeeded() bool {
	return o != nil && len(o.Failure) == 0
}
