package model

// KeyPair is an ed25519 keypair in NEAR string form (ed25519:<base58>)
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// Linkdrop is the result of one issuance
type Linkdrop struct {
	ContractID     string
	PublicKey      string
	ClaimURL       string
	Funded         bool
	InitTxHash     string
	FundingTxHash  string
	FundingFailure string // why the key is not funded; empty when Funded
	State          string
}
