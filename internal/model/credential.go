package model

// Credential represents a near-cli credential file (<network>/<account>.json)
type Credential struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	SecretKey  string `json:"secret_key,omitempty"` // older near-cli versions
}

// Key returns the private key, whichever field it was stored under.
func (c *Credential) Key() string {
	if c.PrivateKey != "" {
		return c.PrivateKey
	}
	return c.SecretKey
}

// SealedCredential represents an encrypted credential file (<network>/<account>.sealed.json)
type SealedCredential struct {
	Network    string `json:"network"`
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// SealedPayload represents decrypted sealed credential data
type SealedPayload struct {
	PrivateKey []byte `json:"privateKey"` // 64 bytes ed25519 key (stored as base64 in JSON)
	CreatedAt  string `json:"createdAt"`
}
