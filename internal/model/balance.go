package model

// KeyBalance is the balance a linkdrop contract holds for one public key
type KeyBalance struct {
	ContractID string
	PublicKey  string
	Yocto      string
	NEAR       string
	Currency   string // empty when no fiat rate was requested
	Rate       string
	Fiat       string
}
