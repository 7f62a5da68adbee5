package linkdrop

import (
	"fmt"
	"path/filepath"

	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
)

// SealAccount encrypts the plaintext credential of accountID in the key store
// directory and writes it next to it as <account>.sealed.json.
// The plaintext file is left in place. Returns the path of the sealed file.
// password must be []byte for security (caller should zero it after use)
func SealAccount(keys *crypto.KeyStore, network, accountID string, password []byte) (string, error) {
	if !crypto.ValidAccountID(accountID) {
		return "", fmt.Errorf("invalid account id %q", accountID)
	}

	plainPath := filepath.Join(keys.Dir(), accountID+".json")
	cred, err := crypto.ReadCredential(plainPath)
	if err != nil {
		return "", fmt.Errorf("failed to read credential %s: %w", plainPath, err)
	}
	if cred.AccountID == "" {
		cred.AccountID = accountID
	}
	if cred.AccountID != accountID {
		return "", fmt.Errorf("credential file belongs to %s, not %s", cred.AccountID, accountID)
	}

	sealedPath := filepath.Join(keys.Dir(), accountID+".sealed.json")
	if err := crypto.SealCredential(sealedPath, network, cred, password); err != nil {
		return "", fmt.Errorf("failed to seal credential: %w", err)
	}
	return sealedPath, nil
}
