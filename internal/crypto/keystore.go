package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/gagliardetto/solana-go"
)

const (
	credentialExt = ".json"
	sealedExt     = ".sealed.json"
)

// accountIDPattern follows the NEAR account id rules
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidAccountID reports whether id is a well-formed NEAR account id
func ValidAccountID(id string) bool {
	return len(id) >= 2 && len(id) <= 64 && accountIDPattern.MatchString(id)
}

// CredentialNotFoundError is returned when the store holds no key for an account
type CredentialNotFoundError struct {
	AccountID string
	Path      string
}

func (e *CredentialNotFoundError) Error() string {
	return fmt.Sprintf("no credentials for %s in %s", e.AccountID, e.Path)
}

// IsCredentialNotFoundError checks if error is CredentialNotFoundError
func IsCredentialNotFoundError(err error) bool {
	var target *CredentialNotFoundError
	return errors.As(err, &target)
}

// PasswordFunc supplies the password for sealed credential files.
// The returned slice is cleared by the caller after use.
type PasswordFunc func() ([]byte, error)

// KeyStore reads signing keys from a near-cli style credentials directory:
// <dir>/<network>/<account>.json, or <account>.sealed.json when encrypted.
// It never writes.
type KeyStore struct {
	dir      string
	password PasswordFunc
}

// NewKeyStore binds a credentials directory to one network
func NewKeyStore(baseDir, network string, password PasswordFunc) *KeyStore {
	return &KeyStore{
		dir:      filepath.Join(baseDir, network),
		password: password,
	}
}

// Dir returns the network-specific directory this store reads from
func (s *KeyStore) Dir() string {
	return s.dir
}

// GetKey returns the signing key for accountID.
// Caller should clear the returned key after use.
func (s *KeyStore) GetKey(accountID string) (solana.PrivateKey, error) {
	if !ValidAccountID(accountID) {
		return nil, fmt.Errorf("invalid account id %q", accountID)
	}

	plainPath := filepath.Join(s.dir, accountID+credentialExt)
	if _, err := os.Stat(plainPath); err == nil {
		return readPlainCredential(plainPath, accountID)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	sealedPath := filepath.Join(s.dir, accountID+sealedExt)
	if _, err := os.Stat(sealedPath); err != nil {
		if os.IsNotExist(err) {
			return nil, &CredentialNotFoundError{AccountID: accountID, Path: s.dir}
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if s.password == nil {
		return nil, fmt.Errorf("credentials for %s are sealed and no password source is configured", accountID)
	}
	password, err := s.password()
	if err != nil {
		return nil, fmt.Errorf("failed to get password: %w", err)
	}
	defer clear(password)

	sealed, priv, err := OpenCredential(sealedPath, password)
	if err != nil {
		return nil, err
	}
	if sealed.AccountID != accountID {
		clear(priv)
		return nil, fmt.Errorf("sealed credential belongs to %s, not %s", sealed.AccountID, accountID)
	}
	return priv, nil
}

// ReadCredential reads a plaintext near-cli credential file
func ReadCredential(filePath string) (*model.Credential, error) {
	fileData, err := readNonEmpty(filePath)
	if err != nil {
		return nil, err
	}

	var cred model.Credential
	if err := json.Unmarshal(fileData, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential file: %w", err)
	}
	return &cred, nil
}

func readPlainCredential(filePath, accountID string) (solana.PrivateKey, error) {
	cred, err := ReadCredential(filePath)
	if err != nil {
		return nil, err
	}
	if cred.AccountID != "" && cred.AccountID != accountID {
		return nil, fmt.Errorf("credential file belongs to %s, not %s", cred.AccountID, accountID)
	}

	priv, err := ParsePrivateKey(cred.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to parse key for %s: %w", accountID, err)
	}

	// Verify key matches the recorded public key
	if cred.PublicKey != "" && FormatPublicKey(priv.PublicKey()) != cred.PublicKey {
		clear(priv)
		return nil, fmt.Errorf("private key does not match public key in %s", filePath)
	}
	return priv, nil
}

// readNonEmpty reads a file, rejecting missing or empty files and skipping a UTF-8 BOM
func readNonEmpty(filePath string) ([]byte, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file does not exist")
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if fileInfo.Size() == 0 {
		return nil, errors.New("file is empty")
	}

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Skip UTF-8 BOM if present
	if len(fileData) >= 3 && fileData[0] == 0xEF && fileData[1] == 0xBB && fileData[2] == 0xBF {
		fileData = fileData[3:]
	}
	return fileData, nil
}
