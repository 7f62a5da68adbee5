package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for sealed credentials.
// N=2^18 (~256MB RAM, 0.5-2s per open). Variables so tests can lower the cost.
var (
	scryptN = 1 << 18
	scryptR = 8
	scryptP = 1
)

const (
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// SealCredential encrypts a plaintext credential and writes it to filePath.
// password must be []byte for security (caller should zero it after use)
func SealCredential(filePath, network string, cred *model.Credential, password []byte) error {
	if !strings.HasSuffix(filePath, sealedExt) {
		return fmt.Errorf("file must have %s extension", sealedExt)
	}
	if len(password) == 0 {
		return errors.New("password cannot be empty")
	}

	// Check if file exists and is not empty
	if fileInfo, err := os.Stat(filePath); err == nil && fileInfo.Size() > 0 {
		return fmt.Errorf("file is not empty: %w", os.ErrExist)
	}

	priv, err := ParsePrivateKey(cred.Key())
	if err != nil {
		return err
	}
	defer clear(priv)

	publicKey := FormatPublicKey(priv.PublicKey())
	if cred.PublicKey != "" && cred.PublicKey != publicKey {
		return errors.New("private key does not match public key")
	}

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return err
	}

	payload := &model.SealedPayload{
		PrivateKey: priv,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal credential data: %w", err)
	}
	defer clear(plaintext) // wipe plaintext bytes from memory

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	sealed := model.SealedCredential{
		Network:    network,
		AccountID:  cred.AccountID,
		PublicKey:  publicKey,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}

	fileData, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sealed file: %w", err)
	}

	if err := os.WriteFile(filePath, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// OpenCredential reads and decrypts a sealed credential file.
// password must be []byte for security (caller should zero it after use)
func OpenCredential(filePath string, password []byte) (*model.SealedCredential, solana.PrivateKey, error) {
	fileData, err := readNonEmpty(filePath)
	if err != nil {
		return nil, nil, err
	}

	var sealed model.SealedCredential
	if err := json.Unmarshal(fileData, &sealed); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal sealed file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed.CipherText)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, nil, errors.New("invalid password")
	}
	defer clear(plaintext) // wipe decrypted bytes from memory

	var payload model.SealedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal credential data: %w", err)
	}

	if len(payload.PrivateKey) != privateKeySize {
		clear(payload.PrivateKey)
		return nil, nil, errors.New("invalid private key length")
	}

	priv := solana.PrivateKey(payload.PrivateKey)
	if sealed.PublicKey != "" && FormatPublicKey(priv.PublicKey()) != sealed.PublicKey {
		clear(priv)
		return nil, nil, errors.New("private key does not match public key")
	}
	return &sealed, priv, nil
}

func newGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
