package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/gagliardetto/solana-go"
)

const (
	// KeyTypeED25519 is the only curve supported for linkdrop and signing keys
	KeyTypeED25519 = "ed25519"

	keyPrefix      = KeyTypeED25519 + ":"
	privateKeySize = 64
	publicKeySize  = 32
)

// ErrUnsupportedKeyType is returned for keys on any curve other than ed25519
var ErrUnsupportedKeyType = errors.New("unsupported key type: only ed25519 is supported")

// GenerateKeyPair generates a fresh ed25519 keypair from crypto/rand.
// The returned private key is the full 64-byte key; caller should clear it after use.
func GenerateKeyPair() (model.KeyPair, solana.PrivateKey, error) {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return model.KeyPair{}, nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return model.KeyPair{
		PublicKey:  FormatPublicKey(priv.PublicKey()),
		PrivateKey: FormatPrivateKey(priv),
	}, priv, nil
}

// FormatPublicKey renders a public key as ed25519:<base58>
func FormatPublicKey(pub solana.PublicKey) string {
	return keyPrefix + pub.String()
}

// FormatPrivateKey renders a private key as ed25519:<base58>
func FormatPrivateKey(priv solana.PrivateKey) string {
	return keyPrefix + priv.String()
}

// ParsePrivateKey parses ed25519:<base58> (the prefix is optional)
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	raw, err := stripKeyType(s)
	if err != nil {
		return nil, err
	}
	priv, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(priv) != privateKeySize {
		return nil, fmt.Errorf("invalid private key length: expected %d bytes, got %d", privateKeySize, len(priv))
	}
	return priv, nil
}

// ParsePublicKey parses ed25519:<base58> (the prefix is optional)
func ParsePublicKey(s string) (solana.PublicKey, error) {
	raw, err := stripKeyType(s)
	if err != nil {
		return solana.PublicKey{}, err
	}
	pub, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid public key: %w", err)
	}
	return pub, nil
}

// PublicKeyOf derives the NEAR public key string for a private key string
func PublicKeyOf(privateKey string) (string, error) {
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	defer clear(priv)
	return FormatPublicKey(priv.PublicKey()), nil
}

func stripKeyType(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty key")
	}
	curve, data, found := strings.Cut(s, ":")
	if !found {
		return s, nil
	}
	if curve != KeyTypeED25519 {
		return "", fmt.Errorf("%w (got %q)", ErrUnsupportedKeyType, curve)
	}
	return data, nil
}
