// Package keystore reads and writes the signing key kept next to the binary.
package keystore

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// EnvVar names the environment variable consulted before the key file.
const EnvVar = "SOLANA_PRIVATE_KEY_BASE58"

var (
	// ErrNoKeyFile is returned when the key file is missing or empty.
	ErrNoKeyFile = errors.New("no private key file")
	// ErrEmptyKey is returned when a blank key is supplied.
	ErrEmptyKey = errors.New("private key is empty")
)

// Parse decodes a base58 secret key as exported by Phantom or solana-keygen.
func Parse(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyKey
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: got %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	return key, nil
}

// LoadFile reads the key stored at path.
func LoadFile(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKeyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrNoKeyFile
	}
	key, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}

// Load prefers the environment variable and falls back to the key file.
func Load(path string) (solana.PrivateKey, error) {
	if v := os.Getenv(EnvVar); v != "" {
		return Parse(v)
	}
	return LoadFile(path)
}

// SaveFile writes the key as base58 with owner-only permissions.
func SaveFile(path string, key solana.PrivateKey) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if err := os.WriteFile(path, []byte(key.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	return nil
}
