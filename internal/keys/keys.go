// Package keys holds the key-material providers backing field-level
// encryption. Real deployments front an external secret manager; the hex
// provider reads the key handed over by configuration.
package keys

import (
	"encoding/hex"
	"fmt"

	"privalytics/ports"
)

// HexProvider decodes a hex-encoded symmetric key from configuration.
type HexProvider struct {
	keyHex string
}

// NewHexProvider creates a provider over a hex-encoded key.
func NewHexProvider(keyHex string) *HexProvider {
	return &HexProvider{keyHex: keyHex}
}

// EncryptionKey decodes and returns the key material.
func (p *HexProvider) EncryptionKey() ([]byte, error) {
	if p.keyHex == "" {
		return nil, fmt.Errorf("no encryption key configured")
	}
	key, err := hex.DecodeString(p.keyHex)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	return key, nil
}

// Static is a fixed-key provider for tests.
type Static struct {
	Key []byte
}

// EncryptionKey returns the fixed key.
func (s Static) EncryptionKey() ([]byte, error) {
	return s.Key, nil
}

var (
	_ ports.KeyProvider = (*HexProvider)(nil)
	_ ports.KeyProvider = Static{}
)
