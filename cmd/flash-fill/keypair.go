package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// loadKeypair reads a keypair in the Solana CLI format: a JSON array of the
// 64 private key bytes.
func loadKeypair(path string) (ed25519.PrivateKey, error) {
	if len(path) == 0 {
		return nil, errors.New("keypair path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading keypair")
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "error decoding keypair")
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("keypair has %d bytes, expected %d", len(values), ed25519.PrivateKeySize)
	}

	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, errors.Errorf("invalid keypair byte at index %d", i)
		}
		key[i] = byte(v)
	}

	// The trailing bytes must be the public key of the seed
	derived := ed25519.NewKeyFromSeed(key.Seed())
	if !bytes.Equal(derived, key) {
		return nil, errors.New("keypair public key does not match its seed")
	}

	return key, nil
}
