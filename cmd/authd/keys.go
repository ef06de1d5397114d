package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// signingKeyPath is where each node's RS256 token-signing keypair is
// persisted as a PEM file on disk, generated once and reused across
// restarts for C5's bearer tokens.
func signingKeyPath(dataDir string) string {
	return filepath.Join(dataDir, "token-signing-key.pem")
}

// loadOrCreateSigningKey loads the node's persisted RSA keypair, or
// generates and saves a new one if none exists yet.
func loadOrCreateSigningKey(dataDir string) (*rsa.PrivateKey, error) {
	path := signingKeyPath(dataDir)

	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block in %s", path)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		return key, nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save signing key: %w", err)
	}
	return key, nil
}
