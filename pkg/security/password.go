// Package security implements password hashing for the auth core:
// PBKDF2-SHA256 in PHC string format, with constant-time verification.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 600000
	saltSize         = 16
	keySize          = 32
	phcPrefix        = "$pbkdf2-sha256$"
)

// HashPassword derives a PBKDF2-SHA256 key from password with a fresh
// random salt and returns it encoded as a PHC string:
// $pbkdf2-sha256$i=<iters>$<salt_b64>$<hash_b64>
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
	return encodePHC(pbkdf2Iterations, salt, hash), nil
}

// VerifyPassword reports whether password matches the PHC-encoded hash
// produced by HashPassword, using a constant-time comparison.
func VerifyPassword(password, encoded string) (bool, error) {
	iterations, salt, wantHash, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	gotHash := pbkdf2.Key([]byte(password), salt, iterations, len(wantHash), sha256.New)
	return subtle.ConstantTimeCompare(gotHash, wantHash) == 1, nil
}

func encodePHC(iterations int, salt, hash []byte) string {
	return fmt.Sprintf("%si=%d$%s$%s", phcPrefix, iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func decodePHC(encoded string) (iterations int, salt, hash []byte, err error) {
	if !strings.HasPrefix(encoded, phcPrefix) {
		return 0, nil, nil, fmt.Errorf("invalid password hash format")
	}

	parts := strings.Split(strings.TrimPrefix(encoded, phcPrefix), "$")
	if len(parts) != 3 {
		return 0, nil, nil, fmt.Errorf("invalid password hash format")
	}

	paramPart := parts[0]
	if !strings.HasPrefix(paramPart, "i=") {
		return 0, nil, nil, fmt.Errorf("invalid password hash parameters")
	}
	iterations, err = strconv.Atoi(strings.TrimPrefix(paramPart, "i="))
	if err != nil || iterations <= 0 {
		return 0, nil, nil, fmt.Errorf("invalid iteration count")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("invalid salt encoding: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("invalid hash encoding: %w", err)
	}

	return iterations, salt, hash, nil
}
