// Package token implements the token manager (C5): it issues and
// verifies signed bearer tokens binding (username, revision, expiry).
// Tokens are RS256 JWTs carrying {name, revision, exp} claims, signed
// with golang-jwt/jwt/v5.
//
// The manager guards its signing keypair with a mutex so SetKeypair
// can rotate keys while Assign/Verify run concurrently; unlike
// pkg/consensus's random-hex cluster-join tokens, bearer tokens need
// claims a holder cannot forge, hence the RS256 signature rather than
// an opaque value.
package token

import (
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the default token lifetime.
const DefaultTTL = 5 * time.Minute

var (
	// ErrTokenManagerNotInitialized is returned by Assign and Verify
	// when no signing keypair has been configured.
	ErrTokenManagerNotInitialized = errors.New("token: manager not initialized with a signing keypair")
	// ErrTokenInvalid is returned for any structurally or
	// cryptographically invalid token.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired is returned for a well-formed but expired token.
	ErrTokenExpired = errors.New("token: expired")
)

// Claims is the JWT payload bound to every issued token.
type Claims struct {
	Name     string `json:"name"`
	Revision int64  `json:"revision"`
	jwt.RegisteredClaims
}

// Manager issues and verifies bearer tokens. The zero value is usable
// but returns ErrTokenManagerNotInitialized from Assign/Verify until
// SetKeypair is called.
type Manager struct {
	mu         sync.RWMutex
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
}

// NewManager creates a Manager with no signing keypair configured.
// Call SetKeypair before issuing or verifying tokens.
func NewManager() *Manager {
	return &Manager{ttl: DefaultTTL}
}

// SetKeypair configures the RSA signing keypair and, optionally, a
// non-default token TTL (zero leaves the current TTL unchanged).
func (m *Manager) SetKeypair(priv *rsa.PrivateKey, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privateKey = priv
	m.publicKey = &priv.PublicKey
	if ttl != 0 {
		m.ttl = ttl
	}
}

// Assign encodes {username, currentRevision} into an RS256 JWT, signs
// it and embeds an expiry DefaultTTL (or the configured TTL) from now.
func (m *Manager) Assign(username string, currentRevision int64) (string, error) {
	m.mu.RLock()
	priv := m.privateKey
	ttl := m.ttl
	m.mu.RUnlock()

	if priv == nil {
		return "", ErrTokenManagerNotInitialized
	}

	now := time.Now()
	claims := Claims{
		Name:     username,
		Revision: currentRevision,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return tok.SignedString(priv)
}

// Verify parses and validates tokenString, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	m.mu.RLock()
	pub := m.publicKey
	m.mu.RUnlock()

	if pub == nil {
		return nil, ErrTokenManagerNotInitialized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrTokenInvalid
		}
		return pub, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
