package consensus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// voterRole is the only join role this module's single raft group
// supports; a token minted for any other role can never be redeemed
// by Join/AddVoter and is rejected at validation time rather than
// silently accepted and left unusable.
const voterRole = "voter"

// DefaultJoinTokenTTL is used by callers that don't pick their own
// expiry, long enough to hand a token to an operator out of band
// (email, chat, a config-management run) without it going stale.
const DefaultJoinTokenTTL = 24 * time.Hour

// JoinTokenManager issues and redeems single-use cluster-join tokens:
// proof that the bearer is allowed to add exactly one voter to this
// raft cluster. Unlike pkg/token's user-facing signed JWTs (C5),
// membership tokens never need asymmetric signatures or
// externally-verifiable claims — a random value the leader remembers
// having issued, and forgets the instant it's redeemed, is enough.
type JoinTokenManager struct {
	mu      sync.Mutex
	pending map[string]joinGrant
}

// joinGrant is the bookkeeping kept for one outstanding invitation.
type joinGrant struct {
	role      string
	issuedAt  time.Time
	expiresAt time.Time
}

// JoinToken is the credential handed back to whoever requested it.
type JoinToken struct {
	Token     string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewJoinTokenManager creates an empty JoinTokenManager.
func NewJoinTokenManager() *JoinTokenManager {
	return &JoinTokenManager{pending: make(map[string]joinGrant)}
}

// Generate mints a new join token for role, valid until duration has
// elapsed (DefaultJoinTokenTTL if duration is zero or negative).
func (m *JoinTokenManager) Generate(role string, duration time.Duration) (*JoinToken, error) {
	if duration <= 0 {
		duration = DefaultJoinTokenTTL
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}
	token := hex.EncodeToString(raw)
	now := time.Now()
	grant := joinGrant{role: role, issuedAt: now, expiresAt: now.Add(duration)}

	m.mu.Lock()
	m.pending[token] = grant
	m.mu.Unlock()

	return &JoinToken{Token: token, Role: grant.role, CreatedAt: grant.issuedAt, ExpiresAt: grant.expiresAt}, nil
}

// Validate redeems token: it must have been issued by this manager,
// still be unexpired, and grant the voter role, the only membership
// this raft group understands. A valid token is consumed on success
// so it cannot be replayed to add a second voter.
func (m *JoinTokenManager) Validate(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, ok := m.pending[token]
	if !ok {
		return "", fmt.Errorf("invalid join token")
	}
	if time.Now().After(grant.expiresAt) {
		delete(m.pending, token)
		return "", fmt.Errorf("join token expired")
	}
	if grant.role != voterRole {
		return "", fmt.Errorf("join token grants unsupported role %q", grant.role)
	}
	delete(m.pending, token)
	return grant.role, nil
}

// Revoke invalidates token immediately, before it is ever redeemed.
func (m *JoinTokenManager) Revoke(token string) {
	m.mu.Lock()
	delete(m.pending, token)
	m.mu.Unlock()
}

// CleanupExpired removes every token past its expiry. Nothing in this
// module calls it on a schedule; an expired token is otherwise dropped
// only when it is presented to Validate.
func (m *JoinTokenManager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for token, grant := range m.pending {
		if now.After(grant.expiresAt) {
			delete(m.pending, token)
		}
	}
}
