package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"
)

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error: %v", err)
	}
	return key
}

func TestAssignVerifyRoundTrip(t *testing.T) {
	m := NewManager()
	m.SetKeypair(mustKey(t), time.Minute)

	tok, err := m.Assign("alice", 4)
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}

	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Name != "alice" || claims.Revision != 4 {
		t.Errorf("Verify() claims = %+v, want name=alice revision=4", claims)
	}
}

func TestNotInitialized(t *testing.T) {
	m := NewManager()

	if _, err := m.Assign("alice", 1); err != ErrTokenManagerNotInitialized {
		t.Errorf("Assign() error = %v, want ErrTokenManagerNotInitialized", err)
	}
	if _, err := m.Verify("anything"); err != ErrTokenManagerNotInitialized {
		t.Errorf("Verify() error = %v, want ErrTokenManagerNotInitialized", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	m := NewManager()
	m.SetKeypair(mustKey(t), -time.Minute)

	tok, err := m.Assign("alice", 1)
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}

	if _, err := m.Verify(tok); err != ErrTokenExpired {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyInvalidToken(t *testing.T) {
	m := NewManager()
	m.SetKeypair(mustKey(t), time.Minute)

	if _, err := m.Verify("not-a-real-token"); err != ErrTokenInvalid {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyWithWrongKey(t *testing.T) {
	issuer := NewManager()
	issuer.SetKeypair(mustKey(t), time.Minute)

	tok, err := issuer.Assign("alice", 1)
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}

	verifier := NewManager()
	verifier.SetKeypair(mustKey(t), time.Minute)

	if _, err := verifier.Verify(tok); err != ErrTokenInvalid {
		t.Errorf("Verify() with mismatched key error = %v, want ErrTokenInvalid", err)
	}
}
