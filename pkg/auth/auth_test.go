package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"testing"

	"github.com/cuemby/keystone/pkg/lease"
	"github.com/cuemby/keystone/pkg/security"
	"github.com/cuemby/keystone/pkg/store"
	"github.com/cuemby/keystone/pkg/token"
)

// newTestCore opens a fresh bbolt-backed store under t.TempDir and
// returns a Core wired to a throwaway signing keypair and an empty
// lease stub, mirroring how cmd/authd wires a node in production.
func newTestCore(t *testing.T) *Core {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	tokens := token.NewManager()
	tokens.SetKeypair(priv, 0)

	c, err := NewCore(st, tokens, lease.NewStub())
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return c
}

// proposalIDs hands out distinct, deterministic proposal ids, standing
// in for the uuid.NewString() calls cmd/authd and pkg/consensus make
// against a live raft log.
type proposalIDs struct{ n int }

func (p *proposalIDs) next() string {
	p.n++
	return fmt.Sprintf("proposal-%d", p.n)
}

// apply drives req through the same Execute-then-Sync pair
// pkg/consensus.AuthFSM.Apply runs on every replica once a command
// commits. If Execute rejects the request, Sync is never expected to
// fail and its error is ignored; the caller only ever needs Execute's
// error in that case.
func apply(t *testing.T, c *Core, ids *proposalIDs, req Request) (Response, int64, error) {
	t.Helper()
	id := ids.next()
	resp, execErr := c.Execute(id, req)
	rev, syncErr := c.Sync(id)
	if execErr != nil {
		return resp, rev, execErr
	}
	return resp, rev, syncErr
}

func mustApply(t *testing.T, c *Core, ids *proposalIDs, req Request) (Response, int64) {
	t.Helper()
	resp, rev, err := apply(t, c, ids, req)
	if err != nil {
		t.Fatalf("apply(%T) failed: %v", req, err)
	}
	return resp, rev
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

// asInvalidCommand fails the test unless err is an *InvalidCommand,
// returning it for further assertions on its message.
func asInvalidCommand(t *testing.T, err error) *InvalidCommand {
	t.Helper()
	ic, ok := err.(*InvalidCommand)
	if !ok {
		t.Fatalf("error = %v (%T), want *InvalidCommand", err, err)
	}
	return ic
}
