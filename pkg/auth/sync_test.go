package auth

import (
	"testing"
)

// TestUserGrantRoleDuplicateRejected exercises the normal path: two
// grants of the same role to the same user through the public
// Execute/Sync pair, the second of which Execute already rejects.
func TestUserGrantRoleDuplicateRejected(t *testing.T) {
	c := newTestCore(t)
	ids := &proposalIDs{}

	mustApply(t, c, ids, UserAddRequest{Name: "alice", PasswordHash: mustHashPassword(t, "pw")})
	mustApply(t, c, ids, RoleAddRequest{Name: "reader"})
	mustApply(t, c, ids, UserGrantRoleRequest{User: "alice", Role: "reader"})

	_, _, err := apply(t, c, ids, UserGrantRoleRequest{User: "alice", Role: "reader"})
	ic := asInvalidCommand(t, err)
	if ic.Message == "" {
		t.Fatalf("expected a non-empty message")
	}

	resp, _ := mustApply(t, c, ids, UserGetRequest{Name: "alice"})
	if len(resp.Roles) != 1 {
		t.Fatalf("alice.Roles = %v, want exactly one entry (no duplicate)", resp.Roles)
	}
}

// TestSyncRejectsDuplicateGrantIndependently drives Core.sync directly
// (bypassing Execute) to confirm Sync re-validates the already-has-role
// guard on its own, the way it must when two proposals both cleared
// Execute against the same pre-mutation state before either's Sync ran.
func TestSyncRejectsDuplicateGrantIndependently(t *testing.T) {
	c := newTestCore(t)
	ids := &proposalIDs{}

	mustApply(t, c, ids, UserAddRequest{Name: "alice", PasswordHash: mustHashPassword(t, "pw")})
	mustApply(t, c, ids, RoleAddRequest{Name: "reader"})
	mustApply(t, c, ids, UserGrantRoleRequest{User: "alice", Role: "reader"})

	revBefore := c.rev.Current()
	_, err := c.sync(UserGrantRoleRequest{User: "alice", Role: "reader"})
	asInvalidCommand(t, err)
	if c.rev.Current() != revBefore {
		t.Fatalf("revision advanced on a rejected sync: before=%d after=%d", revBefore, c.rev.Current())
	}

	user, ok, err := c.loadUser("alice")
	if err != nil || !ok {
		t.Fatalf("loadUser(alice) = %v, %v, %v", user, ok, err)
	}
	if len(user.Roles) != 1 {
		t.Fatalf("alice.Roles = %v, want exactly one entry", user.Roles)
	}
}

// TestSyncRejectsGrantOfRoleDeletedBetweenExecuteAndSync reproduces the
// race Execute alone cannot catch: a role is live when Execute
// validates a grant against it, but deleted before that proposal's
// Sync runs. Sync must re-check role existence itself rather than
// blindly calling addRole.
func TestSyncRejectsGrantOfRoleDeletedBetweenExecuteAndSync(t *testing.T) {
	c := newTestCore(t)
	ids := &proposalIDs{}

	mustApply(t, c, ids, UserAddRequest{Name: "alice", PasswordHash: mustHashPassword(t, "pw")})
	mustApply(t, c, ids, RoleAddRequest{Name: "reader"})

	grantID := ids.next()
	if _, err := c.Execute(grantID, UserGrantRoleRequest{User: "alice", Role: "reader"}); err != nil {
		t.Fatalf("Execute(grant) = %v, want nil (role exists at validation time)", err)
	}

	mustApply(t, c, ids, RoleDeleteRequest{Name: "reader"})

	revBefore := c.rev.Current()
	if _, err := c.Sync(grantID); err == nil {
		t.Fatalf("Sync(grant) succeeded after the granted role was deleted, want an error")
	}
	if c.rev.Current() != revBefore {
		t.Fatalf("revision advanced on a rejected sync: before=%d after=%d", revBefore, c.rev.Current())
	}

	resp, _ := mustApply(t, c, ids, UserGetRequest{Name: "alice"})
	if len(resp.Roles) != 0 {
		t.Fatalf("alice.Roles = %v, want empty (grant of deleted role must not have applied)", resp.Roles)
	}
}

// TestUserGrantRoleNonexistentRoleRejected covers the same-state path:
// a role that never existed.
func TestUserGrantRoleNonexistentRoleRejected(t *testing.T) {
	c := newTestCore(t)
	ids := &proposalIDs{}

	mustApply(t, c, ids, UserAddRequest{Name: "alice", PasswordHash: mustHashPassword(t, "pw")})

	_, _, err := apply(t, c, ids, UserGrantRoleRequest{User: "alice", Role: "ghost"})
	asInvalidCommand(t, err)
}

// TestUserGrantRootRoleNeedsNoRoleRecord confirms granting the literal
// root role never requires a stored role record, at both Execute and
// Sync.
func TestUserGrantRootRoleNeedsNoRoleRecord(t *testing.T) {
	c := newTestCore(t)
	ids := &proposalIDs{}

	mustApply(t, c, ids, UserAddRequest{Name: "root", PasswordHash: mustHashPassword(t, "pw")})
	mustApply(t, c, ids, UserGrantRoleRequest{User: "root", Role: "root"})

	resp, _ := mustApply(t, c, ids, UserGetRequest{Name: "root"})
	if len(resp.Roles) != 1 || resp.Roles[0] != "root" {
		t.Fatalf("root.Roles = %v, want [root]", resp.Roles)
	}

	perms, err := c.cache.Read("root")
	if err != nil {
		t.Fatalf("cache.Read(root): %v", err)
	}
	if len(perms.Read) != 1 || len(perms.Write) != 1 {
		t.Fatalf("root user permissions = %+v, want the synthesized all-keys read/write range", perms)
	}
}
