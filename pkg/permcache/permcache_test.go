package permcache

import (
	"reflect"
	"sort"
	"testing"
)

func sortedKeyRanges(kr []KeyRange) []KeyRange {
	out := append([]KeyRange(nil), kr...)
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out
}

func equalPerms(t *testing.T, got, want UserPermissions) {
	t.Helper()
	if !reflect.DeepEqual(sortedKeyRanges(got.Read), sortedKeyRanges(want.Read)) {
		t.Errorf("Read mismatch: got %+v, want %+v", got.Read, want.Read)
	}
	if !reflect.DeepEqual(sortedKeyRanges(got.Write), sortedKeyRanges(want.Write)) {
		t.Errorf("Write mismatch: got %+v, want %+v", got.Write, want.Write)
	}
}

func TestRebuildDerivesEffectivePermissions(t *testing.T) {
	roles := []RolePermissions{
		{Name: "dev", Permissions: []Permission{
			{Type: ReadWrite, Key: []byte("a"), RangeEnd: []byte("z")},
		}},
		{Name: "ops", Permissions: []Permission{
			{Type: Read, Key: []byte("m")},
		}},
	}
	users := []UserRoles{
		{Name: "alice", Roles: []string{"dev", "ops"}},
		{Name: "bob", Roles: []string{"dev"}},
	}

	c := New()
	c.Rebuild(users, roles)

	alice, err := c.Read("alice")
	if err != nil {
		t.Fatalf("Read(alice) error: %v", err)
	}
	equalPerms(t, alice, UserPermissions{
		Read:  []KeyRange{{Key: []byte("a"), RangeEnd: []byte("z")}, {Key: []byte("m")}},
		Write: []KeyRange{{Key: []byte("a"), RangeEnd: []byte("z")}},
	})

	if got := c.RolesOf("dev"); len(got) != 2 {
		t.Errorf("RolesOf(dev) = %v, want 2 users", got)
	}
}

func TestReadMissingUser(t *testing.T) {
	c := New()
	if _, err := c.Read("nobody"); err != ErrUserPermissionsNotFound {
		t.Errorf("Read(nobody) error = %v, want ErrUserPermissionsNotFound", err)
	}
}

func TestIncrementalGrantRoleMatchesRebuild(t *testing.T) {
	roles := []RolePermissions{
		{Name: "dev", Permissions: []Permission{
			{Type: ReadWrite, Key: []byte("a"), RangeEnd: []byte("z")},
		}},
	}

	incremental := New()
	incremental.AddRoleToUser("alice", "dev", roles[0].Permissions)

	rebuilt := New()
	rebuilt.Rebuild([]UserRoles{{Name: "alice", Roles: []string{"dev"}}}, roles)

	got, err := incremental.Read("alice")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	want, err := rebuilt.Read("alice")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	equalPerms(t, got, want)
}

func TestRevokeRoleRecomputeMatchesRebuild(t *testing.T) {
	roles := []RolePermissions{
		{Name: "dev", Permissions: []Permission{{Type: ReadWrite, Key: []byte("a"), RangeEnd: []byte("z")}}},
		{Name: "ops", Permissions: []Permission{{Type: Read, Key: []byte("m")}}},
	}

	c := New()
	c.Rebuild([]UserRoles{{Name: "alice", Roles: []string{"dev", "ops"}}}, roles)

	c.RemoveRoleFromUser("alice", "dev")
	c.RecomputeUserFromPersisted("alice", []RolePermissions{roles[1]})

	got, err := c.Read("alice")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	rebuilt := New()
	rebuilt.Rebuild([]UserRoles{{Name: "alice", Roles: []string{"ops"}}}, roles)
	want, err := rebuilt.Read("alice")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	equalPerms(t, got, want)

	if roles := c.RolesOf("dev"); len(roles) != 0 {
		t.Errorf("RolesOf(dev) after revoke = %v, want empty", roles)
	}
}

func TestRemoveUserClearsCacheAndReverseIndex(t *testing.T) {
	roles := []RolePermissions{{Name: "dev", Permissions: []Permission{{Type: Read, Key: []byte("a")}}}}
	c := New()
	c.Rebuild([]UserRoles{{Name: "alice", Roles: []string{"dev"}}}, roles)

	c.RemoveUser("alice")

	if _, err := c.Read("alice"); err != ErrUserPermissionsNotFound {
		t.Errorf("Read(alice) after RemoveUser error = %v, want ErrUserPermissionsNotFound", err)
	}
	if users := c.RolesOf("dev"); len(users) != 0 {
		t.Errorf("RolesOf(dev) after RemoveUser = %v, want empty", users)
	}
}

func TestAddPermissionToRoleFansOutToMembers(t *testing.T) {
	c := New()
	c.Rebuild([]UserRoles{{Name: "alice", Roles: []string{"dev"}}}, []RolePermissions{{Name: "dev"}})

	c.AddPermissionToRole("dev", Permission{Type: ReadWrite, Key: []byte("a"), RangeEnd: []byte("z")})

	got, err := c.Read("alice")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	equalPerms(t, got, UserPermissions{
		Read:  []KeyRange{{Key: []byte("a"), RangeEnd: []byte("z")}},
		Write: []KeyRange{{Key: []byte("a"), RangeEnd: []byte("z")}},
	})
}
