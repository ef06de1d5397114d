package auth

import (
	"bytes"
	"sort"

	"github.com/cuemby/keystone/pkg/permcache"
)

// PermType is the kind of access a Permission grants. It mirrors
// permcache.PermType exactly so role permissions can be handed to the
// cache's incremental/rebuild paths without conversion.
type PermType = permcache.PermType

const (
	PermRead      = permcache.Read
	PermWrite     = permcache.Write
	PermReadWrite = permcache.ReadWrite
)

// Permission is a single granted range within a role, sorted by
// (Key, RangeEnd) lexicographically. An empty RangeEnd denotes a
// single key; Key=nil, RangeEnd=[]byte{0x00} denotes "all keys".
type Permission struct {
	Type     PermType
	Key      []byte
	RangeEnd []byte
}

// comparePermission orders permissions by (Key, RangeEnd), matching
// the Rust reference implementation's cmp_key_range comparator.
func comparePermission(a, b Permission) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return bytes.Compare(a.RangeEnd, b.RangeEnd)
}

// searchPermission returns the index at which (key, rangeEnd) is
// present or would be inserted to keep perms sorted, and whether it
// is already present.
func searchPermission(perms []Permission, key, rangeEnd []byte) (int, bool) {
	target := Permission{Key: key, RangeEnd: rangeEnd}
	i := sort.Search(len(perms), func(i int) bool {
		return comparePermission(perms[i], target) >= 0
	})
	if i < len(perms) && comparePermission(perms[i], target) == 0 {
		return i, true
	}
	return i, false
}

// insertPermission inserts p into the sorted perms slice, or
// overwrites the existing entry's Type if (Key, RangeEnd) is already
// present. Returns the new slice.
func insertPermission(perms []Permission, p Permission) []Permission {
	i, found := searchPermission(perms, p.Key, p.RangeEnd)
	if found {
		perms[i].Type = p.Type
		return perms
	}
	perms = append(perms, Permission{})
	copy(perms[i+1:], perms[i:])
	perms[i] = p
	return perms
}

// removePermissionAt removes the permission at index i, preserving
// sort order.
func removePermissionAt(perms []Permission, i int) []Permission {
	return append(perms[:i], perms[i+1:]...)
}

func toCachePermissions(perms []Permission) []permcache.Permission {
	out := make([]permcache.Permission, len(perms))
	for i, p := range perms {
		out[i] = permcache.Permission{Type: p.Type, Key: p.Key, RangeEnd: p.RangeEnd}
	}
	return out
}

// UserOptions carries per-user flags. NoPassword marks a synthetic
// principal that can never successfully Authenticate.
type UserOptions struct {
	NoPassword bool
}

// User is the persisted representation of one auth principal. Roles
// is kept in strictly ascending byte order so membership is a binary
// search and encoding is deterministic across replicas.
type User struct {
	Name         string
	PasswordHash string
	Options      UserOptions
	Roles        []string
}

func (u *User) hasRole(role string) bool {
	i := sort.SearchStrings(u.Roles, role)
	return i < len(u.Roles) && u.Roles[i] == role
}

func (u *User) addRole(role string) {
	i := sort.SearchStrings(u.Roles, role)
	u.Roles = append(u.Roles, "")
	copy(u.Roles[i+1:], u.Roles[i:])
	u.Roles[i] = role
}

func (u *User) removeRole(role string) {
	i := sort.SearchStrings(u.Roles, role)
	if i < len(u.Roles) && u.Roles[i] == role {
		u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
	}
}

// Role is the persisted representation of a named permission set.
// KeyPermission is kept sorted by (Key, RangeEnd); duplicates are
// forbidden (a grant of an existing range overwrites its PermType
// instead of appending).
type Role struct {
	Name          string
	KeyPermission []Permission
}

// rootPermission is synthesized for RoleGet("root") regardless of
// what (if anything) is actually stored for the root role.
var rootPermission = Permission{Type: PermReadWrite, Key: nil, RangeEnd: []byte{0x00}}

const rootName = "root"
