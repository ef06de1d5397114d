// Package permcache implements the permission cache (C4): an
// in-memory, sync.RWMutex-guarded derived index mapping each username
// to its effective read/write key ranges, plus the role→users reverse
// index used to fan mutations out to affected users. It is a pure
// accelerator over persisted state and must always be reconstructible
// by Rebuild.
package permcache

import (
	"errors"
	"sync"
)

// ErrUserPermissionsNotFound is returned by Read when username has no
// cache entry.
var ErrUserPermissionsNotFound = errors.New("permcache: user permissions not found")

// PermType is the kind of access a Permission grants.
type PermType int

const (
	Read PermType = iota
	Write
	ReadWrite
)

// KeyRange is the half-open byte-string interval [Key, RangeEnd).
// An empty RangeEnd denotes a single key.
type KeyRange struct {
	Key      []byte
	RangeEnd []byte
}

// Permission is the minimal shape the cache needs from a role's
// stored key_permission entries: enough to expand into read/write
// ranges, without depending on pkg/auth's richer Permission type.
type Permission struct {
	Type     PermType
	Key      []byte
	RangeEnd []byte
}

// UserPermissions is the effective read/write range set for one user.
type UserPermissions struct {
	Read  []KeyRange
	Write []KeyRange
}

func (p UserPermissions) clone() UserPermissions {
	out := UserPermissions{
		Read:  append([]KeyRange(nil), p.Read...),
		Write: append([]KeyRange(nil), p.Write...),
	}
	return out
}

func (p *UserPermissions) apply(perm Permission) {
	kr := KeyRange{Key: perm.Key, RangeEnd: perm.RangeEnd}
	switch perm.Type {
	case Read:
		p.Read = append(p.Read, kr)
	case Write:
		p.Write = append(p.Write, kr)
	case ReadWrite:
		p.Read = append(p.Read, kr)
		p.Write = append(p.Write, kr)
	}
}

// UserRoles is the minimal shape the cache needs from a persisted
// user: its name and the roles it holds.
type UserRoles struct {
	Name  string
	Roles []string
}

// RolePermissions is the minimal shape the cache needs from a
// persisted role: its name and its granted permissions.
type RolePermissions struct {
	Name        string
	Permissions []Permission
}

// Cache is the thread-safe permission cache.
type Cache struct {
	mu              sync.RWMutex
	userPermissions map[string]UserPermissions
	roleToUsers     map[string][]string
}

// New creates an empty permission cache.
func New() *Cache {
	return &Cache{
		userPermissions: make(map[string]UserPermissions),
		roleToUsers:     make(map[string][]string),
	}
}

// Read returns a copy of username's effective permissions.
func (c *Cache) Read(username string) (UserPermissions, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.userPermissions[username]
	if !ok {
		return UserPermissions{}, ErrUserPermissionsNotFound
	}
	return p.clone(), nil
}

// UserCount returns the number of users with a cache entry.
func (c *Cache) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.userPermissions)
}

// RolesOf returns the usernames holding role, for fan-out during
// grant/revoke-permission and role-delete cascades.
func (c *Cache) RolesOf(role string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.roleToUsers[role]...)
}

// Rebuild re-derives both maps from scratch over the full persisted
// user/role set, atomically replacing the cache under the write lock.
func (c *Cache) Rebuild(users []UserRoles, roles []RolePermissions) {
	roleIndex := make(map[string]RolePermissions, len(roles))
	for _, r := range roles {
		roleIndex[r.Name] = r
	}

	userPerms := make(map[string]UserPermissions, len(users))
	roleToUsers := make(map[string][]string)

	for _, u := range users {
		var p UserPermissions
		for _, roleName := range u.Roles {
			role, ok := roleIndex[roleName]
			if !ok {
				continue
			}
			for _, perm := range role.Permissions {
				p.apply(perm)
			}
			roleToUsers[roleName] = append(roleToUsers[roleName], u.Name)
		}
		userPerms[u.Name] = p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.userPermissions = userPerms
	c.roleToUsers = roleToUsers
}

// AddRoleToUser incrementally merges role's permissions into
// username's effective set and appends username to roleToUsers[role].
func (c *Cache) AddRoleToUser(username, role string, perms []Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.userPermissions[username]
	for _, perm := range perms {
		p.apply(perm)
	}
	c.userPermissions[username] = p
	c.roleToUsers[role] = append(c.roleToUsers[role], username)
}

// RemoveRoleFromUser removes username from roleToUsers[role]. The
// caller is responsible for following up with RecomputeUserFromPersisted, since
// the user's effective permissions cannot be safely subtracted in
// place (another held role may grant the same range).
func (c *Cache) RemoveRoleFromUser(username, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFromRoleToUsers(role, username)
}

// RemoveUser deletes username's cache entry and removes it from every
// role_to_users list.
func (c *Cache) RemoveUser(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.userPermissions, username)
	for role := range c.roleToUsers {
		c.removeFromRoleToUsers(role, username)
	}
}

// RemoveRole drops role_to_users[role] entirely. The caller is
// responsible for recomputing the cache entries of users that held
// the role before calling this.
func (c *Cache) RemoveRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roleToUsers, role)
}

// AddPermissionToRole fans a newly granted permission out to every
// user currently holding role, appending it to their effective set.
func (c *Cache) AddPermissionToRole(role string, perm Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, username := range c.roleToUsers[role] {
		p := c.userPermissions[username]
		p.apply(perm)
		c.userPermissions[username] = p
	}
}

// RecomputeUserFromPersisted fully recomputes username's effective
// permissions as the union over the given roles, replacing whatever
// was cached before. Used by revoke-role and revoke-permission, which
// cannot safely subtract in place since more than one role may grant
// the same range.
func (c *Cache) RecomputeUserFromPersisted(username string, roles []RolePermissions) {
	var p UserPermissions
	for _, role := range roles {
		for _, perm := range role.Permissions {
			p.apply(perm)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.userPermissions[username] = p
}

func (c *Cache) removeFromRoleToUsers(role, username string) {
	users := c.roleToUsers[role]
	for i, u := range users {
		if u == username {
			c.roleToUsers[role] = append(users[:i], users[i+1:]...)
			return
		}
	}
}
