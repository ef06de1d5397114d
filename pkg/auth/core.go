// Package auth implements the auth state machine (C6): it dispatches
// typed requests through an Execute/Sync split, enforces every
// user/role/permission invariant of the domain, and maintains the key
// index, encoded store, permission cache and token manager (C2-C5)
// that back it. Execute is a side-effect-free dry run that produces
// the user-visible response and validates preconditions; Sync is the
// deterministic apply step every replica performs once consensus
// commits the command.
package auth

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/keystone/pkg/keyindex"
	"github.com/cuemby/keystone/pkg/lease"
	"github.com/cuemby/keystone/pkg/log"
	"github.com/cuemby/keystone/pkg/permcache"
	"github.com/cuemby/keystone/pkg/revision"
	"github.com/cuemby/keystone/pkg/store"
	"github.com/cuemby/keystone/pkg/token"
)

var (
	userPrefix  = []byte("user/")
	rolePrefix  = []byte("role/")
	enableKey   = []byte("auth_enable")
)

// specEntry is the speculative pool's per-proposal record: the
// request Execute validated, and whether Execute rejected it. Sync
// pops this by proposal id and, if executeErr is non-nil, is a no-op.
type specEntry struct {
	req       Request
	executeErr error
}

// Core is the auth state machine. It owns C2 (key index), C3 (encoded
// store), C4 (permission cache) and C5 (token manager), and exposes
// Execute/Sync as the two entry points the consensus layer drives.
type Core struct {
	idx    *keyindex.Index
	store  *store.Store
	cache  *permcache.Cache
	tokens *token.Manager
	lease  lease.LeaseLookup

	enabled atomic.Bool
	rev     *revision.Counter

	specMu   sync.Mutex
	specPool map[string]*specEntry
}

// NewCore creates a Core over the given store and runs recover. The
// revision counter starts at 0 and the key index starts empty; the
// index is not rebuilt from the store, so in a new process recover
// finds no persisted enabled flag, users or roles, and state comes
// back only through applied requests or RestoreState.
func NewCore(st *store.Store, tokens *token.Manager, ll lease.LeaseLookup) (*Core, error) {
	c := &Core{
		idx:      keyindex.New(),
		store:    st,
		cache:    permcache.New(),
		tokens:   tokens,
		lease:    ll,
		rev:      revision.New(0),
		specPool: make(map[string]*specEntry),
	}

	if err := c.recover(); err != nil {
		return nil, err
	}
	return c, nil
}

// GetLease delegates to the configured lease subsystem.
func (c *Core) GetLease(ctx context.Context, leaseID int64) (*lease.Lease, error) {
	return c.lease.LookUp(ctx, leaseID)
}

func userKey(name string) []byte { return append(append([]byte(nil), userPrefix...), name...) }
func roleKey(name string) []byte { return append(append([]byte(nil), rolePrefix...), name...) }

// loadUser fetches and decodes the current User record for name, if
// any live entry exists in the key index.
func (c *Core) loadUser(name string) (*User, bool, error) {
	entries := c.idx.Get(userKey(name), nil, 0)
	if len(entries) == 0 {
		return nil, false, nil
	}
	return c.decodeUserEntry(entries[0])
}

func (c *Core) decodeUserEntry(kr keyindex.KeyRevision) (*User, bool, error) {
	values, err := c.store.GetValues([]revision.Revision{kr.Entry.ModRev})
	if err != nil {
		log.Fatal("auth: failed to read user record: " + err.Error())
		return nil, false, err
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	var u User
	if err := store.Decode(values[0], &u); err != nil {
		log.Fatal("auth: corrupted user record: " + err.Error())
		return nil, false, err
	}
	return &u, true, nil
}

func (c *Core) loadRole(name string) (*Role, bool, error) {
	entries := c.idx.Get(roleKey(name), nil, 0)
	if len(entries) == 0 {
		return nil, false, nil
	}
	return c.decodeRoleEntry(entries[0])
}

func (c *Core) decodeRoleEntry(kr keyindex.KeyRevision) (*Role, bool, error) {
	values, err := c.store.GetValues([]revision.Revision{kr.Entry.ModRev})
	if err != nil {
		log.Fatal("auth: failed to read role record: " + err.Error())
		return nil, false, err
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	var r Role
	if err := store.Decode(values[0], &r); err != nil {
		log.Fatal("auth: corrupted role record: " + err.Error())
		return nil, false, err
	}
	return &r, true, nil
}

func (c *Core) listUsers() ([]*User, error) {
	entries := c.idx.Get(userPrefix, keyindex.Prefix(userPrefix), 0)
	users := make([]*User, 0, len(entries))
	for _, kr := range entries {
		u, ok, err := c.decodeUserEntry(kr)
		if err != nil {
			return nil, err
		}
		if ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (c *Core) listRoles() ([]*Role, error) {
	entries := c.idx.Get(rolePrefix, keyindex.Prefix(rolePrefix), 0)
	roles := make([]*Role, 0, len(entries))
	for _, kr := range entries {
		r, ok, err := c.decodeRoleEntry(kr)
		if err != nil {
			return nil, err
		}
		if ok {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// recover replays the persisted auth_enable byte and rebuilds the
// permission cache, used both at NewCore time and after AuthEnable.
func (c *Core) recover() error {
	entries := c.idx.Get(enableKey, nil, 0)
	if len(entries) > 0 {
		values, err := c.store.GetValues([]revision.Revision{entries[0].Entry.ModRev})
		if err == nil && len(values) > 0 {
			var flag []byte
			if err := store.Decode(values[0], &flag); err == nil && len(flag) > 0 {
				c.enabled.Store(flag[0] == 1)
			}
		}
	}
	return c.rebuildCache()
}

func (c *Core) rebuildCache() error {
	users, err := c.listUsers()
	if err != nil {
		return err
	}
	roles, err := c.listRoles()
	if err != nil {
		return err
	}

	cacheUsers := make([]permcache.UserRoles, len(users))
	for i, u := range users {
		cacheUsers[i] = permcache.UserRoles{Name: u.Name, Roles: append([]string(nil), u.Roles...)}
	}
	cacheRoles := make([]permcache.RolePermissions, len(roles))
	for i, r := range roles {
		cacheRoles[i] = permcache.RolePermissions{Name: r.Name, Permissions: toCachePermissions(r.KeyPermission)}
	}
	cacheRoles = append(cacheRoles, permcache.RolePermissions{Name: rootName, Permissions: toCachePermissions([]Permission{rootPermission})})

	c.cache.Rebuild(cacheUsers, cacheRoles)
	return nil
}

// VerifyCacheConsistency is a test/diagnostic hook: it compares the
// cache's current state against a fresh rebuild over persisted state
// and reports the first user whose effective permissions disagree, if
// any.
func (c *Core) VerifyCacheConsistency() (mismatchUser string, ok bool, err error) {
	users, err := c.listUsers()
	if err != nil {
		return "", false, err
	}
	roles, err := c.listRoles()
	if err != nil {
		return "", false, err
	}

	fresh := permcache.New()
	cacheUsers := make([]permcache.UserRoles, len(users))
	for i, u := range users {
		cacheUsers[i] = permcache.UserRoles{Name: u.Name, Roles: append([]string(nil), u.Roles...)}
	}
	cacheRoles := make([]permcache.RolePermissions, len(roles))
	for i, r := range roles {
		cacheRoles[i] = permcache.RolePermissions{Name: r.Name, Permissions: toCachePermissions(r.KeyPermission)}
	}
	cacheRoles = append(cacheRoles, permcache.RolePermissions{Name: rootName, Permissions: toCachePermissions([]Permission{rootPermission})})
	fresh.Rebuild(cacheUsers, cacheRoles)

	for _, u := range users {
		want, wErr := fresh.Read(u.Name)
		got, gErr := c.cache.Read(u.Name)
		if (wErr == nil) != (gErr == nil) {
			return u.Name, false, nil
		}
		if wErr == nil && !permissionsEqual(got, want) {
			return u.Name, false, nil
		}
	}
	return "", true, nil
}

func permissionsEqual(a, b permcache.UserPermissions) bool {
	return keyRangesEqual(a.Read, b.Read) && keyRangesEqual(a.Write, b.Write)
}

func keyRangesEqual(a, b []permcache.KeyRange) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	key := func(kr permcache.KeyRange) string { return string(kr.Key) + "\x00" + string(kr.RangeEnd) }
	for _, kr := range a {
		seen[key(kr)]++
	}
	for _, kr := range b {
		seen[key(kr)]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
