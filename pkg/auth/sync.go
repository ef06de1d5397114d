package auth

import (
	"github.com/cuemby/keystone/pkg/metrics"
	"github.com/cuemby/keystone/pkg/permcache"
	"github.com/cuemby/keystone/pkg/revision"
	"github.com/cuemby/keystone/pkg/store"
)

// Sync performs the deterministic apply step for proposalID, which
// every replica of the consensus log runs once the command commits.
// It pops the speculative entry Execute recorded: if Execute rejected
// the request, Sync is a no-op and returns the current revision
// unchanged; otherwise it performs the actual persisted writes and
// permission-cache updates and returns the new revision.
func (c *Core) Sync(proposalID string) (int64, error) {
	c.specMu.Lock()
	entry, ok := c.specPool[proposalID]
	if ok {
		delete(c.specPool, proposalID)
	}
	c.specMu.Unlock()

	if !ok {
		return c.rev.Current(), invalidCommand("no speculative entry for proposal %s", proposalID)
	}
	if entry.executeErr != nil {
		return c.rev.Current(), nil
	}
	timer := metrics.NewTimer()
	rev, err := c.sync(entry.req)
	timer.ObserveDurationVec(metrics.SyncDuration, string(entry.req.Op()))
	metrics.CurrentRevision.Set(float64(c.rev.Current()))
	enabledGauge := 0.0
	if c.enabled.Load() {
		enabledGauge = 1
	}
	metrics.AuthEnabled.Set(enabledGauge)
	metrics.PermissionCacheUsers.Set(float64(c.cache.UserCount()))
	return rev, err
}

func (c *Core) sync(req Request) (int64, error) {
	switch r := req.(type) {
	case AuthEnableRequest:
		return c.syncSetEnabled(true)

	case AuthDisableRequest:
		return c.syncSetEnabled(false)

	case AuthStatusRequest:
		return c.rev.Current(), nil

	case AuthenticateRequest:
		return c.rev.Current(), nil

	case UserAddRequest:
		user := &User{Name: r.Name, PasswordHash: r.PasswordHash, Options: UserOptions{NoPassword: r.NoPassword}}
		main := c.rev.Next()
		if err := c.persistUser(user, main, 0); err != nil {
			return c.rev.Current(), err
		}
		c.cache.RecomputeUserFromPersisted(r.Name, nil)
		return main, nil

	case UserGetRequest, UserListRequest, RoleGetRequest, RoleListRequest:
		return c.rev.Current(), nil

	case UserDeleteRequest:
		main := c.rev.Next()
		revs := c.idx.Delete(userKey(r.Name), nil, main, 0)
		if err := c.store.MarkDeletions(revs); err != nil {
			return c.rev.Current(), err
		}
		c.cache.RemoveUser(r.Name)
		return main, nil

	case UserChangePasswordRequest:
		user, ok, err := c.loadUser(r.Name)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			return c.rev.Current(), invalidCommand("user %s does not exist", r.Name)
		}
		user.PasswordHash = r.PasswordHash
		if r.ClearNoPassword {
			user.Options.NoPassword = false
		}
		main := c.rev.Next()
		if err := c.persistUser(user, main, 0); err != nil {
			return c.rev.Current(), err
		}
		return main, nil

	case UserGrantRoleRequest:
		user, ok, err := c.loadUser(r.User)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			return c.rev.Current(), invalidCommand("user %s does not exist", r.User)
		}
		var perms []Permission
		if r.Role == rootName {
			perms = []Permission{rootPermission}
		} else {
			role, ok, err := c.loadRole(r.Role)
			if err != nil {
				return c.rev.Current(), err
			}
			if !ok {
				return c.rev.Current(), invalidCommand("role %s does not exist", r.Role)
			}
			perms = role.KeyPermission
		}
		if user.hasRole(r.Role) {
			return c.rev.Current(), invalidCommand("user %s already has role %s", r.User, r.Role)
		}
		user.addRole(r.Role)
		main := c.rev.Next()
		if err := c.persistUser(user, main, 0); err != nil {
			return c.rev.Current(), err
		}
		c.cache.AddRoleToUser(r.User, r.Role, toCachePermissions(perms))
		return main, nil

	case UserRevokeRoleRequest:
		user, ok, err := c.loadUser(r.User)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			return c.rev.Current(), invalidCommand("user %s does not exist", r.User)
		}
		user.removeRole(r.Role)
		main := c.rev.Next()
		if err := c.persistUser(user, main, 0); err != nil {
			return c.rev.Current(), err
		}
		c.cache.RemoveRoleFromUser(r.User, r.Role)
		roles, err := c.rolePermissionsFor(user.Roles)
		if err != nil {
			return c.rev.Current(), err
		}
		c.cache.RecomputeUserFromPersisted(r.User, roles)
		return main, nil

	case RoleAddRequest:
		role := &Role{Name: r.Name}
		main := c.rev.Next()
		if err := c.persistRole(role, main, 0); err != nil {
			return c.rev.Current(), err
		}
		return main, nil

	case RoleDeleteRequest:
		return c.syncRoleDelete(r.Name)

	case RoleGrantPermissionRequest:
		role, ok, err := c.loadRole(r.Role)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			return c.rev.Current(), invalidCommand("role %s does not exist", r.Role)
		}
		role.KeyPermission = insertPermission(role.KeyPermission, r.Perm)
		main := c.rev.Next()
		if err := c.persistRole(role, main, 0); err != nil {
			return c.rev.Current(), err
		}
		c.cache.AddPermissionToRole(r.Role, permcache.Permission{Type: r.Perm.Type, Key: r.Perm.Key, RangeEnd: r.Perm.RangeEnd})
		return main, nil

	case RoleRevokePermissionRequest:
		role, ok, err := c.loadRole(r.Role)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			return c.rev.Current(), invalidCommand("role %s does not exist", r.Role)
		}
		if i, found := searchPermission(role.KeyPermission, r.Key, r.RangeEnd); found {
			role.KeyPermission = removePermissionAt(role.KeyPermission, i)
		}
		main := c.rev.Next()
		if err := c.persistRole(role, main, 0); err != nil {
			return c.rev.Current(), err
		}
		if err := c.recomputeRoleMembers(r.Role, role); err != nil {
			return c.rev.Current(), err
		}
		return main, nil

	default:
		return c.rev.Current(), invalidCommand("unknown request type")
	}
}

func (c *Core) syncSetEnabled(enabled bool) (int64, error) {
	main := c.rev.Next()
	flag := []byte{0}
	if enabled {
		flag[0] = 1
	}
	data, err := store.Encode(flag)
	if err != nil {
		return c.rev.Current(), err
	}
	c.idx.InsertOrUpdate(enableKey, main, 0)
	if err := c.store.Put(revision.Revision{Main: main, Sub: 0}, data); err != nil {
		return c.rev.Current(), err
	}
	c.enabled.Store(enabled)
	if enabled {
		if err := c.recover(); err != nil {
			return main, err
		}
	}
	return main, nil
}

func (c *Core) persistUser(user *User, main, sub int64) error {
	data, err := store.Encode(user)
	if err != nil {
		return err
	}
	c.idx.InsertOrUpdate(userKey(user.Name), main, sub)
	return c.store.Put(revision.Revision{Main: main, Sub: sub}, data)
}

func (c *Core) persistRole(role *Role, main, sub int64) error {
	data, err := store.Encode(role)
	if err != nil {
		return err
	}
	c.idx.InsertOrUpdate(roleKey(role.Name), main, sub)
	return c.store.Put(revision.Revision{Main: main, Sub: sub}, data)
}

// rolePermissionsFor loads and converts the named roles for a cache
// recompute, silently skipping names that no longer resolve (e.g. a
// role deleted out from under a user that still references it).
func (c *Core) rolePermissionsFor(names []string) ([]permcache.RolePermissions, error) {
	out := make([]permcache.RolePermissions, 0, len(names))
	for _, name := range names {
		if name == rootName {
			out = append(out, permcache.RolePermissions{Name: rootName, Permissions: toCachePermissions([]Permission{rootPermission})})
			continue
		}
		role, ok, err := c.loadRole(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, permcache.RolePermissions{Name: role.Name, Permissions: toCachePermissions(role.KeyPermission)})
	}
	return out, nil
}

// recomputeRoleMembers recomputes the cache entry of every user
// currently holding role, after its permission set changed. Permission
// revocation, like role revocation, cannot be safely subtracted in
// place: another role held by the same user may grant the same range.
func (c *Core) recomputeRoleMembers(roleName string, role *Role) error {
	for _, username := range c.cache.RolesOf(roleName) {
		user, ok, err := c.loadUser(username)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		roles, err := c.rolePermissionsFor(user.Roles)
		if err != nil {
			return err
		}
		c.cache.RecomputeUserFromPersisted(username, roles)
	}
	_ = role
	return nil
}

// syncRoleDelete tombstones the role record and cascades the removal
// to every user that held it: each affected user's persisted Roles
// list is rewritten (sub-revisions starting at 1, the role tombstone
// itself taking sub 0) and its cache entry is fully recomputed over
// its remaining roles.
func (c *Core) syncRoleDelete(name string) (int64, error) {
	affected := c.cache.RolesOf(name)

	main := c.rev.Next()
	revs := c.idx.Delete(roleKey(name), nil, main, 0)
	if err := c.store.MarkDeletions(revs); err != nil {
		return c.rev.Current(), err
	}

	for i, username := range affected {
		user, ok, err := c.loadUser(username)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			continue
		}
		user.removeRole(name)
		if err := c.persistUser(user, main, int64(i+1)); err != nil {
			return c.rev.Current(), err
		}
	}

	for _, username := range affected {
		user, ok, err := c.loadUser(username)
		if err != nil {
			return c.rev.Current(), err
		}
		if !ok {
			continue
		}
		roles, err := c.rolePermissionsFor(user.Roles)
		if err != nil {
			return c.rev.Current(), err
		}
		c.cache.RecomputeUserFromPersisted(username, roles)
	}
	c.cache.RemoveRole(name)

	return main, nil
}
