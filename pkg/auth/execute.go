package auth

import (
	"github.com/cuemby/keystone/pkg/metrics"
	"github.com/cuemby/keystone/pkg/security"
)

// Execute performs read-only validation against the current committed
// state, builds the response the caller will eventually see, and
// records (request, err) in the speculative pool under proposalID for
// the later, paired Sync call. It never allocates a revision, never
// mutates persisted state, and never touches the permission cache.
func (c *Core) Execute(proposalID string, req Request) (Response, error) {
	resp, err := c.execute(req)

	c.specMu.Lock()
	c.specPool[proposalID] = &specEntry{req: req, executeErr: err}
	c.specMu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AuthRequestsTotal.WithLabelValues(string(req.Op()), result).Inc()

	return resp, err
}

func (c *Core) execute(req Request) (Response, error) {
	header := Header{Revision: c.rev.Current()}

	switch r := req.(type) {
	case AuthEnableRequest:
		if err := c.validateAuthEnable(); err != nil {
			return Response{}, err
		}
		return Response{Header: header}, nil

	case AuthDisableRequest:
		return Response{Header: header}, nil

	case AuthStatusRequest:
		return Response{Header: header, Enabled: c.enabled.Load()}, nil

	case AuthenticateRequest:
		if !c.enabled.Load() {
			return Response{}, invalidCommand("auth is not enabled")
		}
		user, ok, err := c.loadUser(r.Username)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("authentication failed, invalid user ID or password")
		}
		if err := checkPassword(user, r.Password); err != nil {
			return Response{}, err
		}
		token, err := c.tokens.Assign(r.Username, c.rev.Current())
		if err != nil {
			return Response{}, invalidCommand("failed to issue token: %v", err)
		}
		return Response{Header: header, Token: token}, nil

	case UserAddRequest:
		if _, ok, err := c.loadUser(r.Name); err != nil {
			return Response{}, err
		} else if ok {
			return Response{}, invalidCommand("user %s already exists", r.Name)
		}
		return Response{Header: header}, nil

	case UserGetRequest:
		user, ok, err := c.loadUser(r.Name)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("user %s does not exist", r.Name)
		}
		return Response{Header: header, Roles: append([]string(nil), user.Roles...)}, nil

	case UserListRequest:
		users, err := c.listUsers()
		if err != nil {
			return Response{}, err
		}
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.Name
		}
		return Response{Header: header, Users: names}, nil

	case UserDeleteRequest:
		if c.enabled.Load() && r.Name == rootName {
			return Response{}, invalidCommand("cannot delete root user while auth is enabled")
		}
		if _, ok, err := c.loadUser(r.Name); err != nil {
			return Response{}, err
		} else if !ok {
			return Response{}, invalidCommand("user %s does not exist", r.Name)
		}
		return Response{Header: header}, nil

	case UserChangePasswordRequest:
		user, ok, err := c.loadUser(r.Name)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("user %s does not exist", r.Name)
		}
		if user.Options.NoPassword && !r.ClearNoPassword {
			return Response{}, invalidCommand("user %s is a no-password user; clear the option before changing its password", r.Name)
		}
		if r.PasswordHash == "" {
			return Response{}, invalidCommand("password hash is required")
		}
		return Response{Header: header}, nil

	case UserGrantRoleRequest:
		user, ok, err := c.loadUser(r.User)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("user %s does not exist", r.User)
		}
		if r.Role != rootName {
			if _, ok, err := c.loadRole(r.Role); err != nil {
				return Response{}, err
			} else if !ok {
				return Response{}, invalidCommand("role %s does not exist", r.Role)
			}
		}
		if user.hasRole(r.Role) {
			return Response{}, invalidCommand("user %s already has role %s", r.User, r.Role)
		}
		return Response{Header: header}, nil

	case UserRevokeRoleRequest:
		if c.enabled.Load() && r.User == rootName && r.Role == rootName {
			return Response{}, invalidCommand("cannot revoke root role from root user while auth is enabled")
		}
		user, ok, err := c.loadUser(r.User)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("user %s does not exist", r.User)
		}
		if !user.hasRole(r.Role) {
			return Response{}, invalidCommand("user %s does not have role %s", r.User, r.Role)
		}
		return Response{Header: header}, nil

	case RoleAddRequest:
		if _, ok, err := c.loadRole(r.Name); err != nil {
			return Response{}, err
		} else if ok {
			return Response{}, invalidCommand("role %s already exists", r.Name)
		}
		return Response{Header: header}, nil

	case RoleGetRequest:
		if r.Name == rootName {
			return Response{Header: header, Permissions: []Permission{rootPermission}}, nil
		}
		role, ok, err := c.loadRole(r.Name)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("role %s does not exist", r.Name)
		}
		return Response{Header: header, Permissions: append([]Permission(nil), role.KeyPermission...)}, nil

	case RoleListRequest:
		roles, err := c.listRoles()
		if err != nil {
			return Response{}, err
		}
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = role.Name
		}
		return Response{Header: header, RoleNames: names}, nil

	case RoleDeleteRequest:
		if c.enabled.Load() && r.Name == rootName {
			return Response{}, invalidCommand("cannot delete root role while auth is enabled")
		}
		if _, ok, err := c.loadRole(r.Name); err != nil {
			return Response{}, err
		} else if !ok {
			return Response{}, invalidCommand("role %s does not exist", r.Name)
		}
		return Response{Header: header}, nil

	case RoleGrantPermissionRequest:
		if _, ok, err := c.loadRole(r.Role); err != nil {
			return Response{}, err
		} else if !ok {
			return Response{}, invalidCommand("role %s does not exist", r.Role)
		}
		return Response{Header: header}, nil

	case RoleRevokePermissionRequest:
		role, ok, err := c.loadRole(r.Role)
		if err != nil {
			return Response{}, err
		}
		if !ok {
			return Response{}, invalidCommand("role %s does not exist", r.Role)
		}
		if _, found := searchPermission(role.KeyPermission, r.Key, r.RangeEnd); !found {
			return Response{}, invalidCommand("permission not granted on role %s", r.Role)
		}
		return Response{Header: header}, nil

	default:
		return Response{}, invalidCommand("unknown request type")
	}
}

func (c *Core) validateAuthEnable() error {
	user, ok, err := c.loadUser(rootName)
	if err != nil {
		return err
	}
	if !ok {
		return invalidCommand("root user does not exist")
	}
	if !user.hasRole(rootName) {
		return invalidCommand("root user does not have root role")
	}
	return nil
}

// checkPassword verifies password against user's stored hash. A
// no_password user can never authenticate successfully, matching the
// Rust reference implementation's handling of internal synthetic
// principals.
func checkPassword(user *User, password string) error {
	if user.Options.NoPassword {
		return invalidCommand("authentication failed, invalid user ID or password")
	}
	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return invalidCommand("authentication failed, invalid user ID or password")
	}
	return nil
}
