package auth

// Op identifies the kind of an auth request, used both for dispatch
// and as the label value on the AuthRequestsTotal metric.
type Op string

const (
	OpAuthEnable           Op = "AuthEnable"
	OpAuthDisable          Op = "AuthDisable"
	OpAuthStatus           Op = "AuthStatus"
	OpAuthenticate         Op = "Authenticate"
	OpUserAdd              Op = "UserAdd"
	OpUserGet              Op = "UserGet"
	OpUserList             Op = "UserList"
	OpUserDelete           Op = "UserDelete"
	OpUserChangePassword   Op = "UserChangePassword"
	OpUserGrantRole        Op = "UserGrantRole"
	OpUserRevokeRole       Op = "UserRevokeRole"
	OpRoleAdd              Op = "RoleAdd"
	OpRoleGet              Op = "RoleGet"
	OpRoleList             Op = "RoleList"
	OpRoleDelete           Op = "RoleDelete"
	OpRoleGrantPermission  Op = "RoleGrantPermission"
	OpRoleRevokePermission Op = "RoleRevokePermission"
)

// Request is the tagged union every mutating or read-only auth
// command implements. Keeping requests as a closed set of small
// structs, rather than one generic bag of fields, is what lets
// Execute stay mechanically separable from Sync: Execute only ever
// reads from Op() and the request's own fields.
type Request interface {
	Op() Op
}

type AuthEnableRequest struct{}

func (AuthEnableRequest) Op() Op { return OpAuthEnable }

type AuthDisableRequest struct{}

func (AuthDisableRequest) Op() Op { return OpAuthDisable }

type AuthStatusRequest struct{}

func (AuthStatusRequest) Op() Op { return OpAuthStatus }

// AuthenticateRequest carries a plaintext password; the core never
// persists it; it is checked against the stored hash and discarded.
type AuthenticateRequest struct {
	Username string
	Password string
}

func (AuthenticateRequest) Op() Op { return OpAuthenticate }

type UserAddRequest struct {
	Name         string
	PasswordHash string
	NoPassword   bool
}

func (UserAddRequest) Op() Op { return OpUserAdd }

type UserGetRequest struct {
	Name string
}

func (UserGetRequest) Op() Op { return OpUserGet }

type UserListRequest struct{}

func (UserListRequest) Op() Op { return OpUserList }

type UserDeleteRequest struct {
	Name string
}

func (UserDeleteRequest) Op() Op { return OpUserDelete }

// UserChangePasswordRequest.ClearNoPassword must be set to change the
// password of a user created with Options.NoPassword; otherwise the
// request is rejected.
type UserChangePasswordRequest struct {
	Name            string
	PasswordHash    string
	ClearNoPassword bool
}

func (UserChangePasswordRequest) Op() Op { return OpUserChangePassword }

type UserGrantRoleRequest struct {
	User string
	Role string
}

func (UserGrantRoleRequest) Op() Op { return OpUserGrantRole }

type UserRevokeRoleRequest struct {
	User string
	Role string
}

func (UserRevokeRoleRequest) Op() Op { return OpUserRevokeRole }

type RoleAddRequest struct {
	Name string
}

func (RoleAddRequest) Op() Op { return OpRoleAdd }

type RoleGetRequest struct {
	Name string
}

func (RoleGetRequest) Op() Op { return OpRoleGet }

type RoleListRequest struct{}

func (RoleListRequest) Op() Op { return OpRoleList }

type RoleDeleteRequest struct {
	Name string
}

func (RoleDeleteRequest) Op() Op { return OpRoleDelete }

type RoleGrantPermissionRequest struct {
	Role string
	Perm Permission
}

func (RoleGrantPermissionRequest) Op() Op { return OpRoleGrantPermission }

type RoleRevokePermissionRequest struct {
	Role     string
	Key      []byte
	RangeEnd []byte
}

func (RoleRevokePermissionRequest) Op() Op { return OpRoleRevokePermission }

// Header is stamped onto every response. Execute fills in the current
// revision (an "auth-revision-less" value in the sense that it never
// reflects the mutation the request is about to make); Sync's return
// value is what actually advances it for the caller.
type Header struct {
	Revision int64
}

// Response is the single, sparsely-populated result type returned by
// Execute. Only the fields relevant to the request's Op are set.
type Response struct {
	Header      Header
	Enabled     bool
	Token       string
	Roles       []string     // UserGet
	Users       []string     // UserList
	RoleNames   []string     // RoleList
	Permissions []Permission // RoleGet
}
