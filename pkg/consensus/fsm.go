// Package consensus wires the auth state machine (pkg/auth) to
// hashicorp/raft: AuthFSM adapts Core.Execute/Core.Sync to the
// raft.FSM interface, and AuthNode wraps cluster bootstrap/join/apply
// around the resulting FSM. A submitted request is only ever run
// through Execute+Sync once raft has committed it to the log, inside
// AuthFSM.Apply, on every replica including the submitter's own node
// if it happens to be leader.
package consensus

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/cuemby/keystone/pkg/log"
	"github.com/cuemby/keystone/pkg/metrics"
	"github.com/hashicorp/raft"
)

// Command is the JSON envelope carried in every raft log entry.
// ProposalID is the opaque identifier the submitting client minted;
// Op selects which concrete auth.Request Data decodes into.
type Command struct {
	ProposalID string          `json:"proposal_id"`
	Op         auth.Op         `json:"op"`
	Data       json.RawMessage `json:"data"`
}

// ApplyResult is what AuthFSM.Apply returns as a raft.Log's apply
// result; AuthNode.Apply type-asserts it back out of future.Response().
type ApplyResult struct {
	Response auth.Response
	Revision int64
	Err      error
}

// AuthFSM implements raft.FSM over a single auth.Core.
type AuthFSM struct {
	core *auth.Core
}

// NewAuthFSM creates an AuthFSM over the given Core.
func NewAuthFSM(core *auth.Core) *AuthFSM {
	return &AuthFSM{core: core}
}

// Apply decodes the command envelope, reconstructs the typed
// auth.Request, and runs it through Execute then Sync.
func (f *AuthFSM) Apply(l *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		log.Error(fmt.Sprintf("consensus: failed to unmarshal command: %v", err))
		return ApplyResult{Err: err}
	}

	req, err := decodeRequest(cmd.Op, cmd.Data)
	if err != nil {
		log.Error(fmt.Sprintf("consensus: failed to decode request for op %s: %v", cmd.Op, err))
		return ApplyResult{Err: err}
	}

	resp, execErr := f.core.Execute(cmd.ProposalID, req)
	rev, syncErr := f.core.Sync(cmd.ProposalID)
	if syncErr != nil {
		return ApplyResult{Response: resp, Revision: rev, Err: syncErr}
	}
	return ApplyResult{Response: resp, Revision: rev, Err: execErr}
}

// Snapshot collects the full persisted user/role set and enabled flag.
func (f *AuthFSM) Snapshot() (raft.FSMSnapshot, error) {
	snap, err := f.core.SnapshotState()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot auth state: %w", err)
	}
	return &authSnapshot{state: snap}, nil
}

// Restore replaces the FSM's state with the one encoded in rc.
func (f *AuthFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap auth.StateSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode auth snapshot: %w", err)
	}
	return f.core.RestoreState(&snap)
}

// authSnapshot implements raft.FSMSnapshot over an auth.StateSnapshot.
type authSnapshot struct {
	state *auth.StateSnapshot
}

func (s *authSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.state); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *authSnapshot) Release() {}

// decodeRequest reconstructs the concrete auth.Request named by op
// from its JSON-encoded fields.
func decodeRequest(op auth.Op, data json.RawMessage) (auth.Request, error) {
	switch op {
	case auth.OpAuthEnable:
		return auth.AuthEnableRequest{}, nil
	case auth.OpAuthDisable:
		return auth.AuthDisableRequest{}, nil
	case auth.OpAuthStatus:
		return auth.AuthStatusRequest{}, nil
	case auth.OpAuthenticate:
		var r auth.AuthenticateRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserAdd:
		var r auth.UserAddRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserGet:
		var r auth.UserGetRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserList:
		return auth.UserListRequest{}, nil
	case auth.OpUserDelete:
		var r auth.UserDeleteRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserChangePassword:
		var r auth.UserChangePasswordRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserGrantRole:
		var r auth.UserGrantRoleRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpUserRevokeRole:
		var r auth.UserRevokeRoleRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpRoleAdd:
		var r auth.RoleAddRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpRoleGet:
		var r auth.RoleGetRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpRoleList:
		return auth.RoleListRequest{}, nil
	case auth.OpRoleDelete:
		var r auth.RoleDeleteRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpRoleGrantPermission:
		var r auth.RoleGrantPermissionRequest
		return r, json.Unmarshal(data, &r)
	case auth.OpRoleRevokePermission:
		var r auth.RoleRevokePermissionRequest
		return r, json.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("consensus: unknown op %q", op)
	}
}

// EncodeCommand marshals a Command envelope for raft.Raft.Apply.
func EncodeCommand(proposalID string, req auth.Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return json.Marshal(Command{ProposalID: proposalID, Op: req.Op(), Data: data})
}
