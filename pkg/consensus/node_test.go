package consensus

import (
	"testing"
	"time"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/cuemby/keystone/pkg/lease"
	"github.com/cuemby/keystone/pkg/store"
	"github.com/cuemby/keystone/pkg/token"
	"github.com/stretchr/testify/require"
)

func mustOpenFreshStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func bootstrapNode(t *testing.T) *AuthNode {
	t.Helper()

	cfg := &Config{NodeID: "node-1", BindAddr: "127.0.0.1:17891", DataDir: t.TempDir()}
	n, err := NewAuthNode(cfg, token.NewManager(), lease.NewStub())
	require.NoError(t, err)

	require.NoError(t, n.Bootstrap())
	t.Cleanup(func() { _ = n.Shutdown() })

	require.Eventually(t, n.IsLeader, 5*time.Second, 10*time.Millisecond, "node never became leader")
	return n
}

func TestAuthNodeBootstrapBecomesLeader(t *testing.T) {
	n := bootstrapNode(t)
	require.True(t, n.IsLeader())
	require.Equal(t, "127.0.0.1:17891", n.LeaderAddr())
}

func TestAuthNodeApplyRoundTrip(t *testing.T) {
	n := bootstrapNode(t)

	resp, rev, err := n.Apply("p1", auth.UserAddRequest{Name: "root", PasswordHash: "irrelevant"})
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)
	require.Equal(t, int64(0), resp.Header.Revision)

	resp, rev, err = n.Apply("p2", auth.RoleAddRequest{Name: "root"})
	require.NoError(t, err)
	require.Equal(t, int64(2), rev)
	_ = resp

	resp, rev, err = n.Apply("p3", auth.UserGrantRoleRequest{User: "root", Role: "root"})
	require.NoError(t, err)
	require.Equal(t, int64(3), rev)
	_ = resp

	resp, rev, err = n.Apply("p4", auth.AuthEnableRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(4), rev)
	_ = resp

	statusResp, statusErr := n.Core().Execute("status-1", auth.AuthStatusRequest{})
	require.NoError(t, statusErr)
	require.True(t, statusResp.Enabled)
	require.Equal(t, int64(4), n.Core().CurrentRevision())
}

func TestAuthNodeApplyRejectsInvalidCommand(t *testing.T) {
	n := bootstrapNode(t)

	_, _, err := n.Apply("p1", auth.UserGetRequest{Name: "nobody"})
	require.Error(t, err)

	var cmdErr *auth.InvalidCommand
	require.ErrorAs(t, err, &cmdErr)
}

func TestAuthNodeSnapshotRestoreRoundTrip(t *testing.T) {
	n := bootstrapNode(t)

	_, _, err := n.Apply("p1", auth.UserAddRequest{Name: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	_, _, err = n.Apply("p2", auth.RoleAddRequest{Name: "dev"})
	require.NoError(t, err)
	_, _, err = n.Apply("p3", auth.UserGrantRoleRequest{User: "alice", Role: "dev"})
	require.NoError(t, err)

	snap, err := n.Core().SnapshotState()
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	require.Len(t, snap.Roles, 1)
	require.Equal(t, "alice", snap.Users[0].Name)

	fresh, err := auth.NewCore(mustOpenFreshStore(t), token.NewManager(), lease.NewStub())
	require.NoError(t, err)
	require.NoError(t, fresh.RestoreState(snap))

	mismatch, ok, err := fresh.VerifyCacheConsistency()
	require.NoError(t, err)
	require.True(t, ok, "mismatch on %s", mismatch)
}
