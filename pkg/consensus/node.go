package consensus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/cuemby/keystone/pkg/lease"
	"github.com/cuemby/keystone/pkg/log"
	"github.com/cuemby/keystone/pkg/store"
	"github.com/cuemby/keystone/pkg/token"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Config holds the configuration for creating an AuthNode.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// AuthNode wraps a single auth.Core in a raft cluster: it owns the
// raft instance, the FSM adapting Core.Execute/Sync, and the
// join-token manager gating cluster membership. Container-orchestration
// concerns (DNS, ingress, CA, secrets) have no auth-domain analogue and
// are out of scope here.
type AuthNode struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft       *raft.Raft
	fsm        *AuthFSM
	core       *auth.Core
	store      *store.Store
	tokens     *token.Manager
	joinTokens *JoinTokenManager
}

// NewAuthNode opens the durable store, constructs the auth core, and
// wraps it in an AuthFSM, without yet starting raft (see Bootstrap/Join).
func NewAuthNode(cfg *Config, tokens *token.Manager, ll lease.LeaseLookup) (*AuthNode, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	core, err := auth.NewCore(st, tokens, ll)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to recover auth core: %w", err)
	}

	return &AuthNode{
		nodeID:     cfg.NodeID,
		bindAddr:   cfg.BindAddr,
		dataDir:    cfg.DataDir,
		fsm:        NewAuthFSM(core),
		core:       core,
		store:      st,
		tokens:     tokens,
		joinTokens: NewJoinTokenManager(),
	}, nil
}

// Core exposes the underlying auth.Core for read paths (UserGet,
// RoleList, AuthStatus, ...) that callers drive through Execute
// directly rather than through the raft log.
func (n *AuthNode) Core() *auth.Core {
	return n.core
}

// JoinTokens exposes the join-token manager for cmd/authd's
// "token generate" subcommand.
func (n *AuthNode) JoinTokens() *JoinTokenManager {
	return n.joinTokens
}

func (n *AuthNode) newRaft() (*raft.Raft, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.nodeID)

	// Tuned down from hashicorp/raft's WAN-conservative defaults for a
	// LAN/edge deployment.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	return raft.NewRaft(config, n.fsm, logStore, stableStore, snapshotStore, transport)
}

// Bootstrap initializes a new single-node raft cluster with this node
// as the only voter.
func (n *AuthNode) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.nodeID), Address: raft.ServerAddress(n.bindAddr)},
		},
	}
	future := n.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	log.Info(fmt.Sprintf("consensus: bootstrapped single-node cluster as %s", n.nodeID))
	return nil
}

// Resume reopens raft against this node's existing data directory
// without bootstrapping a new cluster configuration: hashicorp/raft
// recovers the prior configuration and log from the stable/log stores
// created by a previous Bootstrap/Join. cmd/authd uses this to give
// its otherwise one-shot CLI invocations (user add, role add, ...) a
// live raft instance to submit Apply calls through, in lieu of the
// networked admin RPC a full deployment would front this package with.
func (n *AuthNode) Resume() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r
	return nil
}

// Join starts this node's raft instance so it is ready to receive a
// leader's AddVoter call. It does not itself dial the leader over
// gRPC: the full RPC service is out of scope for this module, so the
// leader-side AddVoter call is expected to be driven out-of-band by
// whatever operator tooling fronts this package (cmd/authd's "join"
// command calls Join and then prints this node's id and address for
// that AddVoter call; it does not call AddVoter itself).
func (n *AuthNode) Join(joinToken string) error {
	if _, err := n.joinTokens.Validate(joinToken); err != nil {
		return fmt.Errorf("failed to validate join token: %w", err)
	}

	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	log.Info(fmt.Sprintf("consensus: raft instance for %s ready to join", n.nodeID))
	return nil
}

// AddVoter adds a new node to the raft cluster. Only the leader can
// call this successfully.
func (n *AuthNode) AddVoter(nodeID, address string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", n.LeaderAddr())
	}

	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	return nil
}

// RemoveServer removes nodeID from the raft cluster. Only the leader
// can call this successfully.
func (n *AuthNode) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := n.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	return nil
}

// IsLeader reports whether this node is the current raft leader.
func (n *AuthNode) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current raft leader, or
// the empty string if unknown.
func (n *AuthNode) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// GetRaftStats returns a snapshot of raft's internal state, used by
// cmd/authd's status command.
func (n *AuthNode) GetRaftStats() map[string]interface{} {
	if n.raft == nil {
		return nil
	}

	stats := map[string]interface{}{
		"state":          n.raft.State().String(),
		"last_log_index": n.raft.LastIndex(),
		"applied_index":  n.raft.AppliedIndex(),
		"leader":         string(n.raft.Leader()),
	}
	if configFuture := n.raft.GetConfiguration(); configFuture.Error() == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}
	return stats
}

// Apply submits req to the raft log under proposalID and waits for it
// to be committed and applied, returning the response Execute
// produced and the revision Sync stamped.
func (n *AuthNode) Apply(proposalID string, req auth.Request) (auth.Response, int64, error) {
	if n.raft == nil {
		return auth.Response{}, 0, fmt.Errorf("raft not initialized")
	}

	data, err := EncodeCommand(proposalID, req)
	if err != nil {
		return auth.Response{}, 0, err
	}

	future := n.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return auth.Response{}, 0, fmt.Errorf("failed to apply command: %w", err)
	}

	result, ok := future.Response().(ApplyResult)
	if !ok {
		return auth.Response{}, 0, fmt.Errorf("consensus: unexpected apply response type %T", future.Response())
	}
	return result.Response, result.Revision, result.Err
}

// Shutdown gracefully stops raft and closes the underlying store.
func (n *AuthNode) Shutdown() error {
	if n.raft != nil {
		if err := n.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}
