package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/cuemby/keystone/pkg/consensus"
	"github.com/cuemby/keystone/pkg/lease"
	"github.com/cuemby/keystone/pkg/log"
	"github.com/cuemby/keystone/pkg/metrics"
	"github.com/cuemby/keystone/pkg/token"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build).
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "authd",
	Short:   "authd - the auth/authz state machine for an etcd-compatible store",
	Long:    `authd runs the replicated auth state machine: user/role/permission management, password-backed login, and signed bearer tokens, over a raft-replicated log.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"authd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (flags override config file values)")
	rootCmd.PersistentFlags().String("node-id", "node-1", "Unique node ID")
	rootCmd.PersistentFlags().String("bind-addr", "127.0.0.1:7946", "Address for raft communication")
	rootCmd.PersistentFlags().String("data-dir", "./authd-data", "Data directory for node state")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(roleCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// fileConfig is the shape of the optional --config YAML file; any
// field a flag also sets takes the flag's value instead (flags win).
type fileConfig struct {
	NodeID      string `yaml:"node_id"`
	BindAddr    string `yaml:"bind_addr"`
	DataDir     string `yaml:"data_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// resolvedConfig merges --config file values under explicit flags.
func resolvedConfig(cmd *cobra.Command) (*consensus.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return nil, "", err
	}

	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if !cmd.Flags().Changed("node-id") && fc.NodeID != "" {
		nodeID = fc.NodeID
	}
	if !cmd.Flags().Changed("bind-addr") && fc.BindAddr != "" {
		bindAddr = fc.BindAddr
	}
	if !cmd.Flags().Changed("data-dir") && fc.DataDir != "" {
		dataDir = fc.DataDir
	}

	return &consensus.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir}, fc.MetricsAddr, nil
}

// newNodeForCommand opens a token manager and lease stub and wraps
// them in a fresh AuthNode, without starting raft.
func newNodeForCommand(cfg *consensus.Config) (*consensus.AuthNode, error) {
	priv, err := loadOrCreateSigningKey(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	tokens := token.NewManager()
	tokens.SetKeypair(priv, 0)

	return consensus.NewAuthNode(cfg, tokens, lease.NewStub())
}

// awaitLeader polls IsLeader until it is true or timeout elapses,
// since a freshly-resumed single-node raft instance re-elects itself
// on startup but needs a moment to do so.
func awaitLeader(n *consensus.AuthNode, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n.IsLeader() {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for leadership")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bootstrap (or resume) this node and serve until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, metricsAddr, err := resolvedConfig(cmd)
		if err != nil {
			return err
		}
		if metricsAddr == "" || cmd.Flags().Changed("metrics-addr") {
			metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		}

		_, statErr := os.Stat(signingKeyPath(cfg.DataDir))

		node, err := newNodeForCommand(cfg)
		if err != nil {
			return err
		}

		if statErr == nil {
			if err := node.Resume(); err != nil {
				return fmt.Errorf("failed to resume node: %w", err)
			}
		} else if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap node: %w", err)
		}
		defer node.Shutdown()

		metrics.RegisterComponent("raft", true, "")
		metrics.RegisterComponent("store", true, "")
		metrics.RegisterComponent("api", true, "")
		metrics.SetVersion(Version)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(fmt.Sprintf("metrics server error: %v", err))
			}
		}()

		stopStats := make(chan struct{})
		go reportRaftStats(node, stopStats)
		defer close(stopStats)

		log.Info(fmt.Sprintf("authd serving node %s (data-dir=%s, bind-addr=%s, metrics=%s)", cfg.NodeID, cfg.DataDir, cfg.BindAddr, metricsAddr))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("authd shutting down")
		return httpServer.Close()
	},
}

// reportRaftStats polls raft leadership and peer count into the
// RaftLeader/RaftPeers gauges until stop is closed.
func reportRaftStats(node *consensus.AuthNode, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if node.IsLeader() {
				metrics.RaftLeader.Set(1)
			} else {
				metrics.RaftLeader.Set(0)
			}
			if peers, ok := node.GetRaftStats()["peers"].(uint64); ok {
				metrics.RaftPeers.Set(float64(peers))
			}
		}
	}
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start this node's raft instance, ready for a leader's AddVoter call",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := resolvedConfig(cmd)
		if err != nil {
			return err
		}
		joinToken, _ := cmd.Flags().GetString("token")
		if joinToken == "" {
			return fmt.Errorf("--token is required")
		}

		node, err := newNodeForCommand(cfg)
		if err != nil {
			return err
		}
		defer node.Shutdown()

		if err := node.Join(joinToken); err != nil {
			return err
		}
		fmt.Printf("node %s ready to join at %s; ask the leader to AddVoter(%q, %q)\n", cfg.NodeID, cfg.BindAddr, cfg.NodeID, cfg.BindAddr)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print raft and auth status for this node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := resolvedConfig(cmd)
		if err != nil {
			return err
		}

		node, err := newNodeForCommand(cfg)
		if err != nil {
			return err
		}
		defer node.Shutdown()

		if err := node.Resume(); err != nil {
			return err
		}
		if err := awaitLeader(node, 5*time.Second); err != nil {
			return err
		}

		resp, err := node.Core().Execute(uuid.NewString(), auth.AuthStatusRequest{})
		if err != nil {
			return err
		}
		fmt.Printf("revision: %d\nenabled: %v\n", resp.Header.Revision, resp.Enabled)
		for k, v := range node.GetRaftStats() {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage cluster join tokens",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new join token for adding a voter to the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := resolvedConfig(cmd)
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		node, err := newNodeForCommand(cfg)
		if err != nil {
			return err
		}
		defer node.Shutdown()

		jt, err := node.JoinTokens().Generate(role, ttl)
		if err != nil {
			return err
		}
		fmt.Println(jt.Token)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenGenerateCmd)
	tokenGenerateCmd.Flags().String("role", "voter", "Role granted by this token")
	tokenGenerateCmd.Flags().Duration("ttl", 24*time.Hour, "Token validity duration")

	joinCmd.Flags().String("token", "", "Join token issued by the leader (required)")

	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9946", "Address for the metrics/health HTTP server")
}
