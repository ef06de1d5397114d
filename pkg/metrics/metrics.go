package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthEnabled reports the current state of the auth_enable flag
	// (1 = enabled, 0 = disabled).
	AuthEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_auth_enabled",
			Help: "Whether auth is currently enabled on this node (1 = enabled, 0 = disabled)",
		},
	)

	// CurrentRevision tracks the main revision last allocated by the
	// revision counter.
	CurrentRevision = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_current_revision",
			Help: "Current main revision allocated by the auth state machine",
		},
	)

	// UsersTotal is registered for the number of persisted users; no
	// code in this module sets it, so it reads 0.
	UsersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_users_total",
			Help: "Total number of users in the auth store",
		},
	)

	// RolesTotal is registered for the number of persisted roles; no
	// code in this module sets it, so it reads 0.
	RolesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_roles_total",
			Help: "Total number of roles in the auth store",
		},
	)

	// PermissionCacheUsers tracks how many users currently have an
	// entry in the permission cache.
	PermissionCacheUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_permission_cache_users",
			Help: "Number of users with an entry in the permission cache",
		},
	)

	// AuthRequestsTotal counts every Execute call by request op and
	// outcome.
	AuthRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_auth_requests_total",
			Help: "Total number of auth requests by operation and result",
		},
		[]string{"op", "result"},
	)

	// SyncDuration times the Sync half of every request.
	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authd_sync_duration_seconds",
			Help:    "Time taken to apply a sync for an auth request, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// RaftApplyDuration times raft's FSM.Apply callback end to end,
	// including the Sync call it wraps.
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authd_raft_apply_duration_seconds",
			Help:    "Time taken to apply a raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RaftLeader reports whether this node is currently the raft
	// leader.
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_raft_is_leader",
			Help: "Whether this node is the raft leader (1 = leader, 0 = follower)",
		},
	)

	// RaftPeers tracks the size of the raft configuration.
	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_raft_peers_total",
			Help: "Total number of raft peers in the cluster",
		},
	)
)

func init() {
	prometheus.MustRegister(AuthEnabled)
	prometheus.MustRegister(CurrentRevision)
	prometheus.MustRegister(UsersTotal)
	prometheus.MustRegister(RolesTotal)
	prometheus.MustRegister(PermissionCacheUsers)
	prometheus.MustRegister(AuthRequestsTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
