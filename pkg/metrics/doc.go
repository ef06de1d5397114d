/*
Package metrics provides Prometheus metrics collection and exposition
for the auth core and its raft hosting layer.

Metrics are package-level prometheus.Gauge/GaugeVec/CounterVec/
HistogramVec variables registered at init(), following the same
pattern for every subsystem: auth state (AuthEnabled, CurrentRevision,
UsersTotal, RolesTotal, PermissionCacheUsers), request throughput
(AuthRequestsTotal, SyncDuration), and raft health (RaftApplyDuration,
RaftLeader, RaftPeers). Handler() exposes them over HTTP for scraping.

RaftLeader and RaftPeers are derived state that isn't naturally updated
at the point of mutation: cmd/authd's serve command polls them off its
own AuthNode on a ticker, the one place in the tree with a live raft
instance to read them from.
*/
package metrics
