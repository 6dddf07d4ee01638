// Package metrics defines the Prometheus instrumentation surface,
// following the Namespace/label conventions of
// github.com/awslabs/operatorpkg/metrics and the BuildInfo gauge pattern in
// sigs.k8s.io/karpenter/pkg/operator.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cardano-forge/forgeguard/internal/buildinfo"
)

const Namespace = "forgeguard"

// Registry is a dedicated registry rather than prometheus.DefaultRegisterer
// so tests can spin up isolated instances without global state leaking
// across them (mirrors sigs.k8s.io/controller-runtime/pkg/metrics.Registry
// being its own registry rather than the process-global default).
var Registry = prometheus.NewRegistry()

var (
	// CredentialOperationsTotal increments once per per-file outcome in the
	// Credential Manager.
	CredentialOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "credential_operations_total",
		Help:      "Per-file credential operations, labeled by operation and file.",
	}, []string{"operation", "file"})

	// NodePIDUnknownTotal counts PID lookups where process-table enumeration
	// could not resolve the supervised node's PID.
	NodePIDUnknownTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "node_pid_unknown_total",
		Help:      "Count of PID lookups where the supervised node's PID could not be discovered.",
	})

	// LeadershipChangesTotal increments each time isLeader flips.
	LeadershipChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "leadership_changes_total",
		Help:      "Count of local leadership transitions observed by this replica.",
	})

	// SighupSignalsTotal increments on a delivered reload signal, labeled by
	// the reason the reconciliation fired.
	SighupSignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sighup_signals_total",
		Help:      "Count of reload signals delivered to the supervised node, labeled by reason.",
	}, []string{"reason"})

	// SighupSignalsSkippedTotal increments when a signal would have been
	// sent but the node's PID was unknown.
	SighupSignalsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sighup_signals_skipped_total",
		Help:      "Count of reload signals skipped because the node PID was unknown.",
	})

	// ForgingEnabled is 1 iff this replica's credentials are currently
	// Present and it believes it should be forging.
	ForgingEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "forging_enabled",
		Help:      "1 if this replica currently has forging credentials present, else 0.",
	})

	// LeaderStatus is 1 iff this replica holds the local lease.
	LeaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "leader_status",
		Help:      "1 if this replica is the local lease holder, else 0.",
	})

	// ClusterForgeEnabled is 1 iff the cluster arbiter currently permits
	// local forging.
	ClusterForgeEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "cluster_forge_enabled",
		Help:      "1 if the cluster arbiter currently permits this cluster to forge, else 0.",
	})

	// ClusterForgePriority mirrors the Cluster State Object's
	// status.effectivePriority for this cluster.
	ClusterForgePriority = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "cluster_forge_priority",
		Help:      "This cluster's current effective priority (lower is more preferred).",
	})

	// ClusterHealthConsecutiveFailures mirrors the health-prober loop's
	// running failure count.
	ClusterHealthConsecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "cluster_health_consecutive_failures",
		Help:      "Consecutive health-check probe failures observed by this cluster's arbiter.",
	})

	// BuildInfo is a constant 1 labeled by version/goversion/goarch/commit,
	// mirroring sigs.k8s.io/karpenter/pkg/operator.BuildInfo.
	BuildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "A metric with a constant '1' value labeled by version from which forgeguard was built.",
	}, []string{"version", "goversion", "goarch", "commit"})
)

// Version is injected at link time via -ldflags, exactly as
// sigs.k8s.io/karpenter/pkg/operator.Version is.
var Version = "unspecified"

func init() {
	Registry.MustRegister(
		CredentialOperationsTotal,
		NodePIDUnknownTotal,
		LeadershipChangesTotal,
		SighupSignalsTotal,
		SighupSignalsSkippedTotal,
		ForgingEnabled,
		LeaderStatus,
		ClusterForgeEnabled,
		ClusterForgePriority,
		ClusterHealthConsecutiveFailures,
		BuildInfo,
	)
	BuildInfo.WithLabelValues(Version, runtime.Version(), runtime.GOARCH, buildinfo.Revision()).Set(1)
}
