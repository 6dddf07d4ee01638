// Package arbiter maintains a declarative Cluster State Object, runs a
// health prober and a peer-watch loop, and decides whether this cluster is
// permitted to forge. Built on sigs.k8s.io/controller-runtime's
// client.WithWatch (the interface sigs.k8s.io/karpenter's operator wires
// controllers against) for both CRUD and the streaming watch the peer
// mirror needs.
package arbiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/samber/lo"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

// Config is the static per-process configuration the arbiter needs
// (derived from pkg/operator/options.Options and pkg/identity.Identity).
type Config struct {
	Namespace          string
	SelfName           string
	Network            string
	PoolID             string
	Region             string
	Priority           int
	HealthCheck        v1alpha1.HealthCheckSpec
	LegacySingleTenant bool
	// StalenessMultiple scales HealthCheck.Interval into the peer staleness
	// window, e.g. 3x the health-check interval.
	StalenessMultiple int
}

// Arbiter implements the Cluster Arbiter contract.
type Arbiter struct {
	client client.WithWatch
	cfg    Config
	log    *zap.Logger

	isLeader atomic.Bool

	mu          sync.Mutex
	health      v1alpha1.HealthStatus
	peers       map[string]peerSnapshot
	selfCreated time.Time
}

// New constructs an Arbiter. c must support Watch (controller-runtime's
// client.WithWatch, satisfied by a real manager client or its fake builder).
func New(c client.WithWatch, cfg Config, log *zap.Logger) *Arbiter {
	if cfg.StalenessMultiple <= 0 {
		cfg.StalenessMultiple = 3
	}
	return &Arbiter{
		client: c,
		cfg:    cfg,
		log:    log,
		peers:  make(map[string]peerSnapshot),
	}
}

// SetIsLeader is called by the supervisor each tick with the current
// local-leadership value; it gates whether the health prober writes to the
// Cluster State Object's status or only caches locally.
func (a *Arbiter) SetIsLeader(leader bool) {
	a.isLeader.Store(leader)
}

func (a *Arbiter) selfLabels() map[string]string {
	return map[string]string{
		v1alpha1.LabelNetwork: a.cfg.Network,
		v1alpha1.LabelPoolID:  a.cfg.PoolID,
		v1alpha1.LabelRegion:  a.cfg.Region,
	}
}

// EnsureClusterStateObject creates the Cluster State Object with the
// configured spec if it does not already exist; it never overwrites an
// externally-authored spec.
func (a *Arbiter) EnsureClusterStateObject(ctx context.Context) error {
	existing := &v1alpha1.ClusterState{}
	key := client.ObjectKey{Namespace: a.cfg.Namespace, Name: a.cfg.SelfName}
	err := a.client.Get(ctx, key, existing)
	if err == nil {
		a.mu.Lock()
		a.selfCreated = existing.CreationTimestamp.Time
		a.mu.Unlock()
		return nil
	}
	if !k8serrors.IsNotFound(err) {
		return serrors.Wrap(err, "name", a.cfg.SelfName, "namespace", a.cfg.Namespace)
	}

	cs := &v1alpha1.ClusterState{
		ObjectMeta: metav1.ObjectMeta{
			Name:      a.cfg.SelfName,
			Namespace: a.cfg.Namespace,
			Labels:    a.selfLabels(),
		},
		Spec: v1alpha1.ClusterStateSpec{
			ForgeState:  v1alpha1.DefaultForgeState,
			Priority:    lo.Ternary(a.cfg.Priority != 0, a.cfg.Priority, v1alpha1.DefaultClusterPriority),
			HealthCheck: a.cfg.HealthCheck,
		},
	}
	if createErr := a.client.Create(ctx, cs); createErr != nil && !k8serrors.IsAlreadyExists(createErr) {
		return serrors.Wrap(createErr, "name", a.cfg.SelfName, "namespace", a.cfg.Namespace)
	}
	a.mu.Lock()
	a.selfCreated = time.Now()
	a.mu.Unlock()
	return nil
}

// ShouldAllowLocalForging runs the forge-permission decision, reading the
// current spec, the cached health status, and the peer-watch mirror. Any
// failure reading the Cluster State Object is reported as a fail-safe
// deny.
func (a *Arbiter) ShouldAllowLocalForging(ctx context.Context) (allow bool, reason string) {
	self := &v1alpha1.ClusterState{}
	key := client.ObjectKey{Namespace: a.cfg.Namespace, Name: a.cfg.SelfName}
	if err := a.client.Get(ctx, key, self); err != nil {
		a.log.Warn("cluster state read failed, denying forging", zap.Error(err))
		return false, v1alpha1.ReasonEvaluationError
	}

	a.mu.Lock()
	health := a.health
	selfCreated := a.selfCreated
	peers := make([]peerSnapshot, 0, len(a.peers))
	for _, p := range a.peers {
		peers = append(peers, p)
	}
	a.mu.Unlock()

	now := time.Now()
	state, priority := effectiveStateAndPriority(self.Spec, health, now)
	staleAfter := a.cfg.HealthCheck.Interval.Duration * time.Duration(a.cfg.StalenessMultiple)
	d := forgePermission(state, priority, a.cfg.LegacySingleTenant, a.cfg.SelfName, selfCreated,
		peers, self.Spec.HealthCheck.FailureThreshold, staleAfter, now)
	return d.allow, d.reason
}

// ReportLocalLeader writes the computed status fields to the Cluster State
// Object; invoked by the supervisor on every tick while this replica is the
// local leader.
func (a *Arbiter) ReportLocalLeader(ctx context.Context, podName string, forgingEnabled bool) error {
	self := &v1alpha1.ClusterState{}
	key := client.ObjectKey{Namespace: a.cfg.Namespace, Name: a.cfg.SelfName}
	if err := a.client.Get(ctx, key, self); err != nil {
		return serrors.Wrap(err, "name", a.cfg.SelfName, "namespace", a.cfg.Namespace)
	}

	a.mu.Lock()
	health := a.health
	a.mu.Unlock()

	now := metav1.Now()
	state, priority := effectiveStateAndPriority(self.Spec, health, now.Time)

	updated := self.DeepCopy()
	updated.Status.EffectiveState = state
	updated.Status.EffectivePriority = priority
	updated.Status.ActiveLeader = podName
	updated.Status.ForgingEnabled = forgingEnabled
	updated.Status.HealthStatus = health
	updated.Status.LastTransition = &now
	updated.Status.ObservedGeneration = self.Generation
	updated.Status.Conditions = withForgingCondition(updated.Status.Conditions, forgingEnabled, forgeConditionReason(state, forgingEnabled), now)

	metrics.ClusterForgeEnabled.Set(lo.Ternary(forgingEnabled, float64(1), float64(0)))
	metrics.ClusterForgePriority.Set(float64(priority))

	return a.client.Status().Update(ctx, updated)
}

func forgeConditionReason(state v1alpha1.ForgeState, forgingEnabled bool) string {
	if state == v1alpha1.ForgeStateDisabled {
		return v1alpha1.ReasonClusterForgeDisabled
	}
	if forgingEnabled {
		return v1alpha1.ReasonClusterForgeEnabled
	}
	return v1alpha1.ReasonOutranked
}

func withForgingCondition(conditions []metav1.Condition, forging bool, reason string, now metav1.Time) []metav1.Condition {
	status := metav1.ConditionFalse
	if forging {
		status = metav1.ConditionTrue
	}
	next := metav1.Condition{
		Type:               v1alpha1.ConditionTypeForging,
		Status:             status,
		Reason:             reason,
		LastTransitionTime: now,
	}
	for i, existing := range conditions {
		if existing.Type == v1alpha1.ConditionTypeForging {
			if existing.Status == status {
				next.LastTransitionTime = existing.LastTransitionTime
			}
			out := append([]metav1.Condition(nil), conditions...)
			out[i] = next
			return out
		}
	}
	return append(conditions, next)
}

// Snapshot returns the current spec and status of this cluster's Cluster
// State Object, used by pkg/httpserver's optional /cluster-status endpoint.
func (a *Arbiter) Snapshot(ctx context.Context) (v1alpha1.ClusterStateSpec, v1alpha1.ClusterStateStatus, error) {
	self := &v1alpha1.ClusterState{}
	key := client.ObjectKey{Namespace: a.cfg.Namespace, Name: a.cfg.SelfName}
	if err := a.client.Get(ctx, key, self); err != nil {
		return v1alpha1.ClusterStateSpec{}, v1alpha1.ClusterStateStatus{}, serrors.Wrap(err, "name", a.cfg.SelfName, "namespace", a.cfg.Namespace)
	}
	return self.Spec, self.Status, nil
}

// snapshotHealth returns a copy of the cached health status under lock.
func (a *Arbiter) snapshotHealth() v1alpha1.HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.health
}

// persistHealthStatus writes only the cached health status to the Cluster
// State Object, used by the health-prober loop when this replica is the
// local leader.
func (a *Arbiter) persistHealthStatus(ctx context.Context) error {
	self := &v1alpha1.ClusterState{}
	key := client.ObjectKey{Namespace: a.cfg.Namespace, Name: a.cfg.SelfName}
	if err := a.client.Get(ctx, key, self); err != nil {
		return err
	}
	updated := self.DeepCopy()
	updated.Status.HealthStatus = a.snapshotHealth()
	return a.client.Status().Update(ctx, updated)
}

// labelSelectorForPeers returns the selector peer discovery and the
// peer-watch loop use to list Cluster State Objects sharing this tenant.
func (a *Arbiter) labelSelectorForPeers() labels.Selector {
	return labels.SelectorFromSet(map[string]string{
		v1alpha1.LabelNetwork: a.cfg.Network,
		v1alpha1.LabelPoolID:  a.cfg.PoolID,
	})
}
