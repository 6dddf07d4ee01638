package arbiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
)

func TestEffectiveStateAndPriorityDefaults(t *testing.T) {
	state, priority := effectiveStateAndPriority(v1alpha1.ClusterStateSpec{}, v1alpha1.HealthStatus{Healthy: true}, time.Now())
	assert.Equal(t, v1alpha1.ForgeStatePriorityBased, state)
	assert.Equal(t, v1alpha1.DefaultClusterPriority, priority)
}

func TestEffectiveStateAndPriorityOverrideActive(t *testing.T) {
	future := metav1.NewTime(time.Now().Add(time.Hour))
	forced := v1alpha1.ForgeStateDisabled
	forcedPriority := 5
	spec := v1alpha1.ClusterStateSpec{
		ForgeState: v1alpha1.ForgeStatePriorityBased,
		Priority:   100,
		Override: v1alpha1.OverrideSpec{
			Enabled: true, ExpiresAt: &future, ForceState: &forced, ForcePriority: &forcedPriority,
		},
	}
	state, priority := effectiveStateAndPriority(spec, v1alpha1.HealthStatus{Healthy: true}, time.Now())
	assert.Equal(t, v1alpha1.ForgeStateDisabled, state)
	assert.Equal(t, 5, priority)
}

func TestEffectiveStateAndPriorityExpiredOverrideIsInactive(t *testing.T) {
	past := metav1.NewTime(time.Now().Add(-time.Hour))
	forced := v1alpha1.ForgeStateDisabled
	spec := v1alpha1.ClusterStateSpec{
		ForgeState: v1alpha1.ForgeStatePriorityBased,
		Priority:   100,
		Override:   v1alpha1.OverrideSpec{Enabled: true, ExpiresAt: &past, ForceState: &forced},
	}
	state, priority := effectiveStateAndPriority(spec, v1alpha1.HealthStatus{Healthy: true}, time.Now())
	assert.Equal(t, v1alpha1.ForgeStatePriorityBased, state, "expired override must not apply")
	assert.Equal(t, 100, priority)
}

func TestEffectiveStateAndPriorityUnhealthyDemotion(t *testing.T) {
	spec := v1alpha1.ClusterStateSpec{
		ForgeState:  v1alpha1.ForgeStatePriorityBased,
		Priority:    100,
		HealthCheck: v1alpha1.HealthCheckSpec{FailureThreshold: 3},
	}
	_, priority := effectiveStateAndPriority(spec, v1alpha1.HealthStatus{Healthy: false, ConsecutiveFailures: 1}, time.Now())
	assert.Equal(t, 110, priority, "below threshold adds 10")

	_, priority = effectiveStateAndPriority(spec, v1alpha1.HealthStatus{Healthy: false, ConsecutiveFailures: 3}, time.Now())
	assert.Equal(t, 200, priority, "at/above threshold adds 100")
}

func TestForgePermissionDisabledDenies(t *testing.T) {
	d := forgePermission(v1alpha1.ForgeStateDisabled, 100, false, "self", time.Now(), nil, 3, time.Minute, time.Now())
	assert.False(t, d.allow)
	assert.Equal(t, v1alpha1.ReasonClusterForgeDisabled, d.reason)
}

func TestForgePermissionEnabledAllows(t *testing.T) {
	d := forgePermission(v1alpha1.ForgeStateEnabled, 100, false, "self", time.Now(), nil, 3, time.Minute, time.Now())
	assert.True(t, d.allow)
	assert.Equal(t, v1alpha1.ReasonClusterForgeEnabled, d.reason)
}

func TestForgePermissionLegacySingleTenantAllows(t *testing.T) {
	d := forgePermission(v1alpha1.ForgeStatePriorityBased, 100, true, "self", time.Now(), nil, 3, time.Minute, time.Now())
	assert.True(t, d.allow)
	assert.Equal(t, v1alpha1.ReasonLegacySingleTenant, d.reason)
}

func TestForgePermissionNoEligiblePeersAllows(t *testing.T) {
	now := time.Now()
	peers := []peerSnapshot{
		{name: "peer-disabled", effectiveState: v1alpha1.ForgeStateDisabled, effectivePriority: 1, lastSeen: now},
		{name: "peer-unhealthy", effectiveState: v1alpha1.ForgeStatePriorityBased, effectivePriority: 1, consecutiveFailures: 5, lastSeen: now},
		{name: "peer-stale", effectiveState: v1alpha1.ForgeStatePriorityBased, effectivePriority: 1, lastSeen: now.Add(-time.Hour)},
	}
	d := forgePermission(v1alpha1.ForgeStatePriorityBased, 100, false, "self", now, peers, 3, time.Minute, now)
	assert.True(t, d.allow)
	assert.Equal(t, v1alpha1.ReasonSoleOrAllIneligible, d.reason)
}

func TestForgePermissionOutrankedByLowerPriorityPeerDenies(t *testing.T) {
	now := time.Now()
	peers := []peerSnapshot{
		{name: "peer-a", effectiveState: v1alpha1.ForgeStatePriorityBased, effectivePriority: 50, lastSeen: now, creationTimestamp: now},
	}
	d := forgePermission(v1alpha1.ForgeStatePriorityBased, 100, false, "self", now, peers, 3, time.Minute, now)
	assert.False(t, d.allow)
	assert.Equal(t, v1alpha1.ReasonOutranked, d.reason)
}

func TestForgePermissionSelfWinsOnTieByOlderCreation(t *testing.T) {
	now := time.Now()
	peers := []peerSnapshot{
		{name: "peer-a", effectiveState: v1alpha1.ForgeStatePriorityBased, effectivePriority: 100, lastSeen: now, creationTimestamp: now},
	}
	d := forgePermission(v1alpha1.ForgeStatePriorityBased, 100, false, "self", now.Add(-time.Hour), peers, 3, time.Minute, now)
	assert.True(t, d.allow, "self created earlier than the tied peer must win")
}

func TestForgePermissionSelfLosesTieByLexicographicName(t *testing.T) {
	now := time.Now()
	peers := []peerSnapshot{
		{name: "aaa-peer", effectiveState: v1alpha1.ForgeStatePriorityBased, effectivePriority: 100, lastSeen: now, creationTimestamp: now},
	}
	d := forgePermission(v1alpha1.ForgeStatePriorityBased, 100, false, "zzz-self", now, peers, 3, time.Minute, now)
	assert.False(t, d.allow, "lexicographically larger self name loses the tie")
}
