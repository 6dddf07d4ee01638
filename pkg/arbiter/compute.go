package arbiter

import (
	"fmt"
	"sort"
	"time"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
)

// peerSnapshot is the peer-watch loop's in-memory mirror entry for one peer
// cluster's last-known state.
type peerSnapshot struct {
	name                string
	effectiveState      v1alpha1.ForgeState
	effectivePriority   int
	consecutiveFailures int
	lastSeen            time.Time
	creationTimestamp   time.Time
}

// effectiveStateAndPriority resolves the declared spec, any active
// override, and the cached health status into the effective forge state
// and priority.
func effectiveStateAndPriority(spec v1alpha1.ClusterStateSpec, health v1alpha1.HealthStatus, now time.Time) (v1alpha1.ForgeState, int) {
	state := spec.ForgeState
	if state == "" {
		state = v1alpha1.DefaultForgeState
	}
	priority := spec.Priority
	if priority == 0 {
		priority = v1alpha1.DefaultClusterPriority
	}

	if overrideActive(spec.Override, now) {
		if spec.Override.ForceState != nil {
			state = *spec.Override.ForceState
		}
		if spec.Override.ForcePriority != nil {
			priority = *spec.Override.ForcePriority
		}
	}

	if state == v1alpha1.ForgeStatePriorityBased && !health.Healthy {
		threshold := spec.HealthCheck.FailureThreshold
		switch {
		case threshold > 0 && health.ConsecutiveFailures >= threshold:
			priority += 100
		case health.ConsecutiveFailures >= 1:
			priority += 10
		}
	}

	return state, priority
}

// overrideActive treats an override whose expiresAt has already passed as
// inactive regardless of Enabled (see DESIGN.md).
func overrideActive(override v1alpha1.OverrideSpec, now time.Time) bool {
	if !override.Enabled {
		return false
	}
	if override.ExpiresAt != nil && !override.ExpiresAt.After(now) {
		return false
	}
	return true
}

// decision is the outcome of the forge-permission algorithm.
type decision struct {
	allow  bool
	reason string
}

// forgePermission runs the full forge-permission decision tree. staleAfter
// is the peer staleness window (typically 3x the health-check interval);
// legacySingleTenant indicates no {network, poolId} tuple is configured.
func forgePermission(
	state v1alpha1.ForgeState,
	priority int,
	legacySingleTenant bool,
	selfName string,
	selfCreated time.Time,
	peers []peerSnapshot,
	failureThreshold int,
	staleAfter time.Duration,
	now time.Time,
) decision {
	switch state {
	case v1alpha1.ForgeStateDisabled:
		return decision{allow: false, reason: v1alpha1.ReasonClusterForgeDisabled}
	case v1alpha1.ForgeStateEnabled:
		return decision{allow: true, reason: v1alpha1.ReasonClusterForgeEnabled}
	}

	// Priority-based.
	if legacySingleTenant {
		return decision{allow: true, reason: v1alpha1.ReasonLegacySingleTenant}
	}

	eligible := make([]peerSnapshot, 0, len(peers))
	for _, peer := range peers {
		if peer.effectiveState == v1alpha1.ForgeStateDisabled {
			continue
		}
		if failureThreshold > 0 && peer.consecutiveFailures >= failureThreshold {
			continue
		}
		if staleAfter > 0 && now.Sub(peer.lastSeen) > staleAfter {
			continue
		}
		eligible = append(eligible, peer)
	}

	if len(eligible) == 0 {
		return decision{allow: true, reason: v1alpha1.ReasonSoleOrAllIneligible}
	}

	// Tie-break: lower effectivePriority wins; ties broken by older
	// creationTimestamp, then lexicographically smaller object name.
	sort.Slice(eligible, func(i, j int) bool {
		return peerLess(eligible[i], eligible[j])
	})
	best := eligible[0]
	self := peerSnapshot{name: selfName, effectivePriority: priority, creationTimestamp: selfCreated}

	if peerLess(best, self) {
		return decision{allow: false, reason: v1alpha1.ReasonOutranked}
	}
	return decision{allow: true, reason: fmt.Sprintf("%s_%d", v1alpha1.ReasonHighestPriority, priority)}
}

func peerLess(a, b peerSnapshot) bool {
	if a.effectivePriority != b.effectivePriority {
		return a.effectivePriority < b.effectivePriority
	}
	if !a.creationTimestamp.Equal(b.creationTimestamp) {
		return a.creationTimestamp.Before(b.creationTimestamp)
	}
	return a.name < b.name
}
