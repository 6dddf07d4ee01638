/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ForgeState is the externally authored, operator-controlled desired
// participation state of a cluster.
type ForgeState string

const (
	ForgeStateEnabled        ForgeState = "Enabled"
	ForgeStateDisabled       ForgeState = "Disabled"
	ForgeStatePriorityBased  ForgeState = "Priority-based"
	DefaultForgeState                   = ForgeStatePriorityBased
	DefaultClusterPriority   int        = 100
	MinClusterPriority       int        = 1
	MaxClusterPriority       int        = 999
)

// HealthCheckSpec configures the cluster arbiter's health-prober loop.
type HealthCheckSpec struct {
	Enabled bool `json:"enabled"`
	// Endpoint is the URL the health-prober loop issues a GET to every Interval.
	Endpoint string `json:"endpoint,omitempty"`
	// Interval between probes. Defaults to 30s when zero.
	Interval metav1.Duration `json:"interval,omitempty"`
	// Timeout applied per probe request. Defaults to 5s when zero.
	Timeout metav1.Duration `json:"timeout,omitempty"`
	// FailureThreshold is the number of consecutive failures before the
	// effective priority is demoted and healthStatus.healthy flips false.
	FailureThreshold int `json:"failureThreshold,omitempty"`
}

// OverrideSpec lets an operator force a state/priority for a bounded window,
// e.g. to drain a cluster for maintenance without editing ForgeState.
type OverrideSpec struct {
	Enabled bool `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
	// ExpiresAt is checked at decision time. An override with ExpiresAt in the
	// past is treated as inactive regardless of Enabled (see DESIGN.md).
	ExpiresAt     *metav1.Time `json:"expiresAt,omitempty"`
	ForceState    *ForgeState  `json:"forceState,omitempty"`
	ForcePriority *int         `json:"forcePriority,omitempty"`
}

// ClusterStateSpec is the external, operator-authored desired state
// (spec §3 Cluster State Object). The arbiter never overwrites it.
type ClusterStateSpec struct {
	// ForgeState defaults to Priority-based.
	ForgeState ForgeState `json:"forgeState,omitempty"`
	// Priority is the cluster's baseline priority; 1 is highest.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=999
	Priority int `json:"priority,omitempty"`

	HealthCheck HealthCheckSpec `json:"healthCheck,omitempty"`
	Override    OverrideSpec    `json:"override,omitempty"`
}

// HealthStatus mirrors the cluster arbiter's health-prober output.
type HealthStatus struct {
	Healthy             bool         `json:"healthy"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastProbeTime       *metav1.Time `json:"lastProbeTime,omitempty"`
	Message             string       `json:"message,omitempty"`
}

// ClusterStateStatus is computed and written only by the current local
// leader (spec §3, §4.5 step 7).
type ClusterStateStatus struct {
	EffectiveState    ForgeState `json:"effectiveState,omitempty"`
	EffectivePriority int        `json:"effectivePriority,omitempty"`
	// ActiveLeader is the podName of the replica that currently holds the
	// local lease in this cluster, or empty.
	ActiveLeader    string       `json:"activeLeader,omitempty"`
	ForgingEnabled  bool         `json:"forgingEnabled"`
	HealthStatus    HealthStatus `json:"healthStatus,omitempty"`
	LastTransition  *metav1.Time `json:"lastTransition,omitempty"`
	ObservedGeneration int64     `json:"observedGeneration,omitempty"`
	Conditions      []metav1.Condition `json:"conditions,omitempty"`
}

// Condition type/reason constants used throughout pkg/arbiter.
const (
	ConditionTypeForging = "Forging"

	ReasonClusterForgeDisabled  = "cluster_forge_disabled"
	ReasonClusterForgeEnabled   = "cluster_forge_enabled"
	ReasonLegacySingleTenant    = "legacy_single_tenant"
	ReasonSoleOrAllIneligible   = "sole_or_all_peers_ineligible"
	ReasonHighestPriority       = "highest_priority"
	ReasonOutranked             = "priority_outranked"
	ReasonEvaluationError       = "evaluation_error"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="ForgeState",type=string,JSONPath=`.spec.forgeState`
// +kubebuilder:printcolumn:name="Priority",type=integer,JSONPath=`.status.effectivePriority`
// +kubebuilder:printcolumn:name="Leader",type=string,JSONPath=`.status.activeLeader`
// +kubebuilder:printcolumn:name="Forging",type=boolean,JSONPath=`.status.forgingEnabled`

// ClusterState is the Schema for the clusterstates API. One object exists
// per {network, poolId, region} (spec §3 naming rule).
type ClusterState struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ClusterStateSpec   `json:"spec,omitempty"`
	Status ClusterStateStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ClusterStateList contains a list of ClusterState.
type ClusterStateList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ClusterState `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ClusterState{}, &ClusterStateList{})
}

// Labels required for peer discovery (spec §3: "Labels: {network, poolId,
// region} (required for peer discovery)").
const (
	LabelNetwork = "forging.cardano-forge.io/network"
	LabelPoolID  = "forging.cardano-forge.io/pool-id"
	LabelRegion  = "forging.cardano-forge.io/region"
)
