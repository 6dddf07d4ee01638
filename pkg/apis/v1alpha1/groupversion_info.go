// Package v1alpha1 contains the ClusterState API types used by the cluster
// arbiter (spec §3, §4.4) to declare and observe each cluster's
// participation in the fleet's forging decision.
// +kubebuilder:object:generate=true
// +groupName=forging.cardano-forge.io
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/scheme"
)

var (
	// GroupVersion is group version used to register these objects
	GroupVersion = schema.GroupVersion{Group: "forging.cardano-forge.io", Version: "v1alpha1"}

	// SchemeBuilder is used to add go types to the GroupVersionKind scheme
	SchemeBuilder = &scheme.Builder{GroupVersion: GroupVersion}

	// AddToScheme adds the types in this group-version to the given scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)
