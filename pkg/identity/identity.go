// Package identity derives the immutable per-process pod/tenant tuple and
// the resource names scoped to it (Lease name, Cluster State Object name).
package identity

import (
	"fmt"
	"strings"
)

// knownPoolIDPrefixes are bech32 human-readable parts a pool operator might
// hand the sidecar a pool ID with. Stripped before deriving PoolIDShort.
var knownPoolIDPrefixes = []string{"pool1", "pool"}

// legacyLeaseName is used when no tenant tuple is configured (single-tenant
// deployments predating multi-tenant support).
const legacyLeaseName = "cardano-leader-election"

// poolIDShortLen is the number of characters of the de-prefixed pool ID
// used to derive resource names.
const poolIDShortLen = 8

// Identity is immutable for the lifetime of the process: the tenant tuple
// is fixed once derived, and changing it requires a restart.
type Identity struct {
	PodName     string
	Namespace   string
	Network     string
	PoolID      string
	PoolIDShort string
	Region      string
	Application string
}

// New derives an Identity from raw inputs, computing PoolIDShort.
func New(podName, namespace, network, poolID, region, application string) Identity {
	return Identity{
		PodName:     podName,
		Namespace:   namespace,
		Network:     network,
		PoolID:      poolID,
		PoolIDShort: DerivePoolIDShort(poolID),
		Region:      region,
		Application: application,
	}
}

// DerivePoolIDShort strips a known bech32 prefix from a Cardano pool ID and
// returns the first poolIDShortLen characters of what remains. An empty
// poolID (legacy single-tenant mode) yields an empty PoolIDShort.
func DerivePoolIDShort(poolID string) string {
	if poolID == "" {
		return ""
	}
	stripped := poolID
	for _, prefix := range knownPoolIDPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			stripped = strings.TrimPrefix(stripped, prefix)
			break
		}
	}
	if len(stripped) > poolIDShortLen {
		stripped = stripped[:poolIDShortLen]
	}
	return stripped
}

// MultiTenant reports whether this Identity carries a tenant tuple, i.e.
// whether multi-tenant resource naming applies.
func (i Identity) MultiTenant() bool {
	return i.Network != "" && i.PoolIDShort != ""
}

// LeaseName derives the per-{network,pool} Lease name. In legacy
// single-tenant mode it returns a fixed name.
func (i Identity) LeaseName() string {
	if !i.MultiTenant() {
		return legacyLeaseName
	}
	return fmt.Sprintf("cardano-leader-%s-%s", i.Network, i.PoolIDShort)
}

// ClusterStateName derives the per-cluster Cluster State Object name:
// "{network}-{poolIdShort}-{region}".
func (i Identity) ClusterStateName() string {
	return fmt.Sprintf("%s-%s-%s", i.Network, i.PoolIDShort, i.Region)
}

// PeerLabelSelector returns the label values used to discover peer Cluster
// State Objects sharing this Identity's tenant tuple.
func (i Identity) PeerLabelSelector() map[string]string {
	return map[string]string{
		"forging.cardano-forge.io/network":  i.Network,
		"forging.cardano-forge.io/pool-id":  i.PoolID,
	}
}

// String returns a compact human-readable identifier for logs.
func (i Identity) String() string {
	if !i.MultiTenant() {
		return i.PodName
	}
	return fmt.Sprintf("%s[%s/%s]", i.PodName, i.Network, i.PoolIDShort)
}
