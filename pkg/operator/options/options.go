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

// Package options implements the recognized, closed configuration surface,
// following the same FlagSet-over-env-var pattern as
// sigs.k8s.io/karpenter/pkg/operator/options.
package options

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/awslabs/operatorpkg/env"
	"github.com/samber/lo"
)

var Injectables = []Injectable{&Options{}}

// Injectable mirrors sigs.k8s.io/karpenter/pkg/operator/options.Injectable:
// a config source that can add its own flags and inject itself into a
// context after parsing.
type Injectable interface {
	AddFlags(fs *FlagSet)
	Parse(fs *FlagSet, args ...string) error
	ToContext(ctx context.Context) context.Context
}

type optionsKey struct{}

// Options holds every recognized runtime tunable.
type Options struct {
	// Identity
	PodName         string
	Namespace       string
	CardanoNetwork  string
	NetworkMagic    int
	PoolID          string
	PoolIDHex       string
	PoolTicker      string
	ApplicationType string

	// Paths
	NodeSocket    string
	SourceKESKey  string
	SourceVRFKey  string
	SourceOPCert  string
	TargetKESKey  string
	TargetVRFKey  string
	TargetOPCert  string

	// Election
	LeaseName      string
	LeaseDuration  time.Duration
	SleepInterval  time.Duration

	// Cluster arbiter
	EnableClusterManagement bool
	ClusterRegion           string
	ClusterPriority         int
	HealthCheckEndpoint     string
	HealthCheckInterval     time.Duration
	HealthCheckTimeout      time.Duration
	HealthCheckFailureThreshold int

	// Endpoint
	MetricsPort int

	// Testing
	DisableSocketCheck bool
}

// FlagSet wraps flag.FlagSet the way karpenter's options.FlagSet does, so
// each option can be set by flag or by environment variable fallback.
type FlagSet struct {
	*flag.FlagSet
}

func (fs *FlagSet) BoolVarWithEnv(p *bool, name, envVar string, val bool, usage string) {
	*p = env.WithDefaultBool(envVar, val)
	fs.BoolFunc(name, usage, func(v string) error {
		if v != "true" && v != "false" {
			return fmt.Errorf("%q is not a valid value, must be true or false", v)
		}
		*p = v == "true"
		return nil
	})
}

func (o *Options) AddFlags(fs *FlagSet) {
	fs.StringVar(&o.PodName, "pod-name", env.WithDefaultString("POD_NAME", ""), "The name of this replica's pod. Required.")
	fs.StringVar(&o.Namespace, "namespace", env.WithDefaultString("NAMESPACE", "default"), "The namespace this replica runs in.")
	fs.StringVar(&o.CardanoNetwork, "cardano-network", env.WithDefaultString("CARDANO_NETWORK", ""), "The Cardano network name, e.g. mainnet, preprod.")
	fs.IntVar(&o.NetworkMagic, "network-magic", env.WithDefaultInt("NETWORK_MAGIC", 0), "The Cardano network magic number, informational only.")
	fs.StringVar(&o.PoolID, "pool-id", env.WithDefaultString("POOL_ID", ""), "The bech32 stake pool ID. Empty selects legacy single-tenant naming.")
	fs.StringVar(&o.PoolIDHex, "pool-id-hex", env.WithDefaultString("POOL_ID_HEX", ""), "The hex stake pool ID, informational only.")
	fs.StringVar(&o.PoolTicker, "pool-ticker", env.WithDefaultString("POOL_TICKER", ""), "The stake pool ticker, informational only.")
	fs.StringVar(&o.ApplicationType, "application-type", env.WithDefaultString("APPLICATION_TYPE", "cardano-node"), "The supervised application's type; also the process name matched when discovering the node's PID.")

	fs.StringVar(&o.NodeSocket, "node-socket", env.WithDefaultString("NODE_SOCKET", "/ipc/node.socket"), "Path to the supervised node's IPC socket.")
	fs.StringVar(&o.SourceKESKey, "source-kes-key", env.WithDefaultString("SOURCE_KES_KEY", ""), "Source path of the KES signing key.")
	fs.StringVar(&o.SourceVRFKey, "source-vrf-key", env.WithDefaultString("SOURCE_VRF_KEY", ""), "Source path of the VRF signing key.")
	fs.StringVar(&o.SourceOPCert, "source-op-cert", env.WithDefaultString("SOURCE_OP_CERT", ""), "Source path of the operational certificate.")
	fs.StringVar(&o.TargetKESKey, "target-kes-key", env.WithDefaultString("TARGET_KES_KEY", ""), "Target path of the KES signing key.")
	fs.StringVar(&o.TargetVRFKey, "target-vrf-key", env.WithDefaultString("TARGET_VRF_KEY", ""), "Target path of the VRF signing key.")
	fs.StringVar(&o.TargetOPCert, "target-op-cert", env.WithDefaultString("TARGET_OP_CERT", ""), "Target path of the operational certificate.")

	fs.StringVar(&o.LeaseName, "lease-name", env.WithDefaultString("LEASE_NAME", ""), "Lease name override. Auto-derived from the tenant tuple if blank.")
	fs.DurationVar(&o.LeaseDuration, "lease-duration", env.WithDefaultDuration("LEASE_DURATION", 15*time.Second), "Lease duration before a holder is considered expired.")
	fs.DurationVar(&o.SleepInterval, "sleep-interval", env.WithDefaultDuration("SLEEP_INTERVAL", 5*time.Second), "Steady-state loop tick period.")

	fs.BoolVarWithEnv(&o.EnableClusterManagement, "enable-cluster-management", "ENABLE_CLUSTER_MANAGEMENT", false, "Enable the cross-cluster arbiter.")
	fs.StringVar(&o.ClusterRegion, "cluster-region", env.WithDefaultString("CLUSTER_REGION", ""), "This cluster's region label, used in Cluster State Object naming and peer labels.")
	fs.IntVar(&o.ClusterPriority, "cluster-priority", env.WithDefaultInt("CLUSTER_PRIORITY", 100), "This cluster's baseline priority; 1 is highest.")
	fs.StringVar(&o.HealthCheckEndpoint, "health-check-endpoint", env.WithDefaultString("HEALTH_CHECK_ENDPOINT", ""), "URL probed by the health-prober loop.")
	fs.DurationVar(&o.HealthCheckInterval, "health-check-interval", env.WithDefaultDuration("HEALTH_CHECK_INTERVAL", 30*time.Second), "Health-prober loop period.")
	fs.DurationVar(&o.HealthCheckTimeout, "health-check-timeout", env.WithDefaultDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second), "Per-probe request timeout.")
	fs.IntVar(&o.HealthCheckFailureThreshold, "health-check-failure-threshold", env.WithDefaultInt("HEALTH_CHECK_FAILURE_THRESHOLD", 3), "Consecutive probe failures before a cluster is considered unhealthy.")

	fs.IntVar(&o.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8000), "Port serving /metrics, /startup-status, /health, and (optionally) /cluster-status.")

	fs.BoolVarWithEnv(&o.DisableSocketCheck, "disable-socket-check", "DISABLE_SOCKET_CHECK", false, "Skip the Node Observer's socket-presence gating. Testing only.")
}

func (o *Options) Parse(fs *FlagSet, args ...string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return fmt.Errorf("parsing flags, %w", err)
	}
	if o.PodName == "" {
		return fmt.Errorf("validating configuration: POD_NAME is required")
	}
	if !o.EnableClusterManagement {
		// nothing further to validate; the arbiter is not constructed.
	} else if o.ClusterRegion == "" {
		return fmt.Errorf("validating configuration: CLUSTER_REGION is required when ENABLE_CLUSTER_MANAGEMENT=true")
	}
	if o.ClusterPriority < 1 || o.ClusterPriority > 999 {
		return fmt.Errorf("validating configuration: CLUSTER_PRIORITY must be in [1,999], got %d", o.ClusterPriority)
	}
	return nil
}

func (o *Options) ToContext(ctx context.Context) context.Context {
	return ToContext(ctx, o)
}

func ToContext(ctx context.Context, o *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, o)
}

// FromContext panics if Options were never injected: a developer error,
// exactly as sigs.k8s.io/karpenter/pkg/operator/options.FromContext treats it.
func FromContext(ctx context.Context) *Options {
	v := ctx.Value(optionsKey{})
	if v == nil {
		panic("options doesn't exist in context")
	}
	return v.(*Options)
}

// Parse constructs Options from os.Args[1:], exactly mirroring the flow in
// cmd/forgeguard/main.go.
func Parse() *Options {
	o := &Options{}
	fs := &FlagSet{flag.NewFlagSet("forgeguard", flag.ContinueOnError)}
	o.AddFlags(fs)
	lo.Must0(o.Parse(fs, os.Args[1:]...))
	return o
}
