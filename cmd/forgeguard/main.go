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

// Command forgeguard supervises a Cardano block-producing node, ensuring at
// most one replica across a fleet holds forging credentials at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/samber/lo"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
	"github.com/cardano-forge/forgeguard/pkg/arbiter"
	"github.com/cardano-forge/forgeguard/pkg/credentials"
	"github.com/cardano-forge/forgeguard/pkg/election"
	"github.com/cardano-forge/forgeguard/pkg/httpserver"
	"github.com/cardano-forge/forgeguard/pkg/identity"
	"github.com/cardano-forge/forgeguard/pkg/nodeobserver"
	"github.com/cardano-forge/forgeguard/pkg/operator/logging"
	"github.com/cardano-forge/forgeguard/pkg/operator/options"
	"github.com/cardano-forge/forgeguard/pkg/statusobject"
	"github.com/cardano-forge/forgeguard/pkg/supervisor"
)

var scheme = k8sruntime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	opts := options.Parse()
	ctx = opts.ToContext(ctx)

	logger := logging.NewLogger(ctx, "supervisor", "", "", "")
	log.SetLogger(zapr.NewLogger(logger))
	defer logger.Sync() //nolint:errcheck

	id := identity.New(opts.PodName, opts.Namespace, opts.CardanoNetwork, opts.PoolID, opts.ClusterRegion, opts.ApplicationType)
	leaseName := lo.Ternary(opts.LeaseName != "", opts.LeaseName, id.LeaseName())
	logger.Info("starting", zapIdentity(id)...)

	config := ctrl.GetConfigOrDie()
	clientset := kubernetes.NewForConfigOrDie(config)

	credManager := credentials.New(
		credentials.FilePair{Name: "kes_key", Source: opts.SourceKESKey, Target: opts.TargetKESKey},
		credentials.FilePair{Name: "vrf_key", Source: opts.SourceVRFKey, Target: opts.TargetVRFKey},
		credentials.FilePair{Name: "op_cert", Source: opts.SourceOPCert, Target: opts.TargetOPCert},
		logger.Named("credentials"),
	)

	electionEngine := election.New(
		clientset.CoordinationV1().Leases(opts.Namespace),
		opts.Namespace, leaseName, opts.PodName, opts.LeaseDuration,
		logger.Named("election"),
	)

	statusStore := statusobject.New(
		clientset.CoreV1().ConfigMaps(opts.Namespace),
		opts.Namespace, id.ClusterStateName()+"-status", id.PeerLabelSelector(),
		logger.Named("statusobject"),
	)

	observer := nodeobserver.New(opts.NodeSocket, opts.ApplicationType, opts.DisableSocketCheck, logger.Named("nodeobserver"))

	var arbiterInstance *arbiter.Arbiter
	if opts.EnableClusterManagement {
		watchClient, err := client.NewWithWatch(config, client.Options{Scheme: scheme})
		if err != nil {
			logger.Fatal("constructing watch client failed", zapErr(err)...)
		}
		arbiterInstance = arbiter.New(watchClient, arbiter.Config{
			Namespace:          opts.Namespace,
			SelfName:           id.ClusterStateName(),
			Network:            opts.CardanoNetwork,
			PoolID:             opts.PoolID,
			Region:             opts.ClusterRegion,
			Priority:           opts.ClusterPriority,
			LegacySingleTenant: !id.MultiTenant(),
			HealthCheck: v1alpha1.HealthCheckSpec{
				Enabled:          opts.HealthCheckEndpoint != "",
				Endpoint:         opts.HealthCheckEndpoint,
				Interval:         metav1.Duration{Duration: opts.HealthCheckInterval},
				Timeout:          metav1.Duration{Duration: opts.HealthCheckTimeout},
				FailureThreshold: opts.HealthCheckFailureThreshold,
			},
		}, logger.Named("arbiter"))

		if err := arbiterInstance.EnsureClusterStateObject(ctx); err != nil {
			logger.Fatal("ensuring cluster state object failed", zapErr(err)...)
		}
		go arbiterInstance.RunPeerWatch(ctx)
	}

	sup := supervisor.New(supervisor.Config{
		SelfPodName:          opts.PodName,
		ClusterManagement:    opts.EnableClusterManagement,
		SleepInterval:        opts.SleepInterval,
		StartupStableTimeout: opts.SleepInterval * 10,
	}, observer, credManager, electionEngine, arbiterInstance, statusStore, logger.Named("supervisor"))

	var clusterStatusSource httpserver.ClusterStatusSource
	if arbiterInstance != nil {
		clusterStatusSource = arbiterInstance
	}
	server := httpserver.New(
		fmt.Sprintf(":%d", opts.MetricsPort),
		sup, clusterStatusSource, os.Getenv("CLUSTER_STATUS_BEARER_TOKEN"),
		opts.SleepInterval, logger.Named("httpserver"),
	)

	go func() {
		if err := server.ListenAndServe(ctx); err != nil {
			logger.Error("http server exited", zapErr(err)...)
		}
	}()

	if arbiterInstance != nil {
		go runHealthProber(ctx, arbiterInstance, logger)
	}

	if err := sup.Run(ctx, server); err != nil {
		logger.Fatal("supervisor exited with error", zapErr(err)...)
	}
	logger.Info("shutdown complete")
}

func zapIdentity(id identity.Identity) []zap.Field {
	return []zap.Field{
		zap.String("pod", id.PodName),
		zap.String("network", id.Network),
		zap.String("pool_id_short", id.PoolIDShort),
		zap.Bool("multi_tenant", id.MultiTenant()),
	}
}

func zapErr(err error) []zap.Field {
	return []zap.Field{zap.Error(err)}
}

// runHealthProber drives the health-prober loop's Reconcile until ctx is
// cancelled, honoring the RequeueAfter it returns.
func runHealthProber(ctx context.Context, a *arbiter.Arbiter, logger *zap.Logger) {
	prober := arbiter.NewHealthProber(a)
	for {
		result, err := prober.Reconcile(ctx)
		if err != nil {
			logger.Warn("health probe tick failed", zap.Error(err))
		}
		wait := result.RequeueAfter
		if wait <= 0 {
			wait = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
