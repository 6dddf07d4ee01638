// Package supervisor sequences bootstrap credential provisioning, startup
// cleanup, and the steady-state tick that combines the Node Observer,
// Credential Manager, Local Election Engine, and (optionally) the Cluster
// Arbiter.
package supervisor

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/arbiter"
	"github.com/cardano-forge/forgeguard/pkg/credentials"
	"github.com/cardano-forge/forgeguard/pkg/election"
	"github.com/cardano-forge/forgeguard/pkg/metrics"
	"github.com/cardano-forge/forgeguard/pkg/nodeobserver"
	"github.com/cardano-forge/forgeguard/pkg/statusobject"
)

// Reload reasons recorded against the reload-signal counters.
const (
	ReasonLeadershipAcquired = "leadership_acquired"
	ReasonLeadershipLost     = "leadership_lost"
	ReasonClusterPermitted   = "cluster_permitted"
	ReasonClusterDenied      = "cluster_denied"
	ReasonStartupCleanup     = "startup_cleanup"
)

// Config is the supervisor's static configuration.
type Config struct {
	SelfPodName         string
	ClusterManagement   bool
	SleepInterval       time.Duration
	StartupStableTimeout time.Duration
}

// Supervisor sequences Phase A, Phase B, and the Phase C steady-state loop.
type Supervisor struct {
	cfg Config

	observer    *nodeobserver.Observer
	credentials *credentials.Manager
	election    *election.Engine
	arbiter     *arbiter.Arbiter // nil when cluster-management is disabled
	statusStore *statusobject.Store
	log         *zap.Logger

	startupProvisioned atomic.Bool
	lastTick           atomic.Int64
}

// New constructs a Supervisor. arbiterInstance may be nil iff
// cfg.ClusterManagement is false.
func New(cfg Config, observer *nodeobserver.Observer, credManager *credentials.Manager, electionEngine *election.Engine, arbiterInstance *arbiter.Arbiter, statusStore *statusobject.Store, log *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		observer:    observer,
		credentials: credManager,
		election:    electionEngine,
		arbiter:     arbiterInstance,
		statusStore: statusStore,
		log:         log,
	}
}

// StartupProvisioned satisfies pkg/httpserver.ReadinessSource.
func (s *Supervisor) StartupProvisioned() bool { return s.startupProvisioned.Load() }

// CredentialsPresent satisfies pkg/httpserver.ReadinessSource.
func (s *Supervisor) CredentialsPresent() bool { return s.credentials.CredentialsPresent() }

// LastTickTime reports when the steady-state loop last completed a tick.
// pkg/httpserver's /health endpoint does not read it; it relies on
// RecordTick callbacks instead.
func (s *Supervisor) LastTickTime() time.Time {
	return time.Unix(0, s.lastTick.Load())
}

// tickRecorder lets the caller observe tick completion (bound to
// httpserver.Server.RecordTick in cmd/forgeguard, kept as an interface here
// to avoid an import cycle).
type tickRecorder interface {
	RecordTick(time.Time)
}

// Run sequences Phase A, Phase B, and Phase C, re-entering Phase A whenever
// Phase C detects a node-failure event, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, recorder tickRecorder) error {
	for {
		if err := s.phaseA(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		s.phaseB(ctx)

		restart, err := s.phaseC(ctx, recorder)
		if err != nil {
			return err
		}
		if !restart {
			s.shutdown(ctx)
			return nil
		}
		s.observer.Reset()
	}
}

// phaseA is Phase A — Bootstrap Credential Provisioning.
func (s *Supervisor) phaseA(ctx context.Context) error {
	if _, err := s.credentials.Apply(credentials.Present); err != nil {
		return err
	}
	s.startupProvisioned.Store(true)

	deadline := time.Now().Add(s.cfg.StartupStableTimeout)
	ticker := time.NewTicker(s.cfg.SleepInterval)
	defer ticker.Stop()
	for {
		s.observer.Observe()
		if s.observer.StablyPresent() {
			return nil
		}
		if time.Now().After(deadline) {
			s.log.Warn("node did not stabilize before timeout, proceeding to election regime anyway")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// phaseB is Phase B — Startup Cleanup.
func (s *Supervisor) phaseB(ctx context.Context) {
	isLeader, _, _ := s.election.TryAcquireOrRenew(ctx)
	if isLeader {
		return
	}
	if _, err := s.credentials.Apply(credentials.Absent); err != nil {
		s.log.Warn("startup cleanup credential removal failed", zap.Error(err))
	}
}

// phaseC runs the steady-state loop (Phase C) until ctx is cancelled or a
// node-failure event requires re-entering Phase A.
func (s *Supervisor) phaseC(ctx context.Context, recorder tickRecorder) (restartPhaseA bool, err error) {
	ticker := time.NewTicker(s.cfg.SleepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}

		nodeFailure, tickErr := s.tick(ctx)
		now := time.Now()
		s.lastTick.Store(now.UnixNano())
		if recorder != nil {
			recorder.RecordTick(now)
		}
		if tickErr != nil {
			return false, tickErr
		}
		if nodeFailure {
			return true, nil
		}
	}
}

// tick executes one iteration of the Phase C steady-state sequence.
func (s *Supervisor) tick(ctx context.Context) (nodeFailure bool, err error) {
	_, transition := s.observer.Observe()

	if transition == nodeobserver.TransitionNodeFailure {
		s.handleNodeFailure(ctx)
		return true, nil
	}

	isLeader, _, changed := s.election.TryAcquireOrRenew(ctx)

	var shallForge bool
	var reason string
	if !s.cfg.ClusterManagement {
		shallForge = isLeader
	} else if isLeader {
		allow, arbiterReason := s.arbiter.ShouldAllowLocalForging(ctx)
		shallForge = allow
		reason = arbiterReason
	} else {
		shallForge = false
	}

	desired := credentials.Absent
	if shallForge {
		desired = credentials.Present
	}
	applied, credErr := s.credentials.Apply(desired)
	if credErr != nil {
		s.log.Error("credential reconciliation failed", zap.Error(credErr))
	}

	if applied {
		s.signalNode(reloadReason(changed, isLeader, shallForge, reason))
	}

	if isLeader {
		if err := s.statusStore.Write(ctx, statusobject.LocalStatus{
			LeaderPod: s.cfg.SelfPodName, ForgingEnabled: shallForge, LastTransitionTime: time.Now(),
		}); err != nil {
			s.log.Warn("local status write failed", zap.Error(err))
		}
		if s.cfg.ClusterManagement {
			if err := s.arbiter.ReportLocalLeader(ctx, s.cfg.SelfPodName, shallForge); err != nil {
				s.log.Warn("cluster state status report failed", zap.Error(err))
			}
		}
	} else {
		if err := s.statusStore.ClearIfSelf(ctx, s.cfg.SelfPodName); err != nil {
			s.log.Warn("local status clear failed", zap.Error(err))
		}
	}

	if s.cfg.ClusterManagement {
		s.arbiter.SetIsLeader(isLeader)
	}

	s.updateMetrics(shallForge, isLeader)
	return false, nil
}

func reloadReason(leadershipChanged, isLeader, shallForge bool, arbiterReason string) string {
	switch {
	case leadershipChanged && isLeader:
		return ReasonLeadershipAcquired
	case leadershipChanged && !isLeader:
		return ReasonLeadershipLost
	case arbiterReason != "" && shallForge:
		return ReasonClusterPermitted
	case arbiterReason != "" && !shallForge:
		return ReasonClusterDenied
	default:
		return ReasonStartupCleanup
	}
}

// handleNodeFailure runs the node-failure branch of the Phase C loop.
func (s *Supervisor) handleNodeFailure(ctx context.Context) {
	if err := s.statusStore.ClearIfSelf(ctx, s.cfg.SelfPodName); err != nil {
		s.log.Warn("status clear on node failure failed", zap.Error(err))
	}
	if _, err := s.credentials.Apply(credentials.Absent); err != nil {
		s.log.Warn("credential revocation on node failure failed", zap.Error(err))
	}
	s.election.ReleaseIfHeld(ctx)
}

func (s *Supervisor) signalNode(reason string) {
	pid, found := s.observer.FindNodePid()
	if !found {
		metrics.SighupSignalsSkippedTotal.Inc()
		return
	}
	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		s.log.Warn("reload signal delivery failed", zap.Int("pid", pid), zap.Error(err))
		return
	}
	metrics.SighupSignalsTotal.WithLabelValues(reason).Inc()
}

func (s *Supervisor) updateMetrics(shallForge, isLeader bool) {
	metrics.ForgingEnabled.Set(boolToFloat(shallForge))
	metrics.LeaderStatus.Set(boolToFloat(isLeader))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// shutdown performs best-effort credential revocation and lease release
// within a bounded grace period.
func (s *Supervisor) shutdown(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	if _, err := s.credentials.Apply(credentials.Absent); err != nil {
		s.log.Warn("shutdown credential revocation failed", zap.Error(err))
	}
	s.election.ReleaseIfHeld(ctx)
}
