// Package election implements lease-based acquire/renew/release against a
// named coordinationv1.Lease, following the Lease shape and client-go
// usage exercised by sigs.k8s.io/karpenter's leaderelection.LeaseHijacker.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	coordinationv1 "k8s.io/api/coordination/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

// LeaseClient is the subset of
// k8s.io/client-go/kubernetes/typed/coordination/v1.LeaseInterface the
// engine depends on, kept narrow so tests can supply an in-memory fake
// without standing up an API server.
type LeaseClient interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*coordinationv1.Lease, error)
	Create(ctx context.Context, lease *coordinationv1.Lease, opts metav1.CreateOptions) (*coordinationv1.Lease, error)
	Update(ctx context.Context, lease *coordinationv1.Lease, opts metav1.UpdateOptions) (*coordinationv1.Lease, error)
}

// Engine implements the Local Election Engine contract.
type Engine struct {
	client        LeaseClient
	namespace     string
	name          string
	self          string
	leaseDuration time.Duration
	log           *zap.Logger

	mu           sync.Mutex
	lastIsLeader bool
	lastHolder   string
}

// New constructs an Engine. name is the lease's resource name (already
// resolved by pkg/identity, legacy or multi-tenant); self is this
// replica's holder identity (the pod name).
func New(client LeaseClient, namespace, name, self string, leaseDuration time.Duration, log *zap.Logger) *Engine {
	return &Engine{
		client:        client,
		namespace:     namespace,
		name:          name,
		self:          self,
		leaseDuration: leaseDuration,
		log:           log,
	}
}

// TryAcquireOrRenew executes one tick of the acquire/renew algorithm.
// changed reports whether isLeader flipped relative to the previous call,
// the trigger for a "leadership transition event".
func (e *Engine) TryAcquireOrRenew(ctx context.Context) (isLeader bool, holder string, changed bool) {
	isLeader, holder = e.tick(ctx)

	e.mu.Lock()
	changed = isLeader != e.lastIsLeader
	e.lastIsLeader = isLeader
	e.lastHolder = holder
	e.mu.Unlock()

	if changed {
		metrics.LeadershipChangesTotal.Inc()
	}
	return isLeader, holder, changed
}

func (e *Engine) tick(ctx context.Context) (isLeader bool, holder string) {
	lease, err := e.client.Get(ctx, e.name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return e.acquireNew(ctx)
	}
	if err != nil {
		e.log.Warn("lease read failed, reporting not-leader", zap.Error(err))
		return false, e.lastKnownHolder()
	}

	currentHolder := lo.FromPtr(lease.Spec.HolderIdentity)
	if currentHolder == e.self {
		return e.renew(ctx, lease)
	}

	expired := e.isExpired(lease)
	if !expired {
		return false, currentHolder
	}
	return e.acquireExpired(ctx, lease)
}

func (e *Engine) acquireNew(ctx context.Context) (isLeader bool, holder string) {
	now := metav1.NowMicro()
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: e.name, Namespace: e.namespace},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       lo.ToPtr(e.self),
			AcquireTime:          lo.ToPtr(now),
			RenewTime:            lo.ToPtr(now),
			LeaseDurationSeconds: lo.ToPtr(int32(e.leaseDuration.Seconds())),
			LeaseTransitions:     lo.ToPtr(int32(0)),
		},
	}
	_, err := e.client.Create(ctx, lease, metav1.CreateOptions{})
	if err != nil {
		// AlreadyExists: another replica created it between our Get and
		// Create. Conflict: someone else is racing too. Neither retries
		// within this tick; both resolve on the next one.
		e.log.Debug("lease creation lost the race, deferring to next tick", zap.Error(err))
		return false, e.lastKnownHolder()
	}
	return true, e.self
}

func (e *Engine) renew(ctx context.Context, lease *coordinationv1.Lease) (isLeader bool, holder string) {
	updated := lease.DeepCopy()
	updated.Spec.RenewTime = lo.ToPtr(metav1.NowMicro())
	if _, err := e.client.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		e.log.Warn("lease renewal failed, reporting not-leader", zap.Error(err))
		return false, e.self
	}
	return true, e.self
}

func (e *Engine) acquireExpired(ctx context.Context, lease *coordinationv1.Lease) (isLeader bool, holder string) {
	now := metav1.NowMicro()
	updated := lease.DeepCopy()
	updated.Spec.HolderIdentity = lo.ToPtr(e.self)
	updated.Spec.AcquireTime = lo.ToPtr(now)
	updated.Spec.RenewTime = lo.ToPtr(now)
	updated.Spec.LeaseTransitions = lo.ToPtr(lo.FromPtr(lease.Spec.LeaseTransitions) + 1)

	_, err := e.client.Update(ctx, updated, metav1.UpdateOptions{})
	if k8serrors.IsConflict(err) {
		// Another replica won the race on the same expired lease.
		e.log.Debug("lost conditional update race on expired lease", zap.Error(err))
		return false, lo.FromPtr(lease.Spec.HolderIdentity)
	}
	if err != nil {
		e.log.Warn("expired-lease takeover failed, reporting not-leader", zap.Error(err))
		return false, lo.FromPtr(lease.Spec.HolderIdentity)
	}
	return true, e.self
}

func (e *Engine) isExpired(lease *coordinationv1.Lease) bool {
	renewTime := lo.FromPtr(lease.Spec.RenewTime)
	durationSeconds := lo.FromPtr(lease.Spec.LeaseDurationSeconds)
	deadline := renewTime.Add(time.Duration(durationSeconds) * time.Second)
	return time.Now().After(deadline.Time)
}

func (e *Engine) lastKnownHolder() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHolder
}

// ReleaseIfHeld best-effort relinquishes the lease if this replica
// currently holds it, used on shutdown. Errors are logged and swallowed:
// the lease will expire naturally regardless.
func (e *Engine) ReleaseIfHeld(ctx context.Context) {
	lease, err := e.client.Get(ctx, e.name, metav1.GetOptions{})
	if err != nil {
		e.log.Debug("release skipped: lease read failed", zap.Error(err))
		return
	}
	if lo.FromPtr(lease.Spec.HolderIdentity) != e.self {
		return
	}
	updated := lease.DeepCopy()
	updated.Spec.HolderIdentity = lo.ToPtr("")
	if _, err := e.client.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		e.log.Debug("best-effort lease release failed", zap.Error(err))
	}
}
