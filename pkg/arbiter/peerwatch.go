package arbiter

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
)

var backoffSteps = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}

// RunPeerWatch runs the peer-watch loop until ctx is cancelled. It is a
// long-lived goroutine rather than a singleton.Reconciler because it holds
// an open streaming watch rather than polling on an interval, and is
// started directly by cmd/forgeguard's main alongside the other
// long-running tasks.
func (a *Arbiter) RunPeerWatch(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.resyncAndWatch(ctx); err != nil {
			a.log.Warn("peer watch stream ended, reconnecting", zap.Error(err), zap.Int("attempt", attempt))
		}
		if ctx.Err() != nil {
			return
		}
		delay := backoffSteps[min(attempt, len(backoffSteps)-1)]
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		attempt++
	}
}

// resyncAndWatch performs a full list (resynchronizing the mirror), then
// streams events until the watch ends or ctx is cancelled. RunPeerWatch
// never resets its backoff counter, whether this returns nil or an error:
// every reconnect waits the next backoff step, and once the steps are
// exhausted every later reconnect waits the 30s cap.
func (a *Arbiter) resyncAndWatch(ctx context.Context) error {
	list := &v1alpha1.ClusterStateList{}
	if err := a.client.List(ctx, list, client.InNamespace(a.cfg.Namespace), client.MatchingLabelsSelector{Selector: a.labelSelectorForPeers()}); err != nil {
		return err
	}
	a.replacePeers(list.Items)

	w, err := a.client.Watch(ctx, list, client.InNamespace(a.cfg.Namespace), client.MatchingLabelsSelector{Selector: a.labelSelectorForPeers()})
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			a.handleWatchEvent(event)
		}
	}
}

func (a *Arbiter) replacePeers(items []v1alpha1.ClusterState) {
	next := make(map[string]peerSnapshot, len(items))
	now := time.Now()
	for _, item := range items {
		if item.Name == a.cfg.SelfName {
			continue
		}
		next[item.Name] = snapshotFromClusterState(item, now)
	}
	a.mu.Lock()
	a.peers = next
	a.mu.Unlock()
}

func (a *Arbiter) handleWatchEvent(event watch.Event) {
	cs, ok := event.Object.(*v1alpha1.ClusterState)
	if !ok {
		return
	}
	if cs.Name == a.cfg.SelfName {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Type {
	case watch.Added, watch.Modified:
		a.peers[cs.Name] = snapshotFromClusterState(*cs, time.Now())
	case watch.Deleted:
		delete(a.peers, cs.Name)
	}
}

func snapshotFromClusterState(cs v1alpha1.ClusterState, observedAt time.Time) peerSnapshot {
	return peerSnapshot{
		name:                cs.Name,
		effectiveState:      cs.Status.EffectiveState,
		effectivePriority:   cs.Status.EffectivePriority,
		consecutiveFailures: cs.Status.HealthStatus.ConsecutiveFailures,
		lastSeen:            observedAt,
		creationTimestamp:   cs.CreationTimestamp.Time,
	}
}
