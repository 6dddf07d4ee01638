package arbiter

import (
	"context"
	"net/http"
	"time"

	"github.com/awslabs/operatorpkg/reconciler"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

const defaultHealthCheckInterval = 30 * time.Second

// HealthProber is the health-prober loop. Reconcile matches the
// github.com/awslabs/operatorpkg/reconciler.Result shape (requeue-after
// rather than a fixed ticker) without registering through
// singleton.AsReconciler: there is no controller-runtime manager in this
// process for it to share, so it is driven by a plain loop instead (see
// cmd/forgeguard).
type HealthProber struct {
	arbiter    *Arbiter
	httpClient *http.Client
}

// NewHealthProber constructs a HealthProber bound to the given Arbiter's
// configuration and cached health state.
func NewHealthProber(a *Arbiter) *HealthProber {
	return &HealthProber{
		arbiter:    a,
		httpClient: &http.Client{},
	}
}

// Reconcile issues one probe and updates the cached health status,
// persisting it to the Cluster State Object only when this replica is the
// local leader; otherwise the result is cached locally only.
func (h *HealthProber) Reconcile(ctx context.Context) (reconciler.Result, error) {
	interval := h.arbiter.cfg.HealthCheck.Interval.Duration
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	if !h.arbiter.cfg.HealthCheck.Enabled {
		return reconciler.Result{RequeueAfter: interval}, nil
	}

	h.probe(ctx)

	if h.arbiter.isLeader.Load() {
		if err := h.persist(ctx); err != nil {
			h.arbiter.log.Warn("health status persist failed", zap.Error(err))
		}
	}
	return reconciler.Result{RequeueAfter: interval}, nil
}

func (h *HealthProber) probe(ctx context.Context) {
	a := h.arbiter
	timeout := a.cfg.HealthCheck.Timeout.Duration
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	success := false
	if a.cfg.HealthCheck.Endpoint != "" {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.cfg.HealthCheck.Endpoint, nil)
		if err == nil {
			resp, doErr := h.httpClient.Do(req)
			if doErr == nil {
				success = resp.StatusCode >= 200 && resp.StatusCode < 300
				resp.Body.Close()
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	now := metav1.Now()
	a.health.LastProbeTime = &now
	if success {
		a.health.ConsecutiveFailures = 0
		a.health.Healthy = true
		a.health.Message = ""
	} else {
		a.health.ConsecutiveFailures++
		a.health.Message = "health probe did not return 2xx"
		if a.cfg.HealthCheck.FailureThreshold > 0 && a.health.ConsecutiveFailures >= a.cfg.HealthCheck.FailureThreshold {
			a.health.Healthy = false
		}
	}
	metrics.ClusterHealthConsecutiveFailures.Set(float64(a.health.ConsecutiveFailures))
}

func (h *HealthProber) persist(ctx context.Context) error {
	return h.arbiter.persistHealthStatus(ctx)
}
