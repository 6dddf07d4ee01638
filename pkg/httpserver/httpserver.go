// Package httpserver exposes the readiness, liveness, metrics, and optional
// cluster-status endpoints, serving
// github.com/prometheus/client_golang/prometheus/promhttp against the
// dedicated pkg/metrics.Registry.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

// ReadinessSource is the subset of the supervisor the /startup-status
// handler consults.
type ReadinessSource interface {
	StartupProvisioned() bool
	CredentialsPresent() bool
}

// ClusterStatusSource is the subset of the arbiter the optional
// /cluster-status endpoint consults.
type ClusterStatusSource interface {
	Snapshot(ctx context.Context) (v1alpha1.ClusterStateSpec, v1alpha1.ClusterStateStatus, error)
}

// Server wraps a *http.Server serving the four endpoints.
type Server struct {
	httpServer  *http.Server
	readiness   ReadinessSource
	clusterStat ClusterStatusSource
	bearerToken string
	log         *zap.Logger

	lastTickUnixNano atomic.Int64
	tickInterval     time.Duration
}

// New constructs a Server bound to addr (typically ":<METRICS_PORT>").
// clusterStatus and bearerToken may be empty/nil: /cluster-status is only
// registered when cluster-management is enabled, and with an empty
// bearerToken every /cluster-status request is rejected as unauthorized.
func New(addr string, readiness ReadinessSource, clusterStatus ClusterStatusSource, bearerToken string, tickInterval time.Duration, log *zap.Logger) *Server {
	s := &Server{
		readiness:    readiness,
		clusterStat:  clusterStatus,
		bearerToken:  bearerToken,
		log:          log,
		tickInterval: tickInterval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/startup-status", s.handleStartupStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	if clusterStatus != nil {
		mux.HandleFunc("/cluster-status", s.handleClusterStatus)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the underlying mux, for tests that want to drive the
// server with httptest.NewServer instead of a bound TCP port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// RecordTick is called by the supervisor loop once per completed tick; the
// liveness endpoint uses it to judge whether the loop has advanced within
// the last ~3 tick intervals.
func (s *Server) RecordTick(now time.Time) {
	s.lastTickUnixNano.Store(now.UnixNano())
}

// ListenAndServe blocks until ctx is cancelled, then shuts down with a
// bounded grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStartupStatus(w http.ResponseWriter, _ *http.Request) {
	ready := s.readiness.StartupProvisioned() || s.readiness.CredentialsPresent()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "not_ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":                 "ready",
		"credentials_provisioned": s.readiness.CredentialsPresent(),
		"timestamp":              time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	interval := s.tickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := s.lastTickUnixNano.Load()
	if last == 0 || time.Since(time.Unix(0, last)) > 3*interval {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	spec, status, err := s.clusterStat.Snapshot(r.Context())
	if err != nil {
		s.log.Warn("cluster-status snapshot failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"spec": spec, "status": status})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.bearerToken == "" {
		return false
	}
	got := r.Header.Get("Authorization")
	want := fmt.Sprintf("Bearer %s", s.bearerToken)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
