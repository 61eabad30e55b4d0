// Package metrics defines the Prometheus metrics exported during a run.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackendCalls counts text-generation calls by role and outcome.
	BackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoloop_backend_calls_total",
		Help: "Text-generation calls by role and outcome",
	}, []string{"role", "outcome"})

	// BackendLatency tracks text-generation latency.
	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evoloop_backend_call_duration_seconds",
		Help:    "Text-generation call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
	}, []string{"role"})

	// HarnessDuration tracks evaluation harness runs.
	HarnessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evoloop_harness_duration_seconds",
		Help:    "Evaluation harness duration in seconds",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10), // 30s to ~4h
	}, []string{"outcome"})

	// SlotScore is the latest resolved fraction per slot.
	SlotScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evoloop_slot_resolved_fraction",
		Help: "Resolved fraction of the latest evaluation per slot",
	}, []string{"slot"})

	// BestScore is the best resolved fraction seen in the current run.
	BestScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evoloop_best_resolved_fraction",
		Help: "Best resolved fraction in the current run",
	})

	// Iterations counts finished iterations by status.
	Iterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoloop_iterations_total",
		Help: "Finished iterations by status",
	}, []string{"status"})

	// PromptCandidates counts evolved prompts by result.
	PromptCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoloop_prompt_candidates_total",
		Help: "Evolved prompt candidates by result",
	}, []string{"result"})

	// ProposalFailures counts error-tagged patch proposals per slot.
	ProposalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoloop_proposal_failures_total",
		Help: "Patch proposals tagged with an error",
	}, []string{"slot"})
)

// ObserveBackendCall records one backend call.
func ObserveBackendCall(role string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	BackendCalls.WithLabelValues(role, outcome).Inc()
	BackendLatency.WithLabelValues(role).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is done. It returns the bound
// address once the listener is up so bind errors reach the caller.
func Serve(ctx context.Context, addr string, logger *slog.Logger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}
