// Package metrics exposes the engine's Prometheus instrumentation.
//
// Grounded on ManuGH-xg2g's internal/metrics package: promauto-registered
// CounterVec/HistogramVec/GaugeVec package-level vars on a dedicated
// registry. This is observability only — spec.md explicitly scopes it
// out of the modeled [MODULE]s, so these never feed selection or retry
// decisions, only the /metrics HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a dedicated registry rather than prometheus.DefaultRegisterer
// so package-level vars don't collide across repeated test-process runs.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// JobsTotal counts jobs by status. The HTTP submit handler increments
	// the Queued series once per accepted job; terminal statuses are not
	// recorded.
	JobsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_jobs_total",
		Help: "Total number of jobs, by status.",
	}, []string{"status"})

	// StageDuration measures wall-clock time per pipeline stage.
	StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aura_stage_duration_seconds",
		Help:    "Duration of a pipeline stage, by stage and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "outcome"})

	// CircuitBreakerState reports each provider's breaker state as a
	// gauge: 0 = closed, 1 = open, 2 = half-open.
	CircuitBreakerState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aura_circuit_breaker_state",
		Help: "Circuit breaker state per provider: 0=closed, 1=open, 2=half-open.",
	}, []string{"provider"})

	// ProviderAttemptsTotal counts provider invocation attempts by
	// provider, stage, and result (success, retryable, fatal).
	ProviderAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_provider_attempts_total",
		Help: "Total number of provider invocation attempts, by provider, stage, and result.",
	}, []string{"provider", "stage", "result"})
)

const (
	breakerClosed  = 0
	breakerOpen    = 1
	breakerHalfOpen = 2
)

// SetBreakerState records a provider's current circuit breaker state.
func SetBreakerState(provider string, open bool, halfOpen bool) {
	switch {
	case halfOpen:
		CircuitBreakerState.WithLabelValues(provider).Set(breakerHalfOpen)
	case open:
		CircuitBreakerState.WithLabelValues(provider).Set(breakerOpen)
	default:
		CircuitBreakerState.WithLabelValues(provider).Set(breakerClosed)
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
