// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conquest_intents_total",
			Help: "Intents submitted, by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conquest_phase_transitions_total",
			Help: "Phase transitions, by target phase",
		},
		[]string{"phase", "recovered"},
	)
	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conquest_persist_failures_total",
			Help: "Snapshot saves that failed after every retry",
		},
	)
	PersistLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conquest_persist_seconds",
			Help:    "Time to persist one snapshot, including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
	Reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conquest_reconcile_total",
			Help: "Remote snapshots reconciled, by winner",
		},
		[]string{"winner"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conquest_active_sessions",
			Help: "Sessions loaded in this process",
		},
	)
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conquest_ws_connections",
			Help: "Open WebSocket connections",
		},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conquest_http_requests_total",
			Help: "HTTP requests, by method and status",
		},
		[]string{"method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conquest_http_request_seconds",
			Help:    "HTTP request latency, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conquest_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(
		Intents,
		PhaseTransitions,
		PersistFailures,
		PersistLatency,
		Reconciles,
		ActiveSessions,
		WSConnections,
		HTTPRequests,
		HTTPDuration,
		RateLimited,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
