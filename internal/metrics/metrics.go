// Package metrics holds the Prometheus collectors for the voting portal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Oshkosh1922/edens-gates/supabase/client"
)

const namespace = "edens_gates"

// Metrics is a set of collectors bound to their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	votes        *prometheus.CounterVec
	voteDuration *prometheus.HistogramVec
	reconciled   *prometheus.CounterVec
	breakerState prometheus.Gauge
	adapters     prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "cast_total",
			Help:      "Vote attempts by outcome.",
		}, []string{"outcome"}),
		voteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "cast_duration_seconds",
			Help:      "End-to-end duration of a vote attempt, including confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "entries_total",
			Help:      "Journaled fees processed by the reconciler, by resolution.",
		}, []string{"resolution"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "datastore",
			Name:      "breaker_state",
			Help:      "Data store circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		adapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "adapters",
			Help:      "Number of wallet adapters currently registered.",
		}),
	}
	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.votes,
		m.voteDuration,
		m.reconciled,
		m.breakerState,
		m.adapters,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(d.Seconds())
}

// ObserveVote records a vote outcome.
func (m *Metrics) ObserveVote(outcome string, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	m.votes.WithLabelValues(outcome).Inc()
	m.voteDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveReconcile records a reconciler resolution.
func (m *Metrics) ObserveReconcile(resolution string) {
	m.reconciled.WithLabelValues(resolution).Inc()
}

// BreakerChanged tracks the data store breaker; pass it as
// BreakerConfig.OnStateChange.
func (m *Metrics) BreakerChanged(_, to client.BreakerState) {
	m.breakerState.Set(float64(to))
}

// SetAdapters records the adapter count.
func (m *Metrics) SetAdapters(n int) {
	m.adapters.Set(float64(n))
}
