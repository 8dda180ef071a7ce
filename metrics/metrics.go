// Package metrics exposes Prometheus collectors for sessions and
// resolution. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commentlink"

// Metrics groups the collectors of one process.
type Metrics struct {
	reg *prometheus.Registry

	sessions    prometheus.Gauge
	searches    *prometheus.CounterVec
	tiers       *prometheus.CounterVec
	attempts    prometheus.Histogram
	loads       prometheus.Histogram
	decorations *prometheus.CounterVec
	messages    *prometheus.CounterVec
}

// New registers the collectors, plus the Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open page sessions.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Finished shared-comment searches by platform and outcome.",
		}, []string{"platform", "outcome"}),
		tiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_hits_total",
			Help:      "Successful resolutions by matching tier.",
		}, []string{"tier"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_attempts",
			Help:      "Resolve attempts per finished search.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
		loads: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_iterations",
			Help:      "Iterations per progressive load run.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		decorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "affordances_attached_total",
			Help:      "Share buttons attached to comments.",
		}, []string{"platform"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by action and disposition.",
		}, []string{"action", "disposition"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions, m.searches, m.tiers, m.attempts, m.loads, m.decorations, m.messages,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// SessionOpened increments the open-session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

// SessionClosed decrements the open-session gauge.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// Search records a finished search. tier is empty on a miss.
func (m *Metrics) Search(platform, outcome, tier string, attempts int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(platform, outcome).Inc()
	m.attempts.Observe(float64(attempts))
	if tier != "" {
		m.tiers.WithLabelValues(tier).Inc()
	}
}

// Load records one progressive load run.
func (m *Metrics) Load(iterations int) {
	if m != nil {
		m.loads.Observe(float64(iterations))
	}
}

// Decorated records attached share buttons.
func (m *Metrics) Decorated(platform string, n int) {
	if m != nil && n > 0 {
		m.decorations.WithLabelValues(platform).Add(float64(n))
	}
}

// Message records an inbound message.
func (m *Metrics) Message(action, disposition string) {
	if m != nil {
		m.messages.WithLabelValues(action, disposition).Inc()
	}
}
