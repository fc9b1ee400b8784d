// Package metrics provides Prometheus collectors for the journal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "journal"

// Metrics holds the journal's collectors. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsReceived   *prometheus.CounterVec
	SnapshotDocuments   prometheus.Histogram
	SubscriptionErrors  prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
	Mutations           *prometheus.CounterVec
	ImportRequests      *prometheus.CounterVec
	ImageCache          *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	LiveClients         prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		SnapshotsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Trade snapshots applied to a store.",
		}, []string{"result"}),
		SnapshotDocuments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_documents",
			Help:      "Documents per trade snapshot.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		SubscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Live query failures.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Open trade subscriptions.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Trade mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		ImportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_requests_total",
			Help:      "Calls to the trade import service.",
		}, []string{"kind", "outcome"}),
		ImageCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_total",
			Help:      "Image cache lookups and evictions.",
		}, []string{"event"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	reg.MustRegister(
		m.SnapshotsReceived,
		m.SnapshotDocuments,
		m.SubscriptionErrors,
		m.ActiveSubscriptions,
		m.Mutations,
		m.ImportRequests,
		m.ImageCache,
		m.HTTPRequests,
		m.HTTPDuration,
		m.LiveClients,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Snapshot records an applied or dropped snapshot.
func (m *Metrics) Snapshot(docs int, applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.SnapshotsReceived.WithLabelValues("applied").Inc()
		m.SnapshotDocuments.Observe(float64(docs))
		return
	}
	m.SnapshotsReceived.WithLabelValues("stale").Inc()
}

// SubscriptionFailed records a live query error.
func (m *Metrics) SubscriptionFailed() {
	if m == nil {
		return
	}
	m.SubscriptionErrors.Inc()
}

// SubscriptionOpened increments the active subscription gauge.
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Inc()
}

// SubscriptionClosed decrements the active subscription gauge.
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Dec()
}

// Mutation records the outcome of a trade mutation.
func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, outcome(err)).Inc()
}

// Import records a call to the import service.
func (m *Metrics) Import(kind string, err error) {
	if m == nil {
		return
	}
	m.ImportRequests.WithLabelValues(kind, outcome(err)).Inc()
}

// Cache records an image cache event (hit, miss, evict).
func (m *Metrics) Cache(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImageCache.WithLabelValues(event).Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "rejected"
	}
	return "fulfilled"
}
