// Package metrics exposes Prometheus collectors for the HTTP surface,
// predictions, the loaded snapshot and the aggregation cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kestrel"

// Metrics owns a registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	predictions  *prometheus.CounterVec
	probability  *prometheus.HistogramVec
	snapshotRows *prometheus.GaugeVec
	snapshotAt   prometheus.Gauge
	cacheLookups *prometheus.CounterVec
}

// New creates a registry with the process and Go collectors plus the
// application collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "predictions_total",
			Help:      "Predictions by policy and verdict.",
		}, []string{"policy", "verdict"}),
		probability: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "probability",
			Help:      "Distribution of predicted fraud probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"policy"}),
		snapshotRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "rows",
			Help:      "Rows per table in the loaded snapshot.",
		}, []string{"table"}),
		snapshotAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "loaded_timestamp_seconds",
			Help:      "Unix time the current snapshot was loaded.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Aggregation cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.predictions,
		m.probability,
		m.snapshotRows,
		m.snapshotAt,
		m.cacheLookups,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObservePrediction records a scored prediction.
func (m *Metrics) ObservePrediction(p *domain.Prediction) {
	verdict := "legitimate"
	if p.IsFraud {
		verdict = "fraud"
	}
	m.predictions.WithLabelValues(p.Policy, verdict).Inc()
	m.probability.WithLabelValues(p.Policy).Observe(p.Probability)
}

// SetSnapshot publishes the row counts of a freshly loaded snapshot.
func (m *Metrics) SetSnapshot(snap *domain.Snapshot) {
	for table, n := range snap.Counts() {
		m.snapshotRows.WithLabelValues(table).Set(float64(n))
	}
	if !snap.LoadedAt.IsZero() {
		m.snapshotAt.Set(float64(snap.LoadedAt.Unix()))
	}
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
