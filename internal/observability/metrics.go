// Package observability exposes Prometheus collectors for transform runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgpulse"

// Run outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "already_running"
)

// Metrics holds the transform collectors on a private registry. Each call
// to New creates an independent registry so tests and multiple servers do
// not collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	records   *prometheus.CounterVec
	running   *prometheus.GaugeVec
	lastRunTS *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_runs_total",
			Help:      "Transform runs by source and outcome.",
		}, []string{"source", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_run_duration_seconds",
			Help:      "Wall time of finished transform runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_records_total",
			Help:      "Transform counters by source and kind (processed, created, skipped, errors).",
		}, []string{"source", "kind"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transform_running",
			Help:      "1 while a run holds the lease for the source.",
		}, []string{"source"}),
		lastRunTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transform_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run start.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.runs, m.duration, m.records, m.running, m.lastRunTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted marks source as running. Safe on a nil receiver.
func (m *Metrics) RunStarted(source string) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(source).Set(1)
}

// RunRejected counts a run refused by the single-flight lease.
func (m *Metrics) RunRejected(source string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(source, OutcomeRejected).Inc()
}

// RunCounts are the per-run counters fed to RunFinished.
type RunCounts struct {
	Processed, Created, Skipped, Errors int
}

// RunFinished records a finished run with its counters.
func (m *Metrics) RunFinished(source string, success bool, startedAt time.Time, took time.Duration, c RunCounts) {
	if m == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
		m.lastRunTS.WithLabelValues(source).Set(float64(startedAt.Unix()))
	}
	m.runs.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(took.Seconds())
	m.running.WithLabelValues(source).Set(0)

	m.records.WithLabelValues(source, "processed").Add(float64(c.Processed))
	m.records.WithLabelValues(source, "created").Add(float64(c.Created))
	m.records.WithLabelValues(source, "skipped").Add(float64(c.Skipped))
	m.records.WithLabelValues(source, "errors").Add(float64(c.Errors))
}
