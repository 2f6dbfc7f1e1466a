// Package telemetry exposes Prometheus counters for the collection and
// reporting pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetmon"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing, so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	cycles            *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	samples           *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
	reports           *prometheus.CounterVec
	jobs              *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_cycles_total",
			Help:      "Collection cycles run, by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_cycle_seconds",
			Help:      "Wall time of one collection cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_samples_total",
			Help:      "Per-server sampling attempts, by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Persisted alerts, by metric type and severity.",
		}, []string{"metric_type", "severity"}),
		broadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Real-time broadcasts that could not be delivered, by event.",
		}, []string{"event"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports that reached a terminal state, by status.",
		}, []string{"status"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleDuration, m.samples, m.alerts,
		m.broadcastFailures, m.reports, m.jobs,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CycleFinished(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(took.Seconds())
}

func (m *Metrics) Sample(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.samples.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AlertRaised(metricType, severity string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(metricType, severity).Inc()
}

func (m *Metrics) BroadcastFailed(event string) {
	if m == nil {
		return
	}
	m.broadcastFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) ReportFinished(status string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(status).Inc()
}

func (m *Metrics) JobHandled(kind, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, outcome).Inc()
}
