// Package metrics exposes job counters and timings for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the transformer's collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	jobs          *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	reportErrors  prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transformer",
			Name:      "jobs_total",
			Help:      "Transform jobs by outcome and failing stage.",
		}, []string{"status", "stage"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "transformer",
			Name:      "job_duration_seconds",
			Help:      "Wall clock time from start report to terminal report.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "transformer",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in the transformer and in table assembly.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"stage"}),
		reportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transformer",
			Name:      "status_report_errors_total",
			Help:      "Status or completion calls that could not be delivered.",
		}),
	}
	m.registry.MustRegister(m.jobs, m.jobDuration, m.stageDuration, m.reportErrors)
	return m
}

// ObserveJob counts a finished job. stage is empty for successful jobs.
func (m *Metrics) ObserveJob(status, stage string, elapsed time.Duration) {
	if stage == "" {
		stage = "none"
	}
	m.jobs.WithLabelValues(status, stage).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// ObserveTransform records transformer and table assembly durations.
func (m *Metrics) ObserveTransform(transform, serialization time.Duration) {
	m.stageDuration.WithLabelValues("transform").Observe(transform.Seconds())
	m.stageDuration.WithLabelValues("serialization").Observe(serialization.Seconds())
}

// ReportFailed counts an undeliverable status call.
func (m *Metrics) ReportFailed() {
	m.reportErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
