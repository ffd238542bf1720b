// Package metrics exposes job run statistics as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobObserver = (*JobMetrics)(nil)

// JobMetrics records job outcomes on a private registry.
type JobMetrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewJobMetrics creates the job collectors plus the Go runtime and process
// collectors on a fresh registry.
func NewJobMetrics() *JobMetrics {
	m := &JobMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casa",
			Name:      "job_runs_total",
			Help:      "Finished job runs by job name and terminal status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casa",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of finished job runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "casa",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.duration,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveJob records a finished run. Runs that are still running are ignored.
func (m *JobMetrics) ObserveJob(run model.JobRun) {
	if !run.Status.IsTerminal() {
		return
	}

	m.runs.WithLabelValues(run.JobName, string(run.Status)).Inc()
	m.duration.WithLabelValues(run.JobName).Observe(run.Duration.Seconds())

	if run.Status == model.JobStatusSuccess && run.EndedAt != nil {
		m.lastSuccess.WithLabelValues(run.JobName).Set(float64(run.EndedAt.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *JobMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
