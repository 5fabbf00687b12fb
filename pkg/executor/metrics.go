package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "changekeeper"

// Metrics are the Prometheus collectors updated by runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	migrations  *prometheus.CounterVec
	duration    prometheus.Histogram
	runs        *prometheus.CounterVec
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what short lived CLI runs pushing to a
// Pushgateway want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "migrations_total",
				Help:      "Migrations processed, by final status",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "migration_duration_seconds",
				Help:      "Time spent applying a single migration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Migration runs, by outcome (success or the abort reason)",
			},
			[]string{"result"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time the last successful run finished",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}

	return m
}

// Collectors returns every collector so callers can push or register them.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.migrations, m.duration, m.runs, m.lastRun, m.lastSuccess}
}

func (m *Metrics) observeMigration(res *Result) {
	if m == nil {
		return
	}

	m.migrations.WithLabelValues(res.Status.String()).Inc()
	if res.Status == StatusCommitted || res.Status == StatusFailed {
		m.duration.Observe(res.Duration.Seconds())
	}
}

func (m *Metrics) observeRun(report *Report) {
	if m == nil {
		return
	}

	finished := report.StartedAt.Add(report.Duration)
	m.lastRun.Set(float64(finished.UnixNano()) / float64(time.Second))

	if report.Succeeded() {
		m.runs.WithLabelValues("success").Inc()
		m.lastSuccess.Set(float64(finished.UnixNano()) / float64(time.Second))
		return
	}

	m.runs.WithLabelValues(string(report.Failure.Reason)).Inc()
}
