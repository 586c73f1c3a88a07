package observability

import (
	"net/http"
	"time"

	"medallion/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medallion"

// StageMetrics exposes per-stage row counts and durations plus run outcomes.
// Each instance owns its registry.
type StageMetrics struct {
	registry      *prometheus.Registry
	stageRows     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	lastRowCount  *prometheus.GaugeVec
}

// NewStageMetrics creates and registers the pipeline collectors
func NewStageMetrics() *StageMetrics {
	m := &StageMetrics{
		registry: prometheus.NewRegistry(),
		stageRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_rows_total",
			Help:      "Rows seen by a pipeline stage, by direction (in, out, dropped, repaired).",
		}, []string{"stage", "direction"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in a pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successfully published snapshot.",
		}),
		lastRowCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_last_rows_out",
			Help:      "Rows produced by a stage in the most recent run.",
		}, []string{"stage"}),
	}

	m.registry.MustRegister(m.stageRows, m.stageDuration, m.runs, m.lastSuccess, m.lastRowCount)
	return m
}

// ObserveStage records one stage report
func (m *StageMetrics) ObserveStage(report models.StageReport) {
	m.stageRows.WithLabelValues(report.Stage, "in").Add(float64(report.RowsIn))
	m.stageRows.WithLabelValues(report.Stage, "out").Add(float64(report.RowsOut))
	m.stageRows.WithLabelValues(report.Stage, "dropped").Add(float64(report.Dropped))
	m.stageRows.WithLabelValues(report.Stage, "repaired").Add(float64(report.Repaired))
	m.stageDuration.WithLabelValues(report.Stage).Observe(report.Duration.Seconds())
	m.lastRowCount.WithLabelValues(report.Stage).Set(float64(report.RowsOut))
}

// ObserveRun records the terminal status of a run
func (m *StageMetrics) ObserveRun(status models.RunStatus, finished time.Time) {
	m.runs.WithLabelValues(string(status)).Inc()
	if status == models.RunSucceeded {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Registry returns the underlying registry
func (m *StageMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *StageMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node-exporter textfile collector
func (m *StageMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
