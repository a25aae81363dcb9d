// Package metrics exposes Prometheus instrumentation for discovery and ingestion.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application collectors.
type Metrics struct {
	RowsProcessed       *prometheus.CounterVec
	Runs                *prometheus.CounterVec
	LockSkips           *prometheus.CounterVec
	ArtifactsDiscovered *prometheus.CounterVec
	RevisionsDetected   *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cutoff_rows_processed_total",
			Help: "Parsed rows by exam and engine outcome",
		}, []string{"exam", "outcome"}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cutoff_ingestion_runs_total",
			Help: "Ingestion runs by exam and final status",
		}, []string{"exam", "status"}),

		LockSkips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cutoff_lock_skips_total",
			Help: "Work items skipped because another worker held the lock",
		}, []string{"kind"}), // kind: "scan", "ingest"

		ArtifactsDiscovered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cutoff_artifacts_discovered_total",
			Help: "New artifacts registered by discovery",
		}, []string{"exam"}),

		RevisionsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cutoff_revisions_detected_total",
			Help: "Known artifacts whose content fingerprint changed",
		}, []string{"exam"}),

		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cutoff_run_duration_seconds",
			Help:    "Duration of artifact ingestion runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"exam"}),
	}
}

// IncRow records one row outcome.
func (m *Metrics) IncRow(exam, outcome string) {
	if m != nil {
		m.RowsProcessed.WithLabelValues(exam, outcome).Inc()
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(exam, status string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(exam, status).Inc()
		m.RunDuration.WithLabelValues(exam).Observe(d.Seconds())
	}
}

// IncLockSkip records a skipped work item.
func (m *Metrics) IncLockSkip(kind string) {
	if m != nil {
		m.LockSkips.WithLabelValues(kind).Inc()
	}
}

// IncDiscovered records a newly registered artifact.
func (m *Metrics) IncDiscovered(exam string) {
	if m != nil {
		m.ArtifactsDiscovered.WithLabelValues(exam).Inc()
	}
}

// IncRevision records a silent revision.
func (m *Metrics) IncRevision(exam string) {
	if m != nil {
		m.RevisionsDetected.WithLabelValues(exam).Inc()
	}
}
