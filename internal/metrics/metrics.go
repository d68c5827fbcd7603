// Package metrics holds the run's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks processed files per kind and outcome, processing time and
// the size of the hash table.
type Metrics struct {
	Registry *prometheus.Registry

	FilesProcessed *prometheus.CounterVec
	MembersFailed  prometheus.Counter
	FileDuration   *prometheus.HistogramVec
	DerivedValues  prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry, so
// separate runs in one process never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		FilesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deid_files_processed_total",
			Help: "Files handled, by file kind and outcome",
		}, []string{"kind", "status"}),
		MembersFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "deid_archive_members_failed_total",
			Help: "Archive members dropped from partial exports",
		}),
		FileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deid_file_duration_seconds",
			Help:    "Time to de-identify one file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
		DerivedValues: f.NewGauge(prometheus.GaugeOpts{
			Name: "deid_hash_derived_values",
			Help: "Distinct values derived by hash and hashuid during the run",
		}),
	}
}

// ObserveFile records one file outcome. Call with time.Now() at the start
// of processing.
func (m *Metrics) ObserveFile(kind, status string, start time.Time) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(kind, status).Inc()
	m.FileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// AddMemberFailures counts members dropped from an archive.
func (m *Metrics) AddMemberFailures(n int) {
	if m == nil || n == 0 {
		return
	}
	m.MembersFailed.Add(float64(n))
}

// SetDerivedValues records the current hash table size.
func (m *Metrics) SetDerivedValues(n int) {
	if m == nil {
		return
	}
	m.DerivedValues.Set(float64(n))
}

// WriteTextfile writes every collector in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
