// Package metrics holds the Prometheus instruments of an ingestion run. The
// CLI writes them to a node_exporter textfile after each run; watch mode
// also serves them over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klytics/gsdkit/internal/consolidate"
	"github.com/klytics/gsdkit/internal/pipeline"
)

const namespace = "gsd"

// Metrics holds the counters, histograms and gauges of the pipeline.
type Metrics struct {
	Registry *prometheus.Registry

	Runs             *prometheus.CounterVec // labels: outcome={ok,failed}
	Workbooks        *prometheus.CounterVec // labels: layout, status
	Records          *prometheus.CounterVec // labels: layout
	RecordsDropped   *prometheus.CounterVec // labels: layout
	RowsLoaded       prometheus.Counter
	RunDuration      prometheus.Histogram
	LastRunTimestamp *prometheus.GaugeVec // labels: layout
	LastRunRecords   *prometheus.GaugeVec // labels: layout
}

// New creates the instruments on a fresh registry, so every command and
// test gets its own set.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		Workbooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workbooks_total",
			Help:      "Workbooks processed by layout and status.",
		}, []string{"layout", "status"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Normalized records written by layout.",
		}, []string{"layout"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records without a value dropped by layout.",
		}, []string{"layout"}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows inserted into the destination table.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete ingestion run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastRunTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Start time of the last run that produced data, by layout.",
		}, []string{"layout"}),
		LastRunRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_records",
			Help:      "Records produced by the last run, by layout.",
		}, []string{"layout"}),
	}

	m.Registry.MustRegister(
		m.Runs,
		m.Workbooks,
		m.Records,
		m.RecordsDropped,
		m.RowsLoaded,
		m.RunDuration,
		m.LastRunTimestamp,
		m.LastRunRecords,
	)
	return m
}

// Observe records one run. runErr is the error Run returned, if any.
func (m *Metrics) Observe(sum *pipeline.Summary, runErr error) {
	if sum == nil {
		return
	}

	outcome := "ok"
	if runErr != nil || sum.Err() != nil {
		outcome = "failed"
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(sum.Duration.Seconds())
	m.RowsLoaded.Add(float64(sum.Loaded))

	for _, lr := range sum.Layouts {
		rep := lr.Report
		for _, f := range rep.Files {
			status := consolidate.StatusOK
			if f.Status != consolidate.StatusOK {
				status = f.Reason
			}
			m.Workbooks.WithLabelValues(lr.Layout, status).Inc()
		}
		m.Records.WithLabelValues(lr.Layout).Add(float64(rep.Records))
		m.RecordsDropped.WithLabelValues(lr.Layout).Add(float64(rep.Dropped))
		if lr.Err == nil {
			m.LastRunTimestamp.WithLabelValues(lr.Layout).Set(float64(sum.StartedAt.Unix()))
			m.LastRunRecords.WithLabelValues(lr.Layout).Set(float64(rep.Records))
		}
	}
}

// WriteTextfile writes the current values in the text exposition format,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("could not write metrics to %s: %w", path, err)
	}
	return nil
}
