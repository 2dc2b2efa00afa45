// Package metrics exposes run figures in Prometheus format, either served
// over HTTP while the run executes or written as a node-exporter textfile
// when it ends.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/salesetl/internal/quality"
)

const namespace = "salesetl"

// Registry holds the job's collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	Rows          *prometheus.GaugeVec
	Dropped       *prometheus.GaugeVec
	Corrections   *prometheus.GaugeVec
	Loaded        *prometheus.GaugeVec
	StageDuration *prometheus.GaugeVec
	Errors        *prometheus.CounterVec
	Success       prometheus.Gauge
	LastRun       prometheus.Gauge
	Reduction     prometheus.Gauge
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows",
		Help:      "Rows seen per processing point (raw, cleaned, removed).",
	}, []string{"point"})
	dropped := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows_dropped",
		Help:      "Rows removed by the validity filter, by reason.",
	}, []string{"reason"})
	corrections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corrections",
		Help:      "Financial fields replaced by recomputed values.",
	}, []string{"field"})
	loaded := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "loaded_rows",
		Help:      "Rows committed to the destination, by table.",
	}, []string{"table"})
	stageDuration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent in each stage of the last run.",
	}, []string{"stage"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Fatal run errors by stage and error code.",
	}, []string{"stage", "code"})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 when the last run succeeded, 0 otherwise.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})
	reduction := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reduction_ratio",
		Help:      "Share of raw rows removed by cleaning.",
	})

	r.MustRegister(rows, dropped, corrections, loaded, stageDuration, errorsTotal, success, lastRun, reduction)

	return &Registry{
		reg:           r,
		Rows:          rows,
		Dropped:       dropped,
		Corrections:   corrections,
		Loaded:        loaded,
		StageDuration: stageDuration,
		Errors:        errorsTotal,
		Success:       success,
		LastRun:       lastRun,
		Reduction:     reduction,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveStage records how long a stage took.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// RecordClean records the quality engine statistics.
func (r *Registry) RecordClean(s quality.Stats) {
	r.Rows.WithLabelValues("raw").Set(float64(s.RawRows))
	r.Rows.WithLabelValues("cleaned").Set(float64(s.CleanRows))
	r.Rows.WithLabelValues("removed").Set(float64(s.Removed()))
	r.Rows.WithLabelValues("exact_duplicates").Set(float64(s.ExactDuplicates))
	r.Rows.WithLabelValues("key_duplicates").Set(float64(s.KeyDuplicates))
	for reason, n := range s.Dropped {
		r.Dropped.WithLabelValues(reason).Set(float64(n))
	}
	r.Corrections.WithLabelValues("line_total").Set(float64(s.LineTotalFixes))
	r.Corrections.WithLabelValues("total").Set(float64(s.TotalFixes))
	r.Reduction.Set(s.ReductionRatio())
}

// RecordLoad records committed row counts per table.
func (r *Registry) RecordLoad(customers, products, orders int64) {
	r.Loaded.WithLabelValues("customers").Set(float64(customers))
	r.Loaded.WithLabelValues("products").Set(float64(products))
	r.Loaded.WithLabelValues("orders").Set(float64(orders))
}

// RecordOutcome records the end of a run. stage and code are empty on
// success.
func (r *Registry) RecordOutcome(success bool, stage, code string, finished time.Time) {
	if success {
		r.Success.Set(1)
	} else {
		r.Success.Set(0)
		r.Errors.WithLabelValues(stage, code).Inc()
	}
	r.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry to path for the node-exporter textfile
// collector. The write is atomic.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
