package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	snapshotRows  prometheus.Gauge
	snapshotBuild prometheus.Histogram
}

// New creates a new Prometheus metrics recorder registered on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the recorder on reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invsight_predictions_total",
				Help: "Total number of prediction calls by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invsight_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invsight_encoding_fallbacks_total",
				Help: "Unseen categories mapped to the unknown code",
			},
			[]string{"contract", "feature"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invsight_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		snapshotRows: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "invsight_snapshot_rows",
				Help: "Rows in the current reconciled snapshot",
			},
		),
		snapshotBuild: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "invsight_snapshot_build_seconds",
				Help:    "Time to fetch and reconcile a snapshot",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}
}

// RecordPrediction records one prediction call.
func (r *Recorder) RecordPrediction(role, outcome string) {
	r.predictions.WithLabelValues(role, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordEncodingFallback records an unseen category.
func (r *Recorder) RecordEncodingFallback(contract, feature string) {
	r.fallbacks.WithLabelValues(contract, feature).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSnapshot records a snapshot swap.
func (r *Recorder) RecordSnapshot(rows int, seconds float64) {
	r.snapshotRows.Set(float64(rows))
	r.snapshotBuild.Observe(seconds)
}
