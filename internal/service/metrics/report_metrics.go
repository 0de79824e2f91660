package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ReportLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invsight",
			Subsystem: "reports",
			Name:      "latency_seconds",
			Help:      "Latency of snapshot report endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"report"},
	)

	ReportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invsight",
			Subsystem: "reports",
			Name:      "errors_total",
			Help:      "Errors by report endpoint",
		},
		[]string{"report"},
	)

	ReportCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invsight",
			Subsystem: "reports",
			Name:      "cache_hits_total",
			Help:      "Reports served from the per-snapshot cache",
		},
		[]string{"report"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ReportLatency, ReportErrors, ReportCacheHits)
	})
}

// ObserveReport records one report call started at start.
func ObserveReport(report string, start time.Time, err error) {
	ReportLatency.WithLabelValues(report).Observe(time.Since(start).Seconds())
	if err != nil {
		ReportErrors.WithLabelValues(report).Inc()
	}
}
