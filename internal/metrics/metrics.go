package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg            *prometheus.Registry
	RowsIngested   *prometheus.CounterVec
	RowsDropped    *prometheus.CounterVec
	BatchesMerged  prometheus.Counter
	BatchesSkipped prometheus.Counter
	DuplicateKeys  prometheus.Counter
	MergeSec       prometheus.Histogram
	AggregateSec   prometheus.Histogram
	LastRunUnix    prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rowsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "appmarket_rows_ingested_total"}, []string{"entity"})
	rowsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "appmarket_rows_dropped_total"}, []string{"entity", "reason"})
	batchesMerged := prometheus.NewCounter(prometheus.CounterOpts{Name: "appmarket_batches_merged_total"})
	batchesSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "appmarket_batches_skipped_total"})
	duplicateKeys := prometheus.NewCounter(prometheus.CounterOpts{Name: "appmarket_duplicate_keys_total"})
	mergeSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appmarket_merge_seconds",
		Buckets: prometheus.DefBuckets,
	})
	aggregateSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appmarket_aggregate_seconds",
		Buckets: prometheus.DefBuckets,
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{Name: "appmarket_last_run_timestamp_seconds"})

	r.MustRegister(rowsIngested, rowsDropped, batchesMerged, batchesSkipped, duplicateKeys, mergeSec, aggregateSec, lastRun)
	return &Registry{
		reg:            r,
		RowsIngested:   rowsIngested,
		RowsDropped:    rowsDropped,
		BatchesMerged:  batchesMerged,
		BatchesSkipped: batchesSkipped,
		DuplicateKeys:  duplicateKeys,
		MergeSec:       mergeSec,
		AggregateSec:   aggregateSec,
		LastRunUnix:    lastRun,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
