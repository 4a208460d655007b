package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reorder buffer metrics
	ReorderBufferPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_reorder_buffer_pending",
			Help: "Number of items currently held in the reorder buffer, by entity",
		},
		[]string{"entity"},
	)

	ReorderBufferDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_reorder_buffer_dropped_total",
			Help: "Total number of arrivals dropped for being below the next expected height",
		},
		[]string{"entity"},
	)

	ReorderBufferDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_reorder_buffer_duplicate_total",
			Help: "Total number of duplicate-height arrivals ignored by the reorder buffer",
		},
		[]string{"entity"},
	)

	// Batcher metrics
	BatchEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_batch_emitted_total",
			Help: "Total number of batches emitted by a batcher, by kind (size/weight) and entity",
		},
		[]string{"kind", "entity"},
	)

	BatchEmittedItems = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_batch_emitted_items",
			Help:    "Number of items in an emitted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind", "entity"},
	)

	// Table writer metrics
	TableWriterQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_table_writer_queue_depth",
			Help: "Number of commands currently queued for a table writer",
		},
		[]string{"table"},
	)

	TableWriterFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_table_writer_flush_duration_seconds",
			Help:    "Time taken for a table writer to commit a transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	// Dictionary cache metrics
	DictCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_dict_cache_hits_total",
			Help: "Total number of dictionary LRU cache hits",
		},
		[]string{"table"},
	)

	DictCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_dict_cache_misses_total",
			Help: "Total number of dictionary LRU cache misses (disk lookup or new value)",
		},
		[]string{"table"},
	)

	// Sync progress metrics
	SyncHeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_sync_height",
			Help: "Last persisted block height, by entity",
		},
		[]string{"entity"},
	)

	SyncLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_sync_lag",
			Help: "Difference between remote tip and last persisted height",
		},
		[]string{"entity"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_sync_duration_seconds",
			Help:    "Time taken to complete one sync session",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_sync_errors_total",
			Help: "Total number of failed sync sessions",
		},
	)

	ForkRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_fork_rollbacks_total",
			Help: "Total number of fork rollbacks performed",
		},
	)
)

func init() {
	prometheus.MustRegister(ReorderBufferPending)
	prometheus.MustRegister(ReorderBufferDroppedTotal)
	prometheus.MustRegister(ReorderBufferDuplicateTotal)
	prometheus.MustRegister(BatchEmittedTotal)
	prometheus.MustRegister(BatchEmittedItems)
	prometheus.MustRegister(TableWriterQueueDepth)
	prometheus.MustRegister(TableWriterFlushDuration)
	prometheus.MustRegister(DictCacheHitsTotal)
	prometheus.MustRegister(DictCacheMissesTotal)
	prometheus.MustRegister(SyncHeight)
	prometheus.MustRegister(SyncLag)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncErrorsTotal)
	prometheus.MustRegister(ForkRollbacksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
