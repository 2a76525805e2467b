package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors shared by the daemon components.
//
// All metrics are prefixed with "clipsync_":
//   - clipsync_storage_ops_total{engine,kind,result}
//   - clipsync_storage_op_duration_seconds{engine,kind}
//   - clipsync_storage_retries_total{engine}
//   - clipsync_storage_retry_exhausted_total{engine}
//   - clipsync_items_captured_total{type}
//   - clipsync_items_skipped_total{reason}
//   - clipsync_watcher_errors_total
//   - clipsync_sync_items_received_total
//   - clipsync_sync_errors_total
//   - clipsync_sync_cursor
type Metrics struct {
	StorageOps        *prometheus.CounterVec
	StorageOpDuration *prometheus.HistogramVec
	StorageRetries    *prometheus.CounterVec
	RetryExhausted    *prometheus.CounterVec

	ItemsCaptured *prometheus.CounterVec
	ItemsSkipped  *prometheus.CounterVec
	WatcherErrors prometheus.Counter

	SyncItemsReceived prometheus.Counter
	SyncErrors        prometheus.Counter
	SyncCursor        prometheus.Gauge
}

// Get returns the process-wide metrics, registering them on first use
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StorageOps: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clipsync_storage_ops_total",
					Help: "Storage units of work by engine, kind (read/write) and result",
				},
				[]string{"engine", "kind", "result"},
			),
			StorageOpDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "clipsync_storage_op_duration_seconds",
					Help:    "Duration of storage units of work including retries",
					Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5},
				},
				[]string{"engine", "kind"},
			),
			StorageRetries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clipsync_storage_retries_total",
					Help: "Retries caused by transient storage contention",
				},
				[]string{"engine"},
			),
			RetryExhausted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clipsync_storage_retry_exhausted_total",
					Help: "Units of work that failed after the retry ceiling",
				},
				[]string{"engine"},
			),
			ItemsCaptured: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clipsync_items_captured_total",
					Help: "Clipboard items inserted by the local watcher",
				},
				[]string{"type"},
			),
			ItemsSkipped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "clipsync_items_skipped_total",
					Help: "Clipboard polls that did not produce a new item",
				},
				[]string{"reason"},
			),
			WatcherErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "clipsync_watcher_errors_total",
				Help: "Failures caught at the watcher poll boundary",
			}),
			SyncItemsReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "clipsync_sync_items_received_total",
				Help: "Items from other devices announced by the sync poller",
			}),
			SyncErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "clipsync_sync_errors_total",
				Help: "Failures caught at the sync poll boundary",
			}),
			SyncCursor: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "clipsync_sync_cursor",
				Help: "Highest item id processed from other devices",
			}),
		}
	})
	return globalMetrics
}
