package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TasksAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rangefetch",
			Name:      "tasks_added_total",
			Help:      "Tasks accepted by the manager.",
		},
	)

	TaskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangefetch",
			Name:      "task_transitions_total",
			Help:      "Task status transitions by target status.",
		},
		[]string{"status"},
	)

	BytesDownloaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rangefetch",
			Name:      "bytes_downloaded_total",
			Help:      "Bytes written to disk by chunk transfers.",
		},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangefetch",
			Name:      "retries_total",
			Help:      "Retried attempts by phase.",
		},
		[]string{"phase"},
	)

	ChunkTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rangefetch",
			Name:      "chunk_transfers_total",
			Help:      "Chunk transfers started by mode.",
		},
		[]string{"mode"},
	)

	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rangefetch",
			Name:      "download_duration_seconds",
			Help:      "Wall time from task creation to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rangefetch",
			Name:      "active_downloads",
			Help:      "Tasks currently holding a worker slot.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{TasksAdded, TaskTransitions, BytesDownloaded, Retries, ChunkTransfers, DownloadDuration, ActiveDownloads}
}

// Register registers the engine metrics into reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
