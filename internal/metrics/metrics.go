package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"db", "operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"db", "operation"},
	)

	DBConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_db_connections_open",
			Help: "Number of open database connections",
		},
		[]string{"db"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"db", "outcome"},
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_rows_affected",
			Help:    "Rows affected per write operation",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"db", "operation"},
	)

	DBBusyRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_db_busy_retries_total",
			Help: "Total number of SQLITE_BUSY retries",
		},
		[]string{"db"},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
		[]string{"kind"}, // "full" or "incremental"
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_indexer_items_processed_total",
			Help: "Total number of items processed by the indexer",
		},
		[]string{"type"}, // "album" or "media"
	)

	IndexerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
		[]string{"stage"},
	)

	IndexerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_running",
			Help: "Whether a critical indexer task (full rebuild) is in flight",
		},
	)

	IndexerProgressPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_progress_percent",
			Help: "Progress of the current full rebuild, 0-100",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_watcher_events_total",
			Help: "Total number of raw filesystem watcher events observed",
		},
		[]string{"op"},
	)

	WatcherConsolidatedChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_watcher_consolidated_changes_total",
			Help: "Total number of consolidated changes handed to the indexer",
		},
		[]string{"kind"}, // "add", "update", "remove"
	)

	WatcherDebounceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_watcher_debounce_queue_depth",
			Help: "Number of paths currently pending in the debounce window",
		},
	)

	WatcherDebounceDelaySeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_watcher_debounce_delay_seconds",
			Help: "Current adaptive debounce delay",
		},
	)

	WatcherFullRebuildTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_watcher_full_rebuild_triggers_total",
			Help: "Total number of times the watcher escalated to a full rebuild",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatcherWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_watcher_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)

	WatcherPollingFallbackActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_watcher_polling_fallback_active",
			Help: "Whether the watcher has fallen back to NFS-safe polling (1) or uses native events (0)",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"kind", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	ThumbnailQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_thumbnail_queue_depth",
			Help: "Number of tasks waiting in the thumbnail queue",
		},
		[]string{"priority"},
	)

	ThumbnailWorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_thumbnail_workers_busy",
			Help: "Number of thumbnail worker goroutines currently processing a task",
		},
	)

	ThumbnailPermanentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_thumbnail_permanent_failures_total",
			Help: "Total number of items marked as permanent thumbnail failures",
		},
	)

	ThumbnailCorruptionDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_thumbnail_corruption_deletes_total",
			Help: "Total number of items deleted after exceeding the corruption threshold",
		},
	)

	ThumbnailFFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_thumbnail_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe invocations",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)
)

// Cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_cache_invalidations_total",
			Help: "Total number of tag-based cache invalidations",
		},
		[]string{"trigger"},
	)

	CacheCeilingTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_cache_ceiling_trips_total",
			Help: "Total number of times a tag's key-set exceeded the invalidation ceiling and fell back to a coarse flush",
		},
	)

	CacheDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_cache_degraded",
			Help: "Whether the cache backend is considered unavailable (1) or healthy (0)",
		},
	)
)

// Job queue metrics
var (
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	JobsDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_jobs_deduped_total",
			Help: "Total number of enqueue calls that attached to an existing in-flight job instead of creating one",
		},
		[]string{"type"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)
)

// Browse / search metrics
var (
	BrowseRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_browse_requests_total",
			Help: "Total number of browse requests by sort strategy",
		},
		[]string{"sort"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_search_requests_total",
			Help: "Total number of search requests",
		},
		[]string{"status"},
	)

	SearchResultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_search_results_returned",
			Help:    "Number of results returned per search query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"status"},
	)
)

// Event bus metrics
var (
	EventBusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_eventbus_subscribers",
			Help: "Number of currently connected SSE subscribers",
		},
	)

	EventBusDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_eventbus_dropped_events_total",
			Help: "Total number of events dropped because a subscriber's buffer was full",
		},
		[]string{"topic"},
	)
)

// Filesystem retry metrics, grounded on the NFS-resilience wrapper in
// internal/filesystem.
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_filesystem_retry_duration_seconds",
			Help:    "Duration of retry-wrapped filesystem operations, including backoff sleeps",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_operation_errors_total",
			Help: "Total number of filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)
)

// Runtime metrics
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_go_mem_alloc_bytes",
			Help: "Currently allocated heap memory",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_go_mem_sys_bytes",
			Help: "Total memory obtained from the OS",
		},
	)

	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_go_mem_limit_bytes",
			Help: "Active GOMEMLIMIT, if set",
		},
	)

	GoGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_go_gc_runs_total",
			Help: "Total number of completed garbage collection cycles",
		},
	)

	GoGCPauseTotalSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_go_gc_pause_seconds_total",
			Help: "Cumulative GC stop-the-world pause time",
		},
	)

	GoGCPauseLastSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_go_gc_pause_last_seconds",
			Help: "Duration of the most recent GC pause",
		},
	)

	GoGCCPUFraction = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_go_gc_cpu_fraction",
			Help: "Fraction of CPU time spent in garbage collection",
		},
	)
)

// Storage/library size metrics
var (
	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"db", "file"}, // file: "main", "wal", "shm"
	)

	ThumbnailCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_thumbnail_cache_size_bytes",
			Help: "Total size of the on-disk thumbnail cache",
		},
	)

	GalleryItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_items_total",
			Help: "Total number of indexed items by type",
		},
		[]string{"type"},
	)

	GalleryAlbumsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_albums_total",
			Help: "Total number of indexed albums",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
