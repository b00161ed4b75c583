package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// these metrics are exported from the first Prometheus scrape. The database
// query series use a generic operation set (get, run, all, batch_insert,
// batch_upsert); the per-query operation names the storage package records
// appear only on first use.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, db := range []string{"main", "settings", "history", "index"} {
		for _, op := range []string{"get", "run", "all", "batch_insert", "batch_upsert"} {
			DBQueryTotal.WithLabelValues(db, op, "success")
			DBQueryTotal.WithLabelValues(db, op, "error")
			DBQueryDuration.WithLabelValues(db, op)
		}
		for _, outcome := range []string{"commit", "rollback"} {
			DBTransactionDuration.WithLabelValues(db, outcome)
		}
		DBConnectionsOpen.WithLabelValues(db)
		DBBusyRetries.WithLabelValues(db)
	}

	for _, kind := range []string{"full", "incremental"} {
		IndexerRunsTotal.WithLabelValues(kind)
	}
	for _, t := range []string{"album", "media"} {
		IndexerItemsProcessed.WithLabelValues(t)
	}
	for _, stage := range []string{"start", "walk", "cleanup", "covers", "incremental"} {
		IndexerErrors.WithLabelValues(stage)
	}

	for _, kind := range []string{"add", "update", "remove"} {
		WatcherConsolidatedChanges.WithLabelValues(kind)
	}

	for _, kind := range []string{"image", "video"} {
		ThumbnailGenerationsTotal.WithLabelValues(kind, "success")
		ThumbnailGenerationsTotal.WithLabelValues(kind, "failure")
		ThumbnailGenerationsTotal.WithLabelValues(kind, "retry")
		ThumbnailGenerationDuration.WithLabelValues(kind)
	}
	for _, p := range []string{"high", "low"} {
		ThumbnailQueueDepth.WithLabelValues(p)
	}
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		ThumbnailFFmpegDuration.WithLabelValues(tool)
	}

	for _, result := range []string{"hit", "miss", "error"} {
		CacheRequestsTotal.WithLabelValues(result)
	}

	for _, t := range []string{"caption", "settings"} {
		JobsEnqueuedTotal.WithLabelValues(t)
		JobsDedupedTotal.WithLabelValues(t)
		JobsProcessedTotal.WithLabelValues(t, "success")
		JobsProcessedTotal.WithLabelValues(t, "error")
	}

	for _, status := range []string{"ok", "unavailable", "invalid_query"} {
		SearchRequestsTotal.WithLabelValues(status)
		SearchResultsReturned.WithLabelValues(status)
	}

	volumes := []string{"media", "cache", "database", "unknown"}
	fsOps := []string{"stat", "open", "readdir"}
	for _, op := range fsOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
