package metrics

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gallery-core/internal/filesystem"
	"gallery-core/internal/logging"
)

// StatsProvider reports library-wide counts for periodic gauge updates.
type StatsProvider interface {
	GetStats() Stats
}

// StorageHealthChecker exposes the per-database health/connection checks
// that the collector drives on its own ticker.
type StorageHealthChecker interface {
	CheckStorageHealth()
	UpdateDBMetrics()
}

// Stats holds library-wide counts.
type Stats struct {
	TotalAlbums int
	TotalImages int
	TotalVideos int
	TotalOther  int
}

// Collector periodically collects and updates gauges that aren't naturally
// updated at the point of a request (Go runtime stats, on-disk sizes,
// per-database connection counts).
type Collector struct {
	statsProvider        StatsProvider
	storageHealthChecker StorageHealthChecker
	dbPaths              map[string]string
	thumbnailCacheDir    string
	interval             time.Duration
	stopChan             chan struct{}
	lastGCCount          uint32
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider, dbPaths map[string]string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPaths:       dbPaths,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// SetStorageHealthChecker sets the storage instance for health monitoring.
func (c *Collector) SetStorageHealthChecker(checker StorageHealthChecker) {
	c.storageHealthChecker = checker
}

// SetThumbnailCacheDir sets the thumbnail cache directory path.
func (c *Collector) SetThumbnailCacheDir(dir string) {
	c.thumbnailCacheDir = dir
}

// Start begins the metrics collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection.
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectMemoryMetrics()
	c.collectDBSizes()
	c.collectThumbnailCacheSize()

	if c.storageHealthChecker != nil {
		c.storageHealthChecker.CheckStorageHealth()
		c.storageHealthChecker.UpdateDBMetrics()
	}

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	GalleryItemsTotal.WithLabelValues("image").Set(float64(stats.TotalImages))
	GalleryItemsTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	GalleryItemsTotal.WithLabelValues("other").Set(float64(stats.TotalOther))
	GalleryAlbumsTotal.Set(float64(stats.TotalAlbums))

	logging.Debug("Metrics collected: albums=%d, images=%d, videos=%d, other=%d",
		stats.TotalAlbums, stats.TotalImages, stats.TotalVideos, stats.TotalOther)
}

func (c *Collector) collectMemoryMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	GoMemAllocBytes.Set(float64(memStats.Alloc))
	GoMemSysBytes.Set(float64(memStats.Sys))

	if memStats.NumGC > c.lastGCCount {
		GoGCRuns.Add(float64(memStats.NumGC - c.lastGCCount))
		c.lastGCCount = memStats.NumGC
	}

	GoGCPauseTotalSeconds.Add(float64(memStats.PauseTotalNs) / 1e9)
	if memStats.NumGC > 0 {
		idx := (memStats.NumGC + 255) % 256
		GoGCPauseLastSeconds.Set(float64(memStats.PauseNs[idx]) / 1e9)
	}

	GoGCCPUFraction.Set(memStats.GCCPUFraction)

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}
}

func (c *Collector) collectDBSizes() {
	retryConfig := filesystem.DefaultRetryConfig()

	for name, path := range c.dbPaths {
		if path == "" {
			continue
		}
		if info, err := filesystem.StatWithRetry(path, retryConfig); err == nil {
			DBSizeBytes.WithLabelValues(name, "main").Set(float64(info.Size()))
		} else if !os.IsNotExist(err) {
			logging.Debug("Failed to stat %s database file: %v", name, err)
		}

		if info, err := filesystem.StatWithRetry(path+"-wal", retryConfig); err == nil {
			DBSizeBytes.WithLabelValues(name, "wal").Set(float64(info.Size()))
		} else {
			DBSizeBytes.WithLabelValues(name, "wal").Set(0)
		}

		if info, err := filesystem.StatWithRetry(path+"-shm", retryConfig); err == nil {
			DBSizeBytes.WithLabelValues(name, "shm").Set(float64(info.Size()))
		} else {
			DBSizeBytes.WithLabelValues(name, "shm").Set(0)
		}
	}
}

func (c *Collector) collectThumbnailCacheSize() {
	if c.thumbnailCacheDir == "" {
		return
	}

	start := time.Now()
	size, err := c.getDirSizeWithRetry(c.thumbnailCacheDir)
	elapsed := time.Since(start)

	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("Failed to get thumbnail cache size (took %v): %v", elapsed, err)
		}
		ThumbnailCacheSizeBytes.Set(0)
		return
	}

	ThumbnailCacheSizeBytes.Set(float64(size))
}

// getDirSizeWithRetry walks a directory tree using retry-aware filesystem
// operations, so a single flaky NFS mount doesn't abort the whole scan.
func (c *Collector) getDirSizeWithRetry(root string) (int64, error) {
	retryConfig := filesystem.DefaultRetryConfig()

	var size int64
	var walkDir func(dir string) error

	walkDir = func(dir string) error {
		entries, err := filesystem.ReadDirWithRetry(dir, retryConfig)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			fullPath := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walkDir(fullPath); err != nil {
					logging.Debug("Failed to walk subdirectory %s: %v", fullPath, err)
				}
				continue
			}

			info, err := filesystem.StatWithRetry(fullPath, retryConfig)
			if err != nil {
				logging.Debug("Failed to stat file %s: %v", fullPath, err)
				continue
			}
			size += info.Size()
		}
		return nil
	}

	err := walkDir(root)
	return size, err
}
