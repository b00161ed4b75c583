package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Mock StatsProvider
// =============================================================================

type mockStatsProvider struct {
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	return m.stats
}

// =============================================================================
// Mock StorageHealthChecker
// =============================================================================

type mockStorageHealthChecker struct {
	mu                    sync.Mutex
	checkStorageHealthCnt int
	updateDBMetricsCnt    int
}

func (m *mockStorageHealthChecker) CheckStorageHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkStorageHealthCnt++
}

func (m *mockStorageHealthChecker) UpdateDBMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateDBMetricsCnt++
}

func (m *mockStorageHealthChecker) getCheckStorageHealthCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkStorageHealthCnt
}

func (m *mockStorageHealthChecker) getUpdateDBMetricsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDBMetricsCnt
}

// =============================================================================
// Collector Tests
// =============================================================================

func TestNewCollector(t *testing.T) {
	provider := &mockStatsProvider{
		stats: Stats{TotalAlbums: 10, TotalImages: 80, TotalVideos: 20, TotalOther: 5},
	}

	dbPaths := map[string]string{"main": "/tmp/main.db"}
	collector := NewCollector(provider, dbPaths, 5*time.Second)

	if collector == nil {
		t.Fatal("NewCollector returned nil")
	}

	if collector.statsProvider != provider {
		t.Error("statsProvider not set correctly")
	}

	if collector.dbPaths["main"] != "/tmp/main.db" {
		t.Errorf("dbPaths[main] = %q, want %q", collector.dbPaths["main"], "/tmp/main.db")
	}

	if collector.interval != 5*time.Second {
		t.Errorf("interval = %v, want %v", collector.interval, 5*time.Second)
	}

	if collector.stopChan == nil {
		t.Error("stopChan not initialized")
	}

	if collector.thumbnailCacheDir != "" {
		t.Errorf("thumbnailCacheDir should be empty by default, got %q", collector.thumbnailCacheDir)
	}

	if collector.storageHealthChecker != nil {
		t.Error("storageHealthChecker should be nil by default")
	}
}

func TestNewCollectorWithNilProvider(t *testing.T) {
	collector := NewCollector(nil, nil, 5*time.Second)

	if collector == nil {
		t.Fatal("NewCollector returned nil")
	}

	if collector.statsProvider != nil {
		t.Error("statsProvider should be nil")
	}
}

func TestCollectorStartStop(_ *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 50}}

	collector := NewCollector(provider, nil, 100*time.Millisecond)

	collector.Start()
	time.Sleep(150 * time.Millisecond)
	collector.Stop()
}

func TestCollectorMultipleCollectCycles(_ *testing.T) {
	provider := &mockStatsProvider{
		stats: Stats{TotalImages: 100, TotalVideos: 50},
	}

	collector := NewCollector(provider, nil, 50*time.Millisecond)

	collector.Start()
	time.Sleep(200 * time.Millisecond)
	collector.Stop()
}

func TestCollectWithNilProvider(t *testing.T) {
	collector := NewCollector(nil, nil, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect() panicked with nil provider: %v", r)
		}
	}()

	collector.collect()
}

func TestCollectMemoryMetrics(t *testing.T) {
	collector := NewCollector(nil, nil, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collectMemoryMetrics() panicked: %v", r)
		}
	}()

	collector.collectMemoryMetrics()
	collector.collectMemoryMetrics()
}

func TestCollectDBSizesWithValidDatabase(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	if err := os.WriteFile(dbPath, []byte("test database content"), 0o644); err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	collector := NewCollector(nil, map[string]string{"main": dbPath}, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collectDBSizes() panicked: %v", r)
		}
	}()

	collector.collectDBSizes()
}

func TestCollectDBSizesWithWALAndSHM(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	if err := os.WriteFile(dbPath, []byte("main db"), 0o644); err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := os.WriteFile(dbPath+"-wal", []byte("wal file"), 0o644); err != nil {
		t.Fatalf("failed to create WAL file: %v", err)
	}
	if err := os.WriteFile(dbPath+"-shm", []byte("shm file"), 0o644); err != nil {
		t.Fatalf("failed to create SHM file: %v", err)
	}

	collector := NewCollector(nil, map[string]string{"main": dbPath}, 1*time.Second)
	collector.collectDBSizes()
}

func TestCollectDBSizesWithMissingDatabase(t *testing.T) {
	collector := NewCollector(nil, map[string]string{"main": "/nonexistent/path/db.db"}, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collectDBSizes() panicked with missing database: %v", r)
		}
	}()

	collector.collectDBSizes()
}

func TestCollectDBSizesWithEmptyPaths(t *testing.T) {
	collector := NewCollector(nil, nil, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collectDBSizes() panicked with empty paths: %v", r)
		}
	}()

	collector.collectDBSizes()
}

func TestCollectWithStatsProvider(t *testing.T) {
	provider := &mockStatsProvider{
		stats: Stats{TotalAlbums: 25, TotalImages: 100, TotalVideos: 45, TotalOther: 5},
	}

	collector := NewCollector(provider, nil, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect() panicked: %v", r)
		}
	}()

	collector.collect()
}

func TestStatsProviderInterface(_ *testing.T) {
	var _ StatsProvider = (*mockStatsProvider)(nil)
}

func TestStorageHealthCheckerInterface(_ *testing.T) {
	var _ StorageHealthChecker = (*mockStorageHealthChecker)(nil)
}

func TestStatsStructFields(t *testing.T) {
	stats := Stats{TotalAlbums: 10, TotalImages: 80, TotalVideos: 15, TotalOther: 3}

	if stats.TotalAlbums != 10 {
		t.Errorf("TotalAlbums = %d, want 10", stats.TotalAlbums)
	}
	if stats.TotalImages != 80 {
		t.Errorf("TotalImages = %d, want 80", stats.TotalImages)
	}
	if stats.TotalVideos != 15 {
		t.Errorf("TotalVideos = %d, want 15", stats.TotalVideos)
	}
	if stats.TotalOther != 3 {
		t.Errorf("TotalOther = %d, want 3", stats.TotalOther)
	}
}

func TestCollectorGetDirSizeWithRetry(t *testing.T) {
	tempDir := t.TempDir()

	files := []struct {
		path string
		size int
	}{
		{"file1.txt", 100},
		{"file2.txt", 200},
		{"subdir/file3.txt", 300},
	}

	var expectedSize int64
	for _, f := range files {
		path := filepath.Join(tempDir, f.path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		data := make([]byte, f.size)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
		expectedSize += int64(f.size)
	}

	collector := NewCollector(nil, nil, 1*time.Second)
	size, err := collector.getDirSizeWithRetry(tempDir)
	if err != nil {
		t.Fatalf("getDirSizeWithRetry failed: %v", err)
	}

	if size != expectedSize {
		t.Errorf("getDirSizeWithRetry() = %d, want %d", size, expectedSize)
	}
}

func TestCollectorGetDirSizeWithRetryEmptyDir(t *testing.T) {
	tempDir := t.TempDir()

	collector := NewCollector(nil, nil, 1*time.Second)
	size, err := collector.getDirSizeWithRetry(tempDir)
	if err != nil {
		t.Fatalf("getDirSizeWithRetry on empty dir failed: %v", err)
	}

	if size != 0 {
		t.Errorf("getDirSizeWithRetry() on empty dir = %d, want 0", size)
	}
}

func TestCollectorGetDirSizeWithRetryNonexistent(t *testing.T) {
	collector := NewCollector(nil, nil, 1*time.Second)
	_, err := collector.getDirSizeWithRetry("/nonexistent/path")
	if err == nil {
		t.Error("getDirSizeWithRetry on nonexistent path should return error")
	}
}

// =============================================================================
// StorageHealthChecker Tests
// =============================================================================

func TestSetStorageHealthChecker(t *testing.T) {
	collector := NewCollector(nil, nil, 1*time.Second)

	if collector.storageHealthChecker != nil {
		t.Error("storageHealthChecker should be nil initially")
	}

	checker := &mockStorageHealthChecker{}
	collector.SetStorageHealthChecker(checker)

	if collector.storageHealthChecker != checker {
		t.Error("storageHealthChecker not set correctly")
	}
}

func TestCollectCallsStorageHealthChecker(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 10}}
	checker := &mockStorageHealthChecker{}

	collector := NewCollector(provider, nil, 1*time.Second)
	collector.SetStorageHealthChecker(checker)

	collector.collect()

	if cnt := checker.getCheckStorageHealthCount(); cnt != 1 {
		t.Errorf("CheckStorageHealth called %d times, want 1", cnt)
	}
	if cnt := checker.getUpdateDBMetricsCount(); cnt != 1 {
		t.Errorf("UpdateDBMetrics called %d times, want 1", cnt)
	}
}

func TestCollectWithNilStorageHealthChecker(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 10}}

	collector := NewCollector(provider, nil, 1*time.Second)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect() panicked with nil storageHealthChecker: %v", r)
		}
	}()

	collector.collect()
}

// =============================================================================
// Observer Tests
// =============================================================================

func TestNewFilesystemObserver(t *testing.T) {
	observer := NewFilesystemObserver()
	if observer == nil {
		t.Fatal("NewFilesystemObserver returned nil")
	}
}

func TestObserveOperationSuccess(t *testing.T) {
	observer := NewFilesystemObserver()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("ObserveOperation panicked: %v", r)
		}
	}()

	observer.ObserveOperation("media", "read", 0.005, nil)
	observer.ObserveOperation("cache", "write", 0.01, nil)
	observer.ObserveOperation("database", "stat", 0.001, nil)
	observer.ObserveOperation("unknown", "readdir", 0.02, nil)
}

func TestObserveOperationWithError(t *testing.T) {
	observer := NewFilesystemObserver()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("ObserveOperation with error panicked: %v", r)
		}
	}()

	testErr := errors.New("test filesystem error")
	observer.ObserveOperation("media", "read", 0.1, testErr)
	observer.ObserveOperation("cache", "write", 0.5, testErr)
}

func TestObserveRetryAttempt(t *testing.T) {
	observer := NewFilesystemObserver()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("ObserveRetryAttempt panicked: %v", r)
		}
	}()

	observer.ObserveRetryAttempt("stat", "media")
	observer.ObserveRetryAttempt("open", "cache")
	observer.ObserveRetryAttempt("readdir", "database")
}

func TestObserveRetryDuration(t *testing.T) {
	observer := NewFilesystemObserver()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("ObserveRetryDuration panicked: %v", r)
		}
	}()

	observer.ObserveRetryDuration("stat", "media", 0.05)
	observer.ObserveRetryDuration("open", "cache", 0.1)
}

func TestObserverConcurrentAccess(t *testing.T) {
	observer := NewFilesystemObserver()
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(id int) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Goroutine %d panicked: %v", id, r)
				}
				done <- true
			}()

			observer.ObserveOperation("media", "read", 0.001, nil)
			observer.ObserveRetryAttempt("stat", "media")
			observer.ObserveRetrySuccess("stat", "media")
			observer.ObserveRetryDuration("stat", "media", 0.01)
			observer.ObserveStaleError("open", "cache")
			observer.ObserveRetryFailure("open", "cache")
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

// =============================================================================
// InitializeMetrics Tests
// =============================================================================

func TestInitializeMetrics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("InitializeMetrics() panicked: %v", r)
		}
	}()

	InitializeMetrics()
}

func TestInitializeMetricsIdempotent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("InitializeMetrics() panicked on second call: %v", r)
		}
	}()

	InitializeMetrics()
	InitializeMetrics()
}

func TestInitializeMetricsPrePopulatesFilesystemMetrics(t *testing.T) {
	InitializeMetrics()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Accessing pre-populated filesystem metrics panicked: %v", r)
		}
	}()

	volumes := []string{"media", "cache", "database", "unknown"}
	retryOps := []string{"stat", "open", "readdir"}
	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol).Add(0)
			FilesystemRetrySuccess.WithLabelValues(op, vol).Add(0)
			FilesystemRetryFailures.WithLabelValues(op, vol).Add(0)
			FilesystemStaleErrors.WithLabelValues(op, vol).Add(0)
			FilesystemRetryDuration.WithLabelValues(op, vol).Observe(0)
		}
	}
}

func TestInitializeMetricsPrePopulatesDBQueryMetrics(t *testing.T) {
	InitializeMetrics()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Accessing pre-populated DB query metrics panicked: %v", r)
		}
	}()

	for _, db := range []string{"main", "settings", "history", "index"} {
		for _, op := range []string{"get", "run", "all", "batch_insert", "batch_upsert"} {
			DBQueryTotal.WithLabelValues(db, op, "success").Add(0)
			DBQueryDuration.WithLabelValues(db, op).Observe(0)
		}
		DBTransactionDuration.WithLabelValues(db, "commit").Observe(0)
	}
}
