package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"gallery-core/internal/logging"
	"gallery-core/internal/memory"
	"gallery-core/internal/metrics"
)

// driverName is the custom SQLite driver registered with a connect hook that
// applies RAM-tiered PRAGMA sizing and a numeric-aware collation.
const driverName = "sqlite3_gallery"

var registerOnce sync.Once

// registerDriver registers the gallery SQLite driver exactly once. The
// connect hook applies the mmap/cache-size tier picked from host RAM and
// registers the "natural" collation used for numeric-aware name ordering
// (e.g. "img2" before "img10").
func registerDriver() {
	registerOnce.Do(func() {
		tier := memory.SQLiteTierForHost()
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterCollation("NATURAL", naturalCompare); err != nil {
					return fmt.Errorf("register natural collation: %w", err)
				}
				pragmas := []string{
					fmt.Sprintf("PRAGMA mmap_size = %d", tier.MmapSizeBytes),
					fmt.Sprintf("PRAGMA cache_size = -%d", tier.CacheSizeKiB),
					"PRAGMA foreign_keys = ON",
				}
				for _, p := range pragmas {
					if _, err := conn.Exec(p, nil); err != nil {
						return fmt.Errorf("connect hook %q: %w", p, err)
					}
				}
				return nil
			},
		})
	})
}

func init() {
	registerDriver()
}

// dbName identifies one of the four databases that make up the store.
type dbName string

const (
	dbMain     dbName = "main"
	dbSettings dbName = "settings"
	dbHistory  dbName = "history"
	dbIndex    dbName = "index"
)

// Config holds the tunable timeouts spec.md requires to be adjustable at
// runtime within bounded ranges.
type Config struct {
	// BusyTimeout bounds SQLITE_BUSY retries inside SQLite itself. Clamped
	// to [10s, 60s].
	BusyTimeout time.Duration
	// QueryTimeout bounds every query/exec issued through run/all/get.
	// Clamped to [15s, 60s].
	QueryTimeout time.Duration
}

func (c Config) clamped() Config {
	if c.BusyTimeout < 10*time.Second {
		c.BusyTimeout = 10 * time.Second
	}
	if c.BusyTimeout > 60*time.Second {
		c.BusyTimeout = 60 * time.Second
	}
	if c.QueryTimeout < 15*time.Second {
		c.QueryTimeout = 15 * time.Second
	}
	if c.QueryTimeout > 60*time.Second {
		c.QueryTimeout = 60 * time.Second
	}
	return c
}

// handle wraps one *sql.DB with the metrics/timeout machinery that
// run/all/get/runPreparedBatch depend on.
type handle struct {
	db      *sql.DB
	name    dbName
	path    string
	cfg     Config
	mu      sync.Mutex // serializes BeginBatch/EndBatch, mirrors the teacher's txStart guard
	txStart time.Time
}

// Store owns the four SQLite databases that make up the gallery's
// persistent state: items/FTS/covers/thumbnails (main), user preferences
// (settings), view history (history), and rebuild checkpoints (index).
type Store struct {
	cfg Config

	main     *handle
	settings *handle
	history  *handle
	index    *handle
}

// Dirs identifies the directory each database file is created under.
// Callers typically pass the same directory for all four.
type Dirs struct {
	Main     string
	Settings string
	History  string
	Index    string
}

// Open opens all four databases and applies migrations. It does not
// schedule PRAGMA optimize; that is the separate RunOptimize call. The
// returned Store owns the connections; call Close to release them.
func Open(ctx context.Context, dirs Dirs, cfg Config) (*Store, error) {
	cfg = cfg.clamped()

	s := &Store{cfg: cfg}

	var err error
	if s.main, err = openHandle(ctx, dbMain, filepath.Join(dirs.Main, "main.db"), cfg); err != nil {
		return nil, fmt.Errorf("open main.db: %w", err)
	}
	if s.settings, err = openHandle(ctx, dbSettings, filepath.Join(dirs.Settings, "settings.db"), cfg); err != nil {
		s.main.db.Close()
		return nil, fmt.Errorf("open settings.db: %w", err)
	}
	if s.history, err = openHandle(ctx, dbHistory, filepath.Join(dirs.History, "history.db"), cfg); err != nil {
		s.main.db.Close()
		s.settings.db.Close()
		return nil, fmt.Errorf("open history.db: %w", err)
	}
	if s.index, err = openHandle(ctx, dbIndex, filepath.Join(dirs.Index, "index.db"), cfg); err != nil {
		s.main.db.Close()
		s.settings.db.Close()
		s.history.db.Close()
		return nil, fmt.Errorf("open index.db: %w", err)
	}

	for _, h := range s.handles() {
		if err := ensureCoreTables(ctx, h); err != nil {
			s.Close()
			return nil, fmt.Errorf("ensure core tables for %s: %w", h.name, err)
		}
		if err := runMigrations(ctx, h); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate %s: %w", h.name, err)
		}
	}

	return s, nil
}

func (s *Store) handles() []*handle {
	return []*handle{s.main, s.settings, s.history, s.index}
}

// Close closes all four databases.
func (s *Store) Close() error {
	var firstErr error
	for _, h := range s.handles() {
		if h == nil || h.db == nil {
			continue
		}
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunOptimize issues PRAGMA optimize against every database. Intended to be
// called from an idle ticker in the caller (e.g. once per hour).
func (s *Store) RunOptimize(ctx context.Context) {
	for _, h := range s.handles() {
		if _, err := h.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			logging.Warn("PRAGMA optimize failed for %s: %v", h.name, err)
		}
	}
}

// UpdateConnectionMetrics refreshes the per-database open-connection gauge.
func (s *Store) UpdateConnectionMetrics() {
	for _, h := range s.handles() {
		stats := h.db.Stats()
		metrics.DBConnectionsOpen.WithLabelValues(string(h.name)).Set(float64(stats.OpenConnections))
	}
}

func openHandle(ctx context.Context, name dbName, path string, cfg Config) (*handle, error) {
	if err := diagnoseDatabasePermissions(path); err != nil {
		logging.Warn("database permission check for %s: %v", path, err)
	}

	busyMs := cfg.BusyTimeout.Milliseconds()
	connStr := fmt.Sprintf(
		"%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=%d&_foreign_keys=on",
		path, busyMs,
	)

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	return &handle{db: db, name: name, path: path, cfg: cfg}, nil
}

// diagnoseDatabasePermissions checks that the database's directory is
// writable and fixes read-only WAL/SHM files left behind by a prior crash.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only, attempting to fix permissions", p)
			if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
				logging.Error("failed to fix permissions on %s: %v", p, chmodErr)
			}
		}
	}

	return nil
}

// naturalCompare implements the numeric-aware comparator registered as the
// NATURAL collation: runs of digits compare by value rather than lexically,
// so "img2" sorts before "img10".
func naturalCompare(a, b string) int {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		ca, cb := a[ai], b[bi]
		if isDigit(ca) && isDigit(cb) {
			as, bs := ai, bi
			for ai < len(a) && isDigit(a[ai]) {
				ai++
			}
			for bi < len(b) && isDigit(b[bi]) {
				bi++
			}
			numA := strings.TrimLeft(a[as:ai], "0")
			numB := strings.TrimLeft(b[bs:bi], "0")
			if len(numA) != len(numB) {
				if len(numA) < len(numB) {
					return -1
				}
				return 1
			}
			if numA != numB {
				if numA < numB {
					return -1
				}
				return 1
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		ai++
		bi++
	}
	switch {
	case len(a)-ai < len(b)-bi:
		return -1
	case len(a)-ai > len(b)-bi:
		return 1
	default:
		return 0
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
