package storage

import (
	"context"
	"database/sql"
	"fmt"

	"gallery-core/internal/logging"
)

// Migration is one keyed, idempotent schema step. Check is optional and
// lets a migration skip itself when its precondition is already satisfied
// (e.g. a column already exists because ensureCoreTables created it fresh).
type Migration struct {
	Key   string
	Check func(ctx context.Context, db *sql.DB) (needed bool, err error)
	Apply func(ctx context.Context, db *sql.DB) error
}

// ensureCoreTables creates every table/index this database needs with
// CREATE TABLE IF NOT EXISTS statements. It is safe to call on every boot —
// including from multiple processes racing to initialize a fresh volume —
// and exists independently of the keyed migrations table so a worker can
// never observe a database with core tables missing.
func ensureCoreTables(ctx context.Context, h *handle) error {
	schema, ok := coreSchema[h.name]
	if !ok {
		return fmt.Errorf("no core schema registered for %s", h.name)
	}
	done := observeQuery(h.name, "ensure_core_tables")
	_, err := h.db.ExecContext(ctx, schema)
	done(err)
	return err
}

var coreSchema = map[dbName]string{
	dbMain: `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		parent_path TEXT NOT NULL,
		type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		mime_type TEXT,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		file_hash TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		content_updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		last_viewed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_items_parent_path ON items(parent_path);
	CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);
	CREATE INDEX IF NOT EXISTS idx_items_path_type ON items(path, type);
	CREATE INDEX IF NOT EXISTS idx_items_parent_type_name ON items(parent_path, type, name COLLATE NATURAL);
	CREATE INDEX IF NOT EXISTS idx_items_parent_type_modtime ON items(parent_path, type, mod_time);
	CREATE INDEX IF NOT EXISTS idx_items_parent_type_size ON items(parent_path, type, size);
	CREATE INDEX IF NOT EXISTS idx_items_parent_type_viewed ON items(parent_path, type, last_viewed_at);

	-- External-content FTS5 table. No AFTER INSERT/DELETE/UPDATE triggers:
	-- the indexer writes ngram tokens here explicitly as part of its own
	-- batch transaction, so a crash mid-batch never leaves the two tables
	-- out of sync with half the pair committed.
	CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
		tokens,
		content='items',
		content_rowid='id',
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS album_covers (
		album_path TEXT PRIMARY KEY,
		cover_path TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		computed_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);

	CREATE TABLE IF NOT EXISTS thumb_status (
		path TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		corruption_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		next_retry_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_thumb_status_state ON thumb_status(state);
	CREATE INDEX IF NOT EXISTS idx_thumb_status_next_retry ON thumb_status(next_retry_at);

	CREATE TABLE IF NOT EXISTS migrations (
		key TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);
	`,

	dbSettings: `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);

	CREATE TABLE IF NOT EXISTS migrations (
		key TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);
	`,

	dbHistory: `
	CREATE TABLE IF NOT EXISTS view_history (
		path TEXT PRIMARY KEY,
		last_viewed_at INTEGER NOT NULL,
		view_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_view_history_last_viewed ON view_history(last_viewed_at);

	CREATE TABLE IF NOT EXISTS migrations (
		key TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);
	`,

	dbIndex: `
	CREATE TABLE IF NOT EXISTS index_status (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		running INTEGER NOT NULL DEFAULT 0,
		checkpoint TEXT NOT NULL DEFAULT '',
		items_so_far INTEGER NOT NULL DEFAULT 0,
		total_estimate INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);

	CREATE TABLE IF NOT EXISTS migrations (
		key TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);
	`,
}

// migrationsFor returns the keyed migration steps for a database, applied
// in order after ensureCoreTables. New steps are appended here as the
// schema evolves; nothing is ever edited in place once released.
func migrationsFor(name dbName) []Migration {
	switch name {
	case dbMain:
		return []Migration{
			{
				Key: "main_001_backfill_content_updated_at",
				Check: func(ctx context.Context, db *sql.DB) (bool, error) {
					var zeroRows bool
					err := db.QueryRowContext(ctx,
						`SELECT COUNT(*) > 0 FROM items WHERE content_updated_at = 0`,
					).Scan(&zeroRows)
					return zeroRows, err
				},
				Apply: func(ctx context.Context, db *sql.DB) error {
					_, err := db.ExecContext(ctx, `UPDATE items SET content_updated_at = updated_at WHERE content_updated_at = 0`)
					return err
				},
			},
		}
	default:
		return nil
	}
}

// runMigrations applies every pending keyed migration for one database.
func runMigrations(ctx context.Context, h *handle) error {
	for _, m := range migrationsFor(h.name) {
		var applied bool
		err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM migrations WHERE key = ?`, m.Key).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Key, err)
		}
		if applied {
			continue
		}

		if m.Check != nil {
			needed, err := m.Check(ctx, h.db)
			if err != nil {
				return fmt.Errorf("check precondition for %s: %w", m.Key, err)
			}
			if !needed {
				if _, err := h.db.ExecContext(ctx, `INSERT INTO migrations(key) VALUES (?)`, m.Key); err != nil {
					return fmt.Errorf("record skipped migration %s: %w", m.Key, err)
				}
				continue
			}
		}

		logging.Info("applying migration %s on %s", m.Key, h.name)
		done := observeQuery(h.name, "migration_"+m.Key)
		err = m.Apply(ctx, h.db)
		done(err)
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Key, err)
		}

		if _, err := h.db.ExecContext(ctx, `INSERT INTO migrations(key) VALUES (?)`, m.Key); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Key, err)
		}
	}
	return nil
}
