package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

const slowQueryThreshold = 100 * time.Millisecond

// observeQuery times an operation against one database, recording
// DBQueryTotal/DBQueryDuration and logging anything slower than the
// threshold. Mirrors the teacher's observeQuery, with a db label added so
// main/settings/history/index stay distinguishable in Prometheus.
func observeQuery(db dbName, operation string) func(error) {
	start := time.Now()
	return func(err error) {
		duration := time.Since(start)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(string(db), operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(string(db), operation).Observe(duration.Seconds())
		if duration > slowQueryThreshold {
			logging.Warn("slow query: db=%s operation=%s duration=%s status=%s error=%v",
				db, operation, duration, status, err)
		}
	}
}

// run executes a statement that doesn't return rows.
func (h *handle) run(ctx context.Context, operation, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout())
	defer cancel()

	done := observeQuery(h.name, operation)
	result, err := h.db.ExecContext(ctx, query, args...)
	done(err)
	if err == nil && result != nil {
		if rows, rerr := result.RowsAffected(); rerr == nil && rows > 0 {
			metrics.DBRowsAffected.WithLabelValues(string(h.name), operation).Observe(float64(rows))
		}
	}
	return result, err
}

// get scans a single row into dest via fn.
func (h *handle) get(ctx context.Context, operation, query string, fn func(*sql.Row) error, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout())
	defer cancel()

	done := observeQuery(h.name, operation)
	row := h.db.QueryRowContext(ctx, query, args...)
	err := fn(row)
	done(err)
	return err
}

// all runs a query and invokes fn once per row.
func (h *handle) all(ctx context.Context, operation, query string, fn func(*sql.Rows) error, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout())
	defer cancel()

	done := observeQuery(h.name, operation)
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		done(err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			done(err)
			return err
		}
	}
	err = rows.Err()
	done(err)
	return err
}

func (h *handle) queryTimeout() time.Duration {
	return h.cfg.QueryTimeout
}

// beginMode selects the SQLite BEGIN statement flavor.
type beginMode int

const (
	beginDeferred beginMode = iota
	beginImmediate
)

// batchTx is the common surface BeginBatch callers need, satisfied by both
// a plain *sql.Tx (deferred mode) and immediateTx (BEGIN IMMEDIATE mode,
// which database/sql has no native TxOptions for).
type batchTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// immediateTx runs a hand-managed transaction on a single checked-out
// connection so BEGIN IMMEDIATE can be issued as a literal statement —
// database/sql's Tx only exposes deferred BEGIN via TxOptions.
type immediateTx struct {
	conn *sql.Conn
}

func (t *immediateTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *immediateTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.conn.PrepareContext(ctx, query)
}

func (t *immediateTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *immediateTx) commit(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	closeErr := t.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (t *immediateTx) rollback(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	closeErr := t.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// BeginBatch starts a transaction for batch operations against one database.
// mode controls whether the write lock is acquired up front (BEGIN
// IMMEDIATE, for long batch loads where deferred acquisition would
// otherwise deadlock against readers) or lazily (default sql.Tx behavior).
func (h *handle) BeginBatch(ctx context.Context, mode beginMode) (batchTx, error) {
	h.mu.Lock()

	done := observeQuery(h.name, "begin_transaction")

	if mode == beginImmediate {
		conn, err := h.db.Conn(ctx)
		if err != nil {
			done(err)
			h.mu.Unlock()
			return nil, err
		}
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			done(err)
			conn.Close()
			h.mu.Unlock()
			return nil, err
		}
		done(nil)
		h.txStart = time.Now()
		return &immediateTx{conn: conn}, nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	done(err)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.txStart = time.Now()
	return tx, nil
}

// EndBatch commits or rolls back a transaction started with BeginBatch.
func (h *handle) EndBatch(tx batchTx, batchErr error) error {
	defer h.mu.Unlock()

	duration := time.Since(h.txStart).Seconds()
	ctx := context.Background()

	commit := func() error {
		switch t := tx.(type) {
		case *immediateTx:
			return t.commit(ctx)
		case *sql.Tx:
			return t.Commit()
		default:
			return fmt.Errorf("unknown tx type %T", tx)
		}
	}
	rollback := func() error {
		switch t := tx.(type) {
		case *immediateTx:
			return t.rollback(ctx)
		case *sql.Tx:
			return t.Rollback()
		default:
			return fmt.Errorf("unknown tx type %T", tx)
		}
	}

	if batchErr != nil {
		metrics.DBTransactionDuration.WithLabelValues(string(h.name), "rollback").Observe(duration)
		done := observeQuery(h.name, "rollback")
		rbErr := rollback()
		done(rbErr)
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(batchErr, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return batchErr
	}

	metrics.DBTransactionDuration.WithLabelValues(string(h.name), "commit").Observe(duration)
	done := observeQuery(h.name, "commit")
	commitErr := commit()
	done(commitErr)
	return commitErr
}

// runPreparedBatch prepares query once and executes it over rows in chunks
// within a single transaction, committing at the end and rolling back on any
// failure. mode selects BEGIN IMMEDIATE vs deferred for the wrapping
// transaction.
func (h *handle) runPreparedBatch(ctx context.Context, operation, query string, mode beginMode, chunkSize int, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}

	var total int64
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tx, err := h.BeginBatch(ctx, mode)
		if err != nil {
			return total, fmt.Errorf("%s: begin batch: %w", operation, err)
		}

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return total, h.EndBatch(tx, fmt.Errorf("%s: prepare: %w", operation, err))
		}

		var batchErr error
		for _, args := range chunk {
			done := observeQuery(h.name, operation)
			result, execErr := stmt.ExecContext(ctx, args...)
			done(execErr)
			if execErr != nil {
				batchErr = fmt.Errorf("%s: exec: %w", operation, execErr)
				break
			}
			if n, rerr := result.RowsAffected(); rerr == nil {
				total += n
			}
		}
		stmt.Close()

		if err := h.EndBatch(tx, batchErr); err != nil {
			return total, err
		}
	}
	return total, nil
}

// --- main.db: items ---------------------------------------------------

// UpsertItem inserts or updates an item row. content_updated_at advances
// only when content-relevant fields actually change, keeping "row touched"
// distinct from "content changed" the way the teacher's UpsertFile does for
// the files table.
func (s *Store) UpsertItem(ctx context.Context, tx batchTx, it *Item) (int64, error) {
	done := observeQuery(s.main.name, "upsert_item")

	query := `
	INSERT INTO items (name, path, parent_path, type, size, mod_time, mime_type, width, height, file_hash, updated_at, content_updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		type = excluded.type,
		size = excluded.size,
		mod_time = excluded.mod_time,
		mime_type = excluded.mime_type,
		width = excluded.width,
		height = excluded.height,
		file_hash = excluded.file_hash,
		updated_at = strftime('%s','now'),
		content_updated_at = CASE
			WHEN items.size != excluded.size
			  OR items.mod_time != excluded.mod_time
			  OR items.type != excluded.type
			  OR COALESCE(items.file_hash,'') != COALESCE(excluded.file_hash,'')
			THEN strftime('%s','now')
			ELSE COALESCE(items.content_updated_at, strftime('%s','now'))
		END
	RETURNING id
	`
	rows, err := tx.QueryContext(ctx, query,
		it.Name, it.Path, it.ParentPath, it.Type, it.Size, it.MTime.Unix(),
		it.MimeType, it.Width, it.Height, it.Hash,
	)
	if err != nil {
		done(err)
		return 0, err
	}
	var id int64
	if rows.Next() {
		err = rows.Scan(&id)
	}
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	done(err)
	if err != nil {
		return 0, err
	}
	metrics.DBRowsAffected.WithLabelValues(string(s.main.name), "upsert_item").Observe(1)
	return id, nil
}

// DeleteMissingItems removes items not touched since cutoff — the
// generalized form of the teacher's DeleteMissingFiles, used at the end of
// a full rebuild to drop anything no longer present on disk.
func (s *Store) DeleteMissingItems(ctx context.Context, tx batchTx, cutoff time.Time) (int64, error) {
	done := observeQuery(s.main.name, "delete_missing_items")
	result, err := tx.ExecContext(ctx, "DELETE FROM items WHERE updated_at < ?", cutoff.Unix())
	done(err)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		metrics.DBRowsAffected.WithLabelValues(string(s.main.name), "delete_missing_items").Observe(float64(rows))
	}
	return rows, nil
}

// GetItemByPath retrieves a single item by its relative path.
func (s *Store) GetItemByPath(ctx context.Context, path string) (*Item, error) {
	var it Item
	var mtime, createdAt, updatedAt, contentUpdatedAt int64
	var lastViewed sql.NullInt64

	err := s.main.get(ctx, "get_item_by_path", `
		SELECT id, name, path, parent_path, type, size, mod_time, mime_type, width, height,
		       file_hash, created_at, updated_at, content_updated_at, last_viewed_at
		FROM items WHERE path = ?`,
		func(row *sql.Row) error {
			return row.Scan(&it.ID, &it.Name, &it.Path, &it.ParentPath, &it.Type, &it.Size,
				&mtime, &it.MimeType, &it.Width, &it.Height, &it.Hash,
				&createdAt, &updatedAt, &contentUpdatedAt, &lastViewed)
		}, path)
	if err != nil {
		return nil, err
	}

	it.MTime = time.Unix(mtime, 0)
	it.CreatedAt = time.Unix(createdAt, 0)
	it.UpdatedAt = time.Unix(updatedAt, 0)
	it.ContentUpdatedAt = time.Unix(contentUpdatedAt, 0)
	if lastViewed.Valid {
		t := time.Unix(lastViewed.Int64, 0)
		it.LastViewedAt = &t
	}
	return &it, nil
}

// allowedSortColumns maps a public sort key to the items column it drives,
// the same allowlist-before-interpolation pattern the teacher uses for its
// directory listing sort (never interpolate a caller-chosen column name
// directly into SQL).
var allowedSortColumns = map[string]string{
	"name":   "name COLLATE NATURAL",
	"date":   "mod_time",
	"size":   "size",
	"viewed": "last_viewed_at",
}

// SortColumn resolves a public sort key to its SQL column expression,
// falling back to "name" for anything not on the allowlist.
func SortColumn(key string) string {
	if col, ok := allowedSortColumns[key]; ok {
		return col
	}
	return allowedSortColumns["name"]
}

// BeginMain starts a transaction on main.db. mode selects BEGIN IMMEDIATE
// for the indexer's write-heavy passes.
func (s *Store) BeginMain(ctx context.Context, immediate bool) (batchTx, error) {
	mode := beginDeferred
	if immediate {
		mode = beginImmediate
	}
	return s.main.BeginBatch(ctx, mode)
}

// EndMain commits or rolls back a transaction from BeginMain.
func (s *Store) EndMain(tx batchTx, err error) error {
	return s.main.EndBatch(tx, err)
}
