package storage

import (
	"context"
	"database/sql"
	"time"
)

// --- main.db: thumb_status, read/update side -------------------------------
//
// UpsertThumbStatusPending (indexer_queries.go) is the write side the
// indexer drives on add/update. Everything here is driven by the
// thumbnail engine itself: recording generation outcomes, paging
// candidates for idle fill-in, and sampling for the reconciler.

// GetThumbStatus looks up one path's thumbnail state. Returns sql.ErrNoRows
// if the indexer has never seen the path.
func (s *Store) GetThumbStatus(ctx context.Context, path string) (*ThumbStatus, error) {
	var ts ThumbStatus
	var updatedAt int64
	var nextRetry sql.NullInt64
	var lastError sql.NullString
	err := s.main.get(ctx, "get_thumb_status", `
		SELECT path, state, attempts, corruption_count, last_error, updated_at, next_retry_at
		FROM thumb_status WHERE path = ?`,
		func(row *sql.Row) error {
			return row.Scan(&ts.Path, &ts.State, &ts.Attempts, &ts.CorruptionCount, &lastError, &updatedAt, &nextRetry)
		}, path)
	if err != nil {
		return nil, err
	}
	ts.LastError = lastError.String
	ts.UpdatedAt = time.Unix(updatedAt, 0)
	if nextRetry.Valid {
		t := time.Unix(nextRetry.Int64, 0)
		ts.NextRetryAt = &t
	}
	return &ts, nil
}

// MarkThumbExists records a successful generation: state=exists, attempts
// and the retry clock reset. The corruption counter is left untouched — it
// tracks a history of unrecoverable decode failures, not retry attempts,
// and a single later success doesn't erase that history.
func (s *Store) MarkThumbExists(ctx context.Context, path string, sourceMTime time.Time) error {
	_, err := s.main.run(ctx, "mark_thumb_exists", `
		INSERT INTO thumb_status (path, state, attempts, updated_at, next_retry_at)
		VALUES (?, 'exists', 0, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			state = 'exists', attempts = 0, updated_at = excluded.updated_at, next_retry_at = NULL`,
		path, sourceMTime.Unix())
	return err
}

// MarkThumbRetry records a failed attempt that hasn't exhausted the retry
// ladder yet: state stays pending (or becomes pending if it wasn't), attempts
// increments, and next_retry_at is pushed out by the caller's backoff delay.
func (s *Store) MarkThumbRetry(ctx context.Context, path string, attempts int, nextRetryAt time.Time, lastErr string) error {
	_, err := s.main.run(ctx, "mark_thumb_retry", `
		INSERT INTO thumb_status (path, state, attempts, last_error, updated_at, next_retry_at)
		VALUES (?, 'pending', ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			state = 'pending', attempts = excluded.attempts, last_error = excluded.last_error,
			updated_at = excluded.updated_at, next_retry_at = excluded.next_retry_at`,
		path, attempts, lastErr, time.Now().Unix(), nextRetryAt.Unix())
	return err
}

// MarkThumbFailedPermanently records retry-ladder exhaustion: state becomes
// permanent_failure (distinct from the pending state MarkThumbRetry leaves
// after a single failed attempt), next_retry_at cleared so neither the idle
// generator nor the reconciler pick it back up.
func (s *Store) MarkThumbFailedPermanently(ctx context.Context, path string, attempts int, lastErr string) error {
	_, err := s.main.run(ctx, "mark_thumb_failed", `
		INSERT INTO thumb_status (path, state, attempts, last_error, updated_at, next_retry_at)
		VALUES (?, 'permanent_failure', ?, ?, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			state = 'permanent_failure', attempts = excluded.attempts, last_error = excluded.last_error,
			updated_at = excluded.updated_at, next_retry_at = NULL`,
		path, attempts, lastErr, time.Now().Unix())
	return err
}

// IncrementThumbCorruption bumps path's corruption counter and returns the
// new total, so the caller can compare it against the auto-delete threshold.
func (s *Store) IncrementThumbCorruption(ctx context.Context, path string) (int, error) {
	_, err := s.main.run(ctx, "increment_thumb_corruption", `
		INSERT INTO thumb_status (path, state, corruption_count, updated_at)
		VALUES (?, 'pending', 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			corruption_count = thumb_status.corruption_count + 1, updated_at = excluded.updated_at`,
		path, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	var count int
	err = s.main.get(ctx, "get_thumb_corruption", `SELECT corruption_count FROM thumb_status WHERE path = ?`,
		func(row *sql.Row) error { return row.Scan(&count) }, path)
	return count, err
}

// ListThumbFillCandidates pages media items needing generation: never
// recorded, stale against the source's current mtime, or left pending/failed
// by a previous incomplete run. Ordered by path for a stable page cursor.
func (s *Store) ListThumbFillCandidates(ctx context.Context, limit, offset int) ([]Item, error) {
	query := `
		SELECT items.path, items.parent_path, items.type, items.mod_time, items.width, items.height
		FROM items
		LEFT JOIN thumb_status ON thumb_status.path = items.path
		WHERE items.type IN (?, ?)
		  AND (
		    thumb_status.path IS NULL
		    OR thumb_status.state IN ('pending', 'failed')
		    OR thumb_status.updated_at < items.mod_time
		  )
		ORDER BY items.path
		LIMIT ? OFFSET ?`

	var items []Item
	err := s.main.all(ctx, "list_thumb_fill_candidates", query, func(rows *sql.Rows) error {
		var it Item
		var mtime int64
		if err := rows.Scan(&it.Path, &it.ParentPath, &it.Type, &mtime, &it.Width, &it.Height); err != nil {
			return err
		}
		it.MTime = time.Unix(mtime, 0)
		items = append(items, it)
		return nil
	}, ItemTypeImage, ItemTypeVideo, limit, offset)
	return items, err
}

// SampleThumbExistsPaths returns up to limit paths marked exists, used by
// the startup self-heal check alongside a filesystem walk of the thumbs
// root: if both come back empty the thumbs directory was wiped out from
// under the index.
func (s *Store) SampleThumbExistsPaths(ctx context.Context, limit int) ([]string, error) {
	var paths []string
	err := s.main.all(ctx, "sample_thumb_exists", `
		SELECT path FROM thumb_status WHERE state = 'exists' LIMIT ?`,
		func(rows *sql.Rows) error {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		}, limit)
	return paths, err
}

// ResetAllThumbExistsToPending flips every exists row back to pending, used
// by startup self-heal when the thumbs directory has been wiped.
func (s *Store) ResetAllThumbExistsToPending(ctx context.Context) (int64, error) {
	res, err := s.main.run(ctx, "reset_thumb_exists_to_pending",
		`UPDATE thumb_status SET state = 'pending', updated_at = ? WHERE state = 'exists'`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListThumbExistsForReconcile pages exists rows ordered by updated_at
// ascending (the column doubles as the "last checked" rotation key), so
// repeated small batches sweep the whole set fairly over time.
func (s *Store) ListThumbExistsForReconcile(ctx context.Context, limit int) ([]ThumbStatus, error) {
	var out []ThumbStatus
	err := s.main.all(ctx, "list_thumb_exists_for_reconcile", `
		SELECT path, updated_at FROM thumb_status WHERE state = 'exists'
		ORDER BY updated_at ASC LIMIT ?`,
		func(rows *sql.Rows) error {
			var ts ThumbStatus
			var updatedAt int64
			if err := rows.Scan(&ts.Path, &updatedAt); err != nil {
				return err
			}
			ts.State = ThumbStateReady
			ts.UpdatedAt = time.Unix(updatedAt, 0)
			out = append(out, ts)
			return nil
		}, limit)
	return out, err
}

// TouchThumbChecked bumps updated_at without changing state, marking path
// as just-checked so ListThumbExistsForReconcile's rotation moves past it.
func (s *Store) TouchThumbChecked(ctx context.Context, path string) error {
	_, err := s.main.run(ctx, "touch_thumb_checked", `UPDATE thumb_status SET updated_at = ? WHERE path = ?`, time.Now().Unix(), path)
	return err
}

// ResetThumbToPending resets a single row to pending, used by the
// reconciler when it finds an exists row whose mirrored file is missing.
func (s *Store) ResetThumbToPending(ctx context.Context, path string) error {
	_, err := s.main.run(ctx, "reset_thumb_to_pending", `UPDATE thumb_status SET state = 'pending', updated_at = ? WHERE path = ?`, time.Now().Unix(), path)
	return err
}
