package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// --- main.db: FTS maintenance -------------------------------------------
//
// items_fts carries no triggers (see ensureCoreTables); the indexer is
// responsible for keeping it in sync with items as part of the same batch
// transaction that touches the items row. Because tokens are a pure
// function of an item's path and type, the matching 'delete' command can
// always be reconstructed from the same tokens used to insert it.

// UpsertItemFTS (re)writes the n-gram token row for an item.
func (s *Store) UpsertItemFTS(ctx context.Context, tx batchTx, itemID int64, tokens string) error {
	done := observeQuery(s.main.name, "upsert_item_fts")
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO items_fts(rowid, tokens) VALUES (?, ?)`, itemID, tokens)
	done(err)
	return err
}

// DeleteItemFTS removes an item's token row. tokens must match what was
// last written for itemID — fts5's external-content delete command needs
// the old postings to remove them from the index.
func (s *Store) DeleteItemFTS(ctx context.Context, tx batchTx, itemID int64, tokens string) error {
	done := observeQuery(s.main.name, "delete_item_fts")
	_, err := tx.ExecContext(ctx, `INSERT INTO items_fts(items_fts, rowid, tokens) VALUES ('delete', ?, ?)`, itemID, tokens)
	done(err)
	return err
}

// --- main.db: deletion by path / prefix ---------------------------------

// DeletedItem is the minimal identity of a row removed by DeleteItemsByPathsAndPrefixes,
// enough for the caller to also retire its FTS and thumb_status rows.
type DeletedItem struct {
	ID   int64
	Path string
}

// DeleteItemsByPathsAndPrefixes deletes items exactly matching one of paths,
// plus everything nested under any of those paths (for directory unlinks).
// Returns the deleted rows' identity before removing them.
func (s *Store) DeleteItemsByPathsAndPrefixes(ctx context.Context, tx batchTx, paths []string) ([]DeletedItem, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(paths)*2)
	clauses := make([]string, 0, len(paths)*2)
	for _, p := range paths {
		clauses = append(clauses, "path = ?")
		args = append(args, p)
		clauses = append(clauses, "path LIKE ?")
		args = append(args, p+"/%")
	}

	selectQuery := fmt.Sprintf(`SELECT id, path FROM items WHERE %s`, strings.Join(clauses, " OR "))

	done := observeQuery(s.main.name, "select_items_for_delete")
	rows, err := tx.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		done(err)
		return nil, err
	}
	var deleted []DeletedItem
	for rows.Next() {
		var d DeletedItem
		if err := rows.Scan(&d.ID, &d.Path); err != nil {
			rows.Close()
			done(err)
			return nil, err
		}
		deleted = append(deleted, d)
	}
	rows.Close()
	done(rows.Err())
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if len(deleted) == 0 {
		return nil, nil
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM items WHERE %s`, strings.Join(clauses, " OR "))
	done = observeQuery(s.main.name, "delete_items")
	_, err = tx.ExecContext(ctx, deleteQuery, args...)
	done(err)
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// --- main.db: thumb_status -----------------------------------------------

// UpsertThumbStatusPending marks path as pending thumbnail generation, the
// step the indexer performs immediately after upserting an item. A row
// already in state exists keeps that state, and the mtime argument is not
// written.
func (s *Store) UpsertThumbStatusPending(ctx context.Context, tx batchTx, path string, mtime time.Time) error {
	done := observeQuery(s.main.name, "upsert_thumb_status_pending")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO thumb_status (path, state, updated_at)
		VALUES (?, 'pending', strftime('%s','now'))
		ON CONFLICT(path) DO UPDATE SET
			state = CASE WHEN thumb_status.state = 'exists' THEN thumb_status.state ELSE 'pending' END,
			updated_at = strftime('%s','now')
	`, path)
	done(err)
	return err
}

// DeleteThumbStatusByPaths removes thumb_status rows for the given exact
// paths, used alongside DeleteItemsByPathsAndPrefixes.
func (s *Store) DeleteThumbStatusByPaths(ctx context.Context, tx batchTx, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	done := observeQuery(s.main.name, "delete_thumb_status")
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM thumb_status WHERE path IN (%s)`, strings.Join(placeholders, ",")), args...)
	done(err)
	return err
}

// --- main.db: album covers -----------------------------------------------

// UpsertAlbumCover records albumPath's chosen cover.
func (s *Store) UpsertAlbumCover(ctx context.Context, tx batchTx, albumPath, coverPath string, width, height int, mtime time.Time) error {
	done := observeQuery(s.main.name, "upsert_album_cover")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO album_covers (album_path, cover_path, width, height, mod_time, computed_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(album_path) DO UPDATE SET
			cover_path = excluded.cover_path,
			width = excluded.width,
			height = excluded.height,
			mod_time = excluded.mod_time,
			computed_at = strftime('%s','now')
	`, albumPath, coverPath, width, height, mtime.Unix())
	done(err)
	return err
}

// DeleteAlbumCover removes albumPath's cover row, used when an album loses
// its last media descendant.
func (s *Store) DeleteAlbumCover(ctx context.Context, tx batchTx, albumPath string) error {
	done := observeQuery(s.main.name, "delete_album_cover")
	_, err := tx.ExecContext(ctx, `DELETE FROM album_covers WHERE album_path = ?`, albumPath)
	done(err)
	return err
}

// GetAlbumCover looks up one album's precomputed cover. ComputedAt carries
// the cover item's own mod_time (not the row's computed_at bookkeeping
// column), since that's what callers use as the URL cache-buster.
func (s *Store) GetAlbumCover(ctx context.Context, albumPath string) (*AlbumCover, error) {
	var ac AlbumCover
	var mtime int64
	err := s.main.get(ctx, "get_album_cover", `
		SELECT album_path, cover_path, mod_time FROM album_covers WHERE album_path = ?`,
		func(row *sql.Row) error {
			return row.Scan(&ac.AlbumPath, &ac.ItemPath, &mtime)
		}, albumPath)
	if err != nil {
		return nil, err
	}
	ac.ComputedAt = time.Unix(mtime, 0)
	return &ac, nil
}

// ListAlbumCoversPage returns one page of album_covers ordered by
// album_path, along with the offset the caller should pass as cursor to
// fetch the next page (0 once exhausted).
func (s *Store) ListAlbumCoversPage(ctx context.Context, limit, cursor int) ([]AlbumCover, int, error) {
	var out []AlbumCover
	err := s.main.all(ctx, "list_album_covers_page", `
		SELECT album_path, cover_path, mod_time FROM album_covers
		ORDER BY album_path
		LIMIT ? OFFSET ?`,
		func(rows *sql.Rows) error {
			var ac AlbumCover
			var mtime int64
			if err := rows.Scan(&ac.AlbumPath, &ac.ItemPath, &mtime); err != nil {
				return err
			}
			ac.ComputedAt = time.Unix(mtime, 0)
			out = append(out, ac)
			return nil
		}, limit, cursor)
	if err != nil {
		return nil, 0, err
	}
	next := 0
	if len(out) == limit {
		next = cursor + limit
	}
	return out, next, nil
}

// ListAlbumPaths returns every album item's path, for the album-cover
// rebuild's "start every album with no cover" pass.
func (s *Store) ListAlbumPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.main.all(ctx, "list_album_paths", `SELECT path FROM items WHERE type = ?`,
		func(rows *sql.Rows) error {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		}, ItemTypeAlbum)
	return paths, err
}

// StreamMediaByMTimeDesc invokes fn for every photo/video item ordered by
// mtime DESC, path DESC (the album-cover rebuild's tie-break order) — a
// streaming callback rather than a loaded slice since a full tree can carry
// millions of media rows.
func (s *Store) StreamMediaByMTimeDesc(ctx context.Context, fn func(Item) error) error {
	return s.main.all(ctx, "stream_media_by_mtime_desc", `
		SELECT path, parent_path, width, height, mod_time
		FROM items WHERE type IN (?, ?)
		ORDER BY mod_time DESC, path DESC`,
		func(rows *sql.Rows) error {
			var it Item
			var mtime int64
			if err := rows.Scan(&it.Path, &it.ParentPath, &it.Width, &it.Height, &mtime); err != nil {
				return err
			}
			it.MTime = time.Unix(mtime, 0)
			return fn(it)
		}, ItemTypeImage, ItemTypeVideo)
}

// GetAllMediaItems returns every photo/video path, used by the thumbnail
// engine's idle background fill-in pass.
func (s *Store) GetAllMediaItems(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.main.all(ctx, "get_all_media_items", `
		SELECT id, path, mod_time, width, height FROM items WHERE type IN (?, ?)`,
		func(rows *sql.Rows) error {
			var it Item
			var mtime int64
			if err := rows.Scan(&it.ID, &it.Path, &mtime, &it.Width, &it.Height); err != nil {
				return err
			}
			it.MTime = time.Unix(mtime, 0)
			items = append(items, it)
			return nil
		}, ItemTypeImage, ItemTypeVideo)
	return items, err
}

// CountItems reports whether the items table has any rows (used by search
// to detect SEARCH_UNAVAILABLE before querying FTS).
func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := s.main.get(ctx, "count_items", `SELECT COUNT(*) FROM items`, func(row *sql.Row) error {
		return row.Scan(&n)
	})
	return n, err
}

// CountFTSRows reports how many token rows items_fts currently carries.
func (s *Store) CountFTSRows(ctx context.Context) (int64, error) {
	var n int64
	err := s.main.get(ctx, "count_fts_rows", `SELECT COUNT(*) FROM items_fts`, func(row *sql.Row) error {
		return row.Scan(&n)
	})
	return n, err
}

// --- index.db: resumable rebuild progress --------------------------------

// IndexStatus is the index store's single-row rebuild state.
type IndexStatus struct {
	Running       bool
	Checkpoint    string
	ItemsSoFar    int64
	TotalEstimate int64
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// GetIndexStatus reads the single index_status row, creating it with
// defaults if this is the first boot.
func (s *Store) GetIndexStatus(ctx context.Context) (IndexStatus, error) {
	var st IndexStatus
	var started, updated sql.NullInt64
	var running int
	err := s.index.get(ctx, "get_index_status", `
		SELECT running, checkpoint, items_so_far, total_estimate, started_at, updated_at
		FROM index_status WHERE id = 1`,
		func(row *sql.Row) error {
			return row.Scan(&running, &st.Checkpoint, &st.ItemsSoFar, &st.TotalEstimate, &started, &updated)
		})
	if err == sql.ErrNoRows {
		_, insErr := s.index.run(ctx, "init_index_status", `INSERT OR IGNORE INTO index_status (id) VALUES (1)`)
		if insErr != nil {
			return st, insErr
		}
		return IndexStatus{}, nil
	}
	if err != nil {
		return st, err
	}
	st.Running = running != 0
	if started.Valid {
		st.StartedAt = time.Unix(started.Int64, 0)
	}
	if updated.Valid {
		st.UpdatedAt = time.Unix(updated.Int64, 0)
	}
	return st, nil
}

// SetIndexCheckpoint records rebuild progress after a committed batch: the
// last path written and the running item count. FullRebuild does not read
// it back to resume an interrupted run.
func (s *Store) SetIndexCheckpoint(ctx context.Context, checkpoint string, itemsSoFar int64) error {
	done := observeQuery(s.index.name, "set_index_checkpoint")
	_, err := s.index.run(ctx, "set_index_checkpoint", `
		INSERT INTO index_status (id, running, checkpoint, items_so_far, updated_at)
		VALUES (1, 1, ?, ?, strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET
			running = 1, checkpoint = excluded.checkpoint, items_so_far = excluded.items_so_far,
			updated_at = strftime('%s','now')
	`, checkpoint, itemsSoFar)
	done(err)
	return err
}

// StartIndexRun marks a fresh rebuild as running from scratch.
func (s *Store) StartIndexRun(ctx context.Context) error {
	done := observeQuery(s.index.name, "start_index_run")
	_, err := s.index.run(ctx, "start_index_run", `
		INSERT INTO index_status (id, running, checkpoint, items_so_far, started_at, updated_at)
		VALUES (1, 1, '', 0, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET
			running = 1, checkpoint = '', items_so_far = 0, started_at = strftime('%s','now'),
			updated_at = strftime('%s','now')
	`)
	done(err)
	return err
}

// FinishIndexRun clears the checkpoint and marks the rebuild complete.
func (s *Store) FinishIndexRun(ctx context.Context) error {
	done := observeQuery(s.index.name, "finish_index_run")
	_, err := s.index.run(ctx, "finish_index_run", `
		UPDATE index_status SET running = 0, checkpoint = '', updated_at = strftime('%s','now') WHERE id = 1
	`)
	done(err)
	return err
}

// --- history.db: ancestor-chain view tracking -----------------------------

// TouchViewHistory bumps last_viewed_at and view_count for a path, used for
// an item and for every ancestor album in its chain so "last viewed"
// propagates upward.
func (s *Store) TouchViewHistory(ctx context.Context, paths []string, when time.Time) error {
	tx, err := s.history.BeginBatch(ctx, beginDeferred)
	if err != nil {
		return err
	}
	var batchErr error
	for _, p := range paths {
		done := observeQuery(s.history.name, "touch_view_history")
		_, err := tx.ExecContext(ctx, `
			INSERT INTO view_history (path, last_viewed_at, view_count)
			VALUES (?, ?, 1)
			ON CONFLICT(path) DO UPDATE SET
				last_viewed_at = excluded.last_viewed_at,
				view_count = view_history.view_count + 1
		`, p, when.Unix())
		done(err)
		if err != nil {
			batchErr = err
			break
		}
	}
	return s.history.EndBatch(tx, batchErr)
}

// GetViewHistory returns the recorded view state for a path, or a zero
// value if it has never been viewed.
func (s *Store) GetViewHistory(ctx context.Context, path string) (ViewHistory, error) {
	var vh ViewHistory
	var lastViewed int64
	err := s.history.get(ctx, "get_view_history", `
		SELECT path, last_viewed_at, view_count FROM view_history WHERE path = ?`,
		func(row *sql.Row) error {
			return row.Scan(&vh.Path, &lastViewed, &vh.ViewCount)
		}, path)
	if err == sql.ErrNoRows {
		return ViewHistory{Path: path}, nil
	}
	if err != nil {
		return vh, err
	}
	vh.LastViewedAt = time.Unix(lastViewed, 0)
	return vh, nil
}
