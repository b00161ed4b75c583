package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- main.db: direct-children listing ------------------------------------
//
// listDirectory is a single pass over direct children of a parent path —
// no filesystem read. Albums always sort ahead of media regardless of the
// requested sort key, mirroring the teacher's is_dir-first ordering.

// CountDirectChildren reports how many items have parentPath as their
// direct parent, for the browse page's totalResults/totalPages.
func (s *Store) CountDirectChildren(ctx context.Context, parentPath string) (int64, error) {
	var n int64
	err := s.main.get(ctx, "count_direct_children", `
		SELECT COUNT(*) FROM items WHERE parent_path = ?`, func(row *sql.Row) error {
		return row.Scan(&n)
	}, parentPath)
	return n, err
}

// ListDirectChildren returns one page of parentPath's direct children,
// albums first, then ordered by sortColumn (an allowlisted expression from
// SortColumn — never a caller-supplied string).
func (s *Store) ListDirectChildren(ctx context.Context, parentPath, sortColumn string, desc bool, limit, offset int) ([]Item, error) {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, name, path, parent_path, type, size, mod_time, mime_type, width, height,
		       file_hash, created_at, updated_at, content_updated_at, last_viewed_at
		FROM items
		WHERE parent_path = ?
		ORDER BY (type = 'album') DESC, %s %s
		LIMIT ? OFFSET ?`, sortColumn, dir)

	var items []Item
	err := s.main.all(ctx, "list_direct_children", query, func(rows *sql.Rows) error {
		var it Item
		var mtime, createdAt, updatedAt, contentUpdatedAt int64
		var lastViewed sql.NullInt64
		if err := rows.Scan(&it.ID, &it.Name, &it.Path, &it.ParentPath, &it.Type, &it.Size,
			&mtime, &it.MimeType, &it.Width, &it.Height, &it.Hash,
			&createdAt, &updatedAt, &contentUpdatedAt, &lastViewed); err != nil {
			return err
		}
		it.MTime = time.Unix(mtime, 0)
		it.CreatedAt = time.Unix(createdAt, 0)
		it.UpdatedAt = time.Unix(updatedAt, 0)
		it.ContentUpdatedAt = time.Unix(contentUpdatedAt, 0)
		if lastViewed.Valid {
			t := time.Unix(lastViewed.Int64, 0)
			it.LastViewedAt = &t
		}
		items = append(items, it)
		return nil
	}, parentPath, limit, offset)
	return items, err
}

// GetAlbumCoverFallback picks the most recently modified direct media child
// of albumPath, the windowed-SQL substitute used when album_covers has no
// precomputed row yet (a legacy album from before the cover pass ran).
func (s *Store) GetAlbumCoverFallback(ctx context.Context, albumPath string) (*Item, error) {
	var it Item
	var mtime int64
	err := s.main.get(ctx, "get_album_cover_fallback", `
		SELECT path, width, height, mod_time FROM items
		WHERE parent_path = ? AND type IN (?, ?)
		ORDER BY mod_time DESC, path DESC
		LIMIT 1`,
		func(row *sql.Row) error {
			return row.Scan(&it.Path, &it.Width, &it.Height, &mtime)
		}, albumPath, ItemTypeImage, ItemTypeVideo)
	if err != nil {
		return nil, err
	}
	it.MTime = time.Unix(mtime, 0)
	return &it, nil
}

// --- history.db: bulk view-time lookup for viewed_desc sort ---------------

// GetViewTimesForPaths returns last_viewed_at for each of the given paths
// that has ever been viewed; paths absent from the result were never
// viewed. Kept as a separate query (rather than a cross-database join,
// which SQLite can't do between independent connections) per the two-phase
// viewed_desc sort: the items page is fetched first, then this lookup
// re-sorts it locally.
func (s *Store) GetViewTimesForPaths(ctx context.Context, paths []string) (map[string]time.Time, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	query := fmt.Sprintf(`SELECT path, last_viewed_at FROM view_history WHERE path IN (%s)`, joinPlaceholders(placeholders))

	out := make(map[string]time.Time, len(paths))
	err := s.history.all(ctx, "get_view_times_for_paths", query, func(rows *sql.Rows) error {
		var p string
		var viewed int64
		if err := rows.Scan(&p, &viewed); err != nil {
			return err
		}
		out[p] = time.Unix(viewed, 0)
		return nil
	}, args...)
	return out, err
}

func joinPlaceholders(ph []string) string {
	out := ph[0]
	for _, p := range ph[1:] {
		out += "," + p
	}
	return out
}
