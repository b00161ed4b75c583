package storage

import (
	"context"
	"database/sql"
	"time"
)

// --- main.db: full-text search --------------------------------------------
//
// items_fts is joined back to items by rowid=id. Album hits are suppressed
// when a shallower album already matched (HasPrefixDir-equivalent done in
// SQL via a self-join), since a search for "vacation" shouldn't return both
// "Vacation" and "Vacation/Beach".

const searchWhereAndOrder = `
	FROM items_fts
	JOIN items ON items.id = items_fts.rowid
	WHERE items_fts MATCH ?
	  AND NOT (
	    items.type = 'album' AND EXISTS (
	      SELECT 1 FROM items_fts f2
	      JOIN items i2 ON i2.id = f2.rowid
	      WHERE f2.rowid != items_fts.rowid
	        AND i2.type = 'album'
	        AND f2.rowid IN (SELECT rowid FROM items_fts WHERE items_fts MATCH ?)
	        AND items.path LIKE i2.path || '/%'
	    )
	  )
`

// CountSearchResults reports the total number of rows an FTS query would
// return across all pages, for the search response's totalResults.
func (s *Store) CountSearchResults(ctx context.Context, ftsQuery string) (int64, error) {
	var n int64
	err := s.main.get(ctx, "count_search_results", `SELECT COUNT(*) `+searchWhereAndOrder,
		func(row *sql.Row) error { return row.Scan(&n) }, ftsQuery, ftsQuery)
	return n, err
}

// SearchItems returns one page of matches, albums ranked ahead of media,
// ties broken by fts5's bm25 rank (more relevant first).
func (s *Store) SearchItems(ctx context.Context, ftsQuery string, limit, offset int) ([]Item, error) {
	query := `
		SELECT items.id, items.name, items.path, items.parent_path, items.type, items.size,
		       items.mod_time, items.mime_type, items.width, items.height, items.file_hash
		` + searchWhereAndOrder + `
		ORDER BY CASE items.type WHEN 'album' THEN 0 ELSE 1 END, rank
		LIMIT ? OFFSET ?`

	var items []Item
	err := s.main.all(ctx, "search_items", query, func(rows *sql.Rows) error {
		var it Item
		var mtime int64
		if err := rows.Scan(&it.ID, &it.Name, &it.Path, &it.ParentPath, &it.Type, &it.Size,
			&mtime, &it.MimeType, &it.Width, &it.Height, &it.Hash); err != nil {
			return err
		}
		it.MTime = time.Unix(mtime, 0)
		items = append(items, it)
		return nil
	}, ftsQuery, ftsQuery, limit, offset)
	return items, err
}
