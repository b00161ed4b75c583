// Package browse lists direct children of an album path and tracks view
// times. It never reads the filesystem directly: everything it returns
// comes from what the indexer has already committed to storage, plus a
// short-lived cache of resolved covers.
package browse

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"time"

	"gallery-core/internal/cache"
	"gallery-core/internal/logging"
	"gallery-core/internal/pathsafe"
	"gallery-core/internal/storage"
)

const (
	coverCacheTTL     = 7 * 24 * time.Hour
	recentAlbumWindow = 24 * time.Hour
)

// Item is one row of a browse page, already enriched with URLs and cover
// info so the HTTP layer can serialize it directly.
type Item struct {
	Type         string `json:"type"` // "album", "photo", or "video"
	Path         string `json:"path"`
	Name         string `json:"name"`
	MTime        int64  `json:"mtime"`
	Size         int64  `json:"size,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	CoverURL     string `json:"coverUrl,omitempty"`
	OriginalURL  string `json:"originalUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Page is the response shape for a directory listing.
type Page struct {
	Items       []Item `json:"items"`
	Page        int    `json:"page"`
	TotalPages  int    `json:"totalPages"`
	TotalResult int    `json:"totalResults"`
}

// ErrPathNotFound is returned when relPath names neither an indexed item
// nor the root (an empty listing at a path never seen is indistinguishable
// from a typo, so ListDirectory reports it rather than silently paging an
// empty result).
var ErrPathNotFound = errors.New("browse: path not found")

// Service implements direct-children listing and view-time tracking.
type Service struct {
	store *storage.Store
	cache *cache.Cache
}

func New(store *storage.Store, c *cache.Cache) *Service {
	return &Service{store: store, cache: c}
}

// ListDirectory returns one page of relPath's direct children. sort is one
// of name_asc, name_desc, mtime_asc, mtime_desc, viewed_desc, or smart
// (the default for any unrecognized value).
func (s *Service) ListDirectory(ctx context.Context, relPath string, page, limit int, sortKey string) (*Page, error) {
	rel := pathsafe.Rel{}
	if relPath != "" && relPath != "." && relPath != "/" {
		var err error
		rel, err = pathsafe.New(relPath)
		if err != nil {
			return nil, ErrPathNotFound
		}
	}
	if !rel.IsRoot() {
		if _, err := s.store.GetItemByPath(ctx, rel.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrPathNotFound
			}
			return nil, err
		}
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	total, err := s.store.CountDirectChildren(ctx, rel.String())
	if err != nil {
		return nil, err
	}

	switch sortKey {
	case "name_asc", "name_desc", "mtime_asc", "mtime_desc", "viewed_desc", "smart":
	default:
		sortKey = "smart"
	}

	isTwoPhase := sortKey == "viewed_desc" || sortKey == "smart"
	isSmartRoot := sortKey == "smart" && rel.IsRoot()

	column, desc := resolveSort(sortKey, rel.IsRoot())
	offset := (page - 1) * limit

	items, err := s.store.ListDirectChildren(ctx, rel.String(), column, desc, limit, offset)
	if err != nil {
		return nil, err
	}

	switch {
	case isSmartRoot:
		items = reorderSmartRoot(items, time.Now())
	case isTwoPhase:
		items = s.resortByViewTime(ctx, items)
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, s.enrich(ctx, it))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}

	return &Page{Items: out, Page: page, TotalPages: totalPages, TotalResult: int(total)}, nil
}

// resolveSort maps a public sort key to the base SQL ordering. viewed_desc
// and smart both fetch ordered by name first — viewed_desc because the
// view-time re-sort is entirely a post-query step, smart-at-root because
// reorderSmartRoot needs a stable name-ordered baseline for its two groups.
func resolveSort(key string, isRoot bool) (column string, desc bool) {
	switch key {
	case "name_desc":
		return storage.SortColumn("name"), true
	case "mtime_asc":
		return storage.SortColumn("date"), false
	case "mtime_desc":
		return storage.SortColumn("date"), true
	case "name_asc":
		return storage.SortColumn("name"), false
	default: // viewed_desc, smart, and the unrecognized-key fallback
		return storage.SortColumn("name"), false
	}
}

// reorderSmartRoot implements the root listing's smart sort: albums
// modified within recentAlbumWindow float to the top ordered by mtime
// descending; everything else (older albums and all media) keeps its
// incoming name-ascending order.
func reorderSmartRoot(items []storage.Item, now time.Time) []storage.Item {
	cutoff := now.Add(-recentAlbumWindow)

	var recent, rest []storage.Item
	for _, it := range items {
		if it.Type == storage.ItemTypeAlbum && it.MTime.After(cutoff) {
			recent = append(recent, it)
		} else {
			rest = append(rest, it)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].MTime.After(recent[j].MTime) })

	return append(recent, rest...)
}

// resortByViewTime implements the viewed_desc/smart two-phase sort: the
// page was fetched ordered by name (album-chain query avoided across
// main.db/history.db), then re-sorted locally by last-viewed descending,
// with unviewed rows keeping their name order at the tail.
func (s *Service) resortByViewTime(ctx context.Context, items []storage.Item) []storage.Item {
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	viewed, err := s.store.GetViewTimesForPaths(ctx, paths)
	if err != nil {
		logging.Warn("browse: view-time lookup failed, keeping name order: %v", err)
		return items
	}

	sorted := make([]storage.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, aok := viewed[sorted[i].Path]
		b, bok := viewed[sorted[j].Path]
		if sorted[i].Type == storage.ItemTypeAlbum && sorted[j].Type != storage.ItemTypeAlbum {
			return true
		}
		if sorted[j].Type == storage.ItemTypeAlbum && sorted[i].Type != storage.ItemTypeAlbum {
			return false
		}
		switch {
		case aok && bok:
			return a.After(b)
		case aok:
			return true
		case bok:
			return false
		default:
			return false
		}
	})
	return sorted
}

func (s *Service) enrich(ctx context.Context, it storage.Item) Item {
	out := Item{
		Path: it.Path, Name: it.Name, MTime: it.MTime.Unix(),
	}
	switch it.Type {
	case storage.ItemTypeAlbum:
		out.Type = "album"
		if cover, ok := s.resolveCover(ctx, it.Path); ok {
			out.CoverURL = staticURL(cover.Path) + "?v=" + strconv.FormatInt(cover.MTime.Unix(), 10)
		}
	case storage.ItemTypeVideo:
		out.Type = "video"
		out.Size = it.Size
		out.Width, out.Height = it.Width, it.Height
		out.OriginalURL = staticURL(it.Path)
		out.ThumbnailURL = thumbnailURL(it.Path, it.MTime)
	default:
		out.Type = "photo"
		out.Size = it.Size
		out.Width, out.Height = it.Width, it.Height
		out.OriginalURL = staticURL(it.Path)
		out.ThumbnailURL = thumbnailURL(it.Path, it.MTime)
	}
	return out
}

// AlbumCoverURL resolves an album's cover the same way a directory listing
// would, for callers outside this package (search result enrichment) that
// need a single cover lookup without paging a whole directory.
func (s *Service) AlbumCoverURL(ctx context.Context, albumPath string) (string, bool) {
	cover, ok := s.resolveCover(ctx, albumPath)
	if !ok {
		return "", false
	}
	return staticURL(cover.Path) + "?v=" + strconv.FormatInt(cover.MTime.Unix(), 10), true
}

type coverResult struct {
	Path  string
	MTime time.Time
}

// resolveCover tries album_covers first, then the windowed-SQL fallback
// over direct children, caching whichever is found for coverCacheTTL.
func (s *Service) resolveCover(ctx context.Context, albumPath string) (coverResult, bool) {
	cacheKey := "cover:" + albumPath
	if s.cache != nil {
		if val, hit, _ := s.cache.Get(ctx, cacheKey); hit {
			if cover, ok := decodeCoverCache(val); ok {
				return cover, true
			}
		}
	}

	if cover, err := s.store.GetAlbumCover(ctx, albumPath); err == nil {
		result := coverResult{Path: cover.ItemPath, MTime: cover.ComputedAt}
		s.cacheCover(ctx, cacheKey, albumPath, result)
		return result, true
	}

	if item, err := s.store.GetAlbumCoverFallback(ctx, albumPath); err == nil {
		result := coverResult{Path: item.Path, MTime: item.MTime}
		s.cacheCover(ctx, cacheKey, albumPath, result)
		return result, true
	}

	return coverResult{}, false
}

func (s *Service) cacheCover(ctx context.Context, cacheKey, albumPath string, cover coverResult) {
	if s.cache == nil {
		return
	}
	encoded := cover.Path + "\x00" + strconv.FormatInt(cover.MTime.Unix(), 10)
	if err := s.cache.Set(ctx, cacheKey, encoded, coverCacheTTL); err != nil {
		return
	}
	_ = s.cache.AddTagsToKey(ctx, cacheKey, []string{"album:" + albumPath}, coverCacheTTL)
}

func decodeCoverCache(val string) (coverResult, bool) {
	for i := 0; i < len(val); i++ {
		if val[i] == 0 {
			ts, err := strconv.ParseInt(val[i+1:], 10, 64)
			if err != nil {
				return coverResult{}, false
			}
			return coverResult{Path: val[:i], MTime: time.Unix(ts, 0)}, true
		}
	}
	return coverResult{}, false
}

func staticURL(relPath string) string {
	return "/static/" + url.PathEscape(relPath)
}

func thumbnailURL(relPath string, mtime time.Time) string {
	v := strconv.FormatInt(mtime.Unix(), 10)
	return "/api/thumbnail?path=" + url.QueryEscape(relPath) + "&v=" + v
}

// UpdateViewTime records relPath (and every ancestor album up to the root)
// as viewed now, then invalidates the cached cover/listing for the parent
// so the new ordering is visible on the next browse.
func (s *Service) UpdateViewTime(ctx context.Context, relPath string) error {
	rel, err := pathsafe.New(relPath)
	if err != nil {
		return ErrPathNotFound
	}

	chain := []string{rel.String()}
	for _, anc := range rel.Ancestors() {
		chain = append(chain, anc.String())
	}

	if err := s.store.TouchViewHistory(ctx, chain, time.Now()); err != nil {
		return err
	}

	if s.cache != nil {
		tags := make([]string, 0, len(chain))
		for _, p := range chain {
			tags = append(tags, "album:"+p)
		}
		if err := s.cache.InvalidateTags(ctx, tags); err != nil && err != cache.ErrCeilingExceeded {
			logging.Warn("browse: view-time cache invalidation failed: %v", err)
		}
	}
	return nil
}
