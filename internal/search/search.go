// Package search implements free-text lookup over the indexer's n-gram
// tokens. It never writes to storage; everything here is a read against
// whatever the indexer has already committed to items_fts.
package search

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"gallery-core/internal/indexer"
	"gallery-core/internal/storage"
)

// ErrUnavailable is returned when the index hasn't been built yet (items or
// items_fts has zero rows) — distinct from a query that legitimately
// matches nothing.
var ErrUnavailable = errors.New("search: index not yet available")

// metacharacters are stripped before tokenization: FTS5 query syntax
// characters that would otherwise need escaping, plus punctuation that
// never carries search meaning for a filename-oriented index.
const metacharacters = `(){}[]/\"*?!:^~+-,.`

// Hit is one search result, shaped like a browse.Item so the HTTP layer can
// serialize both the same way.
type Hit struct {
	Type         string `json:"type"`
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

// Page is the response shape for a search request.
type Page struct {
	Items       []Hit `json:"items"`
	Page        int   `json:"page"`
	TotalPages  int   `json:"totalPages"`
	TotalResult int   `json:"totalResults"`
}

// CoverLookup resolves an album's precomputed cover, implemented by
// browse.Service — search only needs the read half of that contract, kept
// as an interface here to avoid search depending on the whole browse
// package for one lookup.
type CoverLookup interface {
	AlbumCoverURL(ctx context.Context, albumPath string) (string, bool)
}

// Service implements free-text search.
type Service struct {
	store  *storage.Store
	covers CoverLookup
}

func New(store *storage.Store, covers CoverLookup) *Service {
	return &Service{store: store, covers: covers}
}

// Search runs a sanitized free-text query against items_fts. Rejecting a
// literally empty q is the HTTP layer's job (spec: q="" is a 400); once a
// query reaches here, a query that sanitizes down to nothing (e.g. all
// metacharacters) yields an empty page rather than an error — it's a
// legitimate "nothing to search for", not a bad request. An unbuilt index
// returns ErrUnavailable.
func (s *Service) Search(ctx context.Context, q string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	sanitized := sanitize(q)
	if sanitized == "" {
		return &Page{Items: []Hit{}, Page: page, TotalPages: 1, TotalResult: 0}, nil
	}

	itemCount, err := s.store.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	ftsCount, err := s.store.CountFTSRows(ctx)
	if err != nil {
		return nil, err
	}
	if itemCount == 0 || ftsCount == 0 {
		return nil, ErrUnavailable
	}

	ftsQuery := indexer.Ngrams(sanitized)

	total, err := s.store.CountSearchResults(ctx, ftsQuery)
	if err != nil {
		return nil, err
	}

	items, err := s.store.SearchItems(ctx, ftsQuery, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(items))
	for _, it := range items {
		hits = append(hits, s.toHit(ctx, it))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}

	return &Page{Items: hits, Page: page, TotalPages: totalPages, TotalResult: int(total)}, nil
}

func (s *Service) toHit(ctx context.Context, it storage.Item) Hit {
	h := Hit{Path: it.Path, Name: it.Name, MTime: it.MTime.Unix()}
	switch it.Type {
	case storage.ItemTypeAlbum:
		h.Type = "album"
		if s.covers != nil {
			if coverURL, ok := s.covers.AlbumCoverURL(ctx, it.Path); ok {
				h.CoverURL = coverURL
			}
		}
	case storage.ItemTypeVideo:
		h.Type = "video"
		h.Size, h.Width, h.Height = it.Size, it.Width, it.Height
		h.OriginalURL = "/static/" + url.PathEscape(it.Path)
		h.ThumbnailURL = "/api/thumbnail?path=" + url.QueryEscape(it.Path) + "&v=" + strconv.FormatInt(it.MTime.Unix(), 10)
	default:
		h.Type = "photo"
		h.Size, h.Width, h.Height = it.Size, it.Width, it.Height
		h.OriginalURL = "/static/" + url.PathEscape(it.Path)
		h.ThumbnailURL = "/api/thumbnail?path=" + url.QueryEscape(it.Path) + "&v=" + strconv.FormatInt(it.MTime.Unix(), 10)
	}
	return h
}

// sanitize strips FTS metacharacters and collapses whitespace, mirroring
// the n-gram tokenizer's own normalization so a search for "Paris trip"
// matches what was indexed for "Paris trip.jpg".
func sanitize(q string) string {
	var b strings.Builder
	for _, r := range q {
		if strings.ContainsRune(metacharacters, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
