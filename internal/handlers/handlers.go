// Package handlers implements the HTTP surface wired up in cmd/gallery-server:
// browsing, thumbnails, search, albums, live events, and the admin/metrics
// endpoints. Everything here is a thin adapter over internal/browse,
// internal/search, internal/thumbnail, internal/storage, internal/cache,
// internal/indexer, and internal/jobs — no business logic lives in this
// package.
package handlers

import (
	"gallery-core/internal/browse"
	"gallery-core/internal/cache"
	"gallery-core/internal/eventbus"
	"gallery-core/internal/indexer"
	"gallery-core/internal/jobs"
	"gallery-core/internal/search"
	"gallery-core/internal/storage"
	"gallery-core/internal/thumbnail"
	"gallery-core/internal/watcher"
)

// Handlers holds every dependency the HTTP layer needs. Fields are exported
// so cmd/gallery-server can construct it as a literal.
type Handlers struct {
	Store     *storage.Store
	Cache     *cache.Cache
	Bus       *eventbus.Bus
	Indexer   *indexer.Indexer
	Watcher   *watcher.Watcher
	Browse    *browse.Service
	Search    *search.Service
	Thumbs    *thumbnail.Service
	Queue     *jobs.Queue
	MediaDir  string
	ThumbsDir string

	// AdminSecret gates the cache stats and cache clear admin endpoints. An
	// empty secret means PublicAccess decides whether they're open.
	AdminSecret  string
	PublicAccess bool
}

// New assembles the handler set from the component graph built at startup.
func New(
	store *storage.Store,
	c *cache.Cache,
	bus *eventbus.Bus,
	idx *indexer.Indexer,
	w *watcher.Watcher,
	browseSvc *browse.Service,
	searchSvc *search.Service,
	thumbSvc *thumbnail.Service,
	queue *jobs.Queue,
	mediaDir, thumbsDir, adminSecret string,
	publicAccess bool,
) *Handlers {
	return &Handlers{
		Store:        store,
		Cache:        c,
		Bus:          bus,
		Indexer:      idx,
		Watcher:      w,
		Browse:       browseSvc,
		Search:       searchSvc,
		Thumbs:       thumbSvc,
		Queue:        queue,
		MediaDir:     mediaDir,
		ThumbsDir:    thumbsDir,
		AdminSecret:  adminSecret,
		PublicAccess: publicAccess,
	}
}

// authorizedForAdmin reports whether r carries the configured admin secret
// (via X-Admin-Secret), or whether the deployment has opted out of gating
// entirely via PublicAccess.
func (h *Handlers) authorizedForAdmin(headerValue string) bool {
	if h.PublicAccess {
		return true
	}
	if h.AdminSecret == "" {
		return false
	}
	return headerValue == h.AdminSecret
}
