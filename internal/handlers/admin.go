package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

const adminSecretHeader = "X-Admin-Secret"

// requireAdmin writes a 401 and returns false if the request isn't
// authorized for admin-gated endpoints.
func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.authorizedForAdmin(r.Header.Get(adminSecretHeader)) {
		return true
	}
	writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "admin access required", nil)
	return false
}

// CacheStats handles GET /api/cache/stats.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	stats, err := h.Cache.GetStats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to read cache stats", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

// ClearCache handles POST /api/cache/clear and POST /api/cache/clear/{pattern}.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	pattern := mux.Vars(r)["pattern"]
	if pattern == "" {
		pattern = "*"
	}

	deleted, err := h.Cache.DeletePattern(r.Context(), pattern)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to clear cache", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int64{"deleted": deleted})
}

// MetricsCache handles GET /api/metrics/cache: a JSON snapshot of the cache
// backend's key count and connection pool stats (Cache.GetStats).
func (h *Handlers) MetricsCache(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Cache.GetStats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to read cache metrics", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

// MetricsQueue handles GET /api/metrics/queue.
func (h *Handlers) MetricsQueue(w http.ResponseWriter, r *http.Request) {
	depth, err := h.Queue.QueueDepth()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to read queue depth", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"pending": depth})
}
