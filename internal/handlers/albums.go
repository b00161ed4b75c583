package handlers

import (
	"net/http"
	"strconv"

	"gallery-core/internal/storage"
)

const (
	defaultCoversLimit = 100
	maxCoversLimit     = 500
)

type coversEnvelope struct {
	Covers     []storage.AlbumCover `json:"covers"`
	NextCursor int                  `json:"nextCursor"`
}

// ListAlbumCovers handles GET /api/albums/covers.
func (h *Handlers) ListAlbumCovers(w http.ResponseWriter, r *http.Request) {
	h.listAlbumCoversPage(w, r, defaultCoversLimit, 0)
}

// ListAlbumCoversCursor handles GET /api/albums/covers/cursor?limit&cursor.
func (h *Handlers) ListAlbumCoversCursor(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if cursor < 0 {
		cursor = 0
	}
	h.listAlbumCoversPage(w, r, limit, cursor)
}

func (h *Handlers) listAlbumCoversPage(w http.ResponseWriter, r *http.Request, limit, cursor int) {
	if limit < 1 {
		limit = defaultCoversLimit
	}
	if limit > maxCoversLimit {
		limit = maxCoversLimit
	}

	covers, next, err := h.Store.ListAlbumCoversPage(r.Context(), limit, cursor)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to list album covers", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, coversEnvelope{Covers: covers, NextCursor: next})
}
