package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"gallery-core/internal/browse"
)

// browseEnvelope is browse.Page with items re-shaped to the §6 wire
// contract: {type, data} instead of the flat struct browse.Item already is.
type browseEnvelope struct {
	Items       []browseItemEnvelope `json:"items"`
	Page        int                  `json:"page"`
	TotalPages  int                  `json:"totalPages"`
	TotalResult int                  `json:"totalResults"`
}

type browseItemEnvelope struct {
	Type string       `json:"type"`
	Data *browse.Item `json:"data"`
}

func wrapPage(p *browse.Page) browseEnvelope {
	items := make([]browseItemEnvelope, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, browseItemEnvelope{Type: p.Items[i].Type, Data: &p.Items[i]})
	}
	return browseEnvelope{Items: items, Page: p.Page, TotalPages: p.TotalPages, TotalResult: p.TotalResult}
}

// ListDirectory handles GET /api/browse/{path:.*}.
func (h *Handlers) ListDirectory(w http.ResponseWriter, r *http.Request) {
	relPath := mux.Vars(r)["path"]
	page, limit := pagingParams(r)
	sortKey := r.URL.Query().Get("sort")

	p, err := h.Browse.ListDirectory(r.Context(), relPath, page, limit, sortKey)
	if err != nil {
		if errors.Is(err, browse.ErrPathNotFound) {
			writeError(w, r, http.StatusNotFound, CodePathNotFound, "directory not found", nil)
			return
		}
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to list directory", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, wrapPage(p))
}

// MarkViewed handles POST /api/browse/viewed.
func (h *Handlers) MarkViewed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Path) == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "path is required", nil)
		return
	}

	if err := h.Browse.UpdateViewTime(r.Context(), body.Path); err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to record view", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pagingParams parses ?page&limit without clamping: a missing or malformed
// value comes back as 0, and the service it is passed to applies its own
// defaults.
func pagingParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
