package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gallery-core/internal/search"
)

type searchEnvelope struct {
	Query       string        `json:"query"`
	Results     []search.Hit `json:"results"`
	Page        int           `json:"page"`
	TotalPages  int           `json:"totalPages"`
	TotalResult int           `json:"totalResults"`
	Limit       int           `json:"limit"`
}

// Search handles GET /api/search?q&page&limit.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, "q is required", nil)
		return
	}

	page, limit := pagingParams(r)
	if limit < 1 {
		limit = 50
	}

	p, err := h.Search.Search(r.Context(), q, page, limit)
	if err != nil {
		if errors.Is(err, search.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, CodeSearchUnavailable, "search index is not ready", nil)
			return
		}
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "search failed", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, searchEnvelope{
		Query:       q,
		Results:     p.Items,
		Page:        p.Page,
		TotalPages:  p.TotalPages,
		TotalResult: p.TotalResult,
		Limit:       limit,
	})
}
