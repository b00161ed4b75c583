package handlers

import "net/http"

type healthEnvelope struct {
	Status   string           `json:"status"`
	Database healthDBCounts   `json:"database"`
	Cache    healthCacheState `json:"cache"`
}

type healthDBCounts struct {
	Items int64 `json:"items"`
	FTS   int64 `json:"fts"`
}

type healthCacheState struct {
	Degraded bool `json:"degraded"`
}

// HealthCheck handles GET /health (and the /healthz alias).
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.CountItems(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "storage unavailable", nil)
		return
	}
	fts, err := h.Store.CountFTSRows(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "storage unavailable", nil)
		return
	}

	degraded := h.Cache.Ping(r.Context()) != nil

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, healthEnvelope{
		Status:   "ok",
		Database: healthDBCounts{Items: items, FTS: fts},
		Cache:    healthCacheState{Degraded: degraded},
	})
}

// LivenessCheck handles GET /livez: the process is up, nothing more.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, "alive")
}

// ReadinessCheck handles GET /readyz: ready once the indexer has enough of
// the tree indexed to serve meaningful listings.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.Indexer.GetStatus().Ready {
		writeError(w, r, http.StatusServiceUnavailable, CodeInternal, "indexer not ready", nil)
		return
	}
	writeJSONStatus(w, "ready")
}
