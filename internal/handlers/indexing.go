package handlers

import "net/http"

type indexingStatusEnvelope struct {
	Running       bool   `json:"running"`
	Checkpoint    string `json:"checkpoint"`
	ItemsSoFar    int64  `json:"itemsSoFar"`
	TotalEstimate int64  `json:"totalEstimate"`
	StartedAt     int64  `json:"startedAt,omitempty"`
	UpdatedAt     int64  `json:"updatedAt,omitempty"`
	IndexerReady  bool   `json:"indexerReady"`
}

// IndexingStatus handles GET /api/indexing.
func (h *Handlers) IndexingStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.GetIndexStatus(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to read index status", nil)
		return
	}

	out := indexingStatusEnvelope{
		Running:       st.Running,
		Checkpoint:    st.Checkpoint,
		ItemsSoFar:    st.ItemsSoFar,
		TotalEstimate: st.TotalEstimate,
		IndexerReady:  h.Indexer.GetStatus().Ready,
	}
	if !st.StartedAt.IsZero() {
		out.StartedAt = st.StartedAt.Unix()
	}
	if !st.UpdatedAt.IsZero() {
		out.UpdatedAt = st.UpdatedAt.Unix()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out)
}
