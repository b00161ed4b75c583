package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gallery-core/internal/logging"
)

const sseKeepAlive = 15 * time.Second

// Events handles GET /api/events, an SSE stream of thumbnail activity
// (indexing events are not forwarded). Every client first receives a "connected" event carrying an
// opaque client id, then "thumbnail-generated" events as they're published.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.Bus.Subscribe("thumbnail-generated")
	defer sub.Close()

	clientID := fmt.Sprintf("%d", time.Now().UnixNano())
	writeSSE(w, "connected", map[string]string{"clientId": clientID})
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.Events:
			if !open {
				return
			}
			writeSSE(w, evt.Topic, evt.Data)
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				logging.Warn("events: keep-alive write failed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		logging.Warn("events: failed to marshal %q payload: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}
