package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseHeartbeatInterval is how often an SSE comment is sent on an idle
// stream so proxies do not drop the connection.
const sseHeartbeatInterval = 15 * time.Second

// StreamLines handles GET /api/v1/lines/stream (SSE)
func (h *Handlers) StreamLines(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Check if flusher is available
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	filter, _ := parseLineParams(r)

	// Subscribe to the line feed
	subID, ch, err := h.feed.Subscribe(filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer h.feed.Unsubscribe(subID)

	// Send initial comment to establish connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	// Stream lines
	// Protection against slow clients:
	// 1. The subscription uses a buffered channel - if the client can't keep up, events are dropped
	// 2. Write errors cause the handler to return, cleaning up the subscription
	// 3. Context cancellation (client disconnect) is handled via select
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}

			// Convert to JSON
			resp := ToLineResponse(ev)
			data, err := json.Marshal(resp)
			if err != nil {
				continue
			}

			// Send SSE event - handle write errors to detect slow/disconnected clients
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				h.log.WithError(err).Debug("sse write error, client likely disconnected")
				return
			}
			flusher.Flush()
		}
	}
}
