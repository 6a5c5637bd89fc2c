package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"push-dispatch-go/internal/models"
)

// SSEHandler streams the caller's own dispatch events.
func (h *Handler) SSEHandler(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	userID := CurrentUser(r)

	// Subscribe to Redis channel
	pubsub := h.stream.Subscribe(ctx)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Errorw("failed to subscribe to dispatch events", "error", err)
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	flusher.Flush()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.DispatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.UserID != userID {
				continue
			}
			fmt.Fprintf(w, "event: dispatch\ndata: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
