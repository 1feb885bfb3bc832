package http

import (
	"errors"
	"net/http"
	"strings"

	"vessel-monitor/internal/realtime"
)

// StreamHandler serves the per-equipment SSE stream. Clients subscribe
// by external equipment code and receive every event published to that
// equipment's channel.
type StreamHandler struct {
	broker *realtime.SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *realtime.SSEBroker) (*StreamHandler, error) {
	if broker == nil {
		return nil, errors.New("stream handler: nil broker")
	}
	return &StreamHandler{broker: broker}, nil
}

// ServeHTTP handles GET /api/v1/stream/{code}.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/api/v1/stream/")
	if code == "" || strings.Contains(code, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	channel := realtime.ChannelPrefix + code
	ch := h.broker.Subscribe(channel)
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(channel, ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
