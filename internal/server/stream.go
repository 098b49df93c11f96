package server

import (
	"fmt"
	"net/http"
	"time"
)

// streamPoll is how often the stream checks for a new annotated frame.
const streamPoll = 33 * time.Millisecond

// StreamHandler serves the annotated tracking frames as MJPEG.
type StreamHandler struct {
	source interface {
		LatestJPEG() ([]byte, uint64)
	}
}

// NewStreamHandler creates a StreamHandler over t's latest frames.
func NewStreamHandler(t Tracker) *StreamHandler {
	return &StreamHandler{source: t}
}

// ServeHTTP streams MJPEG frames until the client disconnects. A frame is
// written only when the loop has produced a new one.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamPoll)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		data, seq := h.source.LatestJPEG()
		if seq == 0 || seq == last {
			continue
		}
		last = seq

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
