package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/ayusman/airboard/internal/canvas"
	"github.com/ayusman/airboard/internal/session"
)

// StreamHandler serves a session as MJPEG: the drawing composited over the
// camera frame, one part per update.
type StreamHandler struct {
	manager *session.Manager
	opts    *atomic.Pointer[streamOptions]
	logger  *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(m *session.Manager, opts *atomic.Pointer[streamOptions]) *StreamHandler {
	return &StreamHandler{
		manager: m,
		opts:    opts,
		logger:  slog.Default().With("component", "stream"),
	}
}

// ServeHTTP streams MJPEG frames until the client leaves or the session
// ends.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := h.manager.Get(sessionID(r.URL.Path))
	if err != nil {
		h.logger.Warn("stream for unknown session", "path", r.URL.Path)
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	sub := c.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		u, err := sub.Next(r.Context())
		if err != nil {
			return
		}

		buf, err := compose(c, u, *h.opts.Load())
		if err != nil {
			h.logger.Debug("failed to compose frame", "session_id", c.ID(), "error", err)
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// compose renders the update's state over its camera frame. Without a
// usable frame only the canvas is encoded.
func compose(c *session.Coordinator, u session.Update, o streamOptions) ([]byte, error) {
	surface := c.Render(u.Snapshot)
	defer surface.Close()

	if u.Frame != nil && len(u.Frame.JPEG) > 0 {
		if out, err := canvas.Composite(u.Frame.JPEG, surface, o.alpha, o.quality); err == nil {
			return out, nil
		}
	}
	return surface.EncodeJPEG(o.quality)
}
