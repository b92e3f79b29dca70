package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
	"github.com/ayusman/airboard/internal/stroke"
)

// maxFrameSize bounds uploaded JPEG frames.
const maxFrameSize = 8 << 20

// Capture attaches the camera pipeline to a session. *app.App implements it.
type Capture interface {
	Attach(s app.Sink) error
	Attached() (string, bool)
}

// SessionHandler handles HTTP requests for drawing sessions.
type SessionHandler struct {
	manager *session.Manager
	store   *store.Store
	capture Capture
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler. st and capture may be nil;
// without a store the start options are not remembered, without capture
// sessions can only be fed through the frames and gestures endpoints.
func NewSessionHandler(m *session.Manager, st *store.Store, capture Capture) *SessionHandler {
	return &SessionHandler{
		manager: m,
		store:   st,
		capture: capture,
		logger:  slog.Default().With("component", "api"),
	}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and
// /api/sessions/{id}/{commands,gestures,frames,canvas.png}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/sessions")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.start(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	case 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.stop(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	case 2:
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	var handle func(http.ResponseWriter, *http.Request, *session.Coordinator)
	method := http.MethodPost
	switch parts[1] {
	case "commands":
		handle = h.command
	case "gestures":
		handle = h.gesture
	case "frames":
		handle = h.frame
	case "canvas.png":
		handle, method = h.canvas, http.MethodGet
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, ok := h.lookup(w, parts[0])
	if !ok {
		return
	}
	handle(w, r, c)
}

// Request and response types

type startSessionRequest struct {
	Color     string `json:"color"`
	BrushSize int    `json:"brush_size"`
	Capture   bool   `json:"capture"`
}

type gestureRequest struct {
	Label    string       `json:"label"`
	Position stroke.Point `json:"position"`
	FrameSeq uint64       `json:"frame_seq"`
	// Skip reports that no gesture will be produced for FrameSeq.
	Skip bool `json:"skip"`
}

type sessionResponse struct {
	session.Status
	CreatedAt string         `json:"created_at"`
	Capture   bool           `json:"capture"`
	Stats     *session.Stats `json:"stats,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func (h *SessionHandler) toResponse(c *session.Coordinator, withStats bool) sessionResponse {
	resp := sessionResponse{
		Status:    c.Status(),
		CreatedAt: c.CreatedAt().Format(time.RFC3339),
	}
	if h.capture != nil {
		if id, ok := h.capture.Attached(); ok && id == c.ID() {
			resp.Capture = true
		}
	}
	if withStats {
		stats := c.Stats()
		resp.Stats = &stats
	}
	return resp
}

func (h *SessionHandler) lookup(w http.ResponseWriter, id string) (*session.Coordinator, bool) {
	c, err := h.manager.Get(id)
	if err != nil {
		h.logger.Warn("unknown session", "session_id", id)
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return c, true
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, c := range sessions {
		response.Sessions = append(response.Sessions, h.toResponse(c, false))
	}
	writeJSON(w, http.StatusOK, response)
}

// start handles POST /api/sessions. The body is optional.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Capture && h.capture == nil {
		writeError(w, http.StatusServiceUnavailable, "Capture is not available")
		return
	}

	c := h.manager.Start(h.startOptions(req))

	if req.Capture {
		if err := h.capture.Attach(c); err != nil {
			h.logger.Warn("capture attach failed", "session_id", c.ID(), "error", err)
			c.Stop()
			writeError(w, StatusFor(err), err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, h.toResponse(c, false))
}

// startOptions fills options missing from req with the last used settings.
func (h *SessionHandler) startOptions(req startSessionRequest) session.StartOptions {
	opts := session.StartOptions{Color: req.Color, BrushSize: req.BrushSize}
	if h.store == nil {
		return opts
	}
	settings := h.store.Settings()
	if opts.Color == "" {
		if v, err := settings.Get(store.SettingColor); err == nil {
			opts.Color = v
		}
	}
	if opts.BrushSize == 0 {
		if v, err := settings.GetInt(store.SettingBrushSize); err == nil {
			opts.BrushSize = v
		}
	}
	return opts
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(c, true))
}

// stop handles DELETE /api/sessions/{id}.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.manager.Stop(id); err != nil {
		h.logger.Warn("unknown session", "session_id", id)
		writeError(w, StatusFor(err), "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// command handles POST /api/sessions/{id}/commands.
func (h *SessionHandler) command(w http.ResponseWriter, r *http.Request, c *session.Coordinator) {
	var cmd session.ControlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	res, err := c.Submit(r.Context(), cmd)
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	h.remember(cmd, res)

	writeJSON(w, http.StatusOK, res)
}

// remember stores the color and brush size so the next session starts
// with them.
func (h *SessionHandler) remember(cmd session.ControlCommand, res session.Result) {
	if h.store == nil || !res.Applied {
		return
	}
	var err error
	switch cmd.Type {
	case session.CommandSetColor:
		err = h.store.Settings().Set(store.SettingColor, res.Status.Color)
	case session.CommandSetBrushSize:
		err = h.store.Settings().SetInt(store.SettingBrushSize, res.Status.BrushSize)
	}
	if err != nil {
		h.logger.Warn("failed to store setting", "command", cmd.Type, "error", err)
	}
}

// gesture handles POST /api/sessions/{id}/gestures from external
// classifiers.
func (h *SessionHandler) gesture(w http.ResponseWriter, r *http.Request, c *session.Coordinator) {
	var req gestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var err error
	if req.Skip {
		err = c.SkipGesture(req.FrameSeq)
	} else {
		var label mode.Label
		if label, err = mode.ParseLabel(req.Label); err == nil {
			err = c.SubmitGesture(session.GestureEvent{Label: label, Position: req.Position, FrameSeq: req.FrameSeq})
		}
	}
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// frame handles POST /api/sessions/{id}/frames?seq=N with a JPEG body.
func (h *SessionHandler) frame(w http.ResponseWriter, r *http.Request, c *session.Coordinator) {
	seq, err := strconv.ParseUint(r.URL.Query().Get("seq"), 10, 64)
	if err != nil || seq == 0 {
		writeError(w, http.StatusBadRequest, "seq must be a positive integer")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read frame")
		return
	}
	if len(data) == 0 || len(data) > maxFrameSize {
		writeError(w, http.StatusBadRequest, "Frame must be a non-empty JPEG up to 8MB")
		return
	}

	if err := c.SubmitFrame(session.Frame{Seq: seq, JPEG: data, CapturedAt: time.Now()}); err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// canvas handles GET /api/sessions/{id}/canvas.png.
func (h *SessionHandler) canvas(w http.ResponseWriter, r *http.Request, c *session.Coordinator) {
	surface := c.Render(c.Snapshot())
	defer surface.Close()

	data, err := surface.EncodePNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render canvas")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}
