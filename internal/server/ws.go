package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/airboard/internal/session"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// wsMessage is a JSON message sent to websocket clients. Composited frames
// are sent separately as binary JPEG messages.
type wsMessage struct {
	Type   string          `json:"type"` // status, result, error, ended
	Status *session.Status `json:"status,omitempty"`
	Result *session.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WSHandler connects a websocket client to a session. The client receives
// status changes and composited frames and may send control commands.
type WSHandler struct {
	manager *session.Manager
	opts    *atomic.Pointer[streamOptions]
	logger  *slog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(m *session.Manager, opts *atomic.Pointer[streamOptions]) *WSHandler {
	return &WSHandler{
		manager: m,
		opts:    opts,
		logger:  slog.Default().With("component", "ws"),
	}
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) writeJSON(m wsMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.manager.Get(sessionID(r.URL.Path))
	if err != nil {
		h.logger.Warn("websocket for unknown session", "path", r.URL.Path)
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := c.Subscribe()
	defer sub.Close()

	go h.readCommands(ctx, cancel, ws, c)

	var last session.Status
	first := true
	for {
		u, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				ws.writeJSON(wsMessage{Type: "ended", Error: err.Error()})
				ws.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			}
			return
		}

		st := u.Snapshot.Status
		st.FrameSeq = 0
		if first || st != last {
			first, last = false, st
			status := u.Snapshot.Status
			if err := ws.writeJSON(wsMessage{Type: "status", Status: &status}); err != nil {
				return
			}
		}

		buf, err := compose(c, u, *h.opts.Load())
		if err != nil {
			h.logger.Debug("failed to compose frame", "session_id", c.ID(), "error", err)
			continue
		}
		if err := ws.write(websocket.BinaryMessage, buf); err != nil {
			return
		}
	}
}

// readCommands applies control commands sent by the client and replies
// with their results. It cancels ctx when the client goes away.
func (h *WSHandler) readCommands(ctx context.Context, cancel context.CancelFunc, ws *wsConn, c *session.Coordinator) {
	defer cancel()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd session.ControlCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			ws.writeJSON(wsMessage{Type: "error", Error: "invalid JSON"})
			continue
		}

		res, err := c.Submit(ctx, cmd)
		if err != nil {
			ws.writeJSON(wsMessage{Type: "error", Error: err.Error(), Result: &res})
			continue
		}
		ws.writeJSON(wsMessage{Type: "result", Result: &res})
	}
}
