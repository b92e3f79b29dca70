package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
	"github.com/ayusman/airboard/internal/stroke"
)

type fakeCapture struct {
	err      error
	attached string
}

func (f *fakeCapture) Attach(s app.Sink) error {
	if f.err != nil {
		return f.err
	}
	f.attached = s.ID()
	return nil
}

func (f *fakeCapture) Attached() (string, bool) {
	return f.attached, f.attached != ""
}

func startSession(t *testing.T, h http.Handler, body any) sessionResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/sessions status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[sessionResponse](t, rec)
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	m := newTestManager(t)
	h := NewSessionHandler(m, nil, nil)

	created := startSession(t, h, nil)
	if created.SessionID == "" || created.Mode != mode.ModeIdle || created.Color != "red" {
		t.Errorf("created = %+v", created)
	}

	rec := do(t, h, http.MethodGet, "/api/sessions", nil)
	list := decode[listSessionsResponse](t, rec)
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != created.SessionID {
		t.Fatalf("list = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/"+created.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if got := decode[sessionResponse](t, rec); got.Stats == nil {
		t.Error("expected stats in single session response")
	}

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+created.SessionID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	eventually(t, func() bool {
		return do(t, h, http.MethodGet, "/api/sessions/"+created.SessionID, nil).Code == http.StatusNotFound
	})
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	h := NewSessionHandler(newTestManager(t), nil, nil)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/sessions/missing"},
		{http.MethodDelete, "/api/sessions/missing"},
		{http.MethodPost, "/api/sessions/missing/commands"},
		{http.MethodPost, "/api/sessions/missing/gestures"},
		{http.MethodGet, "/api/sessions/missing/nothing"},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.path, `{}`); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tt.method, tt.path, rec.Code)
		}
	}
}

func TestSessionHandler_MethodNotAllowed(t *testing.T) {
	h := NewSessionHandler(newTestManager(t), nil, nil)
	created := startSession(t, h, `{}`)

	tests := []struct {
		method, path string
	}{
		{http.MethodPut, "/api/sessions"},
		{http.MethodPost, "/api/sessions/" + created.SessionID},
		{http.MethodGet, "/api/sessions/" + created.SessionID + "/commands"},
		{http.MethodPost, "/api/sessions/" + created.SessionID + "/canvas.png"},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.path, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}

func TestSessionHandler_Commands(t *testing.T) {
	st := newTestStore(t)
	h := NewSessionHandler(newTestManager(t), st, nil)
	created := startSession(t, h, nil)
	path := "/api/sessions/" + created.SessionID + "/commands"

	t.Run("set color is applied and remembered", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, path, session.ControlCommand{Type: session.CommandSetColor, Color: "green"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		res := decode[session.Result](t, rec)
		if !res.Applied || res.Status.Color != "green" {
			t.Errorf("result = %+v", res)
		}
		if v, err := st.Settings().Get(store.SettingColor); err != nil || v != "green" {
			t.Errorf("stored color = %q, %v", v, err)
		}
	})

	t.Run("brush size is remembered", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, path, session.ControlCommand{Type: session.CommandSetBrushSize, Size: 9})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if v, err := st.Settings().GetInt(store.SettingBrushSize); err != nil || v != 9 {
			t.Errorf("stored brush size = %d, %v", v, err)
		}
	})

	t.Run("undo with empty history is not applied", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, path, session.ControlCommand{Type: session.CommandUndo})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if res := decode[session.Result](t, rec); res.Applied {
			t.Error("undo on empty history reported as applied")
		}
	})

	errorCases := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"unknown type", session.ControlCommand{Type: "paint"}, http.StatusBadRequest},
		{"unknown color", session.ControlCommand{Type: session.CommandSetColor, Color: "teal"}, http.StatusBadRequest},
		{"brush out of range", session.ControlCommand{Type: session.CommandSetBrushSize, Size: 500}, http.StatusBadRequest},
		{"save without saver", session.ControlCommand{Type: session.CommandSave}, http.StatusServiceUnavailable},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSessionHandler_StartUsesStoredSettings(t *testing.T) {
	st := newTestStore(t)
	st.Settings().Set(store.SettingColor, "blue")
	st.Settings().SetInt(store.SettingBrushSize, 12)
	h := NewSessionHandler(newTestManager(t), st, nil)

	created := startSession(t, h, nil)
	if created.Color != "blue" || created.BrushSize != 12 {
		t.Errorf("started with %s/%d, want blue/12", created.Color, created.BrushSize)
	}

	explicit := startSession(t, h, startSessionRequest{Color: "yellow"})
	if explicit.Color != "yellow" || explicit.BrushSize != 12 {
		t.Errorf("started with %s/%d, want yellow/12", explicit.Color, explicit.BrushSize)
	}
}

func TestSessionHandler_Capture(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		h := NewSessionHandler(newTestManager(t), nil, nil)
		if rec := do(t, h, http.MethodPost, "/api/sessions", startSessionRequest{Capture: true}); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("attached", func(t *testing.T) {
		capture := &fakeCapture{}
		h := NewSessionHandler(newTestManager(t), nil, capture)
		created := startSession(t, h, startSessionRequest{Capture: true})
		if !created.Capture || capture.attached != created.SessionID {
			t.Errorf("created = %+v, attached %q", created, capture.attached)
		}
	})

	t.Run("busy", func(t *testing.T) {
		m := newTestManager(t)
		h := NewSessionHandler(m, nil, &fakeCapture{err: app.ErrCaptureBusy})
		if rec := do(t, h, http.MethodPost, "/api/sessions", startSessionRequest{Capture: true}); rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
		eventually(t, func() bool { return m.Len() == 0 })
	})
}

func TestSessionHandler_Gestures(t *testing.T) {
	m := newTestManager(t)
	h := NewSessionHandler(m, nil, nil)
	created := startSession(t, h, nil)
	path := "/api/sessions/" + created.SessionID + "/gestures"

	for seq := uint64(1); seq <= 3; seq++ {
		body := gestureRequest{Label: string(mode.LabelOneFinger), Position: stroke.Point{X: float64(10 * seq), Y: 20}, FrameSeq: seq}
		if rec := do(t, h, http.MethodPost, path, body); rec.Code != http.StatusAccepted {
			t.Fatalf("gesture %d status = %d, body %s", seq, rec.Code, rec.Body.String())
		}
	}
	if rec := do(t, h, http.MethodPost, path, gestureRequest{FrameSeq: 4, Skip: true}); rec.Code != http.StatusAccepted {
		t.Errorf("skip status = %d", rec.Code)
	}

	c, err := m.Get(created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.Status.Mode == mode.ModeDrawing && snap.Pending != nil && len(snap.Pending.Points) == 3
	})

	errorCases := []struct {
		name string
		body any
	}{
		{"invalid json", `[`},
		{"unknown label", gestureRequest{Label: "WAVE", FrameSeq: 5}},
		{"missing sequence", gestureRequest{Label: string(mode.LabelFist)}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, path, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSessionHandler_Frames(t *testing.T) {
	m := newTestManager(t)
	h := NewSessionHandler(m, nil, nil)
	created := startSession(t, h, nil)
	base := "/api/sessions/" + created.SessionID + "/frames"

	if rec := do(t, h, http.MethodPost, base, []byte{0xFF, 0xD8}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing seq status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, base+"?seq=1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, base+"?seq=5", []byte{0xFF, 0xD8, 0xFF}); rec.Code != http.StatusAccepted {
		t.Fatalf("frame status = %d", rec.Code)
	}

	c, _ := m.Get(created.SessionID)
	eventually(t, func() bool { return c.Status().FrameSeq == 5 })
}

func TestSessionHandler_Canvas(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping canvas render in short mode")
	}

	h := NewSessionHandler(newTestManager(t), nil, nil)
	created := startSession(t, h, nil)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+created.SessionID+"/canvas.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s", ct)
	}
	if body := rec.Body.Bytes(); len(body) < 8 || string(body[1:4]) != "PNG" {
		t.Error("body is not a PNG")
	}
}

func TestSessionHandler_StoppedSession(t *testing.T) {
	m := newTestManager(t)
	h := NewSessionHandler(m, nil, nil)
	created := startSession(t, h, nil)
	c, _ := m.Get(created.SessionID)
	c.Stop()
	c.Wait()

	rec := do(t, h, http.MethodPost, "/api/sessions/"+created.SessionID+"/commands", session.ControlCommand{Type: session.CommandUndo})
	if rec.Code != http.StatusGone && rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 410 or 404", rec.Code)
	}
	if !errors.Is(c.Err(), session.ErrSessionStopped) {
		t.Errorf("Err() = %v", c.Err())
	}
}
