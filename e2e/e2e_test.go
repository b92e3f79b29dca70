package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/capture"
	"github.com/ayusman/airboard/internal/config"
	"github.com/ayusman/airboard/internal/detector"
	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/server"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
)

type sessionStatus struct {
	SessionID string    `json:"session_id"`
	Mode      mode.Mode `json:"mode"`
	Color     string    `json:"color"`
	Strokes   int       `json:"strokes"`
	Capture   bool      `json:"capture"`
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = tmpDir
	cfg.Export.Dir = filepath.Join(tmpDir, "exports")
	cfg.Export.PDF = true
	cfg.Session.ReorderDelay = -1
	cfg.Session.ClassifierTimeout = -1
	cfg.Camera.IdleFPS = 30
	cfg.Camera.ActiveFPS = 30
	cfg.Camera.StableFrames = 1
	cfg.Detector.Command = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	s, err := store.Open(cfg.StoreConfig())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	bg, _ := cfg.Background()
	ex, err := export.New(cfg.Export, bg, s.Drawings())
	if err != nil {
		t.Fatalf("export.New() error = %v", err)
	}

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig() error = %v", err)
	}
	manager := session.NewManager(sessCfg, ex)
	defer manager.StopAll()

	frames := capture.SyntheticFrames(8, 320, 240)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	pipeline := app.New(cfg.AppConfig())
	defer pipeline.Close()
	pipeline.SetCamera(capture.NewMockCamera(frames, true))
	det := detector.NewMockDetector()
	pipeline.SetDetector(det)

	srv := server.New(server.Config{
		Settings: cfg,
		Manager:  manager,
		Store:    s,
		Exporter: ex,
		Capture:  pipeline,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()
	post := func(path string, body any) *http.Response {
		t.Helper()
		data, _ := json.Marshal(body)
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("POST %s error = %v", path, err)
		}
		return resp
	}
	status := func(id string) sessionStatus {
		t.Helper()
		resp, err := client.Get(ts.URL + "/api/sessions/" + id)
		if err != nil {
			t.Fatalf("GET session error = %v", err)
		}
		defer resp.Body.Close()
		var st sessionStatus
		json.NewDecoder(resp.Body).Decode(&st)
		return st
	}
	eventually := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatal("condition not met before deadline")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	var id string
	t.Run("StartWithCapture", func(t *testing.T) {
		resp := post("/api/sessions", map[string]any{"capture": true, "color": "blue"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		var st sessionStatus
		json.NewDecoder(resp.Body).Decode(&st)
		if !st.Capture || st.Color != "blue" {
			t.Fatalf("started = %+v", st)
		}
		id = st.SessionID

		busy := post("/api/sessions", map[string]any{"capture": true})
		busy.Body.Close()
		if busy.StatusCode != http.StatusConflict {
			t.Errorf("second capture session status = %d, want %d", busy.StatusCode, http.StatusConflict)
		}
	})

	t.Run("DrawWithOneFinger", func(t *testing.T) {
		det.SetHands([]detector.HandLandmarks{detector.FingerCountLandmarks(1, 0.25, 0.5)})
		eventually(func() bool { return status(id).Mode == mode.ModeDrawing })

		det.SetHands([]detector.HandLandmarks{detector.FingerCountLandmarks(2, 0.25, 0.5)})
		eventually(func() bool {
			st := status(id)
			return st.Mode == mode.ModeStopped && st.Strokes == 1
		})
	})

	t.Run("SaveExportsDrawing", func(t *testing.T) {
		resp := post("/api/sessions/"+id+"/commands", session.ControlCommand{Type: session.CommandSave})
		defer resp.Body.Close()
		var res session.Result
		json.NewDecoder(resp.Body).Decode(&res)
		if resp.StatusCode != http.StatusOK || !res.Applied {
			t.Fatalf("save = %d %+v", resp.StatusCode, res)
		}

		listResp, err := client.Get(ts.URL + "/api/exports")
		if err != nil {
			t.Fatal(err)
		}
		defer listResp.Body.Close()
		var listed struct {
			Exports []store.Drawing `json:"exports"`
		}
		json.NewDecoder(listResp.Body).Decode(&listed)
		if len(listed.Exports) != 1 || listed.Exports[0].Filename != res.Filename || listed.Exports[0].Format != "png+pdf" {
			t.Fatalf("exports = %+v", listed.Exports)
		}

		pdf, err := client.Get(ts.URL + "/api/exports/" + listed.Exports[0].ID + "/file?format=pdf")
		if err != nil {
			t.Fatal(err)
		}
		pdf.Body.Close()
		if pdf.StatusCode != http.StatusOK {
			t.Errorf("pdf status = %d", pdf.StatusCode)
		}
	})

	t.Run("UndoRedo", func(t *testing.T) {
		for _, tc := range []struct {
			cmd  session.CommandType
			want int
		}{
			{session.CommandUndo, 0},
			{session.CommandRedo, 1},
		} {
			resp := post("/api/sessions/"+id+"/commands", session.ControlCommand{Type: tc.cmd})
			var res session.Result
			json.NewDecoder(resp.Body).Decode(&res)
			resp.Body.Close()
			if res.Status.Strokes != tc.want {
				t.Errorf("%s: strokes = %d, want %d", tc.cmd, res.Status.Strokes, tc.want)
			}
		}
	})

	t.Run("StopReleasesCamera", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("DELETE status = %d", resp.StatusCode)
		}
		eventually(func() bool {
			_, attached := pipeline.Attached()
			return !attached
		})
	})
}
