package tray

import (
	"testing"
	"time"

	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/session"
)

func TestStatusTitles(t *testing.T) {
	tests := []struct {
		name   string
		status session.Status
		mode   string
		color  string
		brush  string
	}{
		{
			name:  "no session",
			mode:  "Mode: no session",
			color: "Color: -",
			brush: "Brush: -",
		},
		{
			name:   "drawing",
			status: session.Status{SessionID: "s1", Mode: mode.ModeDrawing, HandDetected: true, Color: "red", ColorHex: "#FF0000", BrushSize: 5},
			mode:   "Mode: DRAWING (hand)",
			color:  "Color: red #FF0000",
			brush:  "Brush: 5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, c, b := statusTitles(tt.status)
			if m != tt.mode || c != tt.color || b != tt.brush {
				t.Errorf("statusTitles() = %q, %q, %q", m, c, b)
			}
		})
	}
}

func TestTray_Toggle(t *testing.T) {
	tr := New()
	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("toggle callbacks = %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("expected capture enabled after two toggles")
	}
}

func TestTray_Follow(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.ReorderDelay = -1
	cfg.ClassifierTimeout = -1
	m := session.NewManager(cfg, nil)
	defer m.StopAll()

	tr := New()
	m.OnStart(tr.Follow)
	c := m.Start(session.StartOptions{Color: "green"})

	waitFor(t, func() bool { return tr.Status().Color == "green" })

	c.Stop()
	waitFor(t, func() bool { return tr.Status().SessionID == "" })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
