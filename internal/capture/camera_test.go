package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		device any
	}{
		{"default config", DefaultConfig(), 0},
		{"device index", Config{Source: "2"}, 2},
		{"empty source", Config{}, 0},
		{"video file", Config{Source: "testdata/clip.mp4"}, "testdata/clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.cfg).(*cameraImpl)

			if got := cam.FPS(); got != DefaultFPS {
				t.Errorf("FPS() = %d, want %d (default)", got, DefaultFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
			if got := cam.device(); got != tt.device {
				t.Errorf("device() = %v, want %v", got, tt.device)
			}
			if cam.cfg.Width != DefaultWidth || cam.cfg.Height != DefaultHeight {
				t.Errorf("size = %dx%d, want defaults", cam.cfg.Width, cam.cfg.Height)
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	for _, tt := range []struct {
		fps, want int
	}{
		{10, 10},
		{30, 30},
		{0, 30},
		{-5, 30},
	} {
		cam.SetFPS(tt.fps)
		if got := cam.FPS(); got != tt.want {
			t.Errorf("SetFPS(%d): FPS() = %d, want %d", tt.fps, got, tt.want)
		}
	}
}

func TestCamera_ReadFrameNotOpen(t *testing.T) {
	cam := NewCamera(DefaultConfig())
	if _, err := cam.ReadFrame(); err != ErrCameraNotOpen {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on unopened camera error = %v", err)
	}
}

func TestPrepare(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	// Mark the top-left pixel so the flip is visible.
	frame.SetUCharAt(0, 0, 255)

	if err := Prepare(&frame, 320, 240, true); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if frame.GetUCharAt(0, 0) != 0 || frame.GetUCharAt(0, (320-1)*3) != 255 {
		t.Error("Prepare() did not mirror the frame")
	}

	if err := Prepare(&frame, 160, 120, false); err != nil {
		t.Fatalf("Prepare() resize error = %v", err)
	}
	if frame.Cols() != 160 || frame.Rows() != 120 {
		t.Errorf("Prepare() size = %dx%d, want 160x120", frame.Cols(), frame.Rows())
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if err := Prepare(&empty, 160, 120, false); err != ErrNoFrame {
		t.Errorf("Prepare() on empty Mat error = %v", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	data, err := EncodeJPEG(&frame, 80)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("EncodeJPEG() did not produce a JPEG")
	}
	if _, err := EncodeJPEG(nil, 80); err != ErrNoFrame {
		t.Errorf("EncodeJPEG(nil) error = %v", err)
	}
}

func TestGate(t *testing.T) {
	g := NewGate(5, 15, 2*time.Second)
	now := time.Now()

	if g.Active() || g.FPS() != 5 || g.Interval() != 200*time.Millisecond {
		t.Fatalf("new gate = active %v fps %d", g.Active(), g.FPS())
	}

	if fps, changed := g.Observe(true, now); fps != 15 || !changed {
		t.Errorf("Observe(motion) = %d, %v, want 15, true", fps, changed)
	}
	if _, changed := g.Observe(true, now.Add(time.Second)); changed {
		t.Error("Observe(motion) while active should not change")
	}
	if _, changed := g.Observe(false, now.Add(2*time.Second)); changed {
		t.Error("gate went idle before the timeout")
	}
	if fps, changed := g.Observe(false, now.Add(3*time.Second+time.Millisecond)); fps != 5 || !changed {
		t.Errorf("Observe(no motion) after timeout = %d, %v, want 5, true", fps, changed)
	}
}
