package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/airboard/internal/capture"
	"github.com/ayusman/airboard/internal/detector"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/session"
)

type fakeSink struct {
	mu       sync.Mutex
	frames   []session.Frame
	gestures []session.GestureEvent
	skipped  []uint64
	done     chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(chan struct{})}
}

func (s *fakeSink) ID() string { return "fake" }

func (s *fakeSink) SubmitFrame(f session.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) SubmitGesture(g session.GestureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gestures = append(s.gestures, g)
	return nil
}

func (s *fakeSink) SkipGesture(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, seq)
	return nil
}

func (s *fakeSink) Done() <-chan struct{} { return s.done }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Detector.Command = nil
	cfg.IdleFPS = 30
	cfg.ActiveFPS = 30
	cfg.StableFrames = 1
	return cfg
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_FallsBackToMockDetector(t *testing.T) {
	a := New(testConfig())
	defer a.Close()

	if _, ok := a.Detector().(*detector.MockDetector); !ok {
		t.Errorf("Detector() = %T, want *detector.MockDetector", a.Detector())
	}
	if !a.IsEnabled() {
		t.Error("capture should be enabled by default")
	}
	if _, ok := a.Attached(); ok {
		t.Error("no session should be attached")
	}
}

func TestPipeline_LatestFrameWins(t *testing.T) {
	a := New(testConfig())
	defer a.Close()

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.FingerCountLandmarks(1, 0.5, 0.25)})
	a.SetDetector(det)

	sink := newFakeSink()
	p := newPipeline(a, sink)
	at := p.start.Add(100 * time.Millisecond)

	// The worker is not running: the second frame replaces the first.
	p.offer(job{seq: 1, at: at})
	p.offer(job{seq: 2, at: at})
	close(p.slot)

	done := make(chan struct{})
	p.classify(done)

	if len(sink.skipped) != 1 || sink.skipped[0] != 1 {
		t.Errorf("skipped = %v, want [1]", sink.skipped)
	}
	if len(sink.gestures) != 1 {
		t.Fatalf("got %d gestures, want 1", len(sink.gestures))
	}
	g := sink.gestures[0]
	if g.FrameSeq != 2 || g.Label != mode.LabelOneFinger {
		t.Errorf("gesture = %+v", g)
	}
	if g.Position.X != 320 || g.Position.Y != 120 || g.Position.Timestamp != 100 {
		t.Errorf("gesture position = %+v, want (320, 120) at 100ms", g.Position)
	}
}

func TestPipeline_ClassifierErrorSkipsFrame(t *testing.T) {
	a := New(testConfig())
	defer a.Close()

	det := detector.NewMockDetector()
	det.SetError(errors.New("service down"))
	a.SetDetector(det)

	sink := newFakeSink()
	p := newPipeline(a, sink)
	p.offer(job{seq: 7, at: p.start})
	close(p.slot)
	p.classify(make(chan struct{}))

	if len(sink.gestures) != 0 || len(sink.skipped) != 1 || sink.skipped[0] != 7 {
		t.Errorf("gestures = %v, skipped = %v", sink.gestures, sink.skipped)
	}
}

func TestApp_DrawsFromCamera(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := capture.SyntheticFrames(8, 320, 240)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	a := New(testConfig())
	defer a.Close()
	a.SetCamera(capture.NewMockCamera(frames, true))

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.FingerCountLandmarks(1, 0.5, 0.5)})
	a.SetDetector(det)

	m := session.NewManager(session.DefaultConfig(), nil)
	defer m.StopAll()
	s := m.Start(session.StartOptions{})

	if err := a.Attach(s); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := a.Attach(s); !errors.Is(err, ErrCaptureBusy) {
		t.Errorf("second Attach() error = %v, want ErrCaptureBusy", err)
	}
	if id, ok := a.Attached(); !ok || id != s.ID() {
		t.Errorf("Attached() = %q, %v", id, ok)
	}

	eventually(t, func() bool {
		st := s.Status()
		return st.Mode == mode.ModeDrawing && st.FrameSeq > 3
	})

	det.SetHands([]detector.HandLandmarks{detector.FingerCountLandmarks(2, 0.5, 0.5)})
	eventually(t, func() bool {
		st := s.Status()
		return st.Mode == mode.ModeStopped && st.Strokes == 1
	})

	snap := s.Snapshot()
	if got := snap.Strokes[0].Points[0]; got.X != 320 || got.Y != 240 {
		t.Errorf("first point = %+v, want (320, 240)", got)
	}

	a.Detach()
	if _, ok := a.Attached(); ok {
		t.Error("Attached() after Detach should be false")
	}
}

func TestApp_StopsWhenSessionEnds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := capture.SyntheticFrames(2, 160, 120)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	a := New(testConfig())
	defer a.Close()
	cam := capture.NewMockCamera(frames, true)
	a.SetCamera(cam)

	m := session.NewManager(session.DefaultConfig(), nil)
	s := m.Start(session.StartOptions{})
	if err := a.Attach(s); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	eventually(t, func() bool { return cam.Reads() > 0 })
	m.StopAll()

	eventually(t, func() bool {
		_, ok := a.Attached()
		return !ok
	})
	if cam.IsOpen() {
		t.Error("camera should be closed after the session ended")
	}
}
