// Package app runs the camera pipeline that feeds a drawing session with
// video frames and gesture events.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/airboard/internal/capture"
	"github.com/ayusman/airboard/internal/detector"
	"github.com/ayusman/airboard/internal/gesture"
	"github.com/ayusman/airboard/internal/session"
)

// Pipeline timing defaults.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate while the hand is moving.
	ActiveFPS = 15
	// IdleTimeout is how long without motion before dropping back to IdleFPS.
	IdleTimeout = 2 * time.Second
	// JPEGQuality is used for frames handed to sessions.
	JPEGQuality = 80
)

// ErrCaptureBusy is returned when the camera already feeds another session.
var ErrCaptureBusy = errors.New("capture already attached to a session")

// Config holds configuration options for the capture pipeline.
type Config struct {
	Camera       capture.Config
	Detector     detector.Config
	MotionThresh float64
	IdleFPS      int
	ActiveFPS    int
	IdleTimeout  time.Duration
	JPEGQuality  int
	// StableFrames is how many consecutive frames a new label needs
	// before it is reported.
	StableFrames int
	// Width and Height are the canvas size gesture positions map to.
	Width  int
	Height int
}

// DefaultConfig returns the pipeline defaults for a 640x480 canvas.
func DefaultConfig() Config {
	return Config{
		Camera:       capture.DefaultConfig(),
		Detector:     detector.DefaultConfig(),
		MotionThresh: 1.0,
		IdleFPS:      IdleFPS,
		ActiveFPS:    ActiveFPS,
		IdleTimeout:  IdleTimeout,
		JPEGQuality:  JPEGQuality,
		StableFrames: 2,
		Width:        640,
		Height:       480,
	}
}

// Sink receives the pipeline output. *session.Coordinator implements it.
type Sink interface {
	ID() string
	SubmitFrame(session.Frame) error
	SubmitGesture(session.GestureEvent) error
	SkipGesture(seq uint64) error
	Done() <-chan struct{}
}

// App owns the camera and hand detector. The camera feeds at most one
// session at a time.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	detector   detector.Detector
	classifier gesture.JPEGClassifier
	enabled    bool
	current    *pipeline
	mu         sync.RWMutex
	logger     *slog.Logger
}

// New creates a new App with the given configuration.
func New(config Config) *App {
	def := DefaultConfig()
	if config.MotionThresh <= 0 {
		config.MotionThresh = def.MotionThresh
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = def.IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = def.ActiveFPS
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = def.JPEGQuality
	}
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = def.Width, def.Height
	}

	a := &App{
		config:  config,
		camera:  capture.NewCamera(config.Camera),
		motion:  capture.NewMotionDetector(config.MotionThresh),
		enabled: true,
		logger:  slog.Default().With("component", "capture"),
	}

	// Try the landmark service first, fall back to a detector that never
	// sees a hand so the canvas stays usable from the API.
	if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
		a.SetDetector(mp)
		a.logger.Info("using landmark service", "command", config.Detector.Command)
	} else {
		a.logger.Warn("landmark service not available, using mock detector", "error", err)
		a.SetDetector(detector.NewMockDetector())
	}

	return a
}

// Config returns the pipeline configuration.
func (a *App) Config() Config {
	return a.config
}

// SetEnabled pauses or resumes capture without detaching the session.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether capture is currently running.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
	a.classifier = gesture.NewLandmarkClassifier(d, a.config.Width, a.config.Height)
}

// SetCamera replaces the capture source. It must not be called while a
// session is attached.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

func (a *App) currentClassifier() gesture.JPEGClassifier {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.classifier
}

// Attach opens the camera and starts feeding s. The pipeline stops on
// Detach or when the session ends.
func (a *App) Attach(s Sink) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return ErrCaptureBusy
	}
	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.config.IdleFPS)
	a.motion.Reset()

	p := newPipeline(a, s)
	a.current = p
	go p.run()

	a.logger.Info("capture attached", "session_id", s.ID())
	return nil
}

// Attached returns the id of the session being fed, if any.
func (a *App) Attached() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return "", false
	}
	return a.current.sink.ID(), true
}

// Detach stops the pipeline and closes the camera.
func (a *App) Detach() {
	a.mu.RLock()
	p := a.current
	a.mu.RUnlock()

	if p != nil {
		p.halt()
		<-p.done
	}
}

// detached is called by a pipeline when it exits.
func (a *App) detached(p *pipeline) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != p {
		return
	}
	a.current = nil
	if err := a.camera.Close(); err != nil {
		a.logger.Error("error closing camera", "error", err)
	}
	a.logger.Info("capture detached", "session_id", p.sink.ID(), "frames", p.seq)
}

// Close detaches any session and releases the camera and detector.
func (a *App) Close() {
	a.Detach()
	a.motion.Close()
	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			a.logger.Error("error closing detector", "error", err)
		}
	}
}
