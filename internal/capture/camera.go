// Package capture reads video frames from a camera or video file and
// decides how often to read them.
package capture

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when the source produced no usable frame.
	ErrNoFrame = errors.New("no frame available")
)

// Config selects a capture source.
type Config struct {
	// Source is a device index ("0") or a video file / stream URL.
	Source string `yaml:"source"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	// Mirror flips frames horizontally so the feed behaves like a mirror.
	Mirror bool `yaml:"mirror"`
}

// DefaultConfig returns the first camera at 640x480, mirrored.
func DefaultConfig() Config {
	return Config{Source: "0", Width: DefaultWidth, Height: DefaultHeight, Mirror: true}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// cameraImpl manages video capture from a device or file using GoCV.
type cameraImpl struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a new Camera for the configured source.
// The default FPS is 5 until the pipeline raises it.
func NewCamera(cfg Config) Camera {
	if cfg.Source == "" {
		cfg.Source = "0"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = DefaultWidth, DefaultHeight
	}
	return &cameraImpl{
		cfg: cfg,
		fps: DefaultFPS,
	}
}

// device returns the argument for gocv.OpenVideoCapture: an int for
// device indexes, the string otherwise.
func (c *cameraImpl) device() any {
	if id, err := strconv.Atoi(c.cfg.Source); err == nil {
		return id
	}
	return c.cfg.Source
}

// Open opens the capture source.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.device())
	if err != nil {
		return fmt.Errorf("open capture %q: %w", c.cfg.Source, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame, resized to the configured size and
// mirrored if configured. The caller is responsible for closing the Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	if err := Prepare(&mat, c.cfg.Width, c.cfg.Height, c.cfg.Mirror); err != nil {
		mat.Close()
		return nil, err
	}
	return &mat, nil
}

// Prepare resizes frame in place to width x height when it differs and
// flips it horizontally when mirror is set.
func Prepare(frame *gocv.Mat, width, height int, mirror bool) error {
	if frame == nil || frame.Empty() {
		return ErrNoFrame
	}
	if width > 0 && height > 0 && (frame.Cols() != width || frame.Rows() != height) {
		gocv.Resize(*frame, frame, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	}
	if mirror {
		gocv.Flip(*frame, frame, 1)
	}
	return nil
}

// EncodeJPEG encodes a frame for transport.
func EncodeJPEG(frame *gocv.Mat, quality int) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrNoFrame
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
