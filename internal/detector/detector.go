package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// JPEGDetector is implemented by detectors that can work on an already
// encoded frame, which saves a decode/encode round trip in the pipeline.
type JPEGDetector interface {
	Detector
	DetectJPEG(data []byte) ([]HandLandmarks, error)
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect. The drawing
	// pipeline only looks at the first one.
	MaxHands int `yaml:"max_hands"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_confidence"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`

	// Command starts the landmark service, e.g. ["python3", "hand_service.py"].
	Command []string `yaml:"command"`

	// IdleTimeout stops the service after this long without a request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds a single request/response exchange.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config matching the single-hand drawing setup.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.7,
		MinTrackingConf: 0.5,
		Command:         []string{"python3", "scripts/hand_service.py"},
		IdleTimeout:     30 * time.Second,
		RequestTimeout:  2 * time.Second,
	}
}
