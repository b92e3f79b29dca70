package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect or DetectJPEG ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	return m.DetectJPEG(nil)
}

// DetectJPEG returns the pre-configured hands or error.
func (m *MockDetector) DetectJPEG(data []byte) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// HandWithFingers returns a right hand, palm facing the camera, with the
// index fingertip at (tipX, tipY) and the given fingers extended.
func HandWithFingers(tipX, tipY float64, up [5]bool) HandLandmarks {
	h := HandLandmarks{Handedness: "Right", Score: 0.95}

	// Palm laid out relative to the index fingertip of an extended hand.
	baseX, baseY := tipX, tipY+0.33
	h.Points[Wrist] = Point3D{X: baseX - 0.08, Y: baseY + 0.12}

	// Thumb: extended means the tip sits left of the IP joint.
	h.Points[ThumbCMC] = Point3D{X: baseX - 0.03, Y: baseY + 0.07}
	h.Points[ThumbMCP] = Point3D{X: baseX - 0.06, Y: baseY + 0.02}
	h.Points[ThumbIP] = Point3D{X: baseX - 0.09, Y: baseY - 0.02}
	if up[Thumb] {
		h.Points[ThumbTip] = Point3D{X: baseX - 0.13, Y: baseY - 0.05}
	} else {
		h.Points[ThumbTip] = Point3D{X: baseX - 0.04, Y: baseY}
	}

	// Fingers: MCP row across the palm, extended tips well above the PIP.
	offsets := [5]float64{0, 0, -0.05, -0.10, -0.15}
	for f := Index; f <= Pinky; f++ {
		x := baseX + offsets[f]
		mcp := fingerTips[f] - 3
		h.Points[mcp] = Point3D{X: x, Y: baseY}
		h.Points[mcp+1] = Point3D{X: x, Y: baseY - 0.12}
		if up[f] {
			h.Points[mcp+2] = Point3D{X: x, Y: baseY - 0.23}
			h.Points[mcp+3] = Point3D{X: x, Y: baseY - 0.33}
		} else {
			h.Points[mcp+2] = Point3D{X: x, Y: baseY - 0.06}
			h.Points[mcp+3] = Point3D{X: x, Y: baseY - 0.02}
		}
	}
	if up[Index] {
		h.Points[IndexTip] = Point3D{X: tipX, Y: tipY}
	}
	return h
}

// FingerCountLandmarks returns a hand showing n extended fingers using the
// usual counting order: index, middle, ring, pinky, then thumb.
func FingerCountLandmarks(n int, tipX, tipY float64) HandLandmarks {
	order := [5]int{Index, Middle, Ring, Pinky, Thumb}
	var up [5]bool
	for i := 0; i < n && i < len(order); i++ {
		up[order[i]] = true
	}
	return HandWithFingers(tipX, tipY, up)
}

// FistLandmarks returns a closed hand.
func FistLandmarks() HandLandmarks {
	return FingerCountLandmarks(0, 0.5, 0.4)
}

// OpenPalmLandmarks returns a hand with all five fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return FingerCountLandmarks(5, 0.5, 0.4)
}
