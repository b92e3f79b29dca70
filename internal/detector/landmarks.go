// Package detector finds hand landmarks in video frames. The heavy lifting
// happens in an external landmark service; this package owns the wire
// protocol and the landmark geometry helpers.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark in normalized image coordinates: X and Y in [0,1]
// with Y growing downward, Z relative depth.
type Point3D struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// HandLandmarks represents the 21 hand landmarks of one detected hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Finger indexes into the result of FingersUp.
const (
	Thumb = iota
	Index
	Middle
	Ring
	Pinky
)

var (
	fingerTips = [5]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}
	fingerPIPs = [5]int{ThumbIP, IndexPIP, MiddlePIP, RingPIP, PinkyPIP}
)

// FingersUp reports which fingers are extended. The thumb counts as up when
// its tip is left of the IP joint in image space; the other fingers when
// the tip is above the PIP joint.
func (h *HandLandmarks) FingersUp() [5]bool {
	var up [5]bool
	if h == nil {
		return up
	}
	up[Thumb] = h.Points[ThumbTip].X < h.Points[ThumbIP].X
	for f := Index; f <= Pinky; f++ {
		up[f] = h.Points[fingerTips[f]].Y < h.Points[fingerPIPs[f]].Y
	}
	return up
}

// CountFingers returns the number of extended fingers, 0 to 5.
func (h *HandLandmarks) CountFingers() int {
	n := 0
	for _, up := range h.FingersUp() {
		if up {
			n++
		}
	}
	return n
}

// Mirror flips the hand horizontally, as if the frame had been mirrored.
func (h HandLandmarks) Mirror() HandLandmarks {
	for i := range h.Points {
		h.Points[i].X = 1 - h.Points[i].X
	}
	switch h.Handedness {
	case "Left":
		h.Handedness = "Right"
	case "Right":
		h.Handedness = "Left"
	}
	return h
}
