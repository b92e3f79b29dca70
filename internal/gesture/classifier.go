// Package gesture turns hand landmarks into drawing gesture labels.
package gesture

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/airboard/internal/detector"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/stroke"
)

// Result is one classified frame.
type Result struct {
	Label    mode.Label
	Position stroke.Point // Index fingertip in canvas pixels
	Hand     bool
	Fingers  int
}

// Classifier labels a video frame.
type Classifier interface {
	Classify(frame *gocv.Mat) (Result, error)
}

// JPEGClassifier labels an encoded frame.
type JPEGClassifier interface {
	Classifier
	ClassifyJPEG(data []byte) (Result, error)
}

// fingerLabels maps an extended finger count to a label.
var fingerLabels = [6]mode.Label{
	mode.LabelFist,
	mode.LabelOneFinger,
	mode.LabelTwoFingers,
	mode.LabelThreeFingers,
	mode.LabelFourFingers,
	mode.LabelOpenPalm,
}

// LabelForFingers returns the label for n extended fingers.
func LabelForFingers(n int) (mode.Label, error) {
	if n < 0 || n >= len(fingerLabels) {
		return "", fmt.Errorf("gesture: invalid finger count %d", n)
	}
	return fingerLabels[n], nil
}

// LandmarkClassifier counts the extended fingers of the first detected hand.
type LandmarkClassifier struct {
	det    detector.Detector
	width  int
	height int
}

// NewLandmarkClassifier creates a classifier that reports positions on a
// width x height canvas.
func NewLandmarkClassifier(det detector.Detector, width, height int) *LandmarkClassifier {
	return &LandmarkClassifier{det: det, width: width, height: height}
}

// Classify runs the detector on a frame.
func (c *LandmarkClassifier) Classify(frame *gocv.Mat) (Result, error) {
	hands, err := c.det.Detect(frame)
	if err != nil {
		return Result{}, err
	}
	return c.FromHands(hands), nil
}

// ClassifyJPEG runs the detector on an encoded frame, decoding it first if
// the detector cannot take JPEG directly.
func (c *LandmarkClassifier) ClassifyJPEG(data []byte) (Result, error) {
	if jd, ok := c.det.(detector.JPEGDetector); ok {
		hands, err := jd.DetectJPEG(data)
		if err != nil {
			return Result{}, err
		}
		return c.FromHands(hands), nil
	}

	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Result{}, fmt.Errorf("decode frame: %w", err)
	}
	defer frame.Close()
	return c.Classify(&frame)
}

// FromHands classifies detector output. No hand yields NONE.
func (c *LandmarkClassifier) FromHands(hands []detector.HandLandmarks) Result {
	if len(hands) == 0 {
		return Result{Label: mode.LabelNone}
	}
	hand := &hands[0]
	n := hand.CountFingers()
	label, _ := LabelForFingers(n)
	tip := hand.Points[detector.IndexTip]
	return Result{
		Label:    label,
		Position: stroke.Point{X: tip.X * float64(c.width), Y: tip.Y * float64(c.height)},
		Hand:     true,
		Fingers:  n,
	}
}
