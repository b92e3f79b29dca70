package gesture

import "github.com/ayusman/airboard/internal/mode"

// Stabilizer suppresses single-frame label flicker: a new label is only
// reported after it has been seen on minFrames consecutive frames. Until
// then the previous stable label is reported. Positions are not delayed.
type Stabilizer struct {
	minFrames int
	stable    mode.Label
	candidate mode.Label
	count     int
}

// NewStabilizer creates a Stabilizer. minFrames <= 1 disables it.
func NewStabilizer(minFrames int) *Stabilizer {
	return &Stabilizer{minFrames: minFrames, stable: mode.LabelNone}
}

// Observe feeds one classified label and returns the label to report.
func (s *Stabilizer) Observe(label mode.Label) mode.Label {
	if s.minFrames <= 1 {
		s.stable = label
		return label
	}

	if label == s.stable {
		s.candidate, s.count = "", 0
		return s.stable
	}
	if label != s.candidate {
		s.candidate, s.count = label, 0
	}
	s.count++
	if s.count >= s.minFrames {
		s.stable = label
		s.candidate, s.count = "", 0
	}
	return s.stable
}

// Reset forgets all history.
func (s *Stabilizer) Reset() {
	s.stable = mode.LabelNone
	s.candidate, s.count = "", 0
}
