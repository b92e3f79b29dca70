// Package mode turns a stream of gesture labels into drawing intents.
//
// The Machine tracks the drawing mode, the active color and brush, and the
// stroke currently being drawn. Color cycling is edge-triggered: a held
// THREE_FINGERS or FOUR_FINGERS gesture moves the palette once, no matter how
// many frames report it.
package mode

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/airboard/internal/stroke"
)

// Label is a gesture classification result.
type Label string

const (
	LabelOneFinger    Label = "ONE_FINGER"
	LabelFist         Label = "FIST"
	LabelTwoFingers   Label = "TWO_FINGERS"
	LabelThreeFingers Label = "THREE_FINGERS"
	LabelFourFingers  Label = "FOUR_FINGERS"
	LabelOpenPalm     Label = "OPEN_PALM"
	LabelNone         Label = "NONE"
)

// ErrUnknownLabel is returned for labels outside the transition table.
var ErrUnknownLabel = errors.New("unknown gesture label")

// ParseLabel validates a label received from an external classifier.
func ParseLabel(s string) (Label, error) {
	switch l := Label(s); l {
	case LabelOneFinger, LabelFist, LabelTwoFingers, LabelThreeFingers,
		LabelFourFingers, LabelOpenPalm, LabelNone:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// Mode is the drawing state of a session.
type Mode string

const (
	ModeIdle    Mode = "IDLE"
	ModeDrawing Mode = "DRAWING"
	ModeErasing Mode = "ERASING"
	ModeStopped Mode = "STOPPED"
)

// ErrBrushSize is returned when a brush size is outside the configured bounds.
var ErrBrushSize = errors.New("brush size out of range")

// Config holds the drawing settings of a Machine.
type Config struct {
	Palette      Palette
	InitialColor string
	BrushSize    int
	MinBrushSize int
	MaxBrushSize int
	// EraserSize is the thickness of erase strokes. Zero uses the brush size.
	EraserSize int
}

// DefaultConfig returns the default drawing settings.
func DefaultConfig() Config {
	return Config{
		Palette:      DefaultPalette(),
		InitialColor: "red",
		BrushSize:    5,
		MinBrushSize: 2,
		MaxBrushSize: 30,
		EraserSize:   70,
	}
}

// Outcome reports what a single transition did to the history.
type Outcome struct {
	// Committed is set when an in-progress stroke was finished and must be
	// appended to the stroke log.
	Committed *stroke.Stroke
	// Discarded is set when an in-progress stroke was dropped for having
	// fewer than two points.
	Discarded    bool
	ColorChanged bool
}

// Machine is the gesture state machine of one session. It is not safe for
// concurrent use.
type Machine struct {
	cfg     Config
	mode    Mode
	last    Label
	color   int
	brush   int
	current *stroke.Stroke

	newID func() string
	now   func() time.Time
}

// NewMachine creates a Machine in IDLE mode.
func NewMachine(cfg Config) *Machine {
	if len(cfg.Palette) == 0 {
		cfg.Palette = DefaultPalette()
	}
	m := &Machine{
		cfg:   cfg,
		mode:  ModeIdle,
		last:  LabelNone,
		brush: cfg.BrushSize,
		newID: uuid.NewString,
		now:   time.Now,
	}
	if i, err := cfg.Palette.Index(cfg.InitialColor); err == nil {
		m.color = i
	}
	return m
}

// Handle applies one gesture event. pos is the hand position in canvas
// coordinates and is only used by the drawing gestures.
func (m *Machine) Handle(label Label, pos stroke.Point) (Outcome, error) {
	var out Outcome

	switch label {
	case LabelOneFinger:
		m.extend(stroke.ToolDraw, pos, &out)
		m.mode = ModeDrawing
	case LabelFist:
		m.extend(stroke.ToolErase, pos, &out)
		m.mode = ModeErasing
	case LabelTwoFingers, LabelOpenPalm:
		m.commit(&out)
		m.mode = ModeStopped
	case LabelThreeFingers:
		m.commit(&out)
		if m.last != LabelThreeFingers {
			m.color = (m.color + 1) % len(m.cfg.Palette)
			out.ColorChanged = true
		}
	case LabelFourFingers:
		m.commit(&out)
		if m.last != LabelFourFingers {
			n := len(m.cfg.Palette)
			m.color = (m.color - 1 + n) % n
			out.ColorChanged = true
		}
	case LabelNone:
		m.commit(&out)
		m.mode = ModeIdle
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}

	m.last = label
	return out, nil
}

// extend continues the in-progress stroke when it uses tool, otherwise it
// commits whatever is in progress and starts a new stroke at pos.
func (m *Machine) extend(tool stroke.Tool, pos stroke.Point, out *Outcome) {
	if m.current != nil && m.current.Tool == tool {
		m.current.Points = append(m.current.Points, pos)
		return
	}
	m.commit(out)

	size := m.brush
	if tool == stroke.ToolErase && m.cfg.EraserSize > 0 {
		size = m.cfg.EraserSize
	}
	m.current = &stroke.Stroke{
		ID:        m.newID(),
		Points:    []stroke.Point{pos},
		Color:     m.Color(),
		BrushSize: size,
		Tool:      tool,
		CreatedAt: m.now(),
	}
}

func (m *Machine) commit(out *Outcome) {
	if m.current == nil {
		return
	}
	s := *m.current
	m.current = nil
	if len(s.Points) < 2 {
		out.Discarded = true
		return
	}
	out.Committed = &s
}

// Flush commits the in-progress stroke without changing the mode.
func (m *Machine) Flush() Outcome {
	var out Outcome
	m.commit(&out)
	return out
}

// Reset drops the in-progress stroke.
func (m *Machine) Reset() {
	m.current = nil
}

// SetColor selects a palette color by name.
func (m *Machine) SetColor(name string) error {
	i, err := m.cfg.Palette.Index(name)
	if err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}
	m.color = i
	return nil
}

// SetBrushSize changes the thickness of new draw strokes.
func (m *Machine) SetBrushSize(n int) error {
	if n < m.cfg.MinBrushSize || n > m.cfg.MaxBrushSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrBrushSize, n, m.cfg.MinBrushSize, m.cfg.MaxBrushSize)
	}
	m.brush = n
	return nil
}

// Mode returns the current drawing mode.
func (m *Machine) Mode() Mode { return m.mode }

// LastLabel returns the label of the most recent event.
func (m *Machine) LastLabel() Label { return m.last }

// Color returns the active palette color.
func (m *Machine) Color() stroke.Color { return m.cfg.Palette[m.color] }

// BrushSize returns the active brush size.
func (m *Machine) BrushSize() int { return m.brush }

// Palette returns the configured palette.
func (m *Machine) Palette() Palette { return m.cfg.Palette }

// InProgress returns the stroke being drawn, if any. The returned stroke
// shares its point storage with the machine; points are only ever appended
// so the returned prefix stays valid.
func (m *Machine) InProgress() (stroke.Stroke, bool) {
	if m.current == nil {
		return stroke.Stroke{}, false
	}
	return *m.current, true
}
