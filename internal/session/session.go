// Package session serializes frames, gesture events and control commands of
// one drawing session into a single ordered stream.
//
// Each Coordinator owns a bounded event queue and one consumer goroutine.
// Only that goroutine touches the mode machine and the stroke log; readers
// get immutable snapshots published after every applied event.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/airboard/internal/canvas"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/shape"
	"github.com/ayusman/airboard/internal/stroke"
)

var (
	// ErrNoSession is returned when a session id is unknown.
	ErrNoSession = errors.New("session not found")
	// ErrSessionStopped is returned by producers and waiting callers once a
	// session has been stopped.
	ErrSessionStopped = errors.New("session stopped")
	// ErrQueueOverflow terminates a session whose event queue is full.
	ErrQueueOverflow = errors.New("session event queue overflow")
	// ErrInvalidCommand is returned for malformed control commands.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidEvent is returned for frames and gesture events without a
	// sequence number.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrSaveUnavailable is returned by Save when no Saver is configured.
	ErrSaveUnavailable = errors.New("saving is not configured")
)

// Config holds the per-session settings.
type Config struct {
	// QueueCapacity bounds the event queue. A full queue is fatal.
	QueueCapacity int
	// ReorderWindow is how many gesture events may wait for a missing
	// sequence number before the gap is skipped. Zero means no limit, so
	// only ReorderDelay and skip markers close a gap.
	ReorderWindow int
	// ReorderDelay is how long the oldest pending event may wait for a
	// missing sequence number. Negative disables the time limit.
	ReorderDelay time.Duration
	// ClassifierTimeout is how long a detected hand may go without a gesture
	// event before NONE is assumed. Negative disables the timeout.
	ClassifierTimeout time.Duration

	Drawing mode.Config
	Shape   shape.Config

	Width      int
	Height     int
	Background stroke.Color
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:     256,
		ReorderWindow:     0,
		ReorderDelay:      150 * time.Millisecond,
		ClassifierTimeout: 750 * time.Millisecond,
		Drawing:           mode.DefaultConfig(),
		Shape:             shape.DefaultConfig(),
		Width:             640,
		Height:            480,
		Background:        stroke.Color{Name: "black"},
	}
}

// tick returns the housekeeping interval of the loop, or zero when neither
// the reorder delay nor the classifier timeout is enabled.
func (c Config) tick() time.Duration {
	var d time.Duration
	if c.ReorderDelay > 0 {
		d = c.ReorderDelay / 2
	}
	if c.ClassifierTimeout > 0 {
		t := c.ClassifierTimeout / 4
		if d == 0 || t < d {
			d = t
		}
	}
	if d > 0 && d < 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	return d
}

// Frame is one captured video frame.
type Frame struct {
	Seq        uint64
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// GestureEvent is one classification result. FrameSeq ties it to the frame
// it was computed from and orders it against other events.
type GestureEvent struct {
	Label    mode.Label   `json:"label"`
	Position stroke.Point `json:"position"`
	FrameSeq uint64       `json:"frame_seq"`
}

// CommandType names a control command.
type CommandType string

const (
	CommandClear        CommandType = "clear"
	CommandUndo         CommandType = "undo"
	CommandRedo         CommandType = "redo"
	CommandSetColor     CommandType = "set_color"
	CommandSetBrushSize CommandType = "set_brush_size"
	CommandPerfectShape CommandType = "perfect_shape"
	CommandSave         CommandType = "save"
)

// ControlCommand is a user-issued command. A non-zero Seq orders the command
// after the gesture event of that frame; zero applies it on arrival.
type ControlCommand struct {
	Type  CommandType `json:"type"`
	Color string      `json:"color,omitempty"`
	Size  int         `json:"size,omitempty"`
	Seq   uint64      `json:"seq,omitempty"`
}

// Validate checks that the command is well formed.
func (c ControlCommand) Validate() error {
	switch c.Type {
	case CommandClear, CommandUndo, CommandRedo, CommandPerfectShape, CommandSave:
		return nil
	case CommandSetColor:
		if c.Color == "" {
			return fmt.Errorf("%w: set_color requires a color", ErrInvalidCommand)
		}
		return nil
	case CommandSetBrushSize:
		if c.Size <= 0 {
			return fmt.Errorf("%w: set_brush_size requires a positive size", ErrInvalidCommand)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
}

// Status is the externally visible state of a session.
type Status struct {
	SessionID    string     `json:"session_id"`
	Mode         mode.Mode  `json:"mode"`
	Gesture      mode.Label `json:"gesture"`
	Color        string     `json:"color"`
	ColorHex     string     `json:"color_hex"`
	BrushSize    int        `json:"brush_size"`
	CanUndo      bool       `json:"can_undo"`
	CanRedo      bool       `json:"can_redo"`
	HandDetected bool       `json:"hand_detected"`
	FrameSeq     uint64     `json:"frame_seq"`
	Strokes      int        `json:"strokes"`
}

// Result is the reply to a control command. Applied is false when the
// command had nothing to act on, such as an undo with an empty history.
type Result struct {
	Status   Status `json:"status"`
	Applied  bool   `json:"applied"`
	Filename string `json:"filename,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Snapshot is an immutable view of a session after some applied event.
// Strokes is shared between snapshots of the same history version and must
// not be modified.
type Snapshot struct {
	Status  Status
	Strokes []stroke.Stroke
	Pending *stroke.Stroke
	// Version is the stroke log version the strokes were taken from.
	Version uint64
}

// Update is what subscribers receive: the newest frame paired with the
// newest state.
type Update struct {
	Frame    *Frame
	Snapshot *Snapshot
}

// SaveRequest carries a render of the visible strokes at the position of a
// save command.
type SaveRequest struct {
	SessionID string
	Surface   *canvas.Surface
	Strokes   []stroke.Stroke
	TakenAt   time.Time
}

// Saver persists a rendered canvas and returns the file name it was stored
// under. The surface is closed by the caller once Save returns.
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (string, error)
}

// Stats are per-session counters.
type Stats struct {
	FramesDropped    uint64 `json:"frames_dropped"`
	GesturesDropped  uint64 `json:"gestures_dropped"`
	GapsSkipped      uint64 `json:"gaps_skipped"`
	StrokesDiscarded uint64 `json:"strokes_discarded"`
	Timeouts         uint64 `json:"classifier_timeouts"`
	Subscribers      int    `json:"subscribers"`
}
