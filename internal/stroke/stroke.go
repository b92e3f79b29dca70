// Package stroke defines the drawing primitives of the canvas and the
// append-only log that backs undo and redo.
package stroke

import (
	"fmt"
	"image/color"
	"slices"
	"time"
)

// Point is a single sampled position of the drawing hand.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"t"` // Milliseconds from a monotonic source
}

// Tool selects how a stroke paints the canvas.
type Tool string

const (
	// ToolDraw paints with the stroke color.
	ToolDraw Tool = "draw"
	// ToolErase paints with the canvas background.
	ToolErase Tool = "erase"
)

// Shape records whether a stroke is freehand or a normalized primitive.
type Shape string

const (
	ShapeFreehand  Shape = ""
	ShapeLine      Shape = "line"
	ShapeCircle    Shape = "circle"
	ShapeRectangle Shape = "rectangle"
	ShapeSquare    Shape = "square"
	ShapeTriangle  Shape = "triangle"
)

// Color is a named palette entry.
type Color struct {
	Name string `json:"name"`
	R    uint8  `json:"r"`
	G    uint8  `json:"g"`
	B    uint8  `json:"b"`
}

// RGBA converts the color for use with image and gocv drawing calls.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Hex returns the color as #RRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseHex parses a #RRGGBB string into a Color with the given name.
func ParseHex(name, hex string) (Color, error) {
	var r, g, b uint8
	if len(hex) != 7 || hex[0] != '#' {
		return Color{}, fmt.Errorf("invalid color %q: want #RRGGBB", hex)
	}
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return Color{Name: name, R: r, G: g, B: b}, nil
}

// Stroke is one continuous draw or erase gesture. Once committed to a Log it
// must not be modified; the Points slice is shared by readers.
type Stroke struct {
	ID        string    `json:"id"`
	Points    []Point   `json:"points"`
	Color     Color     `json:"color"`
	BrushSize int       `json:"brush_size"`
	Tool      Tool      `json:"tool"`
	Shape     Shape     `json:"shape,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Len returns the number of points in the stroke.
func (s Stroke) Len() int {
	return len(s.Points)
}

// Clone returns a copy of the stroke that does not share its point storage.
func (s Stroke) Clone() Stroke {
	s.Points = slices.Clone(s.Points)
	return s
}

// Equal reports whether two strokes paint the same thing. IDs and creation
// times are ignored.
func (s Stroke) Equal(o Stroke) bool {
	return s.Color == o.Color &&
		s.BrushSize == o.BrushSize &&
		s.Tool == o.Tool &&
		s.Shape == o.Shape &&
		slices.Equal(s.Points, o.Points)
}
