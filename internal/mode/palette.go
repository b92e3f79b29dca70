package mode

import (
	"errors"

	"github.com/ayusman/airboard/internal/stroke"
)

// ErrUnknownColor is returned when a color name is not in the palette.
var ErrUnknownColor = errors.New("unknown color")

// Palette is the fixed cyclic color order used by the color-cycle gestures.
type Palette []stroke.Color

// DefaultPalette returns the built-in palette.
func DefaultPalette() Palette {
	return Palette{
		{Name: "red", R: 255, G: 0, B: 0},
		{Name: "blue", R: 0, G: 0, B: 255},
		{Name: "green", R: 0, G: 255, B: 0},
		{Name: "yellow", R: 255, G: 255, B: 0},
		{Name: "purple", R: 255, G: 0, B: 255},
		{Name: "white", R: 255, G: 255, B: 255},
	}
}

// Index returns the position of the named color.
func (p Palette) Index(name string) (int, error) {
	for i, c := range p {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, ErrUnknownColor
}

// Names lists the palette colors in cycle order.
func (p Palette) Names() []string {
	names := make([]string, len(p))
	for i, c := range p {
		names[i] = c.Name
	}
	return names
}
