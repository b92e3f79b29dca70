// Package canvas rasterizes stroke sequences with gocv.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/airboard/internal/stroke"
)

// DefaultJPEGQuality is the quality used for streamed frames.
const DefaultJPEGQuality = 80

// ErrEmptyFrame is returned when a video frame cannot be decoded.
var ErrEmptyFrame = errors.New("empty frame")

// Projector renders visible strokes onto a fixed-size surface. Rendering is
// a pure function of the stroke sequence.
type Projector struct {
	Width      int
	Height     int
	Background stroke.Color
}

// NewProjector creates a Projector for a width x height canvas.
func NewProjector(width, height int, background stroke.Color) *Projector {
	return &Projector{Width: width, Height: height, Background: background}
}

// Blank returns a surface filled with the background color.
func (p *Projector) Blank() *Surface {
	bg := p.Background
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0),
		p.Height, p.Width, gocv.MatTypeCV8UC3)
	return &Surface{mat: mat}
}

// Render replays strokes in order onto a blank surface. The caller owns the
// returned surface and must close it.
func (p *Projector) Render(strokes iter.Seq[stroke.Stroke]) *Surface {
	s := p.Blank()
	for st := range strokes {
		p.Draw(s, st)
	}
	return s
}

// Draw paints one stroke onto s. Draw strokes use their color, erase strokes
// paint the background. A single point is drawn as a dot.
func (p *Projector) Draw(s *Surface, st stroke.Stroke) {
	if len(st.Points) == 0 {
		return
	}

	c := st.Color.RGBA()
	if st.Tool == stroke.ToolErase {
		c = p.Background.RGBA()
	}
	thickness := max(st.BrushSize, 1)

	if len(st.Points) == 1 {
		radius := max(thickness/2, 1)
		gocv.Circle(&s.mat, pixel(st.Points[0]), radius, c, -1)
		return
	}

	prev := pixel(st.Points[0])
	for _, pt := range st.Points[1:] {
		next := pixel(pt)
		gocv.Line(&s.mat, prev, next, c, thickness)
		prev = next
	}
}

func pixel(pt stroke.Point) image.Point {
	return image.Pt(int(math.Round(pt.X)), int(math.Round(pt.Y)))
}

// Surface is a rendered canvas backed by a BGR Mat.
type Surface struct {
	mat gocv.Mat
}

// Mat returns the underlying Mat. It stays owned by the surface.
func (s *Surface) Mat() gocv.Mat { return s.mat }

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.mat.Cols() }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.mat.Rows() }

// Bytes returns the raw BGR pixel data.
func (s *Surface) Bytes() []byte { return s.mat.ToBytes() }

// Clone returns an independent copy of the surface.
func (s *Surface) Clone() *Surface { return &Surface{mat: s.mat.Clone()} }

// EncodePNG encodes the surface as PNG.
func (s *Surface) EncodePNG() ([]byte, error) {
	return encode(gocv.PNGFileExt, s.mat, nil)
}

// EncodeJPEG encodes the surface as JPEG with the given quality.
func (s *Surface) EncodeJPEG(quality int) ([]byte, error) {
	return encode(gocv.JPEGFileExt, s.mat, []int{gocv.IMWriteJpegQuality, quality})
}

// WritePNG writes the surface to path.
func (s *Surface) WritePNG(path string) error {
	if ok := gocv.IMWrite(path, s.mat); !ok {
		return fmt.Errorf("write %s: imwrite failed", path)
	}
	return nil
}

// Close releases the Mat.
func (s *Surface) Close() error {
	return s.mat.Close()
}

func encode(ext gocv.FileExt, mat gocv.Mat, params []int) ([]byte, error) {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if params == nil {
		buf, err = gocv.IMEncode(ext, mat)
	} else {
		buf, err = gocv.IMEncodeWithParams(ext, mat, params)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Composite blends the canvas over a JPEG video frame and returns the result
// as JPEG. alpha is the weight of the canvas; the frame is resized to the
// canvas size when they differ.
func Composite(frameJPEG []byte, s *Surface, alpha float64, quality int) ([]byte, error) {
	frame, err := gocv.IMDecode(frameJPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer frame.Close()
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	src := frame
	if frame.Cols() != s.Width() || frame.Rows() != s.Height() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(frame, &resized, image.Pt(s.Width(), s.Height()), 0, 0, gocv.InterpolationLinear)
		src = resized
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.AddWeighted(src, 1-alpha, s.mat, alpha, 0, &out)

	return encode(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, quality})
}
