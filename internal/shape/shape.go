// Package shape snaps freehand strokes to canonical primitives.
//
// Every fit is a fixed number of passes over the stroke points so the
// normalizer can run inside a session loop without unbounded work.
package shape

import (
	"math"

	"github.com/ayusman/airboard/internal/stroke"
)

// Config holds the fit thresholds.
type Config struct {
	// MinPoints is the smallest stroke that is considered for fitting.
	MinPoints int `yaml:"min_points" json:"min_points"`
	// Threshold is the largest accepted fit error, as a fraction of the
	// stroke's bounding box diagonal.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// ClosureRatio is how close the stroke ends must be, as a fraction of the
	// diagonal, for closed primitives to be considered.
	ClosureRatio float64 `yaml:"closure_ratio" json:"closure_ratio"`
	// CircleSegments is the number of segments a snapped circle is drawn with.
	CircleSegments int `yaml:"circle_segments" json:"circle_segments"`
	// SquareTolerance is the largest side difference, as a fraction of the
	// longer side, for a rectangle to be snapped to a square.
	SquareTolerance float64 `yaml:"square_tolerance" json:"square_tolerance"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinPoints:       10,
		Threshold:       0.05,
		ClosureRatio:    0.25,
		CircleSegments:  48,
		SquareTolerance: 0.1,
	}
}

// Normalizer replaces freehand strokes with the best-fitting primitive.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer. Zero fields in cfg fall back to the defaults.
func New(cfg Config) *Normalizer {
	def := DefaultConfig()
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = def.MinPoints
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ClosureRatio <= 0 {
		cfg.ClosureRatio = def.ClosureRatio
	}
	if cfg.CircleSegments < 3 {
		cfg.CircleSegments = def.CircleSegments
	}
	if cfg.SquareTolerance <= 0 {
		cfg.SquareTolerance = def.SquareTolerance
	}
	return &Normalizer{cfg: cfg}
}

// Config returns the effective thresholds.
func (n *Normalizer) Config() Config { return n.cfg }

// Normalize returns s with its points replaced by the best primitive whose
// fit error is below the threshold. Short strokes, erase strokes and strokes
// that are already primitives are returned unchanged.
func (n *Normalizer) Normalize(s stroke.Stroke) stroke.Stroke {
	if len(s.Points) < n.cfg.MinPoints || s.Tool == stroke.ToolErase || s.Shape != stroke.ShapeFreehand {
		return s
	}

	f, ok := n.fit(s.Points)
	if !ok || f.err > n.cfg.Threshold {
		return s
	}

	var pts []stroke.Point
	switch f.kind {
	case stroke.ShapeLine:
		pts = []stroke.Point{f.a, f.b}
	case stroke.ShapeCircle:
		pts = circlePoints(f, n.cfg.CircleSegments)
	case stroke.ShapeTriangle:
		pts = []stroke.Point{f.a, f.b, f.c, f.a}
	case stroke.ShapeRectangle, stroke.ShapeSquare:
		pts = []stroke.Point{
			{X: f.a.X, Y: f.a.Y},
			{X: f.b.X, Y: f.a.Y},
			{X: f.b.X, Y: f.b.Y},
			{X: f.a.X, Y: f.b.Y},
			{X: f.a.X, Y: f.a.Y},
		}
	}
	spaceTimestamps(pts, s.Points[0].Timestamp, s.Points[len(s.Points)-1].Timestamp)

	s.Points = pts
	s.Shape = f.kind
	return s
}

// Fit returns the best primitive for points and its error. It returns
// ShapeFreehand and +Inf when no primitive applies.
func (n *Normalizer) Fit(points []stroke.Point) (stroke.Shape, float64) {
	f, ok := n.fit(points)
	if !ok {
		return stroke.ShapeFreehand, math.Inf(1)
	}
	return f.kind, f.err
}

// fit describes a fitted primitive. For a line a and b are the endpoints, for
// a circle a is the center and r the radius, for a rectangle or square a and
// b are the min and max corners, for a triangle a, b and c are the vertices
// in drawing order.
type fit struct {
	kind    stroke.Shape
	err     float64
	a, b, c stroke.Point
	r       float64
	start   float64
}

type bounds struct {
	minX, minY, maxX, maxY float64
}

func (b bounds) diag() float64 {
	return math.Hypot(b.maxX-b.minX, b.maxY-b.minY)
}

func (n *Normalizer) fit(points []stroke.Point) (fit, bool) {
	if len(points) < 2 {
		return fit{}, false
	}

	bb := bounds{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	var cx, cy float64
	for _, p := range points {
		bb.minX = math.Min(bb.minX, p.X)
		bb.minY = math.Min(bb.minY, p.Y)
		bb.maxX = math.Max(bb.maxX, p.X)
		bb.maxY = math.Max(bb.maxY, p.Y)
		cx += p.X
		cy += p.Y
	}
	cnt := float64(len(points))
	cx /= cnt
	cy /= cnt

	diag := bb.diag()
	if diag == 0 {
		return fit{}, false
	}

	best := fitLine(points, cx, cy, diag)

	first, last := points[0], points[len(points)-1]
	closed := math.Hypot(last.X-first.X, last.Y-first.Y) <= n.cfg.ClosureRatio*diag
	if closed {
		if c := fitCircle(points, cx, cy, diag); c.err < best.err {
			best = c
		}
		if r := fitRectangle(points, bb, diag); r.err < best.err {
			best = n.squared(r)
		}
		if t := fitTriangle(points, cx, cy, diag); t.err < best.err {
			best = t
		}
	}
	return best, true
}

// squared turns a nearly square rectangle fit into a square of the mean side
// length around the same center.
func (n *Normalizer) squared(r fit) fit {
	w, h := r.b.X-r.a.X, r.b.Y-r.a.Y
	if math.Abs(w-h) > n.cfg.SquareTolerance*math.Max(w, h) {
		return r
	}
	half := (w + h) / 4
	cx, cy := (r.a.X+r.b.X)/2, (r.a.Y+r.b.Y)/2
	r.kind = stroke.ShapeSquare
	r.a = stroke.Point{X: cx - half, Y: cy - half}
	r.b = stroke.Point{X: cx + half, Y: cy + half}
	return r
}

// fitLine fits the total least squares line through the centroid.
func fitLine(points []stroke.Point, cx, cy, diag float64) fit {
	var sxx, syy, sxy float64
	for _, p := range points {
		dx, dy := p.X-cx, p.Y-cy
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
	ux, uy := math.Cos(theta), math.Sin(theta)

	var sum float64
	tmin, tmax := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		dx, dy := p.X-cx, p.Y-cy
		sum += math.Abs(-uy*dx + ux*dy)
		t := ux*dx + uy*dy
		tmin = math.Min(tmin, t)
		tmax = math.Max(tmax, t)
	}

	return fit{
		kind: stroke.ShapeLine,
		err:  sum / float64(len(points)) / diag,
		a:    stroke.Point{X: cx + tmin*ux, Y: cy + tmin*uy},
		b:    stroke.Point{X: cx + tmax*ux, Y: cy + tmax*uy},
	}
}

// fitCircle uses the centroid as center and the mean distance as radius.
func fitCircle(points []stroke.Point, cx, cy, diag float64) fit {
	var r float64
	for _, p := range points {
		r += math.Hypot(p.X-cx, p.Y-cy)
	}
	r /= float64(len(points))

	var sum float64
	for _, p := range points {
		sum += math.Abs(math.Hypot(p.X-cx, p.Y-cy) - r)
	}

	return fit{
		kind:  stroke.ShapeCircle,
		err:   sum / float64(len(points)) / diag,
		a:     stroke.Point{X: cx, Y: cy},
		r:     r,
		start: math.Atan2(points[0].Y-cy, points[0].X-cx),
	}
}

// fitRectangle measures each point against the nearest edge of the
// axis-aligned bounding box.
func fitRectangle(points []stroke.Point, bb bounds, diag float64) fit {
	var sum float64
	for _, p := range points {
		d := math.Min(
			math.Min(math.Abs(p.X-bb.minX), math.Abs(p.X-bb.maxX)),
			math.Min(math.Abs(p.Y-bb.minY), math.Abs(p.Y-bb.maxY)),
		)
		sum += d
	}

	return fit{
		kind: stroke.ShapeRectangle,
		err:  sum / float64(len(points)) / diag,
		a:    stroke.Point{X: bb.minX, Y: bb.minY},
		b:    stroke.Point{X: bb.maxX, Y: bb.maxY},
	}
}

// fitTriangle picks the vertices with three farthest-point passes: the point
// farthest from the centroid, the point farthest from that one, and the
// point farthest from the line through both. The error is the distance of
// each point to the nearest side.
func fitTriangle(points []stroke.Point, cx, cy, diag float64) fit {
	ia := farthest(points, func(p stroke.Point) float64 { return math.Hypot(p.X-cx, p.Y-cy) })
	a := points[ia]
	ib := farthest(points, func(p stroke.Point) float64 { return math.Hypot(p.X-a.X, p.Y-a.Y) })
	b := points[ib]
	ic := farthest(points, func(p stroke.Point) float64 { return segmentDist(p, a, b, false) })
	c := points[ic]

	if segmentDist(c, a, b, false) == 0 {
		return fit{kind: stroke.ShapeTriangle, err: math.Inf(1)}
	}

	var sum float64
	for _, p := range points {
		sum += math.Min(segmentDist(p, a, b, true), math.Min(segmentDist(p, b, c, true), segmentDist(p, c, a, true)))
	}

	// Keep the vertices in the order the stroke visits them.
	v := [3]struct {
		i int
		p stroke.Point
	}{{ia, a}, {ib, b}, {ic, c}}
	for i := 1; i < 3; i++ {
		for j := i; j > 0 && v[j].i < v[j-1].i; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}

	return fit{
		kind: stroke.ShapeTriangle,
		err:  sum / float64(len(points)) / diag,
		a:    v[0].p,
		b:    v[1].p,
		c:    v[2].p,
	}
}

func farthest(points []stroke.Point, dist func(stroke.Point) float64) int {
	best, bestD := 0, -1.0
	for i, p := range points {
		if d := dist(p); d > bestD {
			best, bestD = i, d
		}
	}
	return best
}

// segmentDist returns the distance from p to the line through a and b, or to
// the segment ab when clamp is set.
func segmentDist(p, a, b stroke.Point, clamp bool) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	if !clamp {
		return math.Abs((p.X-a.X)*dy-(p.Y-a.Y)*dx) / math.Sqrt(l2)
	}
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

func circlePoints(f fit, segments int) []stroke.Point {
	pts := make([]stroke.Point, segments+1)
	for i := 0; i < segments; i++ {
		a := f.start + 2*math.Pi*float64(i)/float64(segments)
		pts[i] = stroke.Point{X: f.a.X + f.r*math.Cos(a), Y: f.a.Y + f.r*math.Sin(a)}
	}
	pts[segments] = pts[0]
	return pts
}

func spaceTimestamps(pts []stroke.Point, from, to int64) {
	if len(pts) == 1 {
		pts[0].Timestamp = from
		return
	}
	step := float64(to-from) / float64(len(pts)-1)
	for i := range pts {
		pts[i].Timestamp = from + int64(math.Round(step*float64(i)))
	}
}
