package export

import (
	"github.com/jung-kurt/gofpdf"

	"github.com/ayusman/airboard/internal/stroke"
)

// WritePDF draws strokes as vector paths on a page the size of the canvas,
// one point per pixel.
func WritePDF(path string, strokes []stroke.Stroke, width, height int, background stroke.Color) error {
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(width), Ht: float64(height)},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	p.SetFillColor(int(background.R), int(background.G), int(background.B))
	p.Rect(0, 0, float64(width), float64(height), "F")

	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")
	for _, st := range strokes {
		c := st.Color
		if st.Tool == stroke.ToolErase {
			c = background
		}
		p.SetDrawColor(int(c.R), int(c.G), int(c.B))
		p.SetFillColor(int(c.R), int(c.G), int(c.B))
		p.SetLineWidth(float64(st.BrushSize))

		if len(st.Points) == 1 {
			pt := st.Points[0]
			p.Circle(pt.X, pt.Y, max(float64(st.BrushSize)/2, 1), "F")
			continue
		}
		for i := 1; i < len(st.Points); i++ {
			p.Line(st.Points[i-1].X, st.Points[i-1].Y, st.Points[i].X, st.Points[i].Y)
		}
	}
	return p.OutputFileAndClose(path)
}
