package canvas

import (
	"image/color"

	"gridfill/pkg/geometry"

	"github.com/fogleman/gg"
)

// Overlay is a set of rectangles drawn over the form for display only.
type Overlay struct {
	Rectangles []OverlayRect
	Fill       color.Color // used by FillSolid rectangles
	Edge       color.Color // outline color, nil for none
	EdgeWidth  float64
}

// FillPattern indicates how to fill a rectangle.
type FillPattern int

const (
	FillNone   FillPattern = iota // Just outline
	FillSolid                     // Solid fill
	FillStripe                    // Diagonal stripe
)

// OverlayRect represents a rectangle to draw on the overlay.
type OverlayRect struct {
	geometry.RectInt
	Fill           FillPattern
	StripeInterval int // spacing for FillStripe, 0 = 8px
}

// highlightOverlay builds the overlay shown for detected blank areas.
func highlightOverlay(areas []geometry.RectInt, fill, edge color.Color) *Overlay {
	o := &Overlay{Fill: fill, Edge: edge, EdgeWidth: 2}
	for _, a := range areas {
		o.Rectangles = append(o.Rectangles, OverlayRect{RectInt: a, Fill: FillSolid})
	}
	return o
}

// render draws the overlay with dc. Outlines are inset so they stay inside
// each rectangle.
func (o *Overlay) render(dc *gg.Context) {
	for _, r := range o.Rectangles {
		x, y := float64(r.X), float64(r.Y)
		w, h := float64(r.Width), float64(r.Height)

		switch r.Fill {
		case FillSolid:
			dc.DrawRectangle(x, y, w, h)
			dc.SetColor(o.Fill)
			dc.Fill()
		case FillStripe:
			interval := r.StripeInterval
			if interval <= 0 {
				interval = 8
			}
			dc.Push()
			dc.DrawRectangle(x, y, w, h)
			dc.Clip()
			dc.SetColor(o.Fill)
			dc.SetLineWidth(1)
			for off := -h; off < w; off += float64(interval) {
				dc.DrawLine(x+off, y+h, x+off+h, y)
			}
			dc.Stroke()
			dc.Pop()
		}

		if o.Edge != nil && o.EdgeWidth > 0 {
			half := o.EdgeWidth / 2
			dc.DrawRectangle(x+half, y+half, w-o.EdgeWidth, h-o.EdgeWidth)
			dc.SetColor(o.Edge)
			dc.SetLineWidth(o.EdgeWidth)
			dc.Stroke()
		}
	}
}
