package image

import (
	"image"
	"image/color"
	"image/draw"
)

// BlendMode specifies how a layer is combined with what lies beneath it.
type BlendMode int

const (
	// BlendNormal is Porter-Duff source-over.
	BlendNormal BlendMode = iota
	// BlendDestinationOut removes destination coverage where the source is
	// opaque, leaving transparency rather than the colour underneath.
	BlendDestinationOut
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendDestinationOut:
		return "DestinationOut"
	default:
		return "Unknown"
	}
}

// Layer is one raster in a composite stack. All layers of a stack share the
// composite's coordinate space.
type Layer struct {
	Name      string
	Image     *image.RGBA
	Visible   bool
	Opacity   float64 // 0.0 - 1.0
	BlendMode BlendMode
}

// NewLayer creates a transparent visible layer of the given size.
func NewLayer(name string, w, h int) *Layer {
	return &Layer{
		Name:    name,
		Image:   image.NewRGBA(image.Rect(0, 0, w, h)),
		Visible: true,
		Opacity: 1.0,
	}
}

// Clear makes every pixel of the layer transparent.
func (l *Layer) Clear() {
	clear(l.Image.Pix)
}

// Composite combines multiple layers into a single image.
type Composite struct {
	Width     int
	Height    int
	Layers    []*Layer
	BackColor color.Color
}

// NewComposite creates a new Composite with the specified dimensions and a
// transparent background.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.Transparent,
	}
}

// AddLayer appends a layer on top of the stack.
func (c *Composite) AddLayer(layer *Layer) {
	c.Layers = append(c.Layers, layer)
}

// Render produces the final composited image, bottom layer first.
func (c *Composite) Render() *image.RGBA {
	result := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(result, result.Bounds(), &image.Uniform{c.BackColor}, image.Point{}, draw.Src)

	for _, l := range c.Layers {
		if l == nil || l.Image == nil || !l.Visible || l.Opacity <= 0 {
			continue
		}
		Blend(result, result.Bounds(), l.Image, image.Point{}, l.BlendMode, l.Opacity)
	}
	return result
}

// Blend combines src onto dst over rectangle r using mode. sp is the point in
// src aligned with r.Min. The rectangle is clipped to both rasters.
func Blend(dst *image.RGBA, r image.Rectangle, src image.Image, sp image.Point, mode BlendMode, opacity float64) {
	delta := sp.Sub(r.Min)
	r = r.Intersect(dst.Bounds())
	sr := src.Bounds().Intersect(r.Add(delta))
	r = sr.Sub(delta)
	sp = sr.Min
	if r.Empty() {
		return
	}

	switch mode {
	case BlendDestinationOut:
		destinationOut(dst, r, src, sp, opacity)
	default:
		if opacity >= 1 {
			draw.Draw(dst, r, src, sp, draw.Over)
			return
		}
		mask := image.NewUniform(color.Alpha{A: uint8(clamp(opacity, 0, 1) * 255)})
		draw.DrawMask(dst, r, src, sp, mask, image.Point{}, draw.Over)
	}
}

// destinationOut scales every destination pixel by (1 - srcAlpha*opacity).
func destinationOut(dst *image.RGBA, r image.Rectangle, src image.Image, sp image.Point, opacity float64) {
	op := uint32(clamp(opacity, 0, 1) * 0xffff)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		sy := sp.Y + (y - r.Min.Y)
		for x := r.Min.X; x < r.Max.X; x++ {
			sx := sp.X + (x - r.Min.X)
			_, _, _, sa := src.At(sx, sy).RGBA()
			if sa == 0 {
				continue
			}
			sa = sa * op / 0xffff
			keep := 0xffff - sa

			i := dst.PixOffset(x, y)
			px := dst.Pix[i : i+4 : i+4]
			px[0] = uint8(uint32(px[0]) * keep / 0xffff)
			px[1] = uint8(uint32(px[1]) * keep / 0xffff)
			px[2] = uint8(uint32(px[2]) * keep / 0xffff)
			px[3] = uint8(uint32(px[3]) * keep / 0xffff)
		}
	}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
