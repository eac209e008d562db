// Package fit computes how an arbitrary image is placed inside a target
// rectangle, either cropped to fill it or scaled to fit within it.
package fit

import (
	"fmt"
	"image"
	"math"
	"strings"

	"gridfill/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Mode selects the placement strategy.
type Mode int

const (
	// CropFill crops the source to the destination aspect ratio and fills
	// the destination exactly.
	CropFill Mode = iota
	// Letterbox scales the whole source to fit and centers it, leaving
	// uncovered bands.
	Letterbox
)

func (m Mode) String() string {
	switch m {
	case CropFill:
		return "crop-fill"
	case Letterbox:
		return "letterbox"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as used in preferences and on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crop-fill", "cropfill", "crop", "fill", "cover":
		return CropFill, nil
	case "letterbox", "contain", "fit":
		return Letterbox, nil
	default:
		return CropFill, fmt.Errorf("unknown fit mode %q", s)
	}
}

// Placement maps a source crop onto a destination rectangle.
// Source is in source pixel coordinates relative to the source bounds and
// may be fractional; Dest is in destination raster coordinates.
type Placement struct {
	Source geometry.Rect
	Dest   geometry.RectInt
}

// Empty reports whether the placement draws nothing.
func (p Placement) Empty() bool {
	return p.Dest.Empty() || p.Source.Width <= 0 || p.Source.Height <= 0
}

// Transform returns the source-to-destination affine transform.
func (p Placement) Transform() geometry.AffineTransform {
	if p.Empty() {
		return geometry.Identity()
	}
	sx := float64(p.Dest.Width) / p.Source.Width
	sy := float64(p.Dest.Height) / p.Source.Height
	return geometry.Translation(float64(p.Dest.X), float64(p.Dest.Y)).
		Compose(geometry.Scale(sx, sy)).
		Compose(geometry.Translation(-p.Source.X, -p.Source.Y))
}

// Fit computes the placement of a srcW x srcH image into dest.
// Non-positive dimensions yield the zero Placement.
func Fit(srcW, srcH int, dest geometry.RectInt, mode Mode) Placement {
	if srcW <= 0 || srcH <= 0 || dest.Empty() {
		return Placement{}
	}
	sw, sh := float64(srcW), float64(srcH)
	dw, dh := float64(dest.Width), float64(dest.Height)

	switch mode {
	case Letterbox:
		scale := math.Min(dw/sw, dh/sh)
		w := clampInt(int(math.Round(sw*scale)), 1, dest.Width)
		h := clampInt(int(math.Round(sh*scale)), 1, dest.Height)
		return Placement{
			Source: geometry.Rect{Width: sw, Height: sh},
			Dest: geometry.RectInt{
				X:      dest.X + (dest.Width-w)/2,
				Y:      dest.Y + (dest.Height-h)/2,
				Width:  w,
				Height: h,
			},
		}

	default:
		srcAspect := sw / sh
		dstAspect := dw / dh
		crop := geometry.Rect{Width: sw, Height: sh}
		if srcAspect > dstAspect {
			// Source is wider: keep full height, trim the sides.
			crop.Width = sh * dstAspect
			crop.X = (sw - crop.Width) / 2
		} else if srcAspect < dstAspect {
			// Source is taller: keep full width, trim top and bottom.
			crop.Height = sw / dstAspect
			crop.Y = (sh - crop.Height) / 2
		}
		return Placement{Source: crop, Dest: dest}
	}
}

// Quality selects the resampling kernel used by Draw.
type Quality int

const (
	// QualityAuto uses bilinear when shrinking and Catmull-Rom when enlarging.
	QualityAuto Quality = iota
	QualityFast
	QualitySmooth
)

func (q Quality) interpolator(scale float64) draw.Interpolator {
	switch q {
	case QualityFast:
		return draw.ApproxBiLinear
	case QualitySmooth:
		return draw.CatmullRom
	default:
		if scale < 1 {
			return draw.BiLinear
		}
		return draw.CatmullRom
	}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Draw renders src into dst according to p, composited over whatever is
// already in p.Dest. Nothing outside p.Dest is touched.
func Draw(dst draw.Image, src image.Image, p Placement, q Quality) {
	if p.Empty() {
		return
	}
	target := dst
	if si, ok := dst.(subImager); ok {
		sub, ok := si.SubImage(p.Dest.Image()).(draw.Image)
		if !ok {
			return
		}
		target = sub
	}
	if target.Bounds().Empty() {
		return
	}

	sb := src.Bounds()
	m := p.Transform().Compose(geometry.Translation(-float64(sb.Min.X), -float64(sb.Min.Y))).ToMatrix()
	s2d := f64.Aff3{m[0][0], m[0][1], m[0][2], m[1][0], m[1][1], m[1][2]}

	sr := p.Source.Bounds().Add(sb.Min).Intersect(sb)
	scale := float64(p.Dest.Width) / p.Source.Width
	q.interpolator(scale).Transform(target, s2d, src, sr, draw.Over, nil)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
