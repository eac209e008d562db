package image

import (
	"image"
	"image/draw"
)

// ToRGBA returns img as an *image.RGBA whose bounds start at (0,0).
// An RGBA already anchored at the origin is returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Clone returns a deep copy of an RGBA raster.
func Clone(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	return out
}

// Luminance converts a raster to per-pixel 8-bit luminance in row-major order.
// Alpha is ignored. Uses the fixed-point Rec.601 weights
// (19595*R + 38470*G + 7471*B) >> 16.
func Luminance(img image.Image) (gray []uint8, w, h int) {
	if img == nil {
		return nil, 0, 0
	}
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	gray = make([]uint8, w*h)

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[(b.Min.Y+y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			for x := 0; x < w; x++ {
				p := row[x*4 : x*4+3 : x*4+3]
				gray[y*w+x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := (b.Min.Y+y-src.Rect.Min.Y)*src.Stride + (b.Min.X - src.Rect.Min.X)
			copy(gray[y*w:(y+1)*w], src.Pix[off:off+w])
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				gray[y*w+x] = luma(r>>8, g>>8, bl>>8)
			}
		}
	}
	return gray, w, h
}

func luma(r, g, b uint32) uint8 {
	return uint8((19595*r + 38470*g + 7471*b) >> 16)
}

// GrayImage wraps a luminance buffer as an *image.Gray sharing its storage.
func GrayImage(gray []uint8, w, h int) *image.Gray {
	return &image.Gray{Pix: gray, Stride: w, Rect: image.Rect(0, 0, w, h)}
}
