//go:build !opencv

package blank

import (
	fimage "gridfill/internal/image"

	"github.com/anthonynsimon/bild/blur"
)

// smooth applies a Gaussian blur to a luminance buffer.
func smooth(gray []uint8, w, h int, radius float64) []uint8 {
	blurred := blur.Gaussian(fimage.GrayImage(gray, w, h), radius)
	out, _, _ := fimage.Luminance(blurred)
	return out
}
