//go:build opencv

package blank

import (
	"image"
	"math"

	"gridfill/internal/logging"

	"gocv.io/x/gocv"
)

// smooth applies an OpenCV Gaussian blur to a luminance buffer. Falls back
// to the unblurred buffer if the matrix cannot be built.
func smooth(gray []uint8, w, h int, radius float64) []uint8 {
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, gray)
	if err != nil {
		logging.Logger().Warn("opencv smoothing unavailable", "err", err)
		return gray
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	k := 2*int(math.Ceil(2*radius)) + 1
	gocv.GaussianBlur(src, &dst, image.Point{X: k, Y: k}, radius, radius, gocv.BorderDefault)

	out := make([]uint8, w*h)
	copy(out, dst.ToBytes())
	return out
}
