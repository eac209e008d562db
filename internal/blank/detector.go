// Package blank finds empty fillable cells on a scanned or photographed form.
//
// A cell is a connected region of near-uniform bright pixels. Detection runs
// a 4-connected flood fill over thresholded luminance, filters components by
// size, uniformity and shape, and merges overlapping survivors.
package blank

import (
	"context"
	"fmt"
	"image"
	"io"
	"sort"

	fimage "gridfill/internal/image"
	"gridfill/internal/logging"
	"gridfill/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// component is a connected set of bright pixels found by flood fill.
type component struct {
	pixelCount             int
	minX, minY, maxX, maxY int
	stdDev                 float64
}

func (c component) bounds() geometry.RectInt {
	return geometry.RectInt{
		X:      c.minX,
		Y:      c.minY,
		Width:  c.maxX - c.minX + 1,
		Height: c.maxY - c.minY + 1,
	}
}

// Detect returns the blank areas of img. The result is deterministic for a
// given raster and Params; every rectangle lies inside the raster and has
// positive size. A zero-size raster yields no areas.
func Detect(img image.Image, p Params) []geometry.RectInt {
	p = p.normalized()

	gray, w, h := fimage.Luminance(img)
	if w == 0 || h == 0 {
		return nil
	}
	if p.BlurRadius > 0 {
		gray = smooth(gray, w, h, p.BlurRadius)
	}

	d := &detector{gray: gray, w: w, h: h, params: p}
	areas := d.run()

	logging.Logger().Debug("blank areas detected",
		"width", w, "height", h,
		"components", d.components,
		"rejected", d.rejected,
		"areas", len(areas),
		"threshold", p.BrightnessThreshold,
		"tolerant", p.Tolerant)

	return areas
}

// DetectFromReader decodes a form image and detects its blank areas, using
// TolerantParams when tolerant is set. Decode failures are returned as
// *image.DecodeError.
func DetectFromReader(ctx context.Context, r io.Reader, tolerant bool) ([]geometry.RectInt, error) {
	img, _, err := fimage.DecodeContext(ctx, r)
	if err != nil {
		return nil, err
	}
	areas := Detect(img, DefaultParams().WithTolerance(tolerant))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("blank area detection: %w", err)
	}
	return areas, nil
}

// detector holds the per-run state: the luminance arena, the visited
// bitmap and a reusable index queue.
type detector struct {
	gray    []uint8
	w, h    int
	params  Params
	visited []bool
	queue   []int
	window  []float64

	components int
	rejected   int
}

func (d *detector) run() []geometry.RectInt {
	d.visited = make([]bool, d.w*d.h)
	thresh := d.params.BrightnessThreshold
	step := d.params.ScanStep

	var accepted []geometry.RectInt
	for y := 0; y < d.h; y += step {
		for x := 0; x < d.w; x += step {
			idx := y*d.w + x
			if d.visited[idx] {
				continue
			}
			if d.gray[idx] < thresh {
				d.visited[idx] = true
				continue
			}

			c := d.fill(idx)
			d.components++
			if !d.accept(&c) {
				d.rejected++
				continue
			}
			accepted = append(accepted, c.bounds())
		}
	}

	areas := mergeOverlapping(accepted)
	if n := d.params.Expand; n > 0 {
		for i := range areas {
			areas[i] = areas[i].Inset(-n).Clip(d.w, d.h)
		}
		areas = mergeOverlapping(areas)
	}

	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Y != areas[j].Y {
			return areas[i].Y < areas[j].Y
		}
		return areas[i].X < areas[j].X
	})
	return areas
}

// fill floods the 4-connected bright component containing seed.
func (d *detector) fill(seed int) component {
	w, h := d.w, d.h
	thresh := d.params.BrightnessThreshold

	sx, sy := seed%w, seed/w
	c := component{minX: sx, minY: sy, maxX: sx, maxY: sy}

	d.queue = append(d.queue[:0], seed)
	d.visited[seed] = true

	for head := 0; head < len(d.queue); head++ {
		idx := d.queue[head]
		px, py := idx%w, idx/w
		c.pixelCount++
		if px < c.minX {
			c.minX = px
		}
		if px > c.maxX {
			c.maxX = px
		}
		if py < c.minY {
			c.minY = py
		}
		if py > c.maxY {
			c.maxY = py
		}

		for _, dd := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nx, ny := px+dd[0], py+dd[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			nidx := ny*w + nx
			if d.visited[nidx] || d.gray[nidx] < thresh {
				continue
			}
			d.visited[nidx] = true
			d.queue = append(d.queue, nidx)
		}
	}
	return c
}

// accept applies the size, shape and uniformity filters. The std dev is
// computed last since it touches every pixel of the bounding box.
func (d *detector) accept(c *component) bool {
	if c.pixelCount < d.params.MinPixelCount {
		return false
	}
	b := c.bounds()
	if !d.params.aspectOK(b.Width, b.Height) {
		return false
	}
	c.stdDev = d.boxStdDev(b)
	return c.stdDev <= d.params.MaxStdDev
}

// boxStdDev returns the population std dev of luminance over r, including
// pixels that are not part of the component.
func (d *detector) boxStdDev(r geometry.RectInt) float64 {
	d.window = d.window[:0]
	for y := r.Y; y < r.Bottom(); y++ {
		row := d.gray[y*d.w+r.X : y*d.w+r.Right()]
		for _, v := range row {
			d.window = append(d.window, float64(v))
		}
	}
	return stat.PopStdDev(d.window, nil)
}

// mergeOverlapping unions overlapping rectangles until none overlap.
func mergeOverlapping(rects []geometry.RectInt) []geometry.RectInt {
	for {
		merged := false
		for i := 0; i < len(rects) && !merged; i++ {
			for j := i + 1; j < len(rects); j++ {
				if !rects[i].Overlaps(rects[j]) {
					continue
				}
				rects[i] = rects[i].Union(rects[j])
				rects = append(rects[:j], rects[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return rects
		}
	}
}
