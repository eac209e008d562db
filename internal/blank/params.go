package blank

// Params configures blank area detection.
type Params struct {
	// BrightnessThreshold is the 8-bit luminance at or above which a pixel
	// is a candidate for a blank cell.
	BrightnessThreshold uint8
	// MinPixelCount is the smallest connected component considered.
	MinPixelCount int
	// MaxStdDev bounds the luminance standard deviation over a component's
	// bounding box.
	MaxStdDev float64
	// MinAspectRatio and MaxAspectRatio bound width/height. A component
	// passes if either orientation lies inside the bounds.
	MinAspectRatio float64
	MaxAspectRatio float64

	// ScanStep is the seed stride in pixels: only pixels whose x and y are
	// both multiples of ScanStep start a flood fill. A bright component with
	// no pixel on that grid is never found, so the default stride of 2 can
	// miss components narrower than two pixels in both directions. Tolerant
	// mode refines the stride to 1. Flood fill itself always visits every
	// connected pixel.
	ScanStep int
	// Expand grows every accepted rectangle on each side, clipped to the raster.
	Expand int
	// BlurRadius smooths luminance before thresholding. Zero disables it.
	BlurRadius float64

	// Tolerant records that the widened noisy-scan settings are in effect.
	Tolerant bool
}

// DefaultParams returns detection parameters tuned for clean scans and
// photographs of printed forms with white cells.
func DefaultParams() Params {
	return Params{
		BrightnessThreshold: 235,
		MinPixelCount:       100,
		MaxStdDev:           15,
		MinAspectRatio:      0.2,
		MaxAspectRatio:      5.0,
		ScanStep:            2,
	}
}

// TolerantParams returns DefaultParams widened for noisy scans.
func TolerantParams() Params {
	return DefaultParams().WithTolerance(true)
}

// WithTolerance returns a copy of p with the noisy-scan settings applied:
// a lower brightness cutoff, a looser std dev bound, a finer seed scan,
// light smoothing and a small post-hoc expansion of every rectangle.
// Passing false, or p already tolerant, returns p unchanged.
func (p Params) WithTolerance(tolerant bool) Params {
	if !tolerant || p.Tolerant {
		return p
	}
	p.Tolerant = true
	if p.BrightnessThreshold > 15 {
		p.BrightnessThreshold -= 15
	}
	p.MaxStdDev += 5
	p.ScanStep = 1
	p.Expand = 2
	if p.BlurRadius == 0 {
		p.BlurRadius = 1.0
	}
	return p
}

// WithMinPixelCount returns a copy of p with a custom component size floor.
func (p Params) WithMinPixelCount(n int) Params {
	p.MinPixelCount = n
	return p
}

// WithAspectRange returns a copy of p with custom aspect ratio bounds.
func (p Params) WithAspectRange(minRatio, maxRatio float64) Params {
	p.MinAspectRatio = minRatio
	p.MaxAspectRatio = maxRatio
	return p
}

// normalized fixes values the scan cannot run with.
func (p Params) normalized() Params {
	if p.ScanStep < 1 {
		p.ScanStep = 1
	}
	if p.MinPixelCount < 1 {
		p.MinPixelCount = 1
	}
	if p.MaxAspectRatio > 0 && p.MinAspectRatio > p.MaxAspectRatio {
		p.MinAspectRatio, p.MaxAspectRatio = p.MaxAspectRatio, p.MinAspectRatio
	}
	if p.Expand < 0 {
		p.Expand = 0
	}
	return p
}

// aspectOK reports whether a w x h box satisfies the aspect bounds in
// either orientation.
func (p Params) aspectOK(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	within := func(r float64) bool {
		if r < p.MinAspectRatio {
			return false
		}
		return p.MaxAspectRatio <= 0 || r <= p.MaxAspectRatio
	}
	ratio := float64(w) / float64(h)
	return within(ratio) || within(1/ratio)
}
