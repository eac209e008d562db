// Package colorutil provides shared color utilities for the form filler.
package colorutil

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black       = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Transparent = color.RGBA{}

	// Highlight is the fill for detected blank areas (non-premultiplied).
	Highlight = color.NRGBA{R: 0, G: 160, B: 255, A: 64}
	// HighlightEdge outlines detected blank areas.
	HighlightEdge = color.NRGBA{R: 0, G: 120, B: 220, A: 200}
	// Hover outlines the blank area under the pointer.
	Hover = color.NRGBA{R: 255, G: 140, B: 0, A: 230}
)

// ParseHex parses "#rrggbb", "rrggbb", "#rgb" or "#rrggbbaa" into a color.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}

	alpha := uint8(255)
	if len(s) == 9 {
		var a uint8
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in %q: %w", s, err)
		}
		alpha = a
		s = s[:7]
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// Hex formats a color as "#rrggbb", appending alpha when it is not opaque.
func Hex(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A)
}
