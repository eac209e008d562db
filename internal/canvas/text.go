package canvas

import (
	"fmt"
	"image/color"
	"os"
	"strings"
	"sync"

	"gridfill/pkg/geometry"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FaceFunc returns a font face for a pixel size.
type FaceFunc func(size float64) (font.Face, error)

// lineSpacing is the baseline distance as a multiple of font height.
const lineSpacing = 1.2

var (
	goregularOnce sync.Once
	goregularFont *opentype.Font
	goregularErr  error
)

// DefaultFaces returns faces of the bundled Go Regular font. Faces are
// cached per size.
func DefaultFaces() FaceFunc {
	var mu sync.Mutex
	cache := make(map[float64]font.Face)
	return func(size float64) (font.Face, error) {
		goregularOnce.Do(func() {
			goregularFont, goregularErr = opentype.Parse(goregular.TTF)
		})
		if goregularErr != nil {
			return nil, fmt.Errorf("parse bundled font: %w", goregularErr)
		}

		mu.Lock()
		defer mu.Unlock()
		if f, ok := cache[size]; ok {
			return f, nil
		}
		f, err := opentype.NewFace(goregularFont, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("create face: %w", err)
		}
		cache[size] = f
		return f, nil
	}
}

// FacesFromFile loads a TrueType font file and returns faces for it.
func FacesFromFile(path string) (FaceFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	ttf, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}

	var mu sync.Mutex
	cache := make(map[float64]font.Face)
	return func(size float64) (font.Face, error) {
		mu.Lock()
		defer mu.Unlock()
		if f, ok := cache[size]; ok {
			return f, nil
		}
		f := truetype.NewFace(ttf, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
		cache[size] = f
		return f, nil
	}, nil
}

// drawText renders s with its top-left corner at pos. Lines are split on '\n'.
func drawText(dc *gg.Context, face font.Face, pos geometry.Point2D, s string, c color.Color) {
	dc.SetFontFace(face)
	dc.SetColor(c)
	step := dc.FontHeight() * lineSpacing
	for i, line := range strings.Split(s, "\n") {
		if line == "" {
			continue
		}
		dc.DrawStringAnchored(line, pos.X, pos.Y+float64(i)*step, 0, 1)
	}
}
