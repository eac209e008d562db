// Package image provides raster decoding, luminance sampling and layer compositing.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-forks/gopnm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("image decode failed")

// DecodeError reports an image blob that could not be turned into pixels.
type DecodeError struct {
	Source string // file path or caller-supplied label, may be empty
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Decode reads an image blob and returns it as an origin-anchored RGBA raster
// along with the registered format name.
func Decode(r io.Reader) (*image.RGBA, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, &DecodeError{Err: fmt.Errorf("zero-size %s image", format)}
	}
	return ToRGBA(img), format, nil
}

// DecodeContext is Decode with cancellation checks before and after the
// decode. A cancelled context yields ctx.Err(), never a partial raster.
func DecodeContext(ctx context.Context, r io.Reader) (*image.RGBA, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	img, format, err := Decode(r)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory blob.
func DecodeBytes(data []byte) (*image.RGBA, error) {
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// Load loads an image from the specified path.
func Load(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := Decode(file)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Source = path
		}
		return nil, err
	}
	return img, nil
}

// EncodePNG writes img losslessly so it re-decodes to identical pixels.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// PNGBytes encodes img as PNG into memory.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SupportedFormats returns the list of supported image file extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".tiff", ".tif", ".bmp", ".webp", ".pnm", ".pbm", ".pgm", ".ppm"}
}

// CheckFormat returns an error naming the supported extensions when path
// does not have one of them.
func CheckFormat(path string) error {
	if IsSupportedFormat(path) {
		return nil
	}
	return fmt.Errorf("%s: unsupported image format (want one of %s)", path, strings.Join(SupportedFormats(), " "))
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
