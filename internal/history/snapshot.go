package history

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// Snapshot is an immutable, compressed copy of a drawing layer.
type Snapshot struct {
	width, height int
	data          []byte // zstd-compressed RGBA pixels, stride = 4*width
}

// Capture compresses the pixels of img into a Snapshot.
func Capture(img *image.RGBA) (Snapshot, error) {
	enc, _, err := codec()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot codec: %w", err)
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()

	raw := img.Pix
	if img.Stride != 4*w || len(img.Pix) != 4*w*h {
		raw = make([]byte, 0, 4*w*h)
		for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
			off := img.PixOffset(img.Rect.Min.X, y)
			raw = append(raw, img.Pix[off:off+4*w]...)
		}
	}
	return Snapshot{width: w, height: h, data: enc.EncodeAll(raw, nil)}, nil
}

// Blank returns the snapshot of a fully transparent w x h layer.
func Blank(w, h int) (Snapshot, error) {
	return Capture(image.NewRGBA(image.Rect(0, 0, w, h)))
}

// Size returns the snapshot dimensions.
func (s Snapshot) Size() (w, h int) { return s.width, s.height }

// Bytes returns the compressed payload length.
func (s Snapshot) Bytes() int { return len(s.data) }

// Equal reports whether two snapshots hold the same pixels.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.width != o.width || s.height != o.height {
		return false
	}
	if bytes.Equal(s.data, o.data) {
		return true
	}
	a, err := s.Image()
	if err != nil {
		return false
	}
	b, err := o.Image()
	if err != nil {
		return false
	}
	return bytes.Equal(a.Pix, b.Pix)
}

// Image decompresses the snapshot into a new raster.
func (s Snapshot) Image() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	if err := s.Restore(img); err != nil {
		return nil, err
	}
	return img, nil
}

// Restore overwrites dst with the snapshot pixels. dst must have the
// snapshot's dimensions; on error dst is left untouched.
func (s Snapshot) Restore(dst *image.RGBA) error {
	if dst.Rect.Dx() != s.width || dst.Rect.Dy() != s.height {
		return fmt.Errorf("snapshot is %dx%d, layer is %dx%d", s.width, s.height, dst.Rect.Dx(), dst.Rect.Dy())
	}
	_, dec, err := codec()
	if err != nil {
		return fmt.Errorf("snapshot codec: %w", err)
	}
	raw, err := dec.DecodeAll(s.data, make([]byte, 0, 4*s.width*s.height))
	if err != nil {
		return fmt.Errorf("snapshot decompress: %w", err)
	}
	if len(raw) != 4*s.width*s.height {
		return fmt.Errorf("snapshot holds %d bytes, want %d", len(raw), 4*s.width*s.height)
	}
	for y := 0; y < s.height; y++ {
		off := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		copy(dst.Pix[off:off+4*s.width], raw[y*4*s.width:(y+1)*4*s.width])
	}
	return nil
}
