// Package project provides form records and the stores that persist them.
package project

import (
	"fmt"
	"image"
	"time"

	fimage "gridfill/internal/image"
	"gridfill/pkg/geometry"
)

// FormDocument is the persisted record of one form. Images are PNG blobs.
type FormDocument struct {
	ID              string             `json:"id"`
	BaseImage       []byte             `json:"base_image"`
	CompositedImage []byte             `json:"composited_image,omitempty"`
	DrawingLayer    []byte             `json:"drawing_layer,omitempty"`
	BlankAreas      []geometry.RectInt `json:"blank_areas"`
	Timestamp       time.Time          `json:"timestamp"`
	Size            int64              `json:"size"`
}

// NewFormDocument creates a record for a freshly imported form.
func NewFormDocument(id string, base image.Image) (*FormDocument, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	data, err := fimage.PNGBytes(base)
	if err != nil {
		return nil, fmt.Errorf("encode base image: %w", err)
	}
	doc := &FormDocument{ID: id, BaseImage: data}
	doc.touch()
	return doc, nil
}

// touch refreshes Timestamp and Size after a change.
func (d *FormDocument) touch() {
	d.Timestamp = time.Now()
	d.Size = int64(len(d.BaseImage) + len(d.CompositedImage) + len(d.DrawingLayer))
}

// Base decodes the base raster.
func (d *FormDocument) Base() (*image.RGBA, error) {
	return fimage.DecodeBytes(d.BaseImage)
}

// Drawing decodes the drawing layer. It returns nil when none was saved.
func (d *FormDocument) Drawing() (*image.RGBA, error) {
	if len(d.DrawingLayer) == 0 {
		return nil, nil
	}
	return fimage.DecodeBytes(d.DrawingLayer)
}

// SetBase replaces the base raster, e.g. after an image placement.
func (d *FormDocument) SetBase(img image.Image) error {
	data, err := fimage.PNGBytes(img)
	if err != nil {
		return fmt.Errorf("encode base image: %w", err)
	}
	d.BaseImage = data
	d.touch()
	return nil
}

// SetRendered stores the drawing layer and the flattened form.
func (d *FormDocument) SetRendered(drawing, composited image.Image) error {
	dl, err := fimage.PNGBytes(drawing)
	if err != nil {
		return fmt.Errorf("encode drawing layer: %w", err)
	}
	ci, err := fimage.PNGBytes(composited)
	if err != nil {
		return fmt.Errorf("encode composited image: %w", err)
	}
	d.DrawingLayer, d.CompositedImage = dl, ci
	d.touch()
	return nil
}

// SetBlankAreas records a freshly computed area set. A nil BlankAreas means
// detection has never run; an empty one means it found nothing.
func (d *FormDocument) SetBlankAreas(areas []geometry.RectInt) {
	d.BlankAreas = make([]geometry.RectInt, len(areas))
	copy(d.BlankAreas, areas)
	d.touch()
}
