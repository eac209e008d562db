// Package canvas composites a form image, a persistent annotation layer and
// display-only overlays, and applies freehand, eraser, text and image
// placement edits to them.
//
// Layer order, bottom to top: base, drawing, region highlight, hover,
// live-edit preview. Only base and drawing are part of the flattened output.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gridfill/internal/fit"
	"gridfill/internal/history"
	fimage "gridfill/internal/image"
	"gridfill/internal/logging"
	"gridfill/pkg/colorutil"
	"gridfill/pkg/geometry"

	"github.com/fogleman/gg"
)

var (
	// ErrContextUnavailable is returned when the drawing surface cannot be
	// used: the compositor has been closed or was built without a base.
	ErrContextUnavailable = errors.New("drawing surface unavailable")
	// ErrUnsupportedTool is returned when a stroke is started with a tool
	// that does not stroke.
	ErrUnsupportedTool = errors.New("tool does not support strokes")
)

// Option configures a Compositor.
type Option func(*Compositor)

// WithStyle sets the initial tool style.
func WithStyle(s Style) Option {
	return func(c *Compositor) { c.style = s }
}

// WithFaces sets the font source for text.
func WithFaces(f FaceFunc) Option {
	return func(c *Compositor) { c.faces = f }
}

// WithCellBackground sets the color a cell is cleared to before an image is
// placed in it. The default is transparent.
func WithCellBackground(col color.Color) Option {
	return func(c *Compositor) { c.cellBackground = col }
}

// WithHighlightPattern sets how detected areas are filled in the overlay.
func WithHighlightPattern(p FillPattern) Option {
	return func(c *Compositor) { c.highlightFill = p }
}

// strokeState tracks an in-progress stroke.
type strokeState struct {
	tool Tool
	last geometry.Point2D
}

// Compositor owns the layer stack of one form and its drawing history.
// It is not safe for concurrent use.
type Compositor struct {
	width, height int

	base      *fimage.Layer
	drawing   *fimage.Layer
	highlight *fimage.Layer
	hover     *fimage.Layer
	preview   *fimage.Layer

	drawDC    *gg.Context
	previewDC *gg.Context

	hist   *history.Manager
	stroke *strokeState

	style          Style
	faces          FaceFunc
	cellBackground color.Color
	highlightFill  FillPattern
	areas          []geometry.RectInt

	closed bool
}

// New creates a compositor over a copy of base with an empty drawing layer.
func New(base image.Image, opts ...Option) (*Compositor, error) {
	if base == nil || base.Bounds().Empty() {
		return nil, fmt.Errorf("new compositor: %w", ErrContextUnavailable)
	}
	src := base.Bounds()
	w, h := src.Dx(), src.Dy()

	c := &Compositor{
		width:          w,
		height:         h,
		base:           fimage.NewLayer("base", w, h),
		drawing:        fimage.NewLayer("drawing", w, h),
		highlight:      fimage.NewLayer("highlight", w, h),
		hover:          fimage.NewLayer("hover", w, h),
		preview:        fimage.NewLayer("preview", w, h),
		style:          DefaultStyle(),
		cellBackground: color.Transparent,
		highlightFill:  FillSolid,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.faces == nil {
		c.faces = DefaultFaces()
	}

	draw.Draw(c.base.Image, c.base.Image.Bounds(), base, src.Min, draw.Src)
	c.highlight.Visible = false
	c.drawDC = gg.NewContextForRGBA(c.drawing.Image)
	c.previewDC = gg.NewContextForRGBA(c.preview.Image)

	initial, err := history.Blank(w, h)
	if err != nil {
		return nil, fmt.Errorf("new compositor: %w", err)
	}
	c.hist = history.NewManager(initial)
	return c, nil
}

// Size returns the raster dimensions shared by every layer.
func (c *Compositor) Size() (w, h int) { return c.width, c.height }

// Style returns the active tool style.
func (c *Compositor) Style() Style { return c.style }

// SetStyle replaces the active tool style.
func (c *Compositor) SetStyle(s Style) { c.style = s }

// History exposes the undo/redo log.
func (c *Compositor) History() *history.Manager { return c.hist }

// Close releases the layers. Later operations fail with ErrContextUnavailable.
func (c *Compositor) Close() {
	c.closed = true
	c.stroke = nil
	c.drawDC, c.previewDC = nil, nil
}

func (c *Compositor) ready() error {
	if c == nil || c.closed || c.drawDC == nil {
		return ErrContextUnavailable
	}
	return nil
}

// BeginStroke starts a freehand stroke at pt. ToolDraw paints with the
// style color and width; ToolErase clears to transparency with the eraser
// radius. An unfinished stroke is ended first.
func (c *Compositor) BeginStroke(tool Tool, pt geometry.Point2D) error {
	if err := c.ready(); err != nil {
		return err
	}
	if tool != ToolDraw && tool != ToolErase {
		return fmt.Errorf("begin stroke with %s: %w", tool, ErrUnsupportedTool)
	}
	if c.stroke != nil {
		if err := c.EndStroke(); err != nil {
			return err
		}
	}
	c.stroke = &strokeState{tool: tool, last: pt}
	c.applySegment(tool, pt, pt)
	return nil
}

// ExtendStroke continues the current stroke to pt. Points are applied in
// call order. Without an active stroke it does nothing.
func (c *Compositor) ExtendStroke(pt geometry.Point2D) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.stroke == nil {
		return nil
	}
	c.applySegment(c.stroke.tool, c.stroke.last, pt)
	c.stroke.last = pt
	return nil
}

// EndStroke finishes the current stroke and commits the drawing layer to
// history. Without an active stroke it does nothing.
func (c *Compositor) EndStroke() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.stroke == nil {
		return nil
	}
	tool := c.stroke.tool
	c.stroke = nil
	if err := c.commit(); err != nil {
		return fmt.Errorf("end %s stroke: %w", tool, err)
	}
	return nil
}

// Stroking reports whether a stroke is in progress.
func (c *Compositor) Stroking() bool { return c.stroke != nil }

func (c *Compositor) applySegment(tool Tool, a, b geometry.Point2D) {
	switch tool {
	case ToolErase:
		c.eraseSegment(a, b, c.style.EraserRadius)
	default:
		paintSegment(c.drawDC, a, b, c.style.Width, c.style.Color)
	}
}

// paintSegment strokes a round-capped line from a to b with source-over.
func paintSegment(dc *gg.Context, a, b geometry.Point2D, width float64, col color.Color) {
	if width <= 0 {
		return
	}
	dc.SetColor(col)
	if a == b {
		dc.DrawCircle(a.X, a.Y, width/2)
		dc.Fill()
		return
	}
	dc.SetLineWidth(width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(a.X, a.Y)
	dc.LineTo(b.X, b.Y)
	dc.Stroke()
}

// eraseSegment rasterizes the segment into a mask covering only its
// bounding box and removes the masked coverage from the drawing layer.
func (c *Compositor) eraseSegment(a, b geometry.Point2D, radius float64) {
	if radius <= 0 {
		return
	}
	pad := int(radius) + 2
	box := geometry.RectInt{
		X:      int(min(a.X, b.X)) - pad,
		Y:      int(min(a.Y, b.Y)) - pad,
		Width:  int(max(a.X, b.X)-min(a.X, b.X)) + 2*pad + 1,
		Height: int(max(a.Y, b.Y)-min(a.Y, b.Y)) + 2*pad + 1,
	}.Clip(c.width, c.height)
	if box.Empty() {
		return
	}

	mask := gg.NewContext(box.Width, box.Height)
	mask.Translate(-float64(box.X), -float64(box.Y))
	paintSegment(mask, a, b, 2*radius, colorutil.Black)

	fimage.Blend(c.drawing.Image, box.Image(), mask.Image(), image.Point{}, fimage.BlendDestinationOut, 1)
}

// PreviewText renders uncommitted text into the preview layer, replacing any
// previous preview. The drawing layer is not touched.
func (c *Compositor) PreviewText(pos geometry.Point2D, s string, size float64, col color.Color) error {
	if err := c.ready(); err != nil {
		return err
	}
	face, err := c.faces(size)
	if err != nil {
		return fmt.Errorf("preview text: %w", err)
	}
	c.preview.Clear()
	drawText(c.previewDC, face, pos, s, col)
	return nil
}

// ClearPreview discards the live-edit preview.
func (c *Compositor) ClearPreview() {
	if c.preview != nil {
		c.preview.Clear()
	}
}

// PlaceText rasterizes s onto the drawing layer with its top-left corner at
// pos, clears the preview and commits to history.
func (c *Compositor) PlaceText(pos geometry.Point2D, s string, size float64, col color.Color) error {
	if err := c.ready(); err != nil {
		return err
	}
	face, err := c.faces(size)
	if err != nil {
		return fmt.Errorf("place text: %w", err)
	}
	if c.stroke != nil {
		if err := c.EndStroke(); err != nil {
			return err
		}
	}
	drawText(c.drawDC, face, pos, s, col)
	c.preview.Clear()
	if err := c.commit(); err != nil {
		return fmt.Errorf("place text: %w", err)
	}
	return nil
}

// commit snapshots the drawing layer into history. On failure the drawing
// layer is rolled back to the last committed state.
func (c *Compositor) commit() error {
	snap, err := history.Capture(c.drawing.Image)
	if err != nil {
		if rerr := c.hist.Current().Restore(c.drawing.Image); rerr != nil {
			logging.Logger().Warn("drawing layer rollback failed", "err", rerr)
		}
		return err
	}
	c.hist.Commit(snap)
	logging.Logger().Debug("drawing committed", "depth", c.hist.Len(), "bytes", snap.Bytes())
	return nil
}

// Undo restores the previous committed drawing layer. An active stroke is
// committed first, so it is the change undone. It reports false when there
// is nothing to undo.
func (c *Compositor) Undo() (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if err := c.EndStroke(); err != nil {
		return false, fmt.Errorf("undo: %w", err)
	}
	snap, ok := c.hist.Undo()
	if !ok {
		return false, nil
	}
	if err := snap.Restore(c.drawing.Image); err != nil {
		c.hist.Redo()
		return false, fmt.Errorf("undo: %w", err)
	}
	return true, nil
}

// Redo re-applies the most recently undone drawing layer. An active stroke
// is committed first, which leaves nothing to redo. It reports false when
// there is nothing to redo.
func (c *Compositor) Redo() (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if err := c.EndStroke(); err != nil {
		return false, fmt.Errorf("redo: %w", err)
	}
	snap, ok := c.hist.Redo()
	if !ok {
		return false, nil
	}
	if err := snap.Restore(c.drawing.Image); err != nil {
		c.hist.Undo()
		return false, fmt.Errorf("redo: %w", err)
	}
	return true, nil
}

// Checkpoint is a saved drawing history position, see Rollback.
type Checkpoint struct {
	mark history.Mark
}

// Checkpoint records the drawing history position.
func (c *Compositor) Checkpoint() Checkpoint {
	return Checkpoint{mark: c.hist.Mark()}
}

// Rollback drops any active stroke, returns the history to cp and restores
// the drawing layer from its current entry. Changes committed after cp
// leave no trace in undo or redo.
func (c *Compositor) Rollback(cp Checkpoint) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.stroke = nil
	c.hist.Rewind(cp.mark)
	if err := c.hist.Current().Restore(c.drawing.Image); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// CanUndo reports whether Undo would change the drawing layer.
func (c *Compositor) CanUndo() bool { return c.hist.CanUndo() }

// CanRedo reports whether Redo would change the drawing layer.
func (c *Compositor) CanRedo() bool { return c.hist.CanRedo() }

// PlaceImage clears dest on the base raster and draws src into it using the
// fit mode. dest is clipped to the raster; the placed rectangle is returned.
// Placements become form content and are not recorded in drawing history.
func (c *Compositor) PlaceImage(dest geometry.RectInt, src image.Image, mode fit.Mode) (geometry.RectInt, error) {
	if err := c.ready(); err != nil {
		return geometry.RectInt{}, err
	}
	if src == nil || src.Bounds().Empty() {
		return geometry.RectInt{}, errors.New("place image: empty source")
	}
	dest = dest.Clip(c.width, c.height)
	if dest.Empty() {
		return geometry.RectInt{}, nil
	}

	sb := src.Bounds()
	p := fit.Fit(sb.Dx(), sb.Dy(), dest, mode)
	draw.Draw(c.base.Image, dest.Image(), image.NewUniform(c.cellBackground), image.Point{}, draw.Src)
	fit.Draw(c.base.Image, src, p, fit.QualityAuto)

	logging.Logger().Debug("image placed", "dest", dest, "mode", mode.String(), "drawn", p.Dest)
	return p.Dest, nil
}

// Flatten returns base with the drawing layer on top. Overlays are excluded.
func (c *Compositor) Flatten() *image.RGBA {
	comp := fimage.NewComposite(c.width, c.height)
	comp.AddLayer(c.base)
	comp.AddLayer(c.drawing)
	return comp.Render()
}

// Display returns the live view: the flattened form plus highlight (when
// visible), hover and preview overlays.
func (c *Compositor) Display() *image.RGBA {
	comp := fimage.NewComposite(c.width, c.height)
	for _, l := range []*fimage.Layer{c.base, c.drawing, c.highlight, c.hover, c.preview} {
		comp.AddLayer(l)
	}
	return comp.Render()
}

// HighlightRegions renders areas into the highlight overlay and sets its
// visibility.
func (c *Compositor) HighlightRegions(areas []geometry.RectInt, visible bool) {
	c.areas = append(c.areas[:0], areas...)
	c.highlight.Clear()
	if len(c.areas) > 0 {
		o := highlightOverlay(c.areas, colorutil.Highlight, colorutil.HighlightEdge)
		for i := range o.Rectangles {
			o.Rectangles[i].Fill = c.highlightFill
		}
		o.render(gg.NewContextForRGBA(c.highlight.Image))
	}
	c.highlight.Visible = visible
}

// SetHighlightVisible toggles the highlight overlay without re-rendering it.
func (c *Compositor) SetHighlightVisible(visible bool) {
	c.highlight.Visible = visible
}

// HighlightVisible reports whether the highlight overlay is shown.
func (c *Compositor) HighlightVisible() bool { return c.highlight.Visible }

// Hover outlines area in the hover overlay. A nil area clears it.
func (c *Compositor) Hover(area *geometry.RectInt) {
	c.hover.Clear()
	if area == nil {
		return
	}
	o := &Overlay{
		Rectangles: []OverlayRect{{RectInt: area.Clip(c.width, c.height), Fill: FillNone}},
		Edge:       colorutil.Hover,
		EdgeWidth:  3,
	}
	o.render(gg.NewContextForRGBA(c.hover.Image))
}

// AreaAt returns the index of the highlighted area containing (x, y), or -1.
func (c *Compositor) AreaAt(x, y int) int {
	for i, a := range c.areas {
		if a.Contains(x, y) {
			return i
		}
	}
	return -1
}

// Base returns a copy of the base raster.
func (c *Compositor) Base() *image.RGBA { return fimage.Clone(c.base.Image) }

// BaseRegion returns a copy of the base raster inside r, clipped to the
// raster. The copy keeps r's coordinates.
func (c *Compositor) BaseRegion(r geometry.RectInt) *image.RGBA {
	out := image.NewRGBA(r.Clip(c.width, c.height).Image())
	draw.Draw(out, out.Rect, c.base.Image, out.Rect.Min, draw.Src)
	return out
}

// RestoreBase writes patch back onto the base raster at its own bounds.
func (c *Compositor) RestoreBase(patch *image.RGBA) error {
	if err := c.ready(); err != nil {
		return err
	}
	draw.Draw(c.base.Image, patch.Rect, patch, patch.Rect.Min, draw.Src)
	return nil
}

// Drawing returns a copy of the drawing layer.
func (c *Compositor) Drawing() *image.RGBA { return fimage.Clone(c.drawing.Image) }

// Preview returns a copy of the preview layer.
func (c *Compositor) Preview() *image.RGBA { return fimage.Clone(c.preview.Image) }

// SetDrawing replaces the drawing layer, typically with one loaded from
// storage, and restarts history with it as the bottom entry.
func (c *Compositor) SetDrawing(img image.Image) error {
	if err := c.ready(); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != c.width || b.Dy() != c.height {
		return fmt.Errorf("drawing layer is %dx%d, form is %dx%d", b.Dx(), b.Dy(), c.width, c.height)
	}
	next := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(next, next.Bounds(), img, b.Min, draw.Src)
	snap, err := history.Capture(next)
	if err != nil {
		return fmt.Errorf("set drawing: %w", err)
	}
	copy(c.drawing.Image.Pix, next.Pix)
	c.hist.Reset(snap)
	c.stroke = nil
	return nil
}
