package canvas

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"gridfill/internal/fit"
	"gridfill/pkg/geometry"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func newTestCompositor(t *testing.T, opts ...Option) *Compositor {
	t.Helper()
	c, err := New(solid(200, 200, color.White), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func alphaAt(img *image.RGBA, x, y int) uint8 {
	return img.RGBAAt(x, y).A
}

func countOpaque(img *image.RGBA) int {
	n := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			n++
		}
	}
	return n
}

func stroke(t *testing.T, c *Compositor, tool Tool, pts ...geometry.Point2D) {
	t.Helper()
	if err := c.BeginStroke(tool, pts[0]); err != nil {
		t.Fatalf("BeginStroke: %v", err)
	}
	for _, p := range pts[1:] {
		if err := c.ExtendStroke(p); err != nil {
			t.Fatalf("ExtendStroke: %v", err)
		}
	}
	if err := c.EndStroke(); err != nil {
		t.Fatalf("EndStroke: %v", err)
	}
}

func TestNewRejectsEmptyBase(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("New(nil) error = %v, want ErrContextUnavailable", err)
	}
	if _, err := New(image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("New(empty) error = %v, want ErrContextUnavailable", err)
	}
}

func TestNewCopiesBase(t *testing.T) {
	src := solid(20, 10, color.White)
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	c, err := New(src.SubImage(image.Rect(0, 0, 20, 10)))
	if err != nil {
		t.Fatal(err)
	}
	src.SetRGBA(0, 0, color.RGBA{B: 255, A: 255})
	if got := c.Base().RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("base pixel = %v, want red", got)
	}
	if w, h := c.Size(); w != 20 || h != 10 {
		t.Errorf("Size = %dx%d, want 20x10", w, h)
	}
	if c.CanUndo() || c.CanRedo() {
		t.Error("new compositor should have empty history")
	}
}

func TestDrawStrokeAndUndoRedo(t *testing.T) {
	c := newTestCompositor(t)
	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 10}, geometry.Point2D{X: 40, Y: 10})

	if a := alphaAt(c.Drawing(), 25, 10); a != 255 {
		t.Errorf("stroke alpha = %d, want 255", a)
	}
	if a := alphaAt(c.Drawing(), 25, 40); a != 0 {
		t.Errorf("pixel off the stroke has alpha %d", a)
	}
	if got := c.Base().RGBAAt(25, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("base modified by stroke: %v", got)
	}
	if !c.CanUndo() {
		t.Fatal("stroke should be undoable")
	}

	if ok, err := c.Undo(); !ok || err != nil {
		t.Fatalf("Undo = %v, %v", ok, err)
	}
	if n := countOpaque(c.Drawing()); n != 0 {
		t.Errorf("drawing has %d pixels after undo, want 0", n)
	}
	if !c.CanRedo() {
		t.Fatal("redo should be available after undo")
	}
	if ok, err := c.Redo(); !ok || err != nil {
		t.Fatalf("Redo = %v, %v", ok, err)
	}
	if a := alphaAt(c.Drawing(), 25, 10); a != 255 {
		t.Errorf("stroke alpha after redo = %d, want 255", a)
	}
}

func TestUndoDuringStroke(t *testing.T) {
	c := newTestCompositor(t)
	if err := c.BeginStroke(ToolDraw, geometry.Point2D{X: 10, Y: 10}); err != nil {
		t.Fatal(err)
	}
	if err := c.ExtendStroke(geometry.Point2D{X: 40, Y: 10}); err != nil {
		t.Fatal(err)
	}

	if ok, err := c.Undo(); !ok || err != nil {
		t.Fatalf("Undo = %v, %v", ok, err)
	}
	if c.Stroking() {
		t.Error("Undo left the stroke active")
	}
	if n := countOpaque(c.Drawing()); n != 0 {
		t.Errorf("drawing has %d pixels after undoing the stroke, want 0", n)
	}
	if err := c.ExtendStroke(geometry.Point2D{X: 40, Y: 40}); err != nil {
		t.Fatal(err)
	}
	if n := countOpaque(c.Drawing()); n != 0 {
		t.Errorf("extend after undo drew %d pixels", n)
	}

	if ok, err := c.Redo(); !ok || err != nil {
		t.Fatalf("Redo = %v, %v", ok, err)
	}
	if a := alphaAt(c.Drawing(), 25, 10); a != 255 {
		t.Errorf("redone stroke alpha = %d, want 255", a)
	}
}

func TestRedoDuringStrokeCommitsIt(t *testing.T) {
	c := newTestCompositor(t)
	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 10}, geometry.Point2D{X: 40, Y: 10})
	if _, err := c.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginStroke(ToolDraw, geometry.Point2D{X: 10, Y: 60}); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Redo(); ok || err != nil {
		t.Fatalf("Redo = %v, %v; the new stroke should have cleared the redo branch", ok, err)
	}
	if c.Stroking() {
		t.Error("Redo left the stroke active")
	}
	if alphaAt(c.Drawing(), 10, 60) == 0 {
		t.Error("stroke dot missing after Redo committed it")
	}
}

func TestRollback(t *testing.T) {
	c := newTestCompositor(t)
	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 10}, geometry.Point2D{X: 40, Y: 10})
	cp := c.Checkpoint()

	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 60}, geometry.Point2D{X: 40, Y: 60})
	if err := c.BeginStroke(ToolDraw, geometry.Point2D{X: 10, Y: 100}); err != nil {
		t.Fatal(err)
	}
	if err := c.Rollback(cp); err != nil {
		t.Fatal(err)
	}
	if c.Stroking() {
		t.Error("Rollback left the stroke active")
	}
	d := c.Drawing()
	if alphaAt(d, 25, 10) != 255 {
		t.Error("stroke before the checkpoint was lost")
	}
	if alphaAt(d, 25, 60) != 0 || alphaAt(d, 10, 100) != 0 {
		t.Error("changes after the checkpoint survived")
	}
	if c.History().Len() != 2 || c.CanRedo() {
		t.Errorf("history Len=%d CanRedo=%v, want 2 and false", c.History().Len(), c.CanRedo())
	}
}

func TestBaseRegionRestore(t *testing.T) {
	c := newTestCompositor(t)
	cell := geometry.RectInt{X: 180, Y: 20, Width: 40, Height: 40}
	saved := c.BaseRegion(cell)
	if saved.Rect != image.Rect(180, 20, 200, 60) {
		t.Fatalf("BaseRegion bounds = %v, want clipped cell", saved.Rect)
	}

	if _, err := c.PlaceImage(cell, solid(10, 10, color.Black), fit.CropFill); err != nil {
		t.Fatal(err)
	}
	if got := c.Base().RGBAAt(190, 30); got != (color.RGBA{A: 255}) {
		t.Fatalf("placed pixel = %v, want black", got)
	}
	if err := c.RestoreBase(saved); err != nil {
		t.Fatal(err)
	}
	if got := c.Base().RGBAAt(190, 30); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("restored pixel = %v, want white", got)
	}
}

func TestUndoAtBottom(t *testing.T) {
	c := newTestCompositor(t)
	if ok, err := c.Undo(); ok || err != nil {
		t.Errorf("Undo on fresh compositor = %v, %v", ok, err)
	}
	if ok, err := c.Redo(); ok || err != nil {
		t.Errorf("Redo on fresh compositor = %v, %v", ok, err)
	}
}

func TestEraseLeavesTransparency(t *testing.T) {
	c := newTestCompositor(t)
	c.SetStyle(Style{Color: color.Black, Width: 10, EraserRadius: 12, FontSize: 24})
	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 50}, geometry.Point2D{X: 190, Y: 50})
	stroke(t, c, ToolErase, geometry.Point2D{X: 100, Y: 50})

	d := c.Drawing()
	if a := alphaAt(d, 100, 50); a != 0 {
		t.Errorf("erased pixel alpha = %d, want 0", a)
	}
	if a := alphaAt(d, 20, 50); a != 255 {
		t.Errorf("pixel outside eraser alpha = %d, want 255", a)
	}
	// The base shows through rather than an eraser color.
	if got := c.Flatten().RGBAAt(100, 50); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("flattened erased pixel = %v, want base white", got)
	}
	if c.History().Len() != 3 {
		t.Errorf("history depth = %d, want 3", c.History().Len())
	}

	if _, err := c.Undo(); err != nil {
		t.Fatal(err)
	}
	if a := alphaAt(c.Drawing(), 100, 50); a != 255 {
		t.Errorf("undo of erase left alpha %d, want 255", a)
	}
}

func TestEraseNearEdge(t *testing.T) {
	c := newTestCompositor(t)
	stroke(t, c, ToolErase, geometry.Point2D{X: 0, Y: 0}, geometry.Point2D{X: -20, Y: 250})
	if n := countOpaque(c.Drawing()); n != 0 {
		t.Errorf("erase on empty layer produced %d pixels", n)
	}
}

func TestBeginStrokeRejectsText(t *testing.T) {
	c := newTestCompositor(t)
	if err := c.BeginStroke(ToolText, geometry.Point2D{}); !errors.Is(err, ErrUnsupportedTool) {
		t.Errorf("error = %v, want ErrUnsupportedTool", err)
	}
	if c.Stroking() {
		t.Error("rejected stroke should not be active")
	}
}

func TestExtendWithoutStrokeIsNoop(t *testing.T) {
	c := newTestCompositor(t)
	if err := c.ExtendStroke(geometry.Point2D{X: 5, Y: 5}); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStroke(); err != nil {
		t.Fatal(err)
	}
	if c.CanUndo() {
		t.Error("no-op stroke should not be committed")
	}
}

func TestTextPreviewAndPlace(t *testing.T) {
	c := newTestCompositor(t)
	pos := geometry.Point2D{X: 10, Y: 10}

	if err := c.PreviewText(pos, "Hello", 24, color.Black); err != nil {
		t.Fatalf("PreviewText: %v", err)
	}
	if countOpaque(c.Preview()) == 0 {
		t.Error("preview layer is empty")
	}
	if countOpaque(c.Drawing()) != 0 {
		t.Error("preview modified the drawing layer")
	}
	if c.CanUndo() {
		t.Error("preview should not be committed")
	}

	if err := c.PlaceText(pos, "Hello\nWorld", 24, color.Black); err != nil {
		t.Fatalf("PlaceText: %v", err)
	}
	if countOpaque(c.Preview()) != 0 {
		t.Error("preview not cleared after placing text")
	}
	if countOpaque(c.Drawing()) == 0 {
		t.Error("text not rendered into the drawing layer")
	}
	if !c.CanUndo() {
		t.Error("placed text should be undoable")
	}
}

func TestClearPreview(t *testing.T) {
	c := newTestCompositor(t)
	if err := c.PreviewText(geometry.Point2D{X: 5, Y: 5}, "x", 24, color.Black); err != nil {
		t.Fatal(err)
	}
	c.ClearPreview()
	if countOpaque(c.Preview()) != 0 {
		t.Error("ClearPreview left pixels behind")
	}
}

func TestPlaceImageCropFill(t *testing.T) {
	c := newTestCompositor(t)
	red := solid(160, 90, color.RGBA{R: 255, A: 255})

	got, err := c.PlaceImage(geometry.RectInt{Width: 100, Height: 100}, red, fit.CropFill)
	if err != nil {
		t.Fatal(err)
	}
	if want := (geometry.RectInt{Width: 100, Height: 100}); got != want {
		t.Errorf("placed rect = %+v, want %+v", got, want)
	}
	base := c.Base()
	if px := base.RGBAAt(50, 50); px != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("cell center = %v, want red", px)
	}
	if px := base.RGBAAt(150, 150); px != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("outside the cell = %v, want white", px)
	}
	if c.CanUndo() {
		t.Error("image placement must not be recorded in drawing history")
	}
}

func TestPlaceImageLetterbox(t *testing.T) {
	c := newTestCompositor(t)
	red := solid(160, 90, color.RGBA{R: 255, A: 255})

	got, err := c.PlaceImage(geometry.RectInt{Width: 100, Height: 100}, red, fit.Letterbox)
	if err != nil {
		t.Fatal(err)
	}
	if want := (geometry.RectInt{X: 0, Y: 22, Width: 100, Height: 56}); got != want {
		t.Errorf("placed rect = %+v, want %+v", got, want)
	}
	base := c.Base()
	if px := base.RGBAAt(50, 5); px.A != 0 {
		t.Errorf("letterbox band = %v, want cleared cell", px)
	}
	if px := base.RGBAAt(50, 50); px != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("cell center = %v, want red", px)
	}
}

func TestPlaceImageCellBackground(t *testing.T) {
	c := newTestCompositor(t, WithCellBackground(color.White))
	red := solid(160, 90, color.RGBA{R: 255, A: 255})
	if _, err := c.PlaceImage(geometry.RectInt{Width: 100, Height: 100}, red, fit.Letterbox); err != nil {
		t.Fatal(err)
	}
	if px := c.Base().RGBAAt(50, 5); px != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("letterbox band = %v, want white", px)
	}
}

func TestPlaceImageOutsideRaster(t *testing.T) {
	c := newTestCompositor(t)
	got, err := c.PlaceImage(geometry.RectInt{X: 500, Y: 500, Width: 10, Height: 10}, solid(4, 4, color.Black), fit.CropFill)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Empty() {
		t.Errorf("placed rect = %+v, want empty", got)
	}
}

func TestFlattenExcludesOverlays(t *testing.T) {
	c := newTestCompositor(t)
	area := geometry.RectInt{X: 20, Y: 20, Width: 60, Height: 40}

	c.HighlightRegions([]geometry.RectInt{area}, false)
	if c.HighlightVisible() {
		t.Error("highlight should start hidden")
	}
	if got, want := c.Display().RGBAAt(50, 40), c.Flatten().RGBAAt(50, 40); got != want {
		t.Errorf("hidden highlight changed display: %v vs %v", got, want)
	}

	c.SetHighlightVisible(true)
	if got, want := c.Display().RGBAAt(50, 40), c.Flatten().RGBAAt(50, 40); got == want {
		t.Error("visible highlight did not change display")
	}
	if px := c.Flatten().RGBAAt(50, 40); px != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("flatten includes highlight: %v", px)
	}
	if i := c.AreaAt(50, 40); i != 0 {
		t.Errorf("AreaAt = %d, want 0", i)
	}
	if i := c.AreaAt(5, 5); i != -1 {
		t.Errorf("AreaAt outside = %d, want -1", i)
	}
}

func TestHover(t *testing.T) {
	c := newTestCompositor(t)
	area := geometry.RectInt{X: 20, Y: 20, Width: 60, Height: 40}

	c.Hover(&area)
	if got, want := c.Display().RGBAAt(21, 30), c.Flatten().RGBAAt(21, 30); got == want {
		t.Error("hover outline not shown")
	}
	c.Hover(nil)
	if got, want := c.Display().RGBAAt(21, 30), c.Flatten().RGBAAt(21, 30); got != want {
		t.Error("hover not cleared")
	}
}

func TestSetDrawingResetsHistory(t *testing.T) {
	c := newTestCompositor(t)
	stroke(t, c, ToolDraw, geometry.Point2D{X: 10, Y: 10}, geometry.Point2D{X: 40, Y: 10})

	layer := solid(200, 200, color.RGBA{B: 255, A: 255})
	if err := c.SetDrawing(layer); err != nil {
		t.Fatal(err)
	}
	if c.CanUndo() || c.CanRedo() {
		t.Error("history should restart after SetDrawing")
	}
	if px := c.Drawing().RGBAAt(100, 100); px != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("drawing pixel = %v, want blue", px)
	}
	if err := c.SetDrawing(solid(10, 10, color.Black)); err == nil {
		t.Error("SetDrawing accepted a layer of the wrong size")
	}
}

func TestClosedCompositor(t *testing.T) {
	c := newTestCompositor(t)
	c.Close()
	if err := c.BeginStroke(ToolDraw, geometry.Point2D{}); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("BeginStroke after Close = %v", err)
	}
	if err := c.PlaceText(geometry.Point2D{}, "x", 12, color.Black); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("PlaceText after Close = %v", err)
	}
	if _, err := c.PlaceImage(geometry.RectInt{Width: 5, Height: 5}, solid(2, 2, color.Black), fit.CropFill); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("PlaceImage after Close = %v", err)
	}
}

func TestParseTool(t *testing.T) {
	for in, want := range map[string]Tool{"draw": ToolDraw, "Eraser": ToolErase, " text ": ToolText} {
		got, err := ParseTool(in)
		if err != nil || got != want {
			t.Errorf("ParseTool(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseTool("lasso"); err == nil {
		t.Error("ParseTool accepted an unknown tool")
	}
}
