package app

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/draw"
	"io"
	"strings"
	"sync"
	"testing"

	"gridfill/internal/canvas"
	"gridfill/internal/fit"
	"gridfill/internal/image"
	"gridfill/internal/project"
	"gridfill/pkg/geometry"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
)

// formPNG encodes a dark 200x200 form with two white cells.
func formPNG(t *testing.T) []byte {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), goimage.NewUniform(black), goimage.Point{}, draw.Src)
	draw.Draw(img, goimage.Rect(20, 20, 100, 80), goimage.NewUniform(white), goimage.Point{}, draw.Src)
	draw.Draw(img, goimage.Rect(120, 120, 180, 180), goimage.NewUniform(white), goimage.Point{}, draw.Src)
	return pngOf(t, img)
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), goimage.NewUniform(c), goimage.Point{}, draw.Src)
	return pngOf(t, img)
}

func pngOf(t *testing.T, img goimage.Image) []byte {
	t.Helper()
	data, err := image.PNGBytes(img)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newSession(t *testing.T) (*Session, project.Store) {
	t.Helper()
	store, err := project.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewSession(store), store
}

func importForm(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Import(context.Background(), "form", bytes.NewReader(formPNG(t)), false); err != nil {
		t.Fatalf("Import: %v", err)
	}
}

func flatAt(t *testing.T, s *Session, x, y int) color.RGBA {
	t.Helper()
	img, err := s.Flatten()
	if err != nil {
		t.Fatal(err)
	}
	return img.RGBAAt(x, y)
}

func TestImportDetectsAndPersists(t *testing.T) {
	s, store := newSession(t)
	var detected []geometry.RectInt
	s.On(EventAreasDetected, func(data interface{}) {
		detected = data.([]geometry.RectInt)
	})
	importForm(t, s)

	want := []geometry.RectInt{
		{X: 20, Y: 20, Width: 80, Height: 60},
		{X: 120, Y: 120, Width: 60, Height: 60},
	}
	got := s.Areas()
	if len(got) != len(want) {
		t.Fatalf("areas = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("area %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(detected) != 2 {
		t.Errorf("EventAreasDetected carried %d areas", len(detected))
	}

	doc, err := store.Load(context.Background(), "form")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.BlankAreas) != 2 || len(doc.CompositedImage) == 0 {
		t.Error("imported form not persisted with areas and composite")
	}
}

func TestImportDecodeFailureLeavesStateUnchanged(t *testing.T) {
	s, _ := newSession(t)
	err := s.Import(context.Background(), "bad", strings.NewReader("not an image"), false)
	if !errors.Is(err, image.ErrDecode) {
		t.Fatalf("Import error = %v, want decode failure", err)
	}
	var de *image.DecodeError
	if !errors.As(err, &de) {
		t.Error("error is not a *DecodeError")
	}
	if s.ID() != "" {
		t.Errorf("ID = %q after failed import", s.ID())
	}
}

func TestPlaceImage(t *testing.T) {
	s, _ := newSession(t)
	importForm(t, s)

	var placed PlacedEvent
	s.On(EventImagePlaced, func(data interface{}) { placed = data.(PlacedEvent) })

	r, err := s.PlaceImage(context.Background(), 0, bytes.NewReader(solidPNG(t, 40, 30, red)), fit.CropFill)
	if err != nil {
		t.Fatal(err)
	}
	if want := (geometry.RectInt{X: 20, Y: 20, Width: 80, Height: 60}); r != want {
		t.Errorf("placed = %+v, want %+v", r, want)
	}
	if placed.Rect != r || placed.AreaIndex != 0 {
		t.Errorf("event = %+v", placed)
	}
	if px := flatAt(t, s, 60, 50); px != red {
		t.Errorf("cell pixel = %v, want red", px)
	}
	if px := flatAt(t, s, 150, 150); px != white {
		t.Errorf("other cell = %v, want white", px)
	}
}

func TestPlaceImageErrors(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	if _, err := s.PlaceImage(ctx, 0, bytes.NewReader(solidPNG(t, 2, 2, red)), fit.CropFill); !errors.Is(err, ErrNoForm) {
		t.Errorf("without form: %v, want ErrNoForm", err)
	}
	importForm(t, s)

	if _, err := s.PlaceImage(ctx, 5, bytes.NewReader(solidPNG(t, 2, 2, red)), fit.CropFill); !errors.Is(err, ErrAreaIndex) {
		t.Errorf("bad index: %v, want ErrAreaIndex", err)
	}
	if _, err := s.PlaceImage(ctx, 0, strings.NewReader("garbage"), fit.CropFill); !errors.Is(err, image.ErrDecode) {
		t.Errorf("garbage: %v, want decode failure", err)
	}
	if px := flatAt(t, s, 60, 50); px != white {
		t.Errorf("failed placement changed the cell: %v", px)
	}
}

// gatedReader blocks its first Read until release is closed.
type gatedReader struct {
	r       io.Reader
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.r.Read(p)
}

func TestStalePlacementIsDropped(t *testing.T) {
	s, _ := newSession(t)
	importForm(t, s)
	ctx := context.Background()

	slow := &gatedReader{
		r:       bytes.NewReader(solidPNG(t, 10, 10, red)),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.PlaceImage(ctx, 0, slow, fit.CropFill)
		done <- err
	}()
	<-slow.started

	if _, err := s.PlaceImage(ctx, 0, bytes.NewReader(solidPNG(t, 10, 10, blue)), fit.CropFill); err != nil {
		t.Fatalf("newer placement: %v", err)
	}
	close(slow.release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("stale placement error = %v, want ErrSuperseded", err)
	}
	if px := flatAt(t, s, 60, 50); px != blue {
		t.Errorf("cell = %v, want the newer blue image", px)
	}
}

func TestStrokeUndoAndReopen(t *testing.T) {
	s, store := newSession(t)
	importForm(t, s)
	ctx := context.Background()

	var hist []HistoryEvent
	s.On(EventHistoryChanged, func(data interface{}) { hist = append(hist, data.(HistoryEvent)) })

	if err := s.BeginStroke(canvas.ToolDraw, geometry.Point2D{X: 30, Y: 40}); err != nil {
		t.Fatal(err)
	}
	if err := s.ExtendStroke(geometry.Point2D{X: 80, Y: 40}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndStroke(ctx); err != nil {
		t.Fatal(err)
	}
	if px := flatAt(t, s, 50, 40); px != black {
		t.Errorf("stroke pixel = %v, want black", px)
	}
	if len(hist) != 1 || !hist[0].CanUndo {
		t.Errorf("history events = %+v", hist)
	}

	// The drawing layer survives a reopen.
	other := NewSession(store)
	if err := other.Open(ctx, "form"); err != nil {
		t.Fatal(err)
	}
	if px := flatAt(t, other, 50, 40); px != black {
		t.Errorf("reopened stroke pixel = %v, want black", px)
	}
	if len(other.Areas()) != 2 {
		t.Errorf("reopened areas = %+v", other.Areas())
	}

	if ok, err := s.Undo(ctx); !ok || err != nil {
		t.Fatalf("Undo = %v, %v", ok, err)
	}
	if px := flatAt(t, s, 50, 40); px != white {
		t.Errorf("after undo = %v, want white", px)
	}
	if ok, err := s.Undo(ctx); ok || err != nil {
		t.Errorf("second Undo = %v, %v", ok, err)
	}
	if len(hist) != 2 || hist[1].CanUndo || !hist[1].CanRedo {
		t.Errorf("history events = %+v", hist)
	}
}

func TestPlaceTextAndPreview(t *testing.T) {
	s, _ := newSession(t)
	importForm(t, s)
	ctx := context.Background()

	before, _ := s.Flatten()
	if err := s.PreviewText(geometry.Point2D{X: 25, Y: 25}, "AB"); err != nil {
		t.Fatal(err)
	}
	mid, _ := s.Flatten()
	if !bytes.Equal(before.Pix, mid.Pix) {
		t.Error("preview changed the flattened form")
	}
	if err := s.PlaceText(ctx, geometry.Point2D{X: 25, Y: 25}, "AB"); err != nil {
		t.Fatal(err)
	}
	after, _ := s.Flatten()
	if bytes.Equal(before.Pix, after.Pix) {
		t.Error("placed text not in the flattened form")
	}
}

func TestSaveEmitsAfterStore(t *testing.T) {
	s, store := newSession(t)
	importForm(t, s)
	ctx := context.Background()

	var savedID string
	s.On(EventSaved, func(data interface{}) {
		savedID = data.(string)
		if _, err := store.Load(ctx, savedID); err != nil {
			t.Errorf("EventSaved before the record was stored: %v", err)
		}
	})
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if savedID != "form" {
		t.Errorf("saved id = %q", savedID)
	}
}

func TestExport(t *testing.T) {
	s, _ := newSession(t)
	var buf bytes.Buffer
	if err := s.Export(&buf); !errors.Is(err, ErrNoForm) {
		t.Errorf("Export without form = %v", err)
	}
	importForm(t, s)
	if err := s.Export(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := image.DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if img.RGBAAt(50, 50) != white || img.RGBAAt(5, 5) != black {
		t.Error("exported PNG does not match the form")
	}
}

func TestHoverAt(t *testing.T) {
	s, _ := newSession(t)
	importForm(t, s)
	if i := s.HoverAt(150, 150); i != 1 {
		t.Errorf("HoverAt(150,150) = %d, want 1", i)
	}
	if i := s.HoverAt(5, 5); i != -1 {
		t.Errorf("HoverAt(5,5) = %d, want -1", i)
	}
}

func TestDetectBlankAreasAfterPlacement(t *testing.T) {
	s, _ := newSession(t)
	importForm(t, s)
	ctx := context.Background()
	if _, err := s.PlaceImage(ctx, 0, bytes.NewReader(solidPNG(t, 8, 6, black)), fit.CropFill); err != nil {
		t.Fatal(err)
	}
	areas, err := s.DetectBlankAreas(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(areas) != 1 || areas[0] != (geometry.RectInt{X: 120, Y: 120, Width: 60, Height: 60}) {
		t.Errorf("areas = %+v, want only the unfilled cell", areas)
	}
}

var errDiskFull = errors.New("disk full")

// failingStore fails every Save while fail is set.
type failingStore struct {
	project.Store
	fail bool
}

func (f *failingStore) Save(ctx context.Context, doc *project.FormDocument) error {
	if f.fail {
		return errDiskFull
	}
	return f.Store.Save(ctx, doc)
}

func newFailingSession(t *testing.T) (*Session, *failingStore) {
	t.Helper()
	inner, err := project.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fs := &failingStore{Store: inner}
	s := NewSession(fs)
	importForm(t, s)
	return s, fs
}

func TestPlaceImageSaveFailureRestoresCell(t *testing.T) {
	s, fs := newFailingSession(t)
	ctx := context.Background()
	placed := false
	s.On(EventImagePlaced, func(interface{}) { placed = true })

	fs.fail = true
	_, err := s.PlaceImage(ctx, 0, bytes.NewReader(solidPNG(t, 40, 30, red)), fit.CropFill)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("PlaceImage error = %v, want disk full", err)
	}
	if placed {
		t.Error("EventImagePlaced emitted for a failed placement")
	}
	if px := flatAt(t, s, 60, 50); px != white {
		t.Errorf("cell pixel = %v after failed save, want white", px)
	}

	fs.fail = false
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}
	other := NewSession(fs)
	if err := other.Open(ctx, "form"); err != nil {
		t.Fatal(err)
	}
	if px := flatAt(t, other, 60, 50); px != white {
		t.Errorf("stored cell pixel = %v, want white", px)
	}
	if len(other.Areas()) != 2 {
		t.Errorf("stored areas = %+v", other.Areas())
	}
}

func TestEndStrokeSaveFailureDiscardsStroke(t *testing.T) {
	s, fs := newFailingSession(t)
	ctx := context.Background()
	events := 0
	s.On(EventHistoryChanged, func(interface{}) { events++ })

	if err := s.BeginStroke(canvas.ToolDraw, geometry.Point2D{X: 30, Y: 40}); err != nil {
		t.Fatal(err)
	}
	if err := s.ExtendStroke(geometry.Point2D{X: 80, Y: 40}); err != nil {
		t.Fatal(err)
	}
	fs.fail = true
	if err := s.EndStroke(ctx); !errors.Is(err, errDiskFull) {
		t.Fatalf("EndStroke error = %v, want disk full", err)
	}
	if px := flatAt(t, s, 50, 40); px != white {
		t.Errorf("stroke pixel = %v after failed save, want white", px)
	}
	if ok, err := s.Undo(ctx); ok || err != nil {
		t.Errorf("Undo = %v, %v; failed stroke left a history entry", ok, err)
	}
	if events != 0 {
		t.Errorf("%d history events for a failed stroke", events)
	}
}

func TestUndoSaveFailureKeepsDrawing(t *testing.T) {
	s, fs := newFailingSession(t)
	ctx := context.Background()

	if err := s.BeginStroke(canvas.ToolDraw, geometry.Point2D{X: 30, Y: 40}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndStroke(ctx); err != nil {
		t.Fatal(err)
	}
	before := flatAt(t, s, 30, 40)

	fs.fail = true
	if ok, err := s.Undo(ctx); ok || !errors.Is(err, errDiskFull) {
		t.Fatalf("Undo = %v, %v; want false and disk full", ok, err)
	}
	if px := flatAt(t, s, 30, 40); px != before {
		t.Errorf("pixel = %v after failed undo, want %v", px, before)
	}

	fs.fail = false
	if ok, err := s.Undo(ctx); !ok || err != nil {
		t.Fatalf("Undo after recovery = %v, %v", ok, err)
	}
	if ok, err := s.Redo(ctx); !ok || err != nil {
		t.Fatalf("Redo = %v, %v", ok, err)
	}
}

func TestDetectSaveFailureKeepsAreas(t *testing.T) {
	s, fs := newFailingSession(t)
	ctx := context.Background()
	if _, err := s.PlaceImage(ctx, 0, bytes.NewReader(solidPNG(t, 8, 6, black)), fit.CropFill); err != nil {
		t.Fatal(err)
	}

	fs.fail = true
	if _, err := s.DetectBlankAreas(ctx, false); !errors.Is(err, errDiskFull) {
		t.Fatalf("DetectBlankAreas error = %v, want disk full", err)
	}
	if got := s.Areas(); len(got) != 2 {
		t.Errorf("areas = %+v after failed save, want the previous two", got)
	}
	if i := s.HoverAt(50, 50); i != 0 {
		t.Errorf("HoverAt(50,50) = %d, want 0", i)
	}

	fs.fail = false
	doc, err := fs.Load(ctx, "form")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.BlankAreas) != 2 {
		t.Errorf("stored areas = %+v, want the previous two", doc.BlankAreas)
	}
}
