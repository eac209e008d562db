// Package app ties a form record, its compositor and the record store
// together into an editing session.
package app

import (
	"context"
	"errors"
	"fmt"
	goimage "image"
	"io"
	"sync"
	"sync/atomic"

	"gridfill/internal/blank"
	"gridfill/internal/canvas"
	"gridfill/internal/fit"
	"gridfill/internal/image"
	"gridfill/internal/logging"
	"gridfill/internal/project"
	"gridfill/pkg/geometry"
)

var (
	// ErrNoForm is returned by operations that need an open form.
	ErrNoForm = errors.New("no form open")
	// ErrSuperseded is returned when a newer placement request was issued
	// while this one was decoding. Nothing is changed.
	ErrSuperseded = errors.New("placement superseded by a newer request")
	// ErrAreaIndex is returned for a blank area index outside the detected set.
	ErrAreaIndex = errors.New("blank area index out of range")
)

// EventType identifies different session events.
type EventType int

const (
	EventFormLoaded EventType = iota
	EventAreasDetected
	EventImagePlaced
	EventHistoryChanged
	EventSaved
	EventClosed
)

func (e EventType) String() string {
	switch e {
	case EventFormLoaded:
		return "FormLoaded"
	case EventAreasDetected:
		return "AreasDetected"
	case EventImagePlaced:
		return "ImagePlaced"
	case EventHistoryChanged:
		return "HistoryChanged"
	case EventSaved:
		return "Saved"
	case EventClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// PlacedEvent is the payload of EventImagePlaced.
type PlacedEvent struct {
	AreaIndex int
	Rect      geometry.RectInt
}

// HistoryEvent is the payload of EventHistoryChanged.
type HistoryEvent struct {
	CanUndo bool
	CanRedo bool
}

// Session edits one form at a time. Its methods are safe for concurrent use;
// image decoding for placements runs without holding the session lock.
type Session struct {
	mu sync.Mutex

	store      project.Store
	canvasOpts []canvas.Option
	params     blank.Params

	doc   *project.FormDocument
	comp  *canvas.Compositor
	areas []geometry.RectInt

	placeGen atomic.Uint64

	lmu       sync.RWMutex
	listeners map[EventType][]EventListener
}

// NewSession creates a session persisting to store. canvasOpts configure
// every compositor the session creates.
func NewSession(store project.Store, canvasOpts ...canvas.Option) *Session {
	return &Session{
		store:      store,
		canvasOpts: canvasOpts,
		params:     blank.DefaultParams(),
		listeners:  make(map[EventType][]EventListener),
	}
}

// SetDetectorParams replaces the parameters used for blank area detection.
func (s *Session) SetDetectorParams(p blank.Params) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.lmu.RLock()
	listeners := s.listeners[event]
	s.lmu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Import decodes a new form image, detects its blank areas, stores it under
// id and opens it. A decode failure leaves the session unchanged.
func (s *Session) Import(ctx context.Context, id string, r io.Reader, tolerant bool) error {
	base, format, err := image.DecodeContext(ctx, r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	params := s.params.WithTolerance(tolerant)
	s.mu.Unlock()

	areas := blank.Detect(base, params)
	doc, err := project.NewFormDocument(id, base)
	if err != nil {
		return err
	}
	doc.SetBlankAreas(areas)

	comp, err := canvas.New(base, s.canvasOpts...)
	if err != nil {
		return err
	}
	if err := doc.SetRendered(comp.Drawing(), comp.Flatten()); err != nil {
		comp.Close()
		return err
	}
	if err := s.store.Save(ctx, doc); err != nil {
		comp.Close()
		return fmt.Errorf("save form %s: %w", id, err)
	}

	s.mu.Lock()
	s.swap(doc, comp, areas)
	s.mu.Unlock()

	logging.Logger().Info("form imported", "id", id, "format", format,
		"width", base.Bounds().Dx(), "height", base.Bounds().Dy(), "areas", len(areas))
	s.Emit(EventFormLoaded, id)
	s.Emit(EventAreasDetected, cloneAreas(areas))
	return nil
}

// Open loads the form stored under id. Forms stored without blank areas
// are detected and written back.
func (s *Session) Open(ctx context.Context, id string) error {
	doc, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	base, err := doc.Base()
	if err != nil {
		return fmt.Errorf("form %s base image: %w", id, err)
	}
	drawing, err := doc.Drawing()
	if err != nil {
		return fmt.Errorf("form %s drawing layer: %w", id, err)
	}

	comp, err := canvas.New(base, s.canvasOpts...)
	if err != nil {
		return err
	}
	if drawing != nil {
		if err := comp.SetDrawing(drawing); err != nil {
			comp.Close()
			return fmt.Errorf("form %s: %w", id, err)
		}
	}

	areas := doc.BlankAreas
	detected := false
	if areas == nil {
		s.mu.Lock()
		params := s.params
		s.mu.Unlock()
		areas = blank.Detect(base, params)
		doc.SetBlankAreas(areas)
		if err := s.store.Save(ctx, doc); err != nil {
			comp.Close()
			return fmt.Errorf("save form %s: %w", id, err)
		}
		detected = true
	}

	s.mu.Lock()
	s.swap(doc, comp, areas)
	s.mu.Unlock()

	logging.Logger().Info("form opened", "id", id, "areas", len(areas), "detected", detected)
	s.Emit(EventFormLoaded, id)
	if detected {
		s.Emit(EventAreasDetected, cloneAreas(areas))
	}
	return nil
}

// swap installs a new form. Callers hold s.mu.
func (s *Session) swap(doc *project.FormDocument, comp *canvas.Compositor, areas []geometry.RectInt) {
	if s.comp != nil {
		s.comp.Close()
	}
	s.doc, s.comp, s.areas = doc, comp, cloneAreas(areas)
	s.comp.HighlightRegions(s.areas, false)
	s.placeGen.Add(1)
}

// ID returns the id of the open form, or "".
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ""
	}
	return s.doc.ID
}

// Areas returns the cached blank areas of the open form.
func (s *Session) Areas() []geometry.RectInt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAreas(s.areas)
}

// DetectBlankAreas recomputes the blank areas of the current base raster,
// caches and persists them. If the save fails the previous areas are kept.
func (s *Session) DetectBlankAreas(ctx context.Context, tolerant bool) ([]geometry.RectInt, error) {
	s.mu.Lock()
	if s.comp == nil {
		s.mu.Unlock()
		return nil, ErrNoForm
	}
	areas := blank.Detect(s.comp.Base(), s.params.WithTolerance(tolerant))
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	prevAreas, prevDoc := s.areas, *s.doc
	s.areas = areas
	s.doc.SetBlankAreas(areas)
	s.comp.HighlightRegions(areas, s.comp.HighlightVisible())
	err := s.store.Save(ctx, s.doc)
	if err != nil {
		s.areas, *s.doc = prevAreas, prevDoc
		s.comp.HighlightRegions(prevAreas, s.comp.HighlightVisible())
	}
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("save blank areas: %w", err)
	}
	s.Emit(EventAreasDetected, cloneAreas(areas))
	return cloneAreas(areas), nil
}

// PlaceImage decodes the image read from r and places it into the blank area
// at index. If another placement is requested before this one finishes
// decoding, this one returns ErrSuperseded and changes nothing. Decode
// failures return an *image.DecodeError and change nothing. If the form
// cannot be saved the cell is restored.
func (s *Session) PlaceImage(ctx context.Context, index int, r io.Reader, mode fit.Mode) (geometry.RectInt, error) {
	gen := s.placeGen.Add(1)

	src, _, err := image.DecodeContext(ctx, r)
	if err != nil {
		return geometry.RectInt{}, err
	}

	s.mu.Lock()
	if s.placeGen.Load() != gen {
		s.mu.Unlock()
		logging.Logger().Debug("stale placement dropped", "area", index)
		return geometry.RectInt{}, ErrSuperseded
	}
	if s.comp == nil {
		s.mu.Unlock()
		return geometry.RectInt{}, ErrNoForm
	}
	if index < 0 || index >= len(s.areas) {
		s.mu.Unlock()
		return geometry.RectInt{}, fmt.Errorf("%w: %d of %d", ErrAreaIndex, index, len(s.areas))
	}

	cell, prevDoc := s.comp.BaseRegion(s.areas[index]), *s.doc
	placed, err := s.comp.PlaceImage(s.areas[index], src, mode)
	if err == nil {
		err = s.persistBase(ctx)
	}
	if err != nil {
		*s.doc = prevDoc
		if rerr := s.comp.RestoreBase(cell); rerr != nil {
			logging.Logger().Warn("cell rollback failed", "area", index, "err", rerr)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return geometry.RectInt{}, err
	}

	s.Emit(EventImagePlaced, PlacedEvent{AreaIndex: index, Rect: placed})
	return placed, nil
}

// persistBase writes base, drawing layer and composite. Callers hold s.mu.
func (s *Session) persistBase(ctx context.Context) error {
	if err := s.doc.SetBase(s.comp.Base()); err != nil {
		return err
	}
	return s.persist(ctx)
}

// persist writes drawing layer and composite. Callers hold s.mu.
func (s *Session) persist(ctx context.Context) error {
	if err := s.doc.SetRendered(s.comp.Drawing(), s.comp.Flatten()); err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.doc); err != nil {
		return fmt.Errorf("save form %s: %w", s.doc.ID, err)
	}
	return nil
}

// withCompositor runs fn with the lock held and an open form.
func (s *Session) withCompositor(fn func(c *canvas.Compositor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.comp == nil {
		return ErrNoForm
	}
	return fn(s.comp)
}

// BeginStroke starts a draw or erase stroke.
func (s *Session) BeginStroke(tool canvas.Tool, pt geometry.Point2D) error {
	return s.withCompositor(func(c *canvas.Compositor) error {
		return c.BeginStroke(tool, pt)
	})
}

// ExtendStroke continues the current stroke.
func (s *Session) ExtendStroke(pt geometry.Point2D) error {
	return s.withCompositor(func(c *canvas.Compositor) error {
		return c.ExtendStroke(pt)
	})
}

// EndStroke commits the current stroke and persists the drawing layer.
func (s *Session) EndStroke(ctx context.Context) error {
	return s.commitWith(ctx, func(c *canvas.Compositor) error {
		return c.EndStroke()
	})
}

// PreviewText shows uncommitted text.
func (s *Session) PreviewText(pos geometry.Point2D, text string) error {
	return s.withCompositor(func(c *canvas.Compositor) error {
		st := c.Style()
		return c.PreviewText(pos, text, st.FontSize, st.Color)
	})
}

// ClearPreview discards uncommitted text.
func (s *Session) ClearPreview() {
	s.withCompositor(func(c *canvas.Compositor) error {
		c.ClearPreview()
		return nil
	})
}

// PlaceText commits text in the current style and persists the drawing layer.
func (s *Session) PlaceText(ctx context.Context, pos geometry.Point2D, text string) error {
	return s.commitWith(ctx, func(c *canvas.Compositor) error {
		st := c.Style()
		return c.PlaceText(pos, text, st.FontSize, st.Color)
	})
}

// Undo reverts the last drawing commit and persists the result.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	var changed bool
	err := s.commitWith(ctx, func(c *canvas.Compositor) error {
		var err error
		changed, err = c.Undo()
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Redo re-applies the last undone drawing commit and persists the result.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	var changed bool
	err := s.commitWith(ctx, func(c *canvas.Compositor) error {
		var err error
		changed, err = c.Redo()
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// commitWith applies a drawing-layer change, persists it and emits
// EventHistoryChanged. If the save fails the drawing layer, its history and
// the record are returned to their state before fn.
func (s *Session) commitWith(ctx context.Context, fn func(c *canvas.Compositor) error) error {
	var ev HistoryEvent
	err := s.withCompositor(func(c *canvas.Compositor) error {
		depth := c.History().Len()
		redo := c.History().RedoLen()
		cp, prevDoc := c.Checkpoint(), *s.doc
		if err := fn(c); err != nil {
			return err
		}
		ev = HistoryEvent{CanUndo: c.CanUndo(), CanRedo: c.CanRedo()}
		if c.History().Len() == depth && c.History().RedoLen() == redo {
			return errUnchanged
		}
		err := s.persist(ctx)
		if err != nil {
			*s.doc = prevDoc
			if rerr := c.Rollback(cp); rerr != nil {
				logging.Logger().Warn("drawing rollback failed", "err", rerr)
			}
		}
		return err
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Emit(EventHistoryChanged, ev)
	return nil
}

var errUnchanged = errors.New("unchanged")

// SetStyle sets the tool style.
func (s *Session) SetStyle(st canvas.Style) error {
	return s.withCompositor(func(c *canvas.Compositor) error {
		c.SetStyle(st)
		return nil
	})
}

// SetHighlightVisible shows or hides the blank area overlay.
func (s *Session) SetHighlightVisible(visible bool) error {
	return s.withCompositor(func(c *canvas.Compositor) error {
		c.SetHighlightVisible(visible)
		return nil
	})
}

// HoverAt outlines the blank area under (x, y) and returns its index, or -1.
func (s *Session) HoverAt(x, y int) int {
	i := -1
	s.withCompositor(func(c *canvas.Compositor) error {
		i = c.AreaAt(x, y)
		if i < 0 {
			c.Hover(nil)
			return nil
		}
		a := s.areas[i]
		c.Hover(&a)
		return nil
	})
	return i
}

// Display returns the live view including overlays.
func (s *Session) Display() (*goimage.RGBA, error) {
	var img *goimage.RGBA
	err := s.withCompositor(func(c *canvas.Compositor) error {
		img = c.Display()
		return nil
	})
	return img, err
}

// Flatten returns the form with annotations and no overlays.
func (s *Session) Flatten() (*goimage.RGBA, error) {
	var img *goimage.RGBA
	err := s.withCompositor(func(c *canvas.Compositor) error {
		img = c.Flatten()
		return nil
	})
	return img, err
}

// Save persists the open form and emits EventSaved once the store has
// accepted it.
func (s *Session) Save(ctx context.Context) error {
	var id string
	err := s.withCompositor(func(c *canvas.Compositor) error {
		id = s.doc.ID
		return s.persist(ctx)
	})
	if err != nil {
		return err
	}
	logging.Logger().Info("form saved", "id", id)
	s.Emit(EventSaved, id)
	return nil
}

// Export writes the flattened form to w as PNG.
func (s *Session) Export(w io.Writer) error {
	img, err := s.Flatten()
	if err != nil {
		return err
	}
	return image.EncodePNG(w, img)
}

// Close releases the open form. Pending placements become stale.
func (s *Session) Close() {
	s.mu.Lock()
	if s.comp != nil {
		s.comp.Close()
	}
	s.doc, s.comp, s.areas = nil, nil, nil
	s.placeGen.Add(1)
	s.mu.Unlock()
	s.Emit(EventClosed, nil)
}

func cloneAreas(areas []geometry.RectInt) []geometry.RectInt {
	if areas == nil {
		return nil
	}
	return append([]geometry.RectInt(nil), areas...)
}
