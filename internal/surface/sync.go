package surface

import (
	"log/slog"
	"sync"
	"time"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/viewport"
)

// State is everything a rebuild depends on.
type State struct {
	Annotations []annotation.Annotation
	Transform   *viewport.Transform
	Mode        viewport.Mode
	Highlight   annotation.Highlight
}

// UpdateFunc receives a document-space position for an edited annotation.
type UpdateFunc func(id string, pos annotation.Position)

// pendingEdit is the latest geometry of one rectangle awaiting emission.
type pendingEdit struct {
	rect      annotation.Rectangle
	transform *viewport.Transform
	timer     *time.Timer
}

// Synchronizer owns one surface and rebuilds it from the annotation list.
// User edits flow back through a debounced update callback.
type Synchronizer struct {
	surface  Surface
	onUpdate UpdateFunc
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *viewport.Transform
	pending map[string]*pendingEdit
	stopped bool
}

// NewSynchronizer binds a surface. A zero debounce emits edits synchronously.
func NewSynchronizer(s Surface, debounce time.Duration, onUpdate UpdateFunc, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		surface:  s,
		onUpdate: onUpdate,
		debounce: debounce,
		logger:   logging.OrModule(logger, "surface"),
		pending:  make(map[string]*pendingEdit),
	}
}

// Project builds the rectangles for a state without touching any surface.
func Project(st State) []annotation.Rectangle {
	rects := make([]annotation.Rectangle, 0, len(st.Annotations))
	interactive := st.Mode != viewport.ModeDraw
	for _, a := range st.Annotations {
		rects = append(rects, annotation.Rectangle{
			ID:         a.ID,
			Rect:       st.Transform.RectToView(a.Position.Rect()),
			Angle:      a.Position.Angle,
			Selectable: interactive,
			Style:      annotation.StyleFor(a, st.Highlight),
		})
	}
	return rects
}

// Sync rebuilds the whole surface from st and returns what was drawn.
func (s *Synchronizer) Sync(st State) ([]annotation.Rectangle, error) {
	if st.Transform == nil {
		return nil, apperrors.Newf(apperrors.CategoryGeometry, "Sync", "no transform")
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.CategoryLifecycle, "Sync", ErrClosed)
	}
	s.current = st.Transform
	s.mu.Unlock()

	rects := Project(st)
	if err := s.surface.Replace(rects); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryLifecycle, "Sync", err)
	}
	s.logger.Debug("surface rebuilt", "objects", len(rects), "mode", st.Mode)
	return rects, nil
}

// ObjectModified records the end of a move/resize/rotate gesture. Repeated
// edits of the same object inside the debounce window coalesce into one
// update carrying the last geometry.
func (s *Synchronizer) ObjectModified(r annotation.Rectangle) {
	s.mu.Lock()
	if s.stopped || s.current == nil {
		s.mu.Unlock()
		return
	}
	tr := s.current

	if s.debounce <= 0 {
		s.mu.Unlock()
		s.emit(r, tr)
		return
	}

	if p, ok := s.pending[r.ID]; ok {
		p.rect = r
		p.transform = tr
		p.timer.Reset(s.debounce)
		s.mu.Unlock()
		return
	}
	id := r.ID
	s.pending[id] = &pendingEdit{
		rect:      r,
		transform: tr,
		timer:     time.AfterFunc(s.debounce, func() { s.fire(id) }),
	}
	s.mu.Unlock()
}

func (s *Synchronizer) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()
	s.emit(p.rect, p.transform)
}

func (s *Synchronizer) emit(r annotation.Rectangle, tr *viewport.Transform) {
	pos := annotation.PositionFromRect(tr.RectToDocument(r.Rect), r.Angle)
	s.logger.Debug("object modified", "id", r.ID, "position", pos)
	if s.onUpdate != nil {
		s.onUpdate(r.ID, pos)
	}
}

// Pending returns the number of edits waiting for their debounce window.
func (s *Synchronizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush emits every pending edit immediately.
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	edits := make([]*pendingEdit, 0, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		edits = append(edits, p)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, p := range edits {
		s.emit(p.rect, p.transform)
	}
}

// Close drops pending edits and closes the surface. Edits are not emitted
// after Close returns.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	return s.surface.Close()
}
