package engine

import (
	"context"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/drawing"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/geometry"
)

// Viewport returns the current display state.
func (e *Engine) Viewport() viewport.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp.State()
}

// Transform returns the transform for the current state, or an error when
// the page has not been measured.
func (e *Engine) Transform() (*viewport.Transform, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp.Transform()
}

// updateViewport applies fn to the viewport and, when it succeeds, resyncs
// the surface and reports the new state.
func (e *Engine) updateViewport(op string, fn func(v *viewport.Viewport) error) error {
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := fn(e.vp); err != nil {
		e.mu.Unlock()
		return err
	}
	events := []event{{typ: EventViewportChanged, data: e.vp.State()}}
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return nil
}

// MeasurePage records the native page size reported by the renderer.
// Portrait pages measured for the first time at rotation 0 are turned to 90.
func (e *Engine) MeasurePage(width, height float64) error {
	return e.updateViewport("engine.MeasurePage", func(v *viewport.Viewport) error {
		rotated, err := v.MeasurePage(width, height)
		if err != nil {
			return err
		}
		if rotated {
			e.logger.Info("portrait page rotated for display", "width", width, "height", height)
		}
		return nil
	})
}

// SetScale sets the zoom factor.
func (e *Engine) SetScale(scale float64) error {
	return e.updateViewport("engine.SetScale", func(v *viewport.Viewport) error {
		return v.SetScale(scale)
	})
}

// ZoomIn zooms in one step.
func (e *Engine) ZoomIn() error {
	return e.updateViewport("engine.ZoomIn", func(v *viewport.Viewport) error {
		v.ZoomIn()
		return nil
	})
}

// ZoomOut zooms out one step.
func (e *Engine) ZoomOut() error {
	return e.updateViewport("engine.ZoomOut", func(v *viewport.Viewport) error {
		v.ZoomOut()
		return nil
	})
}

// FitTo scales the page to fit a view area.
func (e *Engine) FitTo(viewWidth, viewHeight float64) error {
	return e.updateViewport("engine.FitTo", func(v *viewport.Viewport) error {
		return v.FitTo(viewWidth, viewHeight)
	})
}

// SetRotation sets a quarter-turn rotation.
func (e *Engine) SetRotation(deg int) error {
	return e.updateViewport("engine.SetRotation", func(v *viewport.Viewport) error {
		return v.SetRotation(deg)
	})
}

// RotateClockwise turns the page 90 degrees clockwise.
func (e *Engine) RotateClockwise() error {
	return e.updateViewport("engine.RotateClockwise", func(v *viewport.Viewport) error {
		v.RotateClockwise()
		return nil
	})
}

// RotateCounterClockwise turns the page 90 degrees counter-clockwise.
func (e *Engine) RotateCounterClockwise() error {
	return e.updateViewport("engine.RotateCounterClockwise", func(v *viewport.Viewport) error {
		v.RotateCounterClockwise()
		return nil
	})
}

// SetMode switches between select and draw. Leaving draw mode cancels an
// in-progress gesture; objects are selectable only in select mode.
func (e *Engine) SetMode(m viewport.Mode) error {
	return e.updateViewport("engine.SetMode", func(v *viewport.Viewport) error {
		if err := v.SetMode(m); err != nil {
			return err
		}
		if e.drawer.SetMode(m) == drawing.Cancelled {
			e.metrics.RecordDraw(false)
		}
		return nil
	})
}

// DrawingSession returns a copy of the drawing state machine's session.
func (e *Engine) DrawingSession() drawing.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawer.Session()
}

// ActiveRect returns the rectangle being drawn, in view space.
func (e *Engine) ActiveRect() (annotation.Rectangle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawer.Active()
}

// PointerDown starts a drawing gesture at a view-space point. It reports
// whether a gesture started.
func (e *Engine) PointerDown(p geometry.Point2D) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	return e.drawer.PointerDown(p)
}

// PointerMove stretches the active rectangle.
func (e *Engine) PointerMove(p geometry.Point2D) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.drawer.PointerMove(p)
}

// PointerUp ends a drawing gesture. A committed rectangle is converted to
// document space and persisted as a new annotation, which is returned.
// Rectangles at or below the minimum size are discarded and nil is returned.
func (e *Engine) PointerUp(ctx context.Context, p geometry.Point2D) (*annotation.Annotation, error) {
	const op = "engine.PointerUp"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	res := e.drawer.PointerUp(p)
	if res.Outcome != drawing.Committed {
		if res.Outcome == drawing.Cancelled {
			e.metrics.RecordDraw(false)
		}
		e.mu.Unlock()
		return nil, nil
	}
	e.metrics.RecordDraw(true)

	tr, err := e.vp.Transform()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	pos := annotation.PositionFromRect(tr.RectToDocument(res.Rect.Rect), res.Rect.Angle)
	// The annotation keeps the id the rectangle had while being drawn.
	a, events, err := e.createAnnotation(ctx, op, annotation.Annotation{ID: res.Rect.ID, Type: annotation.TypeBox, Position: pos})
	e.mu.Unlock()

	e.emit(events...)
	if err != nil {
		return &a, err
	}
	e.emit(annotationEvent(EventAnnotationComplete, a))
	if e.cfg.RecognizeOnCreate && e.recognizer != nil {
		e.recognizeInBackground(a.ID)
	}
	return &a, nil
}

// CancelDrawing drops an in-progress gesture.
func (e *Engine) CancelDrawing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drawer.Cancel() == drawing.Cancelled {
		e.metrics.RecordDraw(false)
	}
}

// ObjectModified forwards the end of a move/resize/rotate gesture on the
// surface. The edit reaches the store after the debounce window.
func (e *Engine) ObjectModified(r annotation.Rectangle) {
	e.sync.ObjectModified(r)
}

// FlushEdits persists pending surface edits immediately.
func (e *Engine) FlushEdits() {
	e.sync.Flush()
}

func (e *Engine) onSurfaceEdit(id string, pos annotation.Position) {
	if _, err := e.UpdatePosition(e.ctx, id, pos); err != nil {
		e.logger.Warn("surface edit not applied", "id", id, "error", err)
	}
}

// Select marks an annotation selected; an empty id clears the selection.
func (e *Engine) Select(id string) error {
	return e.setHighlight("engine.Select", func(h *annotation.Highlight) { h.SelectedID = id })
}

// Hover marks an annotation hovered; an empty id clears it.
func (e *Engine) Hover(id string) error {
	return e.setHighlight("engine.Hover", func(h *annotation.Highlight) { h.HoveredID = id })
}

// HoverPattern highlights every annotation linked to a pattern; an empty
// id clears it.
func (e *Engine) HoverPattern(patternID string) error {
	return e.setHighlight("engine.HoverPattern", func(h *annotation.Highlight) { h.HoveredPatternID = patternID })
}

func (e *Engine) setHighlight(op string, fn func(h *annotation.Highlight)) error {
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return err
	}
	before := e.highlight
	fn(&e.highlight)
	if e.highlight == before {
		e.mu.Unlock()
		return nil
	}
	events := e.resync()
	e.mu.Unlock()
	e.emit(events...)
	return nil
}
