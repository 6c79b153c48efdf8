package engine

import (
	"context"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
)

// createAnnotation appends a to the list and persists it, replacing it with the
// canonical record on success. On failure the local copy is kept and the
// error returned. Must be called with e.mu held.
func (e *Engine) createAnnotation(ctx context.Context, op string, a annotation.Annotation) (annotation.Annotation, []event, error) {
	if err := a.Position.Validate(); err != nil {
		return a, nil, apperrors.Wrap(apperrors.CategoryValidation, op, err)
	}
	e.annotations = append(e.annotations, a)
	if a.TagPatternID != nil {
		e.registry.Link(a.ID, *a.TagPatternID)
	}

	var events []event
	saved, err := e.store.CreateAnnotation(ctx, e.docID, a)
	if err != nil {
		ev, werr := e.persistFailed(op, err)
		events = append(events, ev)
		err = werr
	} else {
		if saved.ID != a.ID {
			e.registry.Unlink(a.ID)
			if i := e.indexOf(a.ID); i >= 0 {
				e.annotations[i].ID = saved.ID
			}
		}
		e.replaceAnnotation(saved)
		if saved.TagPatternID != nil {
			e.registry.Link(saved.ID, *saved.TagPatternID)
		}
		a = saved
	}

	e.logger.Info("annotation created", "id", a.ID, "position", a.Position, "persisted", err == nil)
	events = append(events, annotationEvent(EventAnnotationCreated, a))
	events = append(events, e.resync()...)
	return a.Clone(), events, err
}

// CreateAnnotation adds an annotation at a document-space position.
func (e *Engine) CreateAnnotation(ctx context.Context, pos annotation.Position) (annotation.Annotation, error) {
	const op = "engine.CreateAnnotation"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return annotation.Annotation{}, err
	}
	a, events, err := e.createAnnotation(ctx, op, annotation.New(pos))
	e.mu.Unlock()
	e.emit(events...)
	return a, err
}

// UpdatePosition moves an annotation to a document-space position.
func (e *Engine) UpdatePosition(ctx context.Context, id string, pos annotation.Position) (annotation.Annotation, error) {
	const op = "engine.UpdatePosition"
	if err := pos.Validate(); err != nil {
		return annotation.Annotation{}, apperrors.Wrap(apperrors.CategoryValidation, op, err)
	}
	return e.modify(ctx, op, id, func(a *annotation.Annotation) bool {
		if a.Position == pos {
			return false
		}
		a.Position = pos
		return true
	})
}

// modify applies fn to one annotation and persists it when fn reports a
// change. The surface is rebuilt from the result.
func (e *Engine) modify(ctx context.Context, op, id string, fn func(a *annotation.Annotation) bool) (annotation.Annotation, error) {
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return annotation.Annotation{}, err
	}
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return annotation.Annotation{}, notFound(op, "annotation", id)
	}
	a := e.annotations[i].Clone()
	if !fn(&a) {
		e.mu.Unlock()
		return a, nil
	}
	e.annotations[i] = a

	saved, events, err := e.saveAnnotation(ctx, op, a)
	events = append(events, annotationEvent(EventAnnotationUpdated, saved))
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return saved.Clone(), err
}

// DeleteAnnotation removes an annotation and its link.
func (e *Engine) DeleteAnnotation(ctx context.Context, id string) error {
	const op = "engine.DeleteAnnotation"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return err
	}
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return notFound(op, "annotation", id)
	}
	e.annotations = append(e.annotations[:i], e.annotations[i+1:]...)
	e.registry.Unlink(id)
	if e.highlight.SelectedID == id {
		e.highlight.SelectedID = ""
	}
	if e.highlight.HoveredID == id {
		e.highlight.HoveredID = ""
	}

	var events []event
	err := e.store.DeleteAnnotation(ctx, e.docID, id)
	if err != nil {
		var ev event
		ev, err = e.persistFailed(op, err)
		events = append(events, ev)
	}
	e.logger.Info("annotation deleted", "id", id)
	events = append(events, event{typ: EventAnnotationDeleted, data: id})
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return err
}

// ClearAnnotations removes every annotation of the document. Recognitions
// still in flight are discarded when they finish.
func (e *Engine) ClearAnnotations(ctx context.Context) error {
	const op = "engine.ClearAnnotations"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return err
	}
	n := len(e.annotations)
	e.annotations = nil
	e.registry.Rebuild(nil)
	e.highlight.SelectedID = ""
	e.highlight.HoveredID = ""
	e.generation++

	var events []event
	err := e.store.DeleteAnnotations(ctx, e.docID)
	if err != nil {
		var ev event
		ev, err = e.persistFailed(op, err)
		events = append(events, ev)
	}
	e.logger.Info("annotations cleared", "count", n)
	events = append(events, event{typ: EventAnnotationsCleared, data: n})
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return err
}
