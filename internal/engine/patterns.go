package engine

import (
	"context"
	"slices"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
)

// SavePattern validates and stores a tag pattern. An empty ID creates a new
// pattern; otherwise the existing pattern is replaced. The prefix is
// normalized before validation.
func (e *Engine) SavePattern(ctx context.Context, p annotation.TagPattern) (annotation.TagPattern, error) {
	const op = "engine.SavePattern"
	p = p.Normalize()

	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return p, err
	}
	creating := p.ID == ""
	i := -1
	if !creating {
		if i = e.patternIndex(p.ID); i < 0 {
			e.mu.Unlock()
			return p, notFound(op, "pattern", p.ID)
		}
	}
	if err := p.Validate(e.patterns); err != nil {
		e.mu.Unlock()
		return p, apperrors.Wrap(apperrors.CategoryValidation, op, err)
	}

	var (
		saved annotation.TagPattern
		err   error
	)
	if creating {
		p.ID = annotation.NewID()
		e.patterns = append(e.patterns, p)
		saved, err = e.store.CreatePattern(ctx, e.docID, p)
	} else {
		e.patterns[i] = p
		saved, err = e.store.UpdatePattern(ctx, e.docID, p)
	}

	var events []event
	if err != nil {
		var ev event
		ev, err = e.persistFailed(op, err)
		events = append(events, ev)
		saved = p
	} else if j := e.patternIndex(p.ID); j >= 0 {
		e.patterns[j] = saved
	}
	e.logger.Info("pattern saved", "id", saved.ID, "prefix", saved.Prefix, "created", creating)
	events = append(events, event{typ: EventPatternSaved, data: saved})
	e.mu.Unlock()

	e.emit(events...)
	return saved, err
}

// DeletePattern removes a pattern and unlinks every annotation that
// referenced it. The annotations themselves are kept.
func (e *Engine) DeletePattern(ctx context.Context, id string) error {
	const op = "engine.DeletePattern"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return err
	}
	i := e.patternIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return notFound(op, "pattern", id)
	}
	p := e.patterns[i]
	e.patterns = slices.Delete(e.patterns, i, i+1)

	affected := e.registry.UnlinkAll(id)
	for _, aid := range affected {
		if j := e.indexOf(aid); j >= 0 {
			e.annotations[j].TagPatternID = nil
		}
	}
	if e.highlight.HoveredPatternID == id {
		e.highlight.HoveredPatternID = ""
	}

	var events []event
	err := e.store.DeletePattern(ctx, e.docID, id)
	if err != nil {
		var ev event
		ev, err = e.persistFailed(op, err)
		events = append(events, ev)
	}
	e.logger.Info("pattern deleted", "id", id, "prefix", p.Prefix, "unlinked", len(affected))
	events = append(events, event{typ: EventPatternDeleted, data: p})
	for _, aid := range affected {
		events = append(events, event{typ: EventLinkChanged, data: LinkChange{AnnotationID: aid}})
	}
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return err
}

// ToggleLink links an annotation to a pattern, or unlinks it when it is
// already linked to that pattern. Linking replaces any previous link. It
// returns the resulting pattern id, nil when unlinked.
func (e *Engine) ToggleLink(ctx context.Context, annotationID, patternID string) (*string, error) {
	const op = "engine.ToggleLink"
	e.mu.Lock()
	if err := e.checkLive(op); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	i := e.indexOf(annotationID)
	if i < 0 {
		e.mu.Unlock()
		return nil, notFound(op, "annotation", annotationID)
	}
	if e.patternIndex(patternID) < 0 {
		e.mu.Unlock()
		return nil, notFound(op, "pattern", patternID)
	}

	linked := e.registry.Toggle(annotationID, patternID)
	a := e.annotations[i].Clone()
	a.TagPatternID = linked
	e.annotations[i] = a

	_, events, err := e.saveAnnotation(ctx, op, a)
	e.logger.Info("link toggled", "annotation", annotationID, "pattern", patternID, "linked", linked != nil)
	events = append(events, event{typ: EventLinkChanged, data: LinkChange{AnnotationID: annotationID, PatternID: clonePtr(linked)}})
	events = append(events, e.resync()...)
	e.mu.Unlock()

	e.emit(events...)
	return clonePtr(linked), err
}

// LinkedAnnotations returns the annotations linked to a pattern, in list order.
func (e *Engine) LinkedAnnotations(patternID string) []annotation.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []annotation.Annotation
	for _, a := range e.annotations {
		if a.PatternID() == patternID && patternID != "" {
			out = append(out, a.Clone())
		}
	}
	return out
}

// LinkCounts returns the number of linked annotations per pattern id.
func (e *Engine) LinkCounts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Counts()
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	return annotation.Ptr(*s)
}
