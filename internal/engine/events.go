package engine

import (
	"plan-tagger/internal/annotation"
)

// EventType identifies engine events.
type EventType int

const (
	// EventAnnotationCreated carries the created annotation.Annotation.
	EventAnnotationCreated EventType = iota
	// EventAnnotationComplete fires after a drawn annotation is committed,
	// for collaborators that prompt for linking. Carries annotation.Annotation.
	EventAnnotationComplete
	// EventAnnotationUpdated carries the updated annotation.Annotation.
	EventAnnotationUpdated
	// EventAnnotationDeleted carries the deleted annotation id.
	EventAnnotationDeleted
	// EventAnnotationsCleared carries the number of removed annotations.
	EventAnnotationsCleared
	// EventPatternSaved carries the saved annotation.TagPattern.
	EventPatternSaved
	// EventPatternDeleted carries the deleted annotation.TagPattern.
	EventPatternDeleted
	// EventLinkChanged carries a LinkChange.
	EventLinkChanged
	// EventRecognitionComplete carries a RecognitionOutcome.
	EventRecognitionComplete
	// EventRecognitionFailed carries a RecognitionFailure.
	EventRecognitionFailed
	// EventViewportChanged carries the new viewport.State.
	EventViewportChanged
	// EventSynced carries the []annotation.Rectangle drawn by the rebuild.
	EventSynced
	// EventPersistenceFailed carries the error returned by the store.
	EventPersistenceFailed
)

var eventNames = map[EventType]string{
	EventAnnotationCreated:   "annotation-created",
	EventAnnotationComplete:  "annotation-complete",
	EventAnnotationUpdated:   "annotation-updated",
	EventAnnotationDeleted:   "annotation-deleted",
	EventAnnotationsCleared:  "annotations-cleared",
	EventPatternSaved:        "pattern-saved",
	EventPatternDeleted:      "pattern-deleted",
	EventLinkChanged:         "link-changed",
	EventRecognitionComplete: "recognition-complete",
	EventRecognitionFailed:   "recognition-failed",
	EventViewportChanged:     "viewport-changed",
	EventSynced:              "synced",
	EventPersistenceFailed:   "persistence-failed",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Listener is called with the event's payload.
type Listener func(data any)

// LinkChange reports an annotation's new link; PatternID is nil when unlinked.
type LinkChange struct {
	AnnotationID string
	PatternID    *string
}

// RecognitionFailure reports a recognition that did not produce a result.
type RecognitionFailure struct {
	AnnotationID string
	Err          error
}

type event struct {
	typ  EventType
	data any
}

// On registers a listener. Listeners run on the goroutine that caused the
// event, after the engine lock is released, so they may call back into the
// engine.
func (e *Engine) On(t EventType, l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners[t] = append(e.listeners[t], l)
}

func (e *Engine) emit(events ...event) {
	for _, ev := range events {
		e.listenersMu.RLock()
		ls := e.listeners[ev.typ]
		e.listenersMu.RUnlock()
		for _, l := range ls {
			l(ev.data)
		}
	}
}

func annotationEvent(t EventType, a annotation.Annotation) event {
	return event{typ: t, data: a.Clone()}
}
