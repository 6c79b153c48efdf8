// Package links indexes which annotations are linked to which tag pattern.
//
// The index is derived from the annotations' TagPatternID fields and can be
// rebuilt from them at any time. An annotation is linked to at most one
// pattern; linking it elsewhere silently replaces the earlier link.
package links

import (
	"slices"
	"sync"

	"plan-tagger/internal/annotation"
)

// Registry is the two-way link index. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	byAnnotation map[string]string              // annotation id -> pattern id
	byPattern    map[string]map[string]struct{} // pattern id -> annotation ids
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAnnotation: make(map[string]string),
		byPattern:    make(map[string]map[string]struct{}),
	}
}

// Rebuild discards the index and recomputes it from annotations.
func (r *Registry) Rebuild(anns []annotation.Annotation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAnnotation = make(map[string]string, len(anns))
	r.byPattern = make(map[string]map[string]struct{})
	for _, a := range anns {
		if a.TagPatternID != nil {
			r.link(a.ID, *a.TagPatternID)
		}
	}
}

// Link links an annotation to a pattern, replacing any prior link.
func (r *Registry) Link(annotationID, patternID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.link(annotationID, patternID)
}

// Unlink removes an annotation's link. It reports whether one existed.
func (r *Registry) Unlink(annotationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlink(annotationID)
}

// Toggle unlinks the annotation if it is linked to patternID and links it
// otherwise. It returns the resulting pattern id, nil when unlinked.
func (r *Registry) Toggle(annotationID, patternID string) *string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byAnnotation[annotationID]; ok && cur == patternID {
		r.unlink(annotationID)
		return nil
	}
	r.link(annotationID, patternID)
	return annotation.Ptr(patternID)
}

// UnlinkAll removes every link to patternID and returns the affected
// annotation ids, sorted.
func (r *Registry) UnlinkAll(patternID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byPattern[patternID]
	ids := make([]string, 0, len(set))
	for id := range set {
		delete(r.byAnnotation, id)
		ids = append(ids, id)
	}
	delete(r.byPattern, patternID)
	slices.Sort(ids)
	return ids
}

// PatternFor returns the pattern an annotation is linked to.
func (r *Registry) PatternFor(annotationID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAnnotation[annotationID]
	return p, ok
}

// Linked returns the annotation ids linked to patternID, sorted.
func (r *Registry) Linked(patternID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byPattern[patternID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Counts returns the number of linked annotations per pattern.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.byPattern))
	for p, set := range r.byPattern {
		out[p] = len(set)
	}
	return out
}

// Len returns the number of linked annotations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAnnotation)
}

func (r *Registry) link(annotationID, patternID string) {
	r.unlink(annotationID)
	set := r.byPattern[patternID]
	if set == nil {
		set = make(map[string]struct{})
		r.byPattern[patternID] = set
	}
	set[annotationID] = struct{}{}
	r.byAnnotation[annotationID] = patternID
}

func (r *Registry) unlink(annotationID string) bool {
	prev, ok := r.byAnnotation[annotationID]
	if !ok {
		return false
	}
	delete(r.byAnnotation, annotationID)
	if set := r.byPattern[prev]; set != nil {
		delete(set, annotationID)
		if len(set) == 0 {
			delete(r.byPattern, prev)
		}
	}
	return true
}
