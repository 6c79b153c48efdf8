// Package store persists annotations and tag patterns per document.
package store

import (
	"context"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
)

// ErrNotFound is returned when a record id does not exist in the document.
var ErrNotFound = apperrors.New("record not found")

// Store is the persistence collaborator of the engine. Create and update
// return the canonical stored record. Failures are returned as is; the
// store never retries.
type Store interface {
	ListAnnotations(ctx context.Context, documentID string) ([]annotation.Annotation, error)
	CreateAnnotation(ctx context.Context, documentID string, a annotation.Annotation) (annotation.Annotation, error)
	UpdateAnnotation(ctx context.Context, documentID string, a annotation.Annotation) (annotation.Annotation, error)
	DeleteAnnotation(ctx context.Context, documentID, id string) error
	DeleteAnnotations(ctx context.Context, documentID string) error

	ListPatterns(ctx context.Context, documentID string) ([]annotation.TagPattern, error)
	CreatePattern(ctx context.Context, documentID string, p annotation.TagPattern) (annotation.TagPattern, error)
	UpdatePattern(ctx context.Context, documentID string, p annotation.TagPattern) (annotation.TagPattern, error)
	// DeletePattern removes a pattern and unsets tagPatternId on every
	// annotation that referenced it. Annotations are never deleted.
	DeletePattern(ctx context.Context, documentID, id string) error

	// DeleteDocument removes all annotations and patterns of a document.
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}
