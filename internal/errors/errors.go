// Package errors provides categorized errors for the annotation engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
)

// Category groups errors by how callers are expected to react to them.
type Category string

const (
	// CategoryGeometry covers degenerate transforms and empty regions.
	// These are internal invariant failures and never reach the user.
	CategoryGeometry Category = "geometry"
	// CategoryRecognition covers OCR engine failures. Non-fatal.
	CategoryRecognition Category = "recognition"
	// CategoryPersistence covers store failures surfaced to the UI.
	CategoryPersistence Category = "persistence"
	// CategoryLifecycle covers use of a disposed engine or surface.
	CategoryLifecycle Category = "lifecycle"
	// CategoryValidation covers rejected user input.
	CategoryValidation Category = "validation"
	// CategoryNotFound covers references to unknown ids.
	CategoryNotFound Category = "not-found"
	// CategoryConfiguration covers invalid settings.
	CategoryConfiguration Category = "configuration"
)

// Error wraps an error with a category, the failing operation and optional context.
type Error struct {
	Err      error
	Category Category
	Op       string
	Context  map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by category, or the wrapped error chain otherwise.
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Category == other.Category
	}
	return false
}

// With returns a copy of e carrying an extra context key.
func (e *Error) With(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	maps.Copy(ctx, e.Context)
	ctx[key] = value
	return &Error{Err: e.Err, Category: e.Category, Op: e.Op, Context: ctx}
}

// Wrap categorizes err under op. A nil err returns nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Category: category, Op: op}
}

// Newf creates a categorized error from a format string.
func Newf(category Category, op, format string, args ...any) *Error {
	return &Error{Err: fmt.Errorf(format, args...), Category: category, Op: op}
}

// Sentinel returns a category-only error usable as an errors.Is target.
func Sentinel(category Category) error {
	return &Error{Err: stderrors.New(string(category)), Category: category}
}

// CategoryOf returns the category of the first *Error in err's chain, or "".
func CategoryOf(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}

// Is forwards to the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As forwards to the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }

// New forwards to the standard library.
func New(text string) error { return stderrors.New(text) }
