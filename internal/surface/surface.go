// Package surface keeps the drawable objects of a page in step with the
// authoritative annotation list.
package surface

import (
	"slices"
	"sync"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
)

// ErrClosed is returned by operations on a closed surface.
var ErrClosed = apperrors.New("surface closed")

// Surface is the drawable layer that holds one rectangle per annotation.
// Implementations must be safe for concurrent use.
type Surface interface {
	// Replace swaps the whole object set in one step.
	Replace(rects []annotation.Rectangle) error
	// Objects returns a copy of the current object set in draw order.
	Objects() []annotation.Rectangle
	// Close releases the surface; later calls return ErrClosed.
	Close() error
}

// MemorySurface is a headless Surface used by the CLI and tests.
type MemorySurface struct {
	mu       sync.RWMutex
	objects  []annotation.Rectangle
	closed   bool
	replaced int
}

// NewMemorySurface returns an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// Replace implements Surface.
func (s *MemorySurface) Replace(rects []annotation.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.objects = slices.Clone(rects)
	s.replaced++
	return nil
}

// Objects implements Surface.
func (s *MemorySurface) Objects() []annotation.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.objects)
}

// Close implements Surface.
func (s *MemorySurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.objects = nil
	return nil
}

// Rebuilds returns how many times the object set was replaced.
func (s *MemorySurface) Rebuilds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replaced
}
