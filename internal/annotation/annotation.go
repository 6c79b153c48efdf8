// Package annotation defines the persisted annotation and tag-pattern records
// and the live rectangle drawn for each annotation.
package annotation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/pkg/geometry"
)

// TypeBox is the only annotation type the engine produces.
const TypeBox = "box"

const (
	MaxPrefixLen      = 10
	MaxDescriptionLen = 200
)

// ErrInvalidPattern is returned when a tag pattern fails validation.
var ErrInvalidPattern = apperrors.New("invalid tag pattern")

// ErrInvalidPosition is returned for negative sizes or non-finite coordinates.
var ErrInvalidPosition = apperrors.New("invalid annotation position")

// NewID returns a fresh unique identifier.
func NewID() string {
	return uuid.NewString()
}

// Position is an annotation's geometry in document space.
type Position struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Angle  float64 `json:"angle"` // degrees in [0,360)
}

// PositionFromRect builds a position with the given angle.
func PositionFromRect(r geometry.Rect, angle float64) Position {
	return Position{Left: r.X, Top: r.Y, Width: r.Width, Height: r.Height, Angle: geometry.NormalizeDegrees(angle)}
}

// Rect returns the axis-aligned part of the position.
func (p Position) Rect() geometry.Rect {
	return geometry.NewRect(p.Left, p.Top, p.Width, p.Height)
}

// Validate checks sizes are non-negative and all fields are finite.
func (p Position) Validate() error {
	for _, f := range []float64{p.Left, p.Top, p.Width, p.Height, p.Angle} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidPosition)
		}
	}
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("%w: negative size %vx%v", ErrInvalidPosition, p.Width, p.Height)
	}
	return nil
}

// Annotation is one region drawn on a document page.
type Annotation struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Position      Position `json:"position"`
	TagPatternID  *string  `json:"tagPatternId,omitempty"`
	ExtractedText *string  `json:"extractedText,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// New returns a box annotation with a fresh id.
func New(pos Position) Annotation {
	return Annotation{ID: NewID(), Type: TypeBox, Position: pos}
}

// Linked reports whether the annotation references a tag pattern.
func (a Annotation) Linked() bool {
	return a.TagPatternID != nil
}

// PatternID returns the linked pattern id or "".
func (a Annotation) PatternID() string {
	if a.TagPatternID == nil {
		return ""
	}
	return *a.TagPatternID
}

// Clone returns a deep copy; the optional fields do not alias.
func (a Annotation) Clone() Annotation {
	out := a
	if a.TagPatternID != nil {
		out.TagPatternID = Ptr(*a.TagPatternID)
	}
	if a.ExtractedText != nil {
		out.ExtractedText = Ptr(*a.ExtractedText)
	}
	if a.Confidence != nil {
		out.Confidence = Ptr(*a.Confidence)
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// TagPattern maps a text prefix to a destination schedule table.
type TagPattern struct {
	ID            string `json:"id"`
	Prefix        string `json:"prefix"`
	Description   string `json:"description,omitempty"`
	ScheduleTable string `json:"scheduleTable"`
}

// NormalizePrefix trims and upper-cases a prefix.
func NormalizePrefix(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalize returns a copy with the prefix, description and table trimmed
// and the prefix upper-cased.
func (p TagPattern) Normalize() TagPattern {
	p.Prefix = NormalizePrefix(p.Prefix)
	p.Description = strings.TrimSpace(p.Description)
	p.ScheduleTable = strings.TrimSpace(p.ScheduleTable)
	return p
}

// Validate checks a normalized pattern. Uniqueness of the prefix within a
// document is checked against others, which may include p itself.
func (p TagPattern) Validate(others []TagPattern) error {
	n := utf8.RuneCountInString(p.Prefix)
	switch {
	case n == 0:
		return fmt.Errorf("%w: prefix is required", ErrInvalidPattern)
	case n > MaxPrefixLen:
		return fmt.Errorf("%w: prefix %q longer than %d characters", ErrInvalidPattern, p.Prefix, MaxPrefixLen)
	case p.Prefix != NormalizePrefix(p.Prefix):
		return fmt.Errorf("%w: prefix %q is not normalized", ErrInvalidPattern, p.Prefix)
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description longer than %d characters", ErrInvalidPattern, MaxDescriptionLen)
	}
	if p.ScheduleTable == "" {
		return fmt.Errorf("%w: schedule table is required", ErrInvalidPattern)
	}
	for _, o := range others {
		if o.ID != p.ID && NormalizePrefix(o.Prefix) == p.Prefix {
			return fmt.Errorf("%w: prefix %q already used", ErrInvalidPattern, p.Prefix)
		}
	}
	return nil
}
