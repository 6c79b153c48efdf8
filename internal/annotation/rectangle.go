package annotation

import (
	"image/color"

	"plan-tagger/pkg/colorutil"
	"plan-tagger/pkg/geometry"
)

const (
	NominalStrokeWidth = 2.0
	HeavyStrokeWidth   = 4.0
	UnlinkedOpacity    = 0.5
	LinkedOpacity      = 1.0
)

// Style is the visual state of a rectangle on the surface.
type Style struct {
	Stroke      color.RGBA
	StrokeWidth float64
	Opacity     float64
}

// Rectangle is the live view-space counterpart of an annotation. It is
// rebuilt from the annotation on every sync and never persisted.
type Rectangle struct {
	ID         string
	Rect       geometry.Rect // view space
	Angle      float64
	Selectable bool
	Style      Style
}

// Equivalent reports whether two rectangles stand for the same annotation.
func (r Rectangle) Equivalent(o Rectangle) bool {
	return r.ID == o.ID
}

// DrawingStyle is the style of a rectangle being rubber-banded.
func DrawingStyle() Style {
	return Style{Stroke: colorutil.DrawingStroke, StrokeWidth: NominalStrokeWidth, Opacity: LinkedOpacity}
}

// Highlight carries the interaction state that drives restyling.
type Highlight struct {
	SelectedID       string
	HoveredID        string
	HoveredPatternID string
}

// StyleFor applies the single link-status rule: hover (direct or through the
// hovered pattern) gives a heavy stroke at full opacity, otherwise unlinked
// annotations are drawn at half opacity. Selection only changes the color.
func StyleFor(a Annotation, h Highlight) Style {
	s := Style{Stroke: colorutil.UnlinkedStroke, StrokeWidth: NominalStrokeWidth, Opacity: UnlinkedOpacity}
	if a.Linked() {
		s.Stroke = colorutil.LinkedStroke
		s.Opacity = LinkedOpacity
	}

	hovered := a.ID == h.HoveredID ||
		(h.HoveredPatternID != "" && a.PatternID() == h.HoveredPatternID)
	if hovered {
		s.StrokeWidth = HeavyStrokeWidth
		s.Opacity = LinkedOpacity
	}
	if h.SelectedID != "" && a.ID == h.SelectedID {
		s.Stroke = colorutil.SelectedStroke
	}
	return s
}
