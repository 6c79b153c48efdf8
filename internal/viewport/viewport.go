// Package viewport maps between the rendered view and stable document coordinates.
//
// Document space is the page's native, unrotated and unscaled coordinate
// system and is the only space that is ever persisted. View space is the
// pixel grid of the surface after scaling and quarter-turn rotation.
package viewport

import (
	"fmt"
	"math"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/pkg/geometry"
)

const (
	MinScale  = 0.1
	MaxScale  = 10.0
	ZoomStep  = 1.25
	fitMargin = 0.95
)

var (
	// ErrInvalidScale is returned for a scale that is not strictly positive.
	ErrInvalidScale = apperrors.New("scale must be positive")
	// ErrInvalidRotation is returned for a rotation that is not a quarter turn.
	ErrInvalidRotation = apperrors.New("rotation must be one of 0, 90, 180, 270")
	// ErrInvalidPage is returned for a page without area.
	ErrInvalidPage = apperrors.New("page dimensions must be positive")
)

// Mode is the interaction tool of the surface.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeDraw   Mode = "draw"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSelect || m == ModeDraw
}

// ValidRotation reports whether deg is one of 0, 90, 180, 270.
func ValidRotation(deg int) bool {
	return deg == 0 || deg == 90 || deg == 180 || deg == 270
}

// Transform is the affine mapping for one page size, scale and rotation.
// It is immutable; build a new one when any input changes.
type Transform struct {
	page     geometry.Size
	scale    float64
	rotation int
	toView   geometry.AffineTransform
	toDoc    geometry.AffineTransform
}

// NewTransform builds the transform "translate page center to origin,
// rotate, scale, translate to view center".
func NewTransform(page geometry.Size, scale float64, rotation int) (*Transform, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "NewTransform",
			fmt.Errorf("%w: %v", ErrInvalidScale, scale))
	}
	if !ValidRotation(rotation) {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "NewTransform",
			fmt.Errorf("%w: %d", ErrInvalidRotation, rotation))
	}
	if page.Width <= 0 || page.Height <= 0 {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "NewTransform",
			fmt.Errorf("%w: %vx%v", ErrInvalidPage, page.Width, page.Height))
	}

	t := &Transform{page: page, scale: scale, rotation: rotation}
	view := t.ViewDimensions()

	t.toView = geometry.Translation(view.Width/2, view.Height/2).
		Compose(geometry.Scale(scale, scale)).
		Compose(geometry.RotationDegrees(float64(rotation))).
		Compose(geometry.Translation(-page.Width/2, -page.Height/2))

	inv, ok := t.toView.Inverse()
	if !ok {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "NewTransform",
			fmt.Errorf("transform is singular for scale %v", scale))
	}
	t.toDoc = inv
	return t, nil
}

// Page returns the document-space page size.
func (t *Transform) Page() geometry.Size { return t.page }

// Scale returns the scale factor.
func (t *Transform) Scale() float64 { return t.scale }

// Rotation returns the rotation in degrees.
func (t *Transform) Rotation() int { return t.rotation }

// ViewDimensions returns the scaled page size, swapped for 90/270.
func (t *Transform) ViewDimensions() geometry.Size {
	w, h := t.page.Width, t.page.Height
	if t.rotation == 90 || t.rotation == 270 {
		w, h = h, w
	}
	return geometry.Size{Width: w * t.scale, Height: h * t.scale}
}

// ToViewSpace maps a document-space point into view space.
func (t *Transform) ToViewSpace(p geometry.Point2D) geometry.Point2D {
	return t.toView.Apply(p)
}

// ToDocumentSpace maps a view-space point into document space.
func (t *Transform) ToDocumentSpace(p geometry.Point2D) geometry.Point2D {
	return t.toDoc.Apply(p)
}

// RectToView maps a document-space rectangle to its view-space bounding box.
// At rotation 0 this is every field multiplied by the scale.
func (t *Transform) RectToView(r geometry.Rect) geometry.Rect {
	return t.toView.ApplyRect(r)
}

// RectToDocument maps a view-space rectangle to its document-space bounding box.
// At rotation 0 this is every field divided by the scale.
func (t *Transform) RectToDocument(r geometry.Rect) geometry.Rect {
	return t.toDoc.ApplyRect(r)
}

// Matrix returns the document-to-view matrix.
func (t *Transform) Matrix() geometry.AffineTransform { return t.toView }

// State is the ephemeral per-document display state.
type State struct {
	Scale    float64
	Rotation int
	Mode     Mode
}

// DefaultState is scale 1, no rotation, select mode.
func DefaultState() State {
	return State{Scale: 1, Rotation: 0, Mode: ModeSelect}
}

// Viewport tracks the display state of one open document and produces
// transforms for it. It is not safe for concurrent use; the owning engine
// serializes access.
type Viewport struct {
	state    State
	page     geometry.Size
	measured bool
}

// New returns a viewport in the default state with no page measured yet.
func New() *Viewport {
	return &Viewport{state: DefaultState()}
}

// State returns a copy of the current display state.
func (v *Viewport) State() State { return v.state }

// Page returns the last measured page size and whether one was measured.
func (v *Viewport) Page() (geometry.Size, bool) { return v.page, v.measured }

// MeasurePage records the native page size. The first time a portrait page
// is measured while the rotation is still 0 the rotation snaps to 90. It
// reports whether the rotation changed.
func (v *Viewport) MeasurePage(width, height float64) (bool, error) {
	if width <= 0 || height <= 0 {
		return false, apperrors.Wrap(apperrors.CategoryGeometry, "MeasurePage",
			fmt.Errorf("%w: %vx%v", ErrInvalidPage, width, height))
	}
	first := !v.measured
	v.page = geometry.Size{Width: width, Height: height}
	v.measured = true

	if first && width < height && v.state.Rotation == 0 {
		v.state.Rotation = 90
		return true, nil
	}
	return false, nil
}

// SetScale sets the scale; non-positive values are rejected.
func (v *Viewport) SetScale(scale float64) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return apperrors.Wrap(apperrors.CategoryGeometry, "SetScale",
			fmt.Errorf("%w: %v", ErrInvalidScale, scale))
	}
	v.state.Scale = scale
	return nil
}

// ZoomIn multiplies the scale by ZoomStep, clamped to MaxScale.
func (v *Viewport) ZoomIn() {
	v.state.Scale = math.Min(MaxScale, v.state.Scale*ZoomStep)
}

// ZoomOut divides the scale by ZoomStep, clamped to MinScale.
func (v *Viewport) ZoomOut() {
	v.state.Scale = math.Max(MinScale, v.state.Scale/ZoomStep)
}

// FitTo scales the rotated page to fit inside a view area, leaving a margin.
func (v *Viewport) FitTo(viewWidth, viewHeight float64) error {
	if !v.measured {
		return apperrors.Wrap(apperrors.CategoryGeometry, "FitTo", ErrInvalidPage)
	}
	if viewWidth <= 0 || viewHeight <= 0 {
		return apperrors.Wrap(apperrors.CategoryGeometry, "FitTo",
			fmt.Errorf("%w: view %vx%v", ErrInvalidScale, viewWidth, viewHeight))
	}
	w, h := v.page.Width, v.page.Height
	if v.state.Rotation == 90 || v.state.Rotation == 270 {
		w, h = h, w
	}
	scale := math.Min(viewWidth/w, viewHeight/h) * fitMargin
	v.state.Scale = math.Max(MinScale, math.Min(MaxScale, scale))
	return nil
}

// SetRotation sets an explicit quarter-turn rotation.
func (v *Viewport) SetRotation(deg int) error {
	if !ValidRotation(deg) {
		return apperrors.Wrap(apperrors.CategoryGeometry, "SetRotation",
			fmt.Errorf("%w: %d", ErrInvalidRotation, deg))
	}
	v.state.Rotation = deg
	return nil
}

// RotateClockwise advances the rotation by 90 degrees.
func (v *Viewport) RotateClockwise() {
	v.state.Rotation = (v.state.Rotation + 90) % 360
}

// RotateCounterClockwise turns the rotation back by 90 degrees.
func (v *Viewport) RotateCounterClockwise() {
	v.state.Rotation = (v.state.Rotation + 270) % 360
}

// SetMode switches the interaction tool.
func (v *Viewport) SetMode(m Mode) error {
	if !m.Valid() {
		return apperrors.Newf(apperrors.CategoryValidation, "SetMode", "unknown mode %q", m)
	}
	v.state.Mode = m
	return nil
}

// Transform builds the transform for the measured page and current state.
func (v *Viewport) Transform() (*Transform, error) {
	if !v.measured {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "Transform", ErrInvalidPage)
	}
	return NewTransform(v.page, v.state.Scale, v.state.Rotation)
}
