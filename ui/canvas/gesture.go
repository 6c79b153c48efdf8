package canvas

import (
	"math"

	"plan-tagger/internal/annotation"
	"plan-tagger/pkg/geometry"
)

// HandleSize is the view-space reach of the resize handle at the
// bottom-right corner of a rectangle.
const HandleSize = 8.0

// Gesture is what a drag on the surface does.
type Gesture int

const (
	GestureNone Gesture = iota
	GestureDraw
	GestureMove
	GestureResize
)

func (g Gesture) String() string {
	switch g {
	case GestureDraw:
		return "draw"
	case GestureMove:
		return "move"
	case GestureResize:
		return "resize"
	default:
		return "none"
	}
}

// OnHandle reports whether p is within reach of r's resize handle.
func OnHandle(r annotation.Rectangle, p geometry.Point2D) bool {
	return Corners(r)[2].Distance(p) <= HandleSize
}

// Moved returns r translated by (dx, dy).
func Moved(r annotation.Rectangle, dx, dy float64) annotation.Rectangle {
	r.Rect.X += dx
	r.Rect.Y += dy
	return r
}

// Resized grows r by a view-space drag of (dx, dy) on its bottom-right
// corner. The drag is measured along the rectangle's own axes, and the
// result never shrinks below one unit.
func Resized(r annotation.Rectangle, dx, dy float64) annotation.Rectangle {
	local := geometry.RotationDegrees(-r.Angle).Apply(geometry.Point2D{X: dx, Y: dy})
	r.Rect.Width = math.Max(1, r.Rect.Width+local.X)
	r.Rect.Height = math.Max(1, r.Rect.Height+local.Y)
	return r
}

// PickGesture decides what a select-mode drag starting at p does: resize
// when it starts on a handle, move when it starts inside a rectangle. The
// top-most rectangle wins.
func PickGesture(objects []annotation.Rectangle, p geometry.Point2D) (annotation.Rectangle, Gesture) {
	for i := len(objects) - 1; i >= 0; i-- {
		r := objects[i]
		if !r.Selectable {
			continue
		}
		if OnHandle(r, p) {
			return r, GestureResize
		}
		if corners := Corners(r); geometry.PointInConvex(p, corners[:]) {
			return r, GestureMove
		}
	}
	return annotation.Rectangle{}, GestureNone
}
