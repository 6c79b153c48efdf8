package canvas

import (
	"image"
	"image/color"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/surface"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/colorutil"
	"plan-tagger/pkg/geometry"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// halves is red on the left half and blue on the right.
func halves(w, h int) *image.RGBA {
	img := solid(w, h, blue)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.SetRGBA(x, y, red)
		}
	}
	return img
}

func transform(t *testing.T, w, h, scale float64, rotation int) *viewport.Transform {
	t.Helper()
	tr, err := viewport.NewTransform(geometry.NewSize(w, h), scale, rotation)
	require.NoError(t, err)
	return tr
}

func rect(id string, x, y, w, h float64, stroke color.RGBA, opacity float64) annotation.Rectangle {
	return annotation.Rectangle{
		ID:         id,
		Rect:       geometry.NewRect(x, y, w, h),
		Selectable: true,
		Style:      annotation.Style{Stroke: stroke, StrokeWidth: 2, Opacity: opacity},
	}
}

func TestRenderScalesPage(t *testing.T) {
	t.Parallel()
	f := Frame{Page: halves(10, 5), Transform: transform(t, 10, 5, 2, 0)}

	out, _ := Render(f, 20, 10)

	assert.Equal(t, red, out.RGBAAt(4, 5), "left half of the page")
	assert.Equal(t, blue, out.RGBAAt(15, 5), "right half of the page")
}

func TestRenderRotatesPageClockwise(t *testing.T) {
	t.Parallel()
	f := Frame{Page: halves(10, 4), Transform: transform(t, 10, 4, 1, 90)}

	out, _ := Render(f, 4, 10)

	assert.Equal(t, red, out.RGBAAt(2, 2), "left edge turns to the top")
	assert.Equal(t, blue, out.RGBAAt(2, 7))
}

func TestRenderHonoursPixelRatio(t *testing.T) {
	t.Parallel()
	f := Frame{
		Page:       halves(10, 10),
		Transform:  transform(t, 10, 10, 1, 0),
		PixelRatio: 2,
	}

	out, _ := Render(f, 20, 20)

	assert.Equal(t, red, out.RGBAAt(8, 10))
	assert.Equal(t, blue, out.RGBAAt(12, 10))
}

func TestRenderStrokesObjects(t *testing.T) {
	t.Parallel()
	f := Frame{Objects: []annotation.Rectangle{
		rect("a", 2, 2, 10, 6, colorutil.LinkedStroke, 1),
		rect("b", 20, 2, 10, 6, colorutil.UnlinkedStroke, 0.5),
	}}

	out, page := Render(f, 40, 20)

	assert.Equal(t, colorutil.LinkedStroke, out.RGBAAt(5, 2), "top edge")
	assert.Equal(t, colorutil.LinkedStroke, out.RGBAAt(2, 5), "left edge")
	assert.Equal(t, Background, out.RGBAAt(6, 5), "interior is not filled")

	want := colorutil.Blend(Background, colorutil.WithOpacity(colorutil.UnlinkedStroke, 0.5))
	assert.Equal(t, want, out.RGBAAt(25, 2), "half opacity stroke is blended")

	assert.Equal(t, Background, page.RGBAAt(5, 2), "page copy has no overlays")
}

func TestRenderDashedActiveRectangle(t *testing.T) {
	t.Parallel()
	active := annotation.Rectangle{Rect: geometry.NewRect(0, 0, 10, 10), Style: annotation.DrawingStyle()}

	out, _ := Render(Frame{Active: &active}, 20, 20)

	assert.Equal(t, colorutil.DrawingStroke, out.RGBAAt(0, 0))
	assert.Equal(t, colorutil.DrawingStroke, out.RGBAAt(1, 0))
	assert.Equal(t, Background, out.RGBAAt(2, 0), "gap in the dash")
	assert.Equal(t, colorutil.DrawingStroke, out.RGBAAt(4, 0))
}

func TestRenderLabelsAboveRectangle(t *testing.T) {
	t.Parallel()
	r := rect("a", 2, 20, 10, 6, colorutil.LinkedStroke, 1)
	f := Frame{
		Objects: []annotation.Rectangle{r},
		Label: func(id string) string {
			if id == "a" {
				return "P-1"
			}
			return ""
		},
	}

	out, _ := Render(f, 40, 40)

	assert.Equal(t, colorutil.LinkedStroke, out.RGBAAt(1, 3), "label backing box")
	assert.Equal(t, colorutil.White, out.RGBAAt(2, 4), "top-left pixel of P")
}

func TestCornersTurnAboutTopLeft(t *testing.T) {
	t.Parallel()
	r := annotation.Rectangle{Rect: geometry.NewRect(10, 10, 4, 2), Angle: 90}

	got := Corners(r)

	want := [4]geometry.Point2D{{X: 10, Y: 10}, {X: 10, Y: 14}, {X: 8, Y: 14}, {X: 8, Y: 10}}
	for i := range want {
		assert.True(t, want[i].ApproxEqual(got[i]), "corner %d: want %v got %v", i, want[i], got[i])
	}
}

func TestHitTest(t *testing.T) {
	t.Parallel()
	bottom := rect("bottom", 0, 0, 20, 20, colorutil.LinkedStroke, 1)
	top := rect("top", 5, 5, 5, 5, colorutil.LinkedStroke, 1)
	locked := rect("locked", 30, 0, 5, 5, colorutil.LinkedStroke, 1)
	locked.Selectable = false
	objects := []annotation.Rectangle{bottom, top, locked}

	hit, ok := HitTest(objects, geometry.Point2D{X: 7, Y: 7})
	require.True(t, ok)
	assert.Equal(t, "top", hit.ID, "top-most wins")

	hit, ok = HitTest(objects, geometry.Point2D{X: 15, Y: 15})
	require.True(t, ok)
	assert.Equal(t, "bottom", hit.ID)

	_, ok = HitTest(objects, geometry.Point2D{X: 32, Y: 2})
	assert.False(t, ok, "objects that are not selectable are ignored")

	_, ok = HitTest(objects, geometry.Point2D{X: 50, Y: 50})
	assert.False(t, ok)
}

func TestPickGesture(t *testing.T) {
	t.Parallel()
	objects := []annotation.Rectangle{rect("a", 10, 10, 40, 20, colorutil.LinkedStroke, 1)}

	_, g := PickGesture(objects, geometry.Point2D{X: 52, Y: 32})
	assert.Equal(t, GestureResize, g, "just outside the bottom-right corner")

	r, g := PickGesture(objects, geometry.Point2D{X: 20, Y: 15})
	assert.Equal(t, GestureMove, g)
	assert.Equal(t, "a", r.ID)

	_, g = PickGesture(objects, geometry.Point2D{X: 100, Y: 100})
	assert.Equal(t, GestureNone, g)
	assert.Equal(t, "none", g.String())
}

func TestMovedAndResized(t *testing.T) {
	t.Parallel()
	r := rect("a", 10, 10, 40, 20, colorutil.LinkedStroke, 1)

	m := Moved(r, 5, -3)
	assert.Equal(t, geometry.NewRect(15, 7, 40, 20), m.Rect)

	s := Resized(r, 10, 5)
	assert.Equal(t, geometry.NewRect(10, 10, 50, 25), s.Rect)

	s = Resized(r, -100, -100)
	assert.Equal(t, 1.0, s.Rect.Width, "never shrinks below one unit")
	assert.Equal(t, 1.0, s.Rect.Height)

	r.Angle = 90
	s = Resized(r, 0, 5)
	assert.InDelta(t, 45.0, s.Rect.Width, 1e-9, "drag runs along the turned width")
	assert.InDelta(t, 20.0, s.Rect.Height, 1e-9)
}

func TestDrawLineThickness(t *testing.T) {
	t.Parallel()
	out := solid(10, 10, colorutil.Black)

	drawLine(out, 1, 5, 8, 5, colorutil.White, 3)

	for _, y := range []int{4, 5, 6} {
		assert.Equal(t, colorutil.White, out.RGBAAt(4, y), "row %d", y)
	}
	assert.Equal(t, colorutil.Black, out.RGBAAt(4, 3))
	assert.Equal(t, colorutil.Black, out.RGBAAt(4, 7))
}

func TestCharPattern(t *testing.T) {
	t.Parallel()
	assert.Equal(t, charPattern('P'), charPattern('p'))
	assert.Equal(t, digitPatterns[7], charPattern('7'))
	assert.Equal(t, [5]uint8{}, charPattern('#'))

	w, h := labelSize("P-1", 2)
	assert.Equal(t, 22, w)
	assert.Equal(t, 10, h)
}

func TestCanvasImplementsSurface(t *testing.T) {
	test.NewTempApp(t)
	ic := NewAnnotationCanvas(logging.Discard())

	img, ratio := ic.RenderedPage()
	assert.Nil(t, img, "nothing rendered yet")
	assert.Zero(t, ratio)

	rects := []annotation.Rectangle{rect("a", 0, 0, 5, 5, colorutil.LinkedStroke, 1)}
	require.NoError(t, ic.Replace(rects))
	rects[0].ID = "mutated"
	assert.Equal(t, "a", ic.Objects()[0].ID, "Replace copies its input")

	require.NoError(t, ic.Close())
	assert.Empty(t, ic.Objects())
	assert.ErrorIs(t, ic.Replace(rects), surface.ErrClosed)
	assert.ErrorIs(t, ic.Close(), surface.ErrClosed)

	ic.Reopen()
	assert.NoError(t, ic.Replace(rects))
}

func TestCanvasKeepsRenderedPage(t *testing.T) {
	test.NewTempApp(t)
	ic := NewAnnotationCanvas(logging.Discard())
	ic.SetPage(halves(20, 10))
	ic.SetTransform(transform(t, 20, 10, 1, 0))
	require.NoError(t, ic.Replace([]annotation.Rectangle{rect("a", 1, 1, 8, 8, colorutil.LinkedStroke, 1)}))

	out := ic.draw(20, 10)
	require.NotNil(t, out)

	img, ratio := ic.RenderedPage()
	require.NotNil(t, img)
	assert.Equal(t, 1.0, ratio)
	assert.Equal(t, color.RGBAModel.Convert(red), img.At(4, 1), "rendered page excludes the stroke")
}
