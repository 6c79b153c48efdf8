package viewport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/pkg/geometry"
)

func TestTransformRoundTrip(t *testing.T) {
	t.Parallel()

	page := geometry.NewSize(612, 792)
	scales := []float64{0.01, 0.1, 0.5, 1, 1.25, 2.7, 5}
	points := []geometry.Point2D{
		{X: 0, Y: 0},
		{X: 612, Y: 792},
		{X: 306, Y: 396},
		{X: 13.37, Y: 700.01},
		{X: 611.999, Y: 0.001},
	}

	for _, rot := range []int{0, 90, 180, 270} {
		for _, s := range scales {
			tr, err := NewTransform(page, s, rot)
			require.NoError(t, err)
			for _, p := range points {
				back := tr.ToDocumentSpace(tr.ToViewSpace(p))
				assert.InDelta(t, p.X, back.X, 1e-6, "rot=%d scale=%v p=%v", rot, s, p)
				assert.InDelta(t, p.Y, back.Y, 1e-6, "rot=%d scale=%v p=%v", rot, s, p)
			}
		}
	}
}

func TestTransformViewDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rot  int
		want geometry.Size
	}{
		{0, geometry.NewSize(200, 100)},
		{90, geometry.NewSize(100, 200)},
		{180, geometry.NewSize(200, 100)},
		{270, geometry.NewSize(100, 200)},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.rot), func(t *testing.T) {
			tr, err := NewTransform(geometry.NewSize(100, 50), 2, tc.rot)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tr.ViewDimensions())
		})
	}
}

func TestTransformCornersLandInsideView(t *testing.T) {
	t.Parallel()

	tr, err := NewTransform(geometry.NewSize(100, 50), 1, 90)
	require.NoError(t, err)

	// Clockwise quarter turn: the document's top-left lands at the view's top-right.
	p := tr.ToViewSpace(geometry.Point2D{X: 0, Y: 0})
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	p = tr.ToViewSpace(geometry.Point2D{X: 100, Y: 50})
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 100, p.Y, 1e-9)
}

func TestRectToViewUnrotatedIsScale(t *testing.T) {
	t.Parallel()

	tr, err := NewTransform(geometry.NewSize(1000, 800), 1.5, 0)
	require.NoError(t, err)

	got := tr.RectToView(geometry.NewRect(10, 20, 30, 40))
	assert.True(t, got.ApproxEqual(geometry.NewRect(15, 30, 45, 60)), "got %+v", got)

	back := tr.RectToDocument(got)
	assert.True(t, back.ApproxEqual(geometry.NewRect(10, 20, 30, 40)), "got %+v", back)
}

func TestRectRoundTripRotated(t *testing.T) {
	t.Parallel()

	r := geometry.NewRect(120, 40, 60, 25)
	for _, rot := range []int{90, 180, 270} {
		tr, err := NewTransform(geometry.NewSize(400, 300), 0.75, rot)
		require.NoError(t, err)
		back := tr.RectToDocument(tr.RectToView(r))
		assert.True(t, back.ApproxEqual(r), "rot=%d got %+v", rot, back)
	}
}

func TestNewTransformRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	page := geometry.NewSize(10, 10)

	_, err := NewTransform(page, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidScale)
	assert.Equal(t, apperrors.CategoryGeometry, apperrors.CategoryOf(err))

	_, err = NewTransform(page, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = NewTransform(page, 1, 45)
	assert.ErrorIs(t, err, ErrInvalidRotation)

	_, err = NewTransform(geometry.NewSize(0, 10), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestPortraitCorrectionFiresOnce(t *testing.T) {
	t.Parallel()

	v := New()
	changed, err := v.MeasurePage(612, 792)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 90, v.State().Rotation)

	changed, err = v.MeasurePage(612, 792)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 90, v.State().Rotation)
}

func TestPortraitCorrectionSkipsWhenUserRotated(t *testing.T) {
	t.Parallel()

	v := New()
	v.RotateCounterClockwise()
	changed, err := v.MeasurePage(100, 200)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 270, v.State().Rotation)
}

func TestLandscapeIsNotRotated(t *testing.T) {
	t.Parallel()

	v := New()
	changed, err := v.MeasurePage(792, 612)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, v.State().Rotation)
}

func TestRotationCycles(t *testing.T) {
	t.Parallel()

	v := New()
	seen := []int{}
	for range 4 {
		v.RotateClockwise()
		seen = append(seen, v.State().Rotation)
	}
	assert.Equal(t, []int{90, 180, 270, 0}, seen)

	v.RotateCounterClockwise()
	assert.Equal(t, 270, v.State().Rotation)

	assert.ErrorIs(t, v.SetRotation(30), ErrInvalidRotation)
	require.NoError(t, v.SetRotation(180))
	assert.Equal(t, 180, v.State().Rotation)
}

func TestZoomClamps(t *testing.T) {
	t.Parallel()

	v := New()
	for range 50 {
		v.ZoomIn()
	}
	assert.InDelta(t, MaxScale, v.State().Scale, 0)

	for range 100 {
		v.ZoomOut()
	}
	assert.InDelta(t, MinScale, v.State().Scale, 0)

	assert.ErrorIs(t, v.SetScale(0), ErrInvalidScale)
	require.NoError(t, v.SetScale(2))
	assert.InDelta(t, 2.0, v.State().Scale, 0)
}

func TestFitTo(t *testing.T) {
	t.Parallel()

	v := New()
	assert.Error(t, v.FitTo(100, 100), "no page measured yet")

	_, err := v.MeasurePage(200, 100)
	require.NoError(t, err)
	require.NoError(t, v.FitTo(400, 400))
	assert.InDelta(t, 2*0.95, v.State().Scale, 1e-9)

	v.RotateClockwise()
	require.NoError(t, v.FitTo(400, 400))
	assert.InDelta(t, 2*0.95, v.State().Scale, 1e-9)

	require.NoError(t, v.FitTo(50, 400))
	assert.InDelta(t, 0.5*0.95, v.State().Scale, 1e-9)
}

func TestSetMode(t *testing.T) {
	t.Parallel()

	v := New()
	assert.Equal(t, ModeSelect, v.State().Mode)
	require.NoError(t, v.SetMode(ModeDraw))
	assert.Equal(t, ModeDraw, v.State().Mode)

	err := v.SetMode("erase")
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.CategoryOf(err))
}

func TestViewportTransformRequiresPage(t *testing.T) {
	t.Parallel()

	v := New()
	_, err := v.Transform()
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = v.MeasurePage(300, 200)
	require.NoError(t, err)
	tr, err := v.Transform()
	require.NoError(t, err)
	assert.Equal(t, geometry.NewSize(300, 200), tr.ViewDimensions())
}
