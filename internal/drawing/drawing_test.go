package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/logging"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/geometry"
)

func newDrawMachine(t *testing.T) *Machine {
	t.Helper()
	m := New(0, logging.Discard())
	m.SetMode(viewport.ModeDraw)
	return m
}

func drag(m *Machine, x0, y0, x1, y1 float64) Result {
	m.PointerDown(geometry.Point2D{X: x0, Y: y0})
	m.PointerMove(geometry.Point2D{X: (x0 + x1) / 2, Y: (y0 + y1) / 2})
	return m.PointerUp(geometry.Point2D{X: x1, Y: y1})
}

func TestMinimumSizeThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dx, dy float64
		want   Outcome
	}{
		{"both five", 5, 5, Cancelled},
		{"width five", 5, 40, Cancelled},
		{"height five", 40, 5, Cancelled},
		{"zero", 0, 0, Cancelled},
		{"six by six", 6, 6, Committed},
		{"negative drag", -6, -6, Committed},
		{"just over", 5.01, 5.01, Committed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newDrawMachine(t)
			res := drag(m, 100, 100, 100+tc.dx, 100+tc.dy)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, Idle, m.State())
		})
	}
}

func TestCommittedRectIsNormalized(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	res := drag(m, 50, 80, 20, 30)
	require.Equal(t, Committed, res.Outcome)
	assert.Equal(t, geometry.NewRect(20, 30, 30, 50), res.Rect.Rect)
	assert.True(t, res.Rect.Selectable)
	assert.NotEmpty(t, res.Rect.ID)
}

func TestActiveRectDuringDrag(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	require.True(t, m.PointerDown(geometry.Point2D{X: 10, Y: 10}))

	r, ok := m.Active()
	require.True(t, ok)
	assert.False(t, r.Selectable)
	assert.Equal(t, geometry.NewRect(10, 10, 0, 0), r.Rect)

	m.PointerMove(geometry.Point2D{X: 4, Y: 30})
	r, _ = m.Active()
	assert.Equal(t, geometry.NewRect(4, 10, 6, 20), r.Rect)

	s := m.Session()
	assert.True(t, s.IsDrawing)
	require.NotNil(t, s.StartPoint)
	assert.Equal(t, geometry.Point2D{X: 10, Y: 10}, *s.StartPoint)
}

func TestSessionResetAfterGesture(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	drag(m, 0, 0, 50, 50)
	assert.Equal(t, Session{}, m.Session())

	drag(m, 0, 0, 1, 1)
	assert.Equal(t, Session{}, m.Session())
	_, ok := m.Active()
	assert.False(t, ok)
}

func TestSelectModeDoesNotDraw(t *testing.T) {
	t.Parallel()

	m := New(0, logging.Discard())
	assert.False(t, m.PointerDown(geometry.Point2D{X: 0, Y: 0}))
	res := m.PointerUp(geometry.Point2D{X: 100, Y: 100})
	assert.Equal(t, None, res.Outcome)
}

func TestModeChangeMidDrawCancels(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	m.PointerDown(geometry.Point2D{X: 0, Y: 0})
	m.PointerMove(geometry.Point2D{X: 100, Y: 100})

	assert.Equal(t, Cancelled, m.SetMode(viewport.ModeSelect))
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, None, m.PointerUp(geometry.Point2D{X: 100, Y: 100}).Outcome)
}

func TestPointerDownRecoversStaleSession(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	m.PointerDown(geometry.Point2D{X: 0, Y: 0})
	first, _ := m.Active()

	// Pointer-up was lost; the next press starts fresh.
	m.PointerDown(geometry.Point2D{X: 200, Y: 200})
	second, _ := m.Active()
	assert.NotEqual(t, first.ID, second.ID)

	res := m.PointerUp(geometry.Point2D{X: 220, Y: 230})
	require.Equal(t, Committed, res.Outcome)
	assert.Equal(t, geometry.NewRect(200, 200, 20, 30), res.Rect.Rect)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	m := newDrawMachine(t)
	assert.Equal(t, None, m.Cancel())
	m.PointerDown(geometry.Point2D{X: 1, Y: 1})
	assert.Equal(t, Cancelled, m.Cancel())
	assert.Equal(t, Idle, m.State())
}

func TestCustomMinSize(t *testing.T) {
	t.Parallel()

	m := New(20, logging.Discard())
	m.SetMode(viewport.ModeDraw)
	assert.Equal(t, Cancelled, drag(m, 0, 0, 20, 50).Outcome)
	assert.Equal(t, Committed, drag(m, 0, 0, 21, 50).Outcome)
}
