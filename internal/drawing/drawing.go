// Package drawing turns pointer gestures into committed or discarded rectangles.
package drawing

import (
	"context"
	"log/slog"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/geometry"
)

// DefaultMinSize is the strict lower bound on both sides of a committed
// rectangle, in view pixels.
const DefaultMinSize = 5.0

// State of the gesture.
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// Outcome is what ended a gesture.
type Outcome int

const (
	None Outcome = iota
	Committed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Session is the transient state of one pointer-down to pointer-up cycle.
type Session struct {
	IsDrawing  bool
	StartPoint *geometry.Point2D
	ActiveRect *annotation.Rectangle
}

// Result reports the end of a gesture. Rect is set only when committed and
// is in view space, with Selectable flipped on.
type Result struct {
	Outcome Outcome
	Rect    annotation.Rectangle
}

// Machine is the rectangle-drawing state machine for one surface. It is
// not safe for concurrent use.
type Machine struct {
	mode    viewport.Mode
	minSize float64
	session Session
	logger  *slog.Logger
}

// New returns an idle machine in select mode. A minSize of zero or less
// selects DefaultMinSize.
func New(minSize float64, logger *slog.Logger) *Machine {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Machine{
		mode:    viewport.ModeSelect,
		minSize: minSize,
		logger:  logging.OrModule(logger, "drawing"),
	}
}

// State returns Drawing while a gesture is in progress.
func (m *Machine) State() State {
	if m.session.IsDrawing {
		return Drawing
	}
	return Idle
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	s := m.session
	if s.StartPoint != nil {
		p := *s.StartPoint
		s.StartPoint = &p
	}
	if s.ActiveRect != nil {
		r := *s.ActiveRect
		s.ActiveRect = &r
	}
	return s
}

// Active returns the in-progress rectangle, if any.
func (m *Machine) Active() (annotation.Rectangle, bool) {
	if m.session.ActiveRect == nil {
		return annotation.Rectangle{}, false
	}
	return *m.session.ActiveRect, true
}

// Mode returns the current tool mode.
func (m *Machine) Mode() viewport.Mode { return m.mode }

// SetMode switches the tool. Leaving draw mode mid-gesture cancels it.
func (m *Machine) SetMode(mode viewport.Mode) Outcome {
	m.mode = mode
	if mode != viewport.ModeDraw && m.session.IsDrawing {
		m.logger.Debug("mode changed mid-draw, cancelling", "mode", mode)
		m.reset()
		return Cancelled
	}
	return None
}

// PointerDown starts a gesture in draw mode. Any stale session is dropped
// first, so a lost pointer-up is recovered by the next press. It reports
// whether a gesture started.
func (m *Machine) PointerDown(p geometry.Point2D) bool {
	m.reset()
	if m.mode != viewport.ModeDraw {
		return false
	}
	start := p
	m.session = Session{
		IsDrawing:  true,
		StartPoint: &start,
		ActiveRect: &annotation.Rectangle{
			ID:         annotation.NewID(),
			Rect:       geometry.NewRect(p.X, p.Y, 0, 0),
			Selectable: false,
			Style:      annotation.DrawingStyle(),
		},
	}
	m.logger.Log(context.Background(), logging.LevelTrace, "draw start", "x", p.X, "y", p.Y)
	return true
}

// PointerMove stretches the active rectangle to the bounding box of the
// start point and p.
func (m *Machine) PointerMove(p geometry.Point2D) {
	if !m.session.IsDrawing {
		return
	}
	m.session.ActiveRect.Rect = geometry.RectFromPoints(*m.session.StartPoint, p)
}

// PointerUp ends the gesture. The rectangle is committed only when both
// sides exceed the minimum size.
func (m *Machine) PointerUp(p geometry.Point2D) Result {
	if !m.session.IsDrawing {
		return Result{Outcome: None}
	}
	m.PointerMove(p)
	rect := *m.session.ActiveRect
	m.reset()

	if rect.Rect.Width <= m.minSize || rect.Rect.Height <= m.minSize {
		m.logger.Debug("draw cancelled below minimum size",
			"width", rect.Rect.Width, "height", rect.Rect.Height, "min", m.minSize)
		return Result{Outcome: Cancelled}
	}
	rect.Selectable = true
	m.logger.Debug("draw committed", "id", rect.ID, "rect", rect.Rect)
	return Result{Outcome: Committed, Rect: rect}
}

// Cancel drops any in-progress gesture.
func (m *Machine) Cancel() Outcome {
	if !m.session.IsDrawing {
		return None
	}
	m.reset()
	return Cancelled
}

func (m *Machine) reset() {
	m.session = Session{}
}
