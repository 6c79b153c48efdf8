package annotation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/pkg/colorutil"
	"plan-tagger/pkg/geometry"
)

func TestNewAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	a := New(Position{Width: 1, Height: 1})
	b := New(Position{Width: 1, Height: 1})
	assert.Equal(t, TypeBox, a.Type)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPositionValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Position{Left: -3, Top: 2, Width: 0, Height: 0}.Validate())
	assert.ErrorIs(t, Position{Width: -1}.Validate(), ErrInvalidPosition)
}

func TestPositionFromRectNormalizesAngle(t *testing.T) {
	t.Parallel()

	p := PositionFromRect(geometry.NewRect(1, 2, 3, 4), -90)
	assert.Equal(t, Position{Left: 1, Top: 2, Width: 3, Height: 4, Angle: 270}, p)
}

func TestCloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	a := New(Position{})
	a.TagPatternID = Ptr("p1")
	a.ExtractedText = Ptr("P100")
	a.Confidence = Ptr(67.0)

	c := a.Clone()
	*c.TagPatternID = "p2"
	*c.ExtractedText = "X"
	assert.Equal(t, "p1", a.PatternID())
	assert.Equal(t, "P100", *a.ExtractedText)
	assert.Equal(t, a.Confidence, c.Confidence)
}

func TestTagPatternValidate(t *testing.T) {
	t.Parallel()

	existing := []TagPattern{{ID: "a", Prefix: "P", ScheduleTable: "plumbing"}}

	tests := []struct {
		name    string
		pattern TagPattern
		wantErr string
	}{
		{"ok", TagPattern{ID: "b", Prefix: " dr- ", ScheduleTable: "doors"}, ""},
		{"empty prefix", TagPattern{ID: "b", Prefix: "  ", ScheduleTable: "doors"}, "prefix is required"},
		{"long prefix", TagPattern{ID: "b", Prefix: "ABCDEFGHIJK", ScheduleTable: "doors"}, "longer than 10"},
		{"no table", TagPattern{ID: "b", Prefix: "W"}, "schedule table"},
		{"long description", TagPattern{ID: "b", Prefix: "W", ScheduleTable: "w", Description: strings.Repeat("x", 201)}, "description"},
		{"duplicate prefix", TagPattern{ID: "b", Prefix: "p", ScheduleTable: "x"}, "already used"},
		{"same pattern keeps prefix", TagPattern{ID: "a", Prefix: "P", ScheduleTable: "plumbing2"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pattern.Normalize().Validate(existing)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidPattern)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestStyleForLinkStatus(t *testing.T) {
	t.Parallel()

	unlinked := Annotation{ID: "u"}
	linked := Annotation{ID: "l", TagPatternID: Ptr("p")}

	s := StyleFor(unlinked, Highlight{})
	assert.Equal(t, UnlinkedOpacity, s.Opacity)
	assert.Equal(t, NominalStrokeWidth, s.StrokeWidth)
	assert.Equal(t, colorutil.UnlinkedStroke, s.Stroke)

	s = StyleFor(linked, Highlight{})
	assert.Equal(t, LinkedOpacity, s.Opacity)
	assert.Equal(t, colorutil.LinkedStroke, s.Stroke)
}

func TestStyleForHoverPrecedence(t *testing.T) {
	t.Parallel()

	a := Annotation{ID: "a", TagPatternID: Ptr("p")}

	direct := StyleFor(a, Highlight{HoveredID: "a"})
	viaPattern := StyleFor(a, Highlight{HoveredPatternID: "p"})
	both := StyleFor(a, Highlight{HoveredID: "a", HoveredPatternID: "p"})

	assert.Equal(t, HeavyStrokeWidth, both.StrokeWidth)
	assert.Equal(t, LinkedOpacity, both.Opacity)
	assert.Equal(t, direct, both)
	assert.Equal(t, viaPattern, both)

	unlinkedHover := StyleFor(Annotation{ID: "u"}, Highlight{HoveredID: "u"})
	assert.Equal(t, LinkedOpacity, unlinkedHover.Opacity)
	assert.Equal(t, colorutil.UnlinkedStroke, unlinkedHover.Stroke, "hover keeps link color")

	other := StyleFor(Annotation{ID: "x"}, Highlight{HoveredPatternID: "p"})
	assert.Equal(t, NominalStrokeWidth, other.StrokeWidth)
}

func TestStyleForSelection(t *testing.T) {
	t.Parallel()

	s := StyleFor(Annotation{ID: "a"}, Highlight{SelectedID: "a"})
	assert.Equal(t, colorutil.SelectedStroke, s.Stroke)
	assert.Equal(t, UnlinkedOpacity, s.Opacity)
}

func TestRectangleEquivalent(t *testing.T) {
	t.Parallel()

	a := Rectangle{ID: "1", Rect: geometry.NewRect(0, 0, 1, 1)}
	b := Rectangle{ID: "1", Rect: geometry.NewRect(5, 5, 9, 9)}
	c := Rectangle{ID: "2", Rect: a.Rect}
	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))
}
