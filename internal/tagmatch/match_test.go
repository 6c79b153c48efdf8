package tagmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/annotation"
)

func patterns(prefixes ...string) []annotation.TagPattern {
	out := make([]annotation.TagPattern, len(prefixes))
	for i, p := range prefixes {
		out[i] = annotation.TagPattern{ID: "id-" + p, Prefix: p, ScheduleTable: "t"}
	}
	return out
}

func TestScoreExamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text, prefix string
		want         float64
	}{
		{"P1", "P", 66},
		{"P100", "P", 67},
		{"P", "P", 73},
		{"DR-1001-AB", "DR", 50 + 30 + 4},
		{"W12345678901", "W", 50 + 30 + 20.0/12},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.InDelta(t, tc.want, Score(tc.text, tc.prefix), 1e-9)
		})
	}
}

func TestScoreBounded(t *testing.T) {
	t.Parallel()

	assert.LessOrEqual(t, Score("ABCDEFGHIJ", "ABCDEFGHIJ"), MaxScore)
	assert.InDelta(t, MaxScore, Score("ABCDEFGHIJ", "ABCDEFGHIJ"), 1e-9)
	assert.Zero(t, Score("", "P"))
}

func TestMatchNormalizesText(t *testing.T) {
	t.Parallel()

	res := Match("  p1 \n", patterns("p"))
	require.NotNil(t, res)
	assert.Equal(t, "P1", res.Text)
	assert.Equal(t, "id-p", res.Pattern.ID)
	assert.InDelta(t, 66, res.Confidence, 1e-9)
}

func TestMatchFirstWins(t *testing.T) {
	t.Parallel()

	res := Match("P100", patterns("P", "P1"))
	require.NotNil(t, res)
	assert.Equal(t, "P", res.Pattern.Prefix)
	assert.InDelta(t, 67, res.Confidence, 1e-9)

	res = Match("P100", patterns("P1", "P"))
	require.NotNil(t, res)
	assert.Equal(t, "P1", res.Pattern.Prefix)
}

func TestMatchNone(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Match("X100", patterns("P", "DR")))
	assert.Nil(t, Match("   ", patterns("P")))
	assert.Nil(t, Match("P1", nil))
	assert.Nil(t, Match("P1", patterns("")), "empty prefix never matches")
}

func TestMatchIsDeterministic(t *testing.T) {
	t.Parallel()

	ps := patterns("DR", "D", "W")
	first := Match("DR-12", ps)
	for range 10 {
		assert.Equal(t, first, Match("DR-12", ps))
	}
}
