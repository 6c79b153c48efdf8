package mainwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/engine"
	"plan-tagger/internal/tagmatch"
	"plan-tagger/internal/viewport"
)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

var testPatterns = []annotation.TagPattern{
	{ID: "p1", Prefix: "P", Description: "Plumbing fixtures", ScheduleTable: "PLUMBING"},
	{ID: "p2", Prefix: "E", ScheduleTable: "ELECTRICAL"},
}

func TestPatternLabel(t *testing.T) {
	assert.Equal(t, "P  PLUMBING  [3]  Plumbing fixtures", patternLabel(testPatterns[0], 3))
	assert.Equal(t, "E  ELECTRICAL  [0]", patternLabel(testPatterns[1], 0))
}

func TestAnnotationSummary(t *testing.T) {
	a := annotation.Annotation{
		ID:       "a1",
		Position: annotation.Position{Left: 10.4, Top: 20, Width: 30, Height: 12.6},
	}
	assert.Equal(t, "Text: (not recognized)\nNot linked\nAt 10, 20  size 30 x 13",
		annotationSummary(a, testPatterns))

	a.ExtractedText = strPtr("P-12")
	a.Confidence = floatPtr(87.6)
	a.TagPatternID = strPtr("p1")
	assert.Equal(t, "Text: P-12\nConfidence: 88%\nLinked to: P\nAt 10, 20  size 30 x 13",
		annotationSummary(a, testPatterns))

	a.TagPatternID = strPtr("gone")
	assert.Contains(t, annotationSummary(a, testPatterns), "\nNot linked")
}

func TestLinkedSummary(t *testing.T) {
	assert.Equal(t, "No linked tags", linkedSummary(nil))

	two := []annotation.Annotation{{ExtractedText: strPtr("P-1")}, {}}
	assert.Equal(t, "2 linked: P-1, ?", linkedSummary(two))

	var many []annotation.Annotation
	for _, s := range []string{"P-1", "P-2", "P-3", "P-4", "P-5", "P-6", "P-7"} {
		many = append(many, annotation.Annotation{ExtractedText: strPtr(s)})
	}
	assert.Equal(t, "7 linked: P-1, P-2, P-3, P-4, P-5 and 2 more", linkedSummary(many))
}

func TestRecognitionStatus(t *testing.T) {
	var out engine.RecognitionOutcome
	assert.Equal(t, "No text recognized", recognitionStatus(out))

	out.Annotation.ExtractedText = strPtr("X-9")
	assert.Equal(t, `Recognized "X-9", no matching pattern`, recognitionStatus(out))

	out.Annotation.ExtractedText = strPtr("P-12")
	out.Match = &tagmatch.Result{Pattern: testPatterns[0], Confidence: 91.2, Text: "P-12"}
	assert.Equal(t, `Recognized "P-12", matches P (91%)`, recognitionStatus(out))

	out.AutoLinked = true
	assert.Equal(t, `Recognized "P-12", matches P (91%), linked`, recognitionStatus(out))
}

func TestViewportAndPageStatus(t *testing.T) {
	st := viewport.State{Scale: 1.5, Rotation: 90, Mode: viewport.ModeDraw}
	assert.Equal(t, "150%  90°  draw", viewportStatus(st))
	assert.Equal(t, "2 / 7", pageStatus(2, 7))
}
