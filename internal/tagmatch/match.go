// Package tagmatch matches recognized text against tag-pattern prefixes.
package tagmatch

import (
	"math"
	"strings"
	"unicode/utf8"

	"plan-tagger/internal/annotation"
)

// Score weights. The three caps sum to 100.
const (
	PrefixWeight   = 50.0
	QualityCap     = 30.0
	QualityPerChar = 3.0
	LengthRatioCap = 20.0
	MaxScore       = PrefixWeight + QualityCap + LengthRatioCap
)

// Result is the pattern a text matched and how confidently.
type Result struct {
	Pattern    annotation.TagPattern
	Confidence float64
	Text       string // normalized
}

// Normalize trims and upper-cases recognized text.
func Normalize(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// Score returns the weighted confidence for normalized text matched by a
// normalized prefix. It does not check that the prefix matches.
func Score(text, prefix string) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	p := utf8.RuneCountInString(prefix)
	quality := math.Min(QualityCap, float64(n)*QualityPerChar)
	ratio := math.Min(LengthRatioCap, LengthRatioCap*float64(p)/float64(n))
	return PrefixWeight + quality + ratio
}

// Match returns the first pattern, in the given order, whose prefix starts
// the normalized text. A later, longer prefix never overrides an earlier one.
// It returns nil when nothing matches.
func Match(text string, patterns []annotation.TagPattern) *Result {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	for _, p := range patterns {
		prefix := annotation.NormalizePrefix(p.Prefix)
		if prefix == "" || !strings.HasPrefix(norm, prefix) {
			continue
		}
		return &Result{Pattern: p, Confidence: Score(norm, prefix), Text: norm}
	}
	return nil
}
