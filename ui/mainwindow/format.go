package mainwindow

import (
	"fmt"
	"math"
	"strings"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/engine"
	"plan-tagger/internal/viewport"
)

// maxListed caps how many linked tags a preview names.
const maxListed = 5

func patternLabel(p annotation.TagPattern, linked int) string {
	label := fmt.Sprintf("%s  %s  [%d]", p.Prefix, p.ScheduleTable, linked)
	if p.Description != "" {
		label += "  " + p.Description
	}
	return label
}

func patternName(id string, patterns []annotation.TagPattern) string {
	for _, p := range patterns {
		if p.ID == id {
			return p.Prefix
		}
	}
	return ""
}

func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v)))
}

// annotationSummary describes the selected annotation for the details pane.
func annotationSummary(a annotation.Annotation, patterns []annotation.TagPattern) string {
	var b strings.Builder
	if a.ExtractedText != nil {
		fmt.Fprintf(&b, "Text: %s", *a.ExtractedText)
	} else {
		b.WriteString("Text: (not recognized)")
	}
	if a.Confidence != nil {
		fmt.Fprintf(&b, "\nConfidence: %s", percent(*a.Confidence))
	}
	if name := patternName(a.PatternID(), patterns); name != "" {
		fmt.Fprintf(&b, "\nLinked to: %s", name)
	} else {
		b.WriteString("\nNot linked")
	}
	p := a.Position
	fmt.Fprintf(&b, "\nAt %.0f, %.0f  size %.0f x %.0f", p.Left, p.Top, p.Width, p.Height)
	return b.String()
}

// linkedSummary names the tags linked to one pattern.
func linkedSummary(linked []annotation.Annotation) string {
	if len(linked) == 0 {
		return "No linked tags"
	}
	names := make([]string, 0, maxListed)
	for _, a := range linked {
		if len(names) == maxListed {
			break
		}
		if a.ExtractedText != nil {
			names = append(names, *a.ExtractedText)
		} else {
			names = append(names, "?")
		}
	}
	s := strings.Join(names, ", ")
	if len(linked) > maxListed {
		s += fmt.Sprintf(" and %d more", len(linked)-maxListed)
	}
	return fmt.Sprintf("%d linked: %s", len(linked), s)
}

func recognitionStatus(out engine.RecognitionOutcome) string {
	if out.Annotation.ExtractedText == nil || *out.Annotation.ExtractedText == "" {
		return "No text recognized"
	}
	s := fmt.Sprintf("Recognized %q", *out.Annotation.ExtractedText)
	if out.Match == nil {
		return s + ", no matching pattern"
	}
	s += fmt.Sprintf(", matches %s (%s)", out.Match.Pattern.Prefix, percent(out.Match.Confidence))
	if out.AutoLinked {
		s += ", linked"
	}
	return s
}

func viewportStatus(st viewport.State) string {
	return fmt.Sprintf("%s  %d°  %s", percent(st.Scale*100), st.Rotation, st.Mode)
}

func pageStatus(n, total int) string {
	return fmt.Sprintf("%d / %d", n, total)
}
