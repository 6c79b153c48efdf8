// Package colorutil provides shared color utilities for the annotation surface.
package colorutil

import (
	"image/color"
	"math"
)

// Common overlay colors used throughout the application.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Orange  = color.RGBA{R: 255, G: 128, B: 0, A: 255}
)

// Stroke colors for annotation rectangles.
var (
	LinkedStroke   = color.RGBA{R: 0x2E, G: 0x7D, B: 0x32, A: 255} // dark green
	UnlinkedStroke = Orange
	SelectedStroke = Blue
	DrawingStroke  = Magenta
)

// WithOpacity scales the alpha channel of c by opacity in [0,1].
func WithOpacity(c color.RGBA, opacity float64) color.RGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(float64(c.A) * opacity))}
}

// Blend composites src over dst using src's alpha.
func Blend(dst, src color.RGBA) color.RGBA {
	a := float64(src.A) / 255
	inv := 1 - a
	return color.RGBA{
		R: uint8(float64(src.R)*a + float64(dst.R)*inv),
		G: uint8(float64(src.G)*a + float64(dst.G)*inv),
		B: uint8(float64(src.B)*a + float64(dst.B)*inv),
		A: 255,
	}
}
