package canvas

import (
	"image"
	"image/color"
	"math"

	"plan-tagger/pkg/colorutil"
	"plan-tagger/pkg/geometry"
)

// digitPatterns contains 3x5 pixel patterns for digits 0-9.
// Each digit is represented as 5 rows of 3 bits.
var digitPatterns = [10][5]uint8{
	{0b111, 0b101, 0b101, 0b101, 0b111}, // 0
	{0b010, 0b110, 0b010, 0b010, 0b111}, // 1
	{0b111, 0b001, 0b111, 0b100, 0b111}, // 2
	{0b111, 0b001, 0b111, 0b001, 0b111}, // 3
	{0b101, 0b101, 0b111, 0b001, 0b001}, // 4
	{0b111, 0b100, 0b111, 0b001, 0b111}, // 5
	{0b111, 0b100, 0b111, 0b101, 0b111}, // 6
	{0b111, 0b001, 0b001, 0b001, 0b001}, // 7
	{0b111, 0b101, 0b111, 0b101, 0b111}, // 8
	{0b111, 0b101, 0b111, 0b001, 0b111}, // 9
}

// letterPatterns covers the tag-code alphabet: A-Z and hyphen.
var letterPatterns = map[rune][5]uint8{
	'A': {0b010, 0b101, 0b111, 0b101, 0b101},
	'B': {0b110, 0b101, 0b110, 0b101, 0b110},
	'C': {0b011, 0b100, 0b100, 0b100, 0b011},
	'D': {0b110, 0b101, 0b101, 0b101, 0b110},
	'E': {0b111, 0b100, 0b110, 0b100, 0b111},
	'F': {0b111, 0b100, 0b110, 0b100, 0b100},
	'G': {0b011, 0b100, 0b101, 0b101, 0b011},
	'H': {0b101, 0b101, 0b111, 0b101, 0b101},
	'I': {0b111, 0b010, 0b010, 0b010, 0b111},
	'J': {0b001, 0b001, 0b001, 0b101, 0b010},
	'K': {0b101, 0b101, 0b110, 0b101, 0b101},
	'L': {0b100, 0b100, 0b100, 0b100, 0b111},
	'M': {0b101, 0b111, 0b101, 0b101, 0b101},
	'N': {0b101, 0b111, 0b111, 0b101, 0b101},
	'O': {0b010, 0b101, 0b101, 0b101, 0b010},
	'P': {0b110, 0b101, 0b110, 0b100, 0b100},
	'Q': {0b010, 0b101, 0b101, 0b111, 0b011},
	'R': {0b110, 0b101, 0b110, 0b101, 0b101},
	'S': {0b011, 0b100, 0b010, 0b001, 0b110},
	'T': {0b111, 0b010, 0b010, 0b010, 0b010},
	'U': {0b101, 0b101, 0b101, 0b101, 0b111},
	'V': {0b101, 0b101, 0b101, 0b101, 0b010},
	'W': {0b101, 0b101, 0b101, 0b111, 0b101},
	'X': {0b101, 0b101, 0b010, 0b101, 0b101},
	'Y': {0b101, 0b101, 0b010, 0b010, 0b010},
	'Z': {0b111, 0b001, 0b010, 0b100, 0b111},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	' ': {0b000, 0b000, 0b000, 0b000, 0b000},
}

// charPattern returns the 3x5 pixel pattern for a character, or an empty
// pattern for characters outside the tag alphabet.
func charPattern(ch rune) [5]uint8 {
	if ch >= '0' && ch <= '9' {
		return digitPatterns[ch-'0']
	}
	if ch >= 'a' && ch <= 'z' {
		ch = ch - 'a' + 'A'
	}
	if pattern, ok := letterPatterns[ch]; ok {
		return pattern
	}
	return [5]uint8{}
}

// blendPixel composites col over the pixel at (x, y), ignoring points
// outside the image.
func blendPixel(output *image.RGBA, x, y int, col color.RGBA) {
	if !(image.Point{X: x, Y: y}).In(output.Bounds()) {
		return
	}
	if col.A == 255 {
		output.SetRGBA(x, y, col)
		return
	}
	output.SetRGBA(x, y, colorutil.Blend(output.RGBAAt(x, y), col))
}

// stroke collects the pixels of one outline so overlapping segments are
// painted once.
type stroke map[image.Point]struct{}

// line adds a line between two points using Bresenham's algorithm.
func (s stroke) line(x1, y1, x2, y2, thickness int) {
	dx := x2 - x1
	dy := y2 - y1
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}

	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy
	lo := -(thickness - 1) / 2
	hi := thickness / 2
	for {
		for t := lo; t <= hi; t++ {
			for u := lo; u <= hi; u++ {
				s[image.Point{X: x1 + u, Y: y1 + t}] = struct{}{}
			}
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (s stroke) paint(output *image.RGBA, col color.RGBA) {
	for p := range s {
		blendPixel(output, p.X, p.Y, col)
	}
}

// drawLine draws a line between two points.
func drawLine(output *image.RGBA, x1, y1, x2, y2 int, col color.RGBA, thickness int) {
	s := stroke{}
	s.line(x1, y1, x2, y2, thickness)
	s.paint(output, col)
}

// drawPolyline strokes the closed outline through pts.
func drawPolyline(output *image.RGBA, pts []geometry.Point2D, col color.RGBA, thickness int) {
	s := stroke{}
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		s.line(
			int(math.Round(a.X)), int(math.Round(a.Y)),
			int(math.Round(b.X)), int(math.Round(b.Y)),
			thickness)
	}
	s.paint(output, col)
}

// drawDashedRect draws the outline of r with alternating two-pixel dashes.
func drawDashedRect(output *image.RGBA, r image.Rectangle, col color.RGBA) {
	x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y

	for x := x1; x <= x2; x++ {
		if (x+y1)%4 < 2 {
			blendPixel(output, x, y1, col)
		}
		if (x+y2)%4 < 2 {
			blendPixel(output, x, y2, col)
		}
	}
	for y := y1; y <= y2; y++ {
		if (x1+y)%4 < 2 {
			blendPixel(output, x1, y, col)
		}
		if (x2+y)%4 < 2 {
			blendPixel(output, x2, y, col)
		}
	}
}

// labelSize returns the pixel size of label drawn at the given block scale.
func labelSize(label string, scale int) (int, int) {
	n := len([]rune(label))
	if n == 0 {
		return 0, 0
	}
	return n*3*scale + (n-1)*scale, 5 * scale
}

// drawLabel draws label with its top-left corner at (x, y) over a filled
// backing box.
func drawLabel(output *image.RGBA, label string, x, y int, fg, bg color.RGBA, scale int) {
	if scale < 1 {
		scale = 1
	}
	w, h := labelSize(label, scale)
	if w == 0 {
		return
	}
	for py := y - scale; py < y+h+scale; py++ {
		for px := x - scale; px < x+w+scale; px++ {
			blendPixel(output, px, py, bg)
		}
	}

	for i, ch := range []rune(label) {
		pattern := charPattern(ch)
		charX := x + i*4*scale
		for row := 0; row < 5; row++ {
			for c := 0; c < 3; c++ {
				if pattern[row]&(1<<(2-c)) == 0 {
					continue
				}
				for dy := 0; dy < scale; dy++ {
					for dx := 0; dx < scale; dx++ {
						blendPixel(output, charX+c*scale+dx, y+row*scale+dy, fg)
					}
				}
			}
		}
	}
}
