package canvas

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/colorutil"
	"plan-tagger/pkg/geometry"
)

// Background fills the area outside the page.
var Background = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 255}

// Frame is everything one render of the surface needs.
type Frame struct {
	Page       image.Image         // native page raster; nil draws only the objects
	Transform  *viewport.Transform // nil before the page is measured
	Objects    []annotation.Rectangle
	Active     *annotation.Rectangle // rectangle being drawn, view space
	Label      func(id string) string
	PixelRatio float64 // backing pixels per view unit
}

func (f Frame) ratio() float64 {
	if f.PixelRatio <= 0 {
		return 1
	}
	return f.PixelRatio
}

// pageToPixels maps page-image pixel coordinates to output pixels: image
// pixels to document units, the viewport transform, then the pixel ratio.
func pageToPixels(page image.Rectangle, tr *viewport.Transform, ratio float64) geometry.AffineTransform {
	size := tr.Page()
	kx := size.Width / float64(page.Dx())
	ky := size.Height / float64(page.Dy())
	return geometry.Scale(ratio, ratio).
		Compose(tr.Matrix()).
		Compose(geometry.Scale(kx, ky)).
		Compose(geometry.Translation(-float64(page.Min.X), -float64(page.Min.Y)))
}

func aff3(t geometry.AffineTransform) f64.Aff3 {
	return f64.Aff3{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// Render draws the page and its annotation rectangles into a w x h image.
// The second image is the same frame before any overlay was drawn; it is
// what text recognition reads from.
func Render(f Frame, w, h int) (out, page *image.RGBA) {
	out = image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(out, out.Bounds(), image.NewUniform(Background), image.Point{}, xdraw.Src)

	if f.Page != nil && f.Transform != nil && !f.Page.Bounds().Empty() {
		m := pageToPixels(f.Page.Bounds(), f.Transform, f.ratio())
		xdraw.ApproxBiLinear.Transform(out, aff3(m), f.Page, f.Page.Bounds(), xdraw.Over, nil)
	}

	page = image.NewRGBA(out.Bounds())
	copy(page.Pix, out.Pix)

	for _, r := range f.Objects {
		drawRectangle(out, r, f.ratio())
		if f.Label == nil {
			continue
		}
		if text := f.Label(r.ID); text != "" {
			drawRectangleLabel(out, r, text, f.ratio())
		}
	}
	if f.Active != nil {
		drawActive(out, *f.Active, f.ratio())
	}
	return out, page
}

// Corners returns the view-space corners of r, turned by its angle about
// the top-left corner.
func Corners(r annotation.Rectangle) [4]geometry.Point2D {
	corners := r.Rect.Corners()
	if r.Angle == 0 {
		return corners
	}
	origin := corners[0]
	rot := geometry.Translation(origin.X, origin.Y).
		Compose(geometry.RotationDegrees(r.Angle)).
		Compose(geometry.Translation(-origin.X, -origin.Y))
	for i, c := range corners {
		corners[i] = rot.Apply(c)
	}
	return corners
}

func toPixels(pts [4]geometry.Point2D, ratio float64) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point2D{X: p.X * ratio, Y: p.Y * ratio}
	}
	return out
}

func strokeWidth(s annotation.Style, ratio float64) int {
	w := int(math.Round(s.StrokeWidth * ratio))
	if w < 1 {
		w = 1
	}
	return w
}

func drawRectangle(out *image.RGBA, r annotation.Rectangle, ratio float64) {
	col := colorutil.WithOpacity(r.Style.Stroke, r.Style.Opacity)
	drawPolyline(out, toPixels(Corners(r), ratio), col, strokeWidth(r.Style, ratio))
}

func drawRectangleLabel(out *image.RGBA, r annotation.Rectangle, text string, ratio float64) {
	scale := int(math.Max(1, math.Round(2*ratio)))
	_, h := labelSize(text, scale)
	x := int(math.Round(r.Rect.X * ratio))
	y := int(math.Round(r.Rect.Y*ratio)) - h - 2*scale - strokeWidth(r.Style, ratio)
	if y < scale {
		y = int(math.Round((r.Rect.Y+r.Rect.Height)*ratio)) + 2*scale
	}
	fg := colorutil.WithOpacity(colorutil.White, r.Style.Opacity)
	bg := colorutil.WithOpacity(r.Style.Stroke, r.Style.Opacity)
	drawLabel(out, text, x, y, fg, bg, scale)
}

func drawActive(out *image.RGBA, r annotation.Rectangle, ratio float64) {
	if r.Angle != 0 {
		drawPolyline(out, toPixels(Corners(r), ratio), r.Style.Stroke, 1)
		return
	}
	px := image.Rect(
		int(math.Round(r.Rect.X*ratio)),
		int(math.Round(r.Rect.Y*ratio)),
		int(math.Round((r.Rect.X+r.Rect.Width)*ratio)),
		int(math.Round((r.Rect.Y+r.Rect.Height)*ratio)),
	)
	drawDashedRect(out, px, r.Style.Stroke)
}

// HitTest returns the top-most selectable rectangle containing the
// view-space point p.
func HitTest(objects []annotation.Rectangle, p geometry.Point2D) (annotation.Rectangle, bool) {
	for i := len(objects) - 1; i >= 0; i-- {
		r := objects[i]
		if !r.Selectable {
			continue
		}
		if corners := Corners(r); geometry.PointInConvex(p, corners[:]) {
			return r, true
		}
	}
	return annotation.Rectangle{}, false
}
