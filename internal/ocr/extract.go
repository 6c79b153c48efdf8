package ocr

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/pkg/geometry"
)

// ErrEmptyRegion is returned when a region clips to zero pixels.
var ErrEmptyRegion = apperrors.New("empty region")

// PixelBounds converts a view-space rectangle to the backing-pixel rectangle
// covering it at the given device pixel ratio, clipped to bounds.
func PixelBounds(r geometry.Rect, dpr float64, bounds image.Rectangle) image.Rectangle {
	if dpr <= 0 {
		dpr = 1
	}
	px := image.Rect(
		int(math.Floor(r.X*dpr)),
		int(math.Floor(r.Y*dpr)),
		int(math.Ceil((r.X+r.Width)*dpr)),
		int(math.Ceil((r.Y+r.Height)*dpr)),
	)
	return px.Intersect(bounds)
}

// ExtractRegion copies the pixels under a view-space rectangle of a rendered
// surface into a new image with origin (0,0). The surface is rendered at
// rotation degrees; the copy is turned back so text reads upright.
func ExtractRegion(src image.Image, r geometry.Rect, dpr float64, rotation int) (*image.RGBA, error) {
	if src == nil {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "ExtractRegion", ErrEmptyRegion)
	}
	px := PixelBounds(r, dpr, src.Bounds())
	if px.Empty() {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "ExtractRegion",
			fmt.Errorf("%w: %+v at dpr %v", ErrEmptyRegion, r, dpr))
	}

	out := image.NewRGBA(image.Rect(0, 0, px.Dx(), px.Dy()))
	draw.Draw(out, out.Bounds(), src, px.Min, draw.Src)
	return RotateQuarter(out, -rotation), nil
}

// ExtractDocumentRegion crops a document-space rectangle from a page image
// whose pixel grid spans pageSize.
func ExtractDocumentRegion(page image.Image, pageSize geometry.Size, r geometry.Rect) (*image.RGBA, error) {
	if page == nil || pageSize.Width <= 0 || pageSize.Height <= 0 {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "ExtractDocumentRegion", ErrEmptyRegion)
	}
	b := page.Bounds()
	sx := float64(b.Dx()) / pageSize.Width
	sy := float64(b.Dy()) / pageSize.Height

	px := image.Rect(
		b.Min.X+int(math.Floor(r.X*sx)),
		b.Min.Y+int(math.Floor(r.Y*sy)),
		b.Min.X+int(math.Ceil((r.X+r.Width)*sx)),
		b.Min.Y+int(math.Ceil((r.Y+r.Height)*sy)),
	).Intersect(b)
	if px.Empty() {
		return nil, apperrors.Wrap(apperrors.CategoryGeometry, "ExtractDocumentRegion",
			fmt.Errorf("%w: %+v", ErrEmptyRegion, r))
	}

	out := image.NewRGBA(image.Rect(0, 0, px.Dx(), px.Dy()))
	draw.Draw(out, out.Bounds(), page, px.Min, draw.Src)
	return out, nil
}

// RotateQuarter returns img turned clockwise by deg, a multiple of 90.
// A zero turn returns img unchanged.
func RotateQuarter(img *image.RGBA, deg int) *image.RGBA {
	deg = ((deg % 360) + 360) % 360
	if deg == 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var out *image.RGBA
	if deg == 180 {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := range h {
		for x := range w {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			switch deg {
			case 90:
				out.SetRGBA(h-1-y, x, c)
			case 180:
				out.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				out.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return out
}
