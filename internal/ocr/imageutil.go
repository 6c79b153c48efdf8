package ocr

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// quietZone is the margin, in source pixels, added around a region before
// recognition. Tesseract misses glyphs that touch the image edge.
const quietZone = 8

// BorderColor samples the border pixels of an image and returns their
// average color.
func BorderColor(img image.Image) color.RGBA {
	b := img.Bounds()
	var r, g, bl, count uint64
	add := func(x, y int) {
		c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
		r += uint64(c.R)
		g += uint64(c.G)
		bl += uint64(c.B)
		count++
	}

	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}

	if count == 0 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{
		R: uint8(r / count),
		G: uint8(g / count),
		B: uint8(bl / count),
		A: 255,
	}
}

// Pad returns a copy of img with margin pixels on every side filled with
// its border color. The copy's origin is (0,0).
func Pad(img image.Image, margin int) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()+2*margin, b.Dy()+2*margin))
	if b.Empty() {
		return out
	}
	draw.Draw(out, out.Bounds(), image.NewUniform(BorderColor(img)), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(margin, margin, margin+b.Dx(), margin+b.Dy()), img, b.Min, draw.Src)
	return out
}
