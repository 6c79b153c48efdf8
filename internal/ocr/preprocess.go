package ocr

import (
	"image"
	"image/color"
	"math"
)

// DefaultContrast is the contrast adjustment applied before binarization.
const DefaultContrast = 1.2

// Threshold splits binarized pixels; averages above it become white.
const Threshold = 128

// ContrastFactor returns 259(c+255) / (255(259-c)).
func ContrastFactor(contrast float64) float64 {
	return 259 * (contrast + 255) / (255 * (259 - contrast))
}

// average is the mean of the pixel's unpremultiplied R, G and B.
func average(c color.RGBA) float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return (float64(n.R) + float64(n.G) + float64(n.B)) / 3
}

// gray returns v at alpha a, premultiplied.
func gray(v, a uint8) color.RGBA {
	return color.RGBAModel.Convert(color.NRGBA{R: v, G: v, B: v, A: a}).(color.RGBA)
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// toRGBA returns img as an *image.RGBA anchored at (0,0), copying if needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// EnhanceContrast maps every channel to factor*(avg-128)+128, where avg is
// the pixel's unpremultiplied R/G/B mean. Alpha is kept. The input is not modified.
func EnhanceContrast(img image.Image, contrast float64) *image.RGBA {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	factor := ContrastFactor(contrast)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			v := clamp8(factor*(average(c)-128) + 128)
			out.SetRGBA(x, y, gray(v, c.A))
		}
	}
	return out
}

// Binarize turns every pixel pure black or white by its R/G/B mean. Alpha is kept.
func Binarize(img image.Image) *image.RGBA {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			var v uint8
			if average(c) > Threshold {
				v = 255
			}
			out.SetRGBA(x, y, gray(v, c.A))
		}
	}
	return out
}

// Preprocess runs contrast enhancement then binarization.
func Preprocess(img image.Image) *image.RGBA {
	return Binarize(EnhanceContrast(img, DefaultContrast))
}
