// Package page loads page images and measures PDF pages.
//
// Rendering PDF pages to pixels is left to the host; this package only
// reports native page sizes and decodes already-rendered page images.
package page

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/tiff"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/pkg/geometry"
)

// Letter is the fallback page size for PDFs without a media box, in points.
var Letter = geometry.Size{Width: 612, Height: 792}

// Info describes one page in its native, unrotated coordinate system.
type Info struct {
	Number int           // 1-based
	Size   geometry.Size // document-space units (points for PDF, pixels for images)
	Rotate int           // display rotation requested by the file, 0/90/180/270
}

// Portrait reports whether the page is narrower than tall.
func (i Info) Portrait() bool {
	return i.Size.Width < i.Size.Height
}

// SupportedImageFormats lists the raster extensions LoadImage decodes.
func SupportedImageFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsImage reports whether path has a supported raster extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedImageFormats() {
		if ext == f {
			return true
		}
	}
	return false
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// LoadImage decodes a PNG, JPEG or TIFF page image.
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ImageInfo returns the single-page info of a raster image.
func ImageInfo(img image.Image) Info {
	b := img.Bounds()
	return Info{Number: 1, Size: geometry.NewSize(float64(b.Dx()), float64(b.Dy()))}
}

// PDFPages reads every page's media box and rotation.
func PDFPages(path string) ([]Info, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryValidation, "PDFPages",
			fmt.Errorf("failed to read PDF context: %w", err))
	}

	pages := make([]Info, 0, ctx.PageCount)
	for n := 1; n <= ctx.PageCount; n++ {
		_, _, attrs, err := ctx.PageDict(n, false)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryValidation, "PDFPages",
				fmt.Errorf("failed to get page dict %d: %w", n, err))
		}
		var (
			box    *types.Rectangle
			rotate int
		)
		if attrs != nil {
			box = attrs.MediaBox
			rotate = attrs.Rotate
		}
		pages = append(pages, infoFromBox(n, box, rotate))
	}
	return pages, nil
}

// Measure returns page info for a PDF or raster file.
func Measure(path string) ([]Info, error) {
	switch {
	case IsPDF(path):
		return PDFPages(path)
	case IsImage(path):
		img, err := LoadImage(path)
		if err != nil {
			return nil, err
		}
		return []Info{ImageInfo(img)}, nil
	default:
		return nil, apperrors.Newf(apperrors.CategoryValidation, "Measure",
			"unsupported file type %q", filepath.Ext(path))
	}
}

func infoFromBox(n int, box *types.Rectangle, rotate int) Info {
	size := Letter
	if box != nil && box.Width() > 0 && box.Height() > 0 {
		size = geometry.NewSize(box.Width(), box.Height())
	}
	return Info{Number: n, Size: size, Rotate: int(geometry.NormalizeDegrees(float64(rotate)))}
}
