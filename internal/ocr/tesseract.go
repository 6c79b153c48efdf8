package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/pkg/geometry"
)

// TagChars is the character set of tag codes: digits, upper-case letters, hyphen.
const TagChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-"

// Options configures the Tesseract engine.
type Options struct {
	Language         string
	Whitelist        string
	UpscaleMinHeight int
	MinConfidence    float64
}

// Engine recognizes single-line tag codes with Tesseract. One client is
// shared; calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
	logger *slog.Logger
}

// NewEngine creates a Tesseract client configured for short tag codes.
func NewEngine(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Whitelist == "" {
		opts.Whitelist = TagChars
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(opts.Language); err != nil {
		client.Close()
		return nil, apperrors.Wrap(apperrors.CategoryRecognition, "NewEngine",
			fmt.Errorf("failed to set OCR language: %w", err))
	}

	// Tag codes are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("language_model_penalty_non_dict_word", "0")

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, apperrors.Wrap(apperrors.CategoryRecognition, "NewEngine",
			fmt.Errorf("failed to set PSM: %w", err))
	}
	if err := client.SetWhitelist(opts.Whitelist); err != nil {
		client.Close()
		return nil, apperrors.Wrap(apperrors.CategoryRecognition, "NewEngine",
			fmt.Errorf("failed to set whitelist: %w", err))
	}

	return &Engine{client: client, opts: opts, logger: logging.OrModule(logger, "ocr")}, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Recognize implements Recognizer. The image should already be preprocessed.
// Tesseract itself cannot be interrupted; a cancelled ctx returns early and
// the running call finishes in the background.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	type result struct {
		rec Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := e.recognize(img)
		done <- result{rec, err}
	}()

	select {
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	case r := <-done:
		return r.rec, r.err
	}
}

func (e *Engine) recognize(img image.Image) (Recognition, error) {
	if img.Bounds().Empty() {
		return Recognition{}, apperrors.Wrap(apperrors.CategoryRecognition, "Recognize", ErrEmptyRegion)
	}
	png, factor, err := encodeForOCR(Pad(img, quietZone), e.opts.UpscaleMinHeight)
	if err != nil {
		return Recognition{}, apperrors.Wrap(apperrors.CategoryRecognition, "Recognize", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return Recognition{}, apperrors.Newf(apperrors.CategoryLifecycle, "Recognize", "engine closed")
	}

	if err := e.client.SetImageFromBytes(png); err != nil {
		return Recognition{}, apperrors.Wrap(apperrors.CategoryRecognition, "Recognize",
			fmt.Errorf("failed to set image: %w", err))
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Recognition{}, apperrors.Wrap(apperrors.CategoryRecognition, "Recognize",
			fmt.Errorf("OCR failed: %w", err))
	}

	rec := fromBoxes(boxes, factor)
	rec.BoundingBox = unpad(rec.BoundingBox, quietZone)
	if rec.Confidence < e.opts.MinConfidence {
		e.logger.Debug("recognition below confidence floor",
			"text", rec.Text, "confidence", rec.Confidence, "min", e.opts.MinConfidence)
		return Recognition{}, nil
	}
	e.logger.Debug("recognized", "text", rec.Text, "confidence", rec.Confidence)
	return rec, nil
}

// fromBoxes joins word boxes into one line. Confidence is the mean word
// confidence; the box is the union scaled back by factor.
func fromBoxes(boxes []gosseract.BoundingBox, factor float64) Recognition {
	var (
		words []string
		sum   float64
		union image.Rectangle
	)
	for _, box := range boxes {
		w := strings.ToUpper(strings.TrimSpace(box.Word))
		if w == "" {
			continue
		}
		words = append(words, w)
		sum += box.Confidence
		union = union.Union(box.Box)
	}
	if len(words) == 0 {
		return Recognition{}
	}
	if factor <= 0 {
		factor = 1
	}
	return Recognition{
		Text:       strings.Join(words, " "),
		Confidence: sum / float64(len(words)),
		BoundingBox: geometry.RectInt{
			X:      int(float64(union.Min.X) / factor),
			Y:      int(float64(union.Min.Y) / factor),
			Width:  int(float64(union.Dx()) / factor),
			Height: int(float64(union.Dy()) / factor),
		},
	}
}

// unpad moves a box found in a padded image back to the region's
// coordinates.
func unpad(box geometry.RectInt, margin int) geometry.RectInt {
	if box.Width == 0 && box.Height == 0 {
		return box
	}
	box.X = max(box.X-margin, 0)
	box.Y = max(box.Y-margin, 0)
	return box
}

// encodeForOCR upscales short regions and encodes them as PNG.
func encodeForOCR(img image.Image, minHeight int) ([]byte, float64, error) {
	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, 0, ErrEmptyRegion
	}

	factor := 1.0
	scaled := mat
	if h := mat.Rows(); minHeight > 0 && h < minHeight {
		factor = float64(minHeight) / float64(h)
		scaled = gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(mat, &scaled, image.Point{}, factor, factor, gocv.InterpolationCubic)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, scaled)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, factor, nil
}
