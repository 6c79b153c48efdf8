package engine

import (
	"context"
	"image"
	"time"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/metrics"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/tagmatch"
	"plan-tagger/internal/viewport"
)

// ErrStale is returned when a recognition finished after its annotation was
// deleted, the annotations were cleared or the engine was disposed. The
// result is discarded.
var ErrStale = apperrors.New("recognition result discarded")

// RecognitionOutcome is the applied result of recognizing one annotation.
type RecognitionOutcome struct {
	Annotation  annotation.Annotation
	Recognition ocr.Recognition
	Match       *tagmatch.Result // nil when no pattern matched
	AutoLinked  bool
}

// recognitionInput is what the pipeline needs, captured under the lock so
// extraction and recognition run without it.
type recognitionInput struct {
	id         string
	position   annotation.Position
	transform  *viewport.Transform
	page       image.Image
	generation uint64
}

// Recognize extracts the annotation's region, recognizes its text and
// matches it against the document's patterns. The text and confidence are
// stored on the annotation; when auto-link is enabled and the match meets
// the minimum confidence the annotation is linked to the matched pattern.
//
// Concurrent calls for the same annotation share one recognition. Each
// caller stops waiting when its own ctx is done; the shared recognition is
// cancelled once every caller has stopped waiting, or by Dispose. A failure
// leaves the annotation as it was.
func (e *Engine) Recognize(ctx context.Context, id string) (RecognitionOutcome, error) {
	const op = "engine.Recognize"
	in, err := e.recognitionInput(op, id)
	if err != nil {
		return RecognitionOutcome{}, err
	}

	run := e.joinRun(id)
	defer e.leaveRun(id, run)

	ch := e.flight.DoChan(id, func() (any, error) {
		return e.runRecognition(run.ctx, op, in)
	})
	select {
	case <-ctx.Done():
		return RecognitionOutcome{}, apperrors.Wrap(apperrors.CategoryRecognition, op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return RecognitionOutcome{}, res.Err
		}
		return res.Val.(RecognitionOutcome), nil
	}
}

// sharedRun is the context of one annotation's in-flight recognition and
// the number of callers waiting on it.
type sharedRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (e *Engine) joinRun(id string) *sharedRun {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	if e.runs == nil {
		e.runs = make(map[string]*sharedRun)
	}
	run, ok := e.runs[id]
	if !ok {
		ctx, cancel := context.WithCancel(e.ctx)
		run = &sharedRun{ctx: ctx, cancel: cancel}
		e.runs[id] = run
	}
	run.waiters++
	return run
}

func (e *Engine) leaveRun(id string, run *sharedRun) {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	run.waiters--
	if run.waiters > 0 {
		return
	}
	run.cancel()
	delete(e.runs, id)
	// A later call must not join a recognition that is being cancelled.
	e.flight.Forget(id)
}

func (e *Engine) recognitionInput(op, id string) (recognitionInput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLive(op); err != nil {
		return recognitionInput{}, err
	}
	if e.recognizer == nil {
		return recognitionInput{}, apperrors.Wrap(apperrors.CategoryRecognition, op, ErrNoRecognizer)
	}
	i := e.indexOf(id)
	if i < 0 {
		return recognitionInput{}, notFound(op, "annotation", id)
	}
	tr, err := e.vp.Transform()
	if err != nil {
		return recognitionInput{}, err
	}
	return recognitionInput{
		id:         id,
		position:   e.annotations[i].Position,
		transform:  tr,
		page:       e.pageImage,
		generation: e.generation,
	}, nil
}

// runRecognition does the work of Recognize. ctx is derived from the
// engine's context, so Dispose cancels it.
func (e *Engine) runRecognition(ctx context.Context, op string, in recognitionInput) (RecognitionOutcome, error) {
	start := time.Now()
	fail := func(result string, err error) (RecognitionOutcome, error) {
		e.metrics.RecordRecognition(result, time.Since(start).Seconds())
		e.emit(event{typ: EventRecognitionFailed, data: RecognitionFailure{AnnotationID: in.id, Err: err}})
		return RecognitionOutcome{}, err
	}

	region, err := e.extract(in)
	if err != nil {
		return fail(metrics.ResultError, apperrors.Wrap(apperrors.CategoryGeometry, op, err))
	}

	rec, err := e.recognizer.Recognize(ctx, ocr.Preprocess(region))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if ctx.Err() != nil {
			return fail(metrics.ResultCancelled, apperrors.Wrap(apperrors.CategoryRecognition, op, ctx.Err()))
		}
		e.logger.Warn("recognition failed", "id", in.id, "error", err)
		return fail(metrics.ResultError, apperrors.Wrap(apperrors.CategoryRecognition, op, err))
	}

	out, events, err := e.applyRecognition(ctx, op, in, rec)
	if err != nil && apperrors.Is(err, ErrStale) {
		e.metrics.RecordRecognition(metrics.ResultStale, elapsed)
	} else {
		e.metrics.RecordRecognition(metrics.ResultOK, elapsed)
	}
	e.emit(events...)
	return out, err
}

// extract crops the annotation's region from the rendered surface when the
// host provides one, or from the native page image otherwise.
func (e *Engine) extract(in recognitionInput) (*image.RGBA, error) {
	if e.raster != nil {
		if img, dpr := e.raster(); img != nil {
			if dpr <= 0 {
				dpr = e.cfg.DevicePixelRatio
			}
			view := in.transform.RectToView(in.position.Rect())
			return ocr.ExtractRegion(img, view, dpr, in.transform.Rotation())
		}
	}
	if in.page != nil {
		return ocr.ExtractDocumentRegion(in.page, in.transform.Page(), in.position.Rect())
	}
	return nil, ErrNoRaster
}

// applyRecognition stores the recognized text on the annotation and links
// it when auto-link applies. Results for an annotation that no longer
// exists, or from an earlier generation, are dropped.
func (e *Engine) applyRecognition(ctx context.Context, op string, in recognitionInput, rec ocr.Recognition) (RecognitionOutcome, []event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(in.id)
	if e.disposed || e.generation != in.generation || i < 0 {
		e.logger.Debug("discarding stale recognition", "id", in.id)
		return RecognitionOutcome{}, nil, apperrors.Wrap(apperrors.CategoryLifecycle, op, ErrStale)
	}

	out := RecognitionOutcome{Recognition: rec}
	a := e.annotations[i].Clone()
	text := tagmatch.Normalize(rec.Text)
	if text == "" {
		e.logger.Debug("no text recognized", "id", in.id, "confidence", rec.Confidence)
		out.Annotation = a
		e.metrics.RecordMatch(false)
		return out, []event{{typ: EventRecognitionComplete, data: out}}, nil
	}

	out.Match = tagmatch.Match(text, e.patterns)
	e.metrics.RecordMatch(out.Match != nil)

	a.ExtractedText = annotation.Ptr(text)
	a.Confidence = annotation.Ptr(rec.Confidence)
	if out.Match != nil {
		a.Confidence = annotation.Ptr(out.Match.Confidence)
		if e.cfg.AutoLink && out.Match.Confidence >= e.cfg.MatchMinConfidence && a.PatternID() != out.Match.Pattern.ID {
			a.TagPatternID = annotation.Ptr(out.Match.Pattern.ID)
			e.registry.Link(a.ID, out.Match.Pattern.ID)
			out.AutoLinked = true
			e.metrics.IncrementAutoLinks()
		}
	}
	e.annotations[i] = a

	saved, events, err := e.saveAnnotation(ctx, op, a)
	out.Annotation = saved.Clone()
	e.logger.Info("recognition applied", "id", in.id, "text", text,
		"matched", out.Match != nil, "auto_linked", out.AutoLinked)

	events = append(events, annotationEvent(EventAnnotationUpdated, saved))
	if out.AutoLinked {
		events = append(events, event{typ: EventLinkChanged, data: LinkChange{AnnotationID: a.ID, PatternID: clonePtr(a.TagPatternID)}})
	}
	events = append(events, event{typ: EventRecognitionComplete, data: out})
	events = append(events, e.resync()...)
	return out, events, err
}

// recognizeInBackground runs Recognize on its own goroutine. Dispose waits
// for it.
func (e *Engine) recognizeInBackground(id string) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if _, err := e.Recognize(e.ctx, id); err != nil && e.ctx.Err() == nil && !apperrors.Is(err, ErrStale) {
			e.logger.Warn("background recognition failed", "id", id, "error", err)
		}
	}()
}
