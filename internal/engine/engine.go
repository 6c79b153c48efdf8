// Package engine owns one open document: its viewport, drawing tool,
// surface synchronizer, link registry and recognition pipeline.
//
// An Engine is built with its collaborators injected and must be disposed
// before the next document's engine takes over the surface.
package engine

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/conf"
	"plan-tagger/internal/drawing"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/links"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/metrics"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/store"
	"plan-tagger/internal/surface"
	"plan-tagger/internal/viewport"
)

var (
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = apperrors.New("engine disposed")
	// ErrNotFound is returned for unknown annotation or pattern ids.
	ErrNotFound = apperrors.New("not found")
	// ErrNoRecognizer is returned by Recognize when no recognizer is configured.
	ErrNoRecognizer = apperrors.New("no recognizer configured")
	// ErrNoRaster is returned by Recognize when neither a rendered surface
	// nor a page image is available.
	ErrNoRaster = apperrors.New("no page raster available")
)

// RasterFunc returns the rendered surface pixels and their device pixel
// ratio. A nil image means nothing has been rendered yet.
type RasterFunc func() (img image.Image, dpr float64)

// Config holds the per-engine settings.
type Config struct {
	AutoLink           bool
	RecognizeOnCreate  bool
	MinDrawSize        float64
	EditDebounce       time.Duration
	DevicePixelRatio   float64
	MatchMinConfidence float64
}

// ConfigFromSettings maps application settings to an engine Config.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		AutoLink:           s.Engine.AutoLink,
		RecognizeOnCreate:  s.Engine.AutoLink,
		MinDrawSize:        s.Engine.MinDrawSize,
		EditDebounce:       s.Engine.EditDebounce,
		DevicePixelRatio:   s.Engine.DevicePixelRatio,
		MatchMinConfidence: s.Match.MinConfidence,
	}
}

// Options are the collaborators of an engine. Store and Surface are
// required; Recognizer, Raster, Metrics and Logger are optional.
type Options struct {
	DocumentID string
	Store      store.Store
	Surface    surface.Surface
	Recognizer ocr.Recognizer
	Raster     RasterFunc
	Metrics    *metrics.EngineMetrics
	Logger     *slog.Logger
	Config     Config
}

// Engine is the per-document annotation engine. It is safe for concurrent
// use; listeners are always invoked without the engine lock held.
type Engine struct {
	docID      string
	store      store.Store
	recognizer ocr.Recognizer
	raster     RasterFunc
	metrics    *metrics.EngineMetrics
	logger     *slog.Logger
	cfg        Config

	mu          sync.Mutex
	vp          *viewport.Viewport
	drawer      *drawing.Machine
	sync        *surface.Synchronizer
	registry    *links.Registry
	annotations []annotation.Annotation
	patterns    []annotation.TagPattern
	highlight   annotation.Highlight
	pageImage   image.Image
	generation  uint64
	disposed    bool

	listenersMu sync.RWMutex
	listeners   map[EventType][]Listener

	ctx    context.Context
	cancel context.CancelFunc
	flight singleflight.Group
	wg     sync.WaitGroup

	runsMu sync.Mutex
	runs   map[string]*sharedRun
}

// New loads the document's annotations and patterns and binds the surface.
func New(ctx context.Context, opts Options) (*Engine, error) {
	const op = "engine.New"
	if opts.Store == nil {
		return nil, apperrors.Newf(apperrors.CategoryConfiguration, op, "store is required")
	}
	if opts.Surface == nil {
		return nil, apperrors.Newf(apperrors.CategoryConfiguration, op, "surface is required")
	}
	if opts.Config.DevicePixelRatio <= 0 {
		opts.Config.DevicePixelRatio = 1
	}

	anns, err := opts.Store.ListAnnotations(ctx, opts.DocumentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}
	pats, err := opts.Store.ListPatterns(ctx, opts.DocumentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}

	logger := logging.OrModule(opts.Logger, "engine").With("document", opts.DocumentID)
	rootCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		docID:       opts.DocumentID,
		store:       opts.Store,
		recognizer:  opts.Recognizer,
		raster:      opts.Raster,
		metrics:     opts.Metrics,
		logger:      logger,
		cfg:         opts.Config,
		vp:          viewport.New(),
		drawer:      drawing.New(opts.Config.MinDrawSize, logger),
		registry:    links.NewRegistry(),
		annotations: anns,
		patterns:    pats,
		listeners:   make(map[EventType][]Listener),
		ctx:         rootCtx,
		cancel:      cancel,
	}
	e.sync = surface.NewSynchronizer(opts.Surface, opts.Config.EditDebounce, e.onSurfaceEdit, logger)
	e.registry.Rebuild(anns)
	e.metrics.EngineOpened()

	logger.Info("engine opened", "annotations", len(anns), "patterns", len(pats))
	return e, nil
}

// DocumentID returns the id of the open document.
func (e *Engine) DocumentID() string { return e.docID }

// Dispose cancels in-flight recognitions, drops pending edits and releases
// the surface. It waits for background work to finish and is idempotent.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	e.generation++
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	err := e.sync.Close()
	e.metrics.EngineClosed()
	e.logger.Info("engine disposed")
	if err != nil && !apperrors.Is(err, surface.ErrClosed) {
		return apperrors.Wrap(apperrors.CategoryLifecycle, "engine.Dispose", err)
	}
	return nil
}

// Disposed reports whether Dispose has been called.
func (e *Engine) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

func (e *Engine) checkLive(op string) error {
	if e.disposed {
		return apperrors.Wrap(apperrors.CategoryLifecycle, op, ErrDisposed)
	}
	return nil
}

func notFound(op, kind, id string) error {
	return apperrors.Newf(apperrors.CategoryNotFound, op, "%s %q: %w", kind, id, ErrNotFound)
}

// Annotations returns a copy of the annotation list in creation order.
func (e *Engine) Annotations() []annotation.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]annotation.Annotation, len(e.annotations))
	for i, a := range e.annotations {
		out[i] = a.Clone()
	}
	return out
}

// Annotation returns one annotation by id.
func (e *Engine) Annotation(id string) (annotation.Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(id)
	if i < 0 {
		return annotation.Annotation{}, false
	}
	return e.annotations[i].Clone(), true
}

// Patterns returns a copy of the pattern list in creation order.
func (e *Engine) Patterns() []annotation.TagPattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.patterns)
}

// Highlight returns the current selection and hover state.
func (e *Engine) Highlight() annotation.Highlight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highlight
}

func (e *Engine) indexOf(id string) int {
	return slices.IndexFunc(e.annotations, func(a annotation.Annotation) bool { return a.ID == id })
}

func (e *Engine) patternIndex(id string) int {
	return slices.IndexFunc(e.patterns, func(p annotation.TagPattern) bool { return p.ID == id })
}

// resync rebuilds the surface from the annotation list. Nothing is drawn
// until the page has been measured. Must be called with e.mu held.
func (e *Engine) resync() []event {
	if e.disposed {
		return nil
	}
	tr, err := e.vp.Transform()
	if err != nil {
		return nil
	}
	rects, err := e.sync.Sync(surface.State{
		Annotations: e.annotations,
		Transform:   tr,
		Mode:        e.vp.State().Mode,
		Highlight:   e.highlight,
	})
	if err != nil {
		e.logger.Error("surface sync failed", "error", err)
		return nil
	}
	e.metrics.RecordSync(len(rects))
	e.logger.Debug("surface synced", "objects", len(rects))
	return []event{{typ: EventSynced, data: rects}}
}

// Resync forces a surface rebuild.
func (e *Engine) Resync() error {
	e.mu.Lock()
	if err := e.checkLive("engine.Resync"); err != nil {
		e.mu.Unlock()
		return err
	}
	events := e.resync()
	e.mu.Unlock()
	e.emit(events...)
	return nil
}

// SetPageImage sets the native page raster used for document-space
// extraction when no rendered surface is available, and measures the page
// from its bounds.
func (e *Engine) SetPageImage(img image.Image) error {
	b := img.Bounds()
	e.mu.Lock()
	e.pageImage = img
	e.mu.Unlock()
	return e.MeasurePage(float64(b.Dx()), float64(b.Dy()))
}

// persistFailed records a store failure and returns it wrapped. Must be
// called with e.mu held; the returned event is emitted by the caller.
func (e *Engine) persistFailed(op string, err error) (event, error) {
	e.metrics.RecordStoreError(op)
	e.logger.Error("persistence failed", "operation", op, "error", err)
	if apperrors.Is(err, store.ErrNotFound) {
		err = apperrors.Wrap(apperrors.CategoryNotFound, op, err)
	} else {
		err = apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}
	return event{typ: EventPersistenceFailed, data: err}, err
}

// replaceAnnotation swaps the local copy for the canonical stored record.
// Must be called with e.mu held.
func (e *Engine) replaceAnnotation(a annotation.Annotation) {
	if i := e.indexOf(a.ID); i >= 0 {
		e.annotations[i] = a
	}
}

// saveAnnotation persists a locally modified annotation. Local state is
// kept when the store fails. Must be called with e.mu held.
func (e *Engine) saveAnnotation(ctx context.Context, op string, a annotation.Annotation) (annotation.Annotation, []event, error) {
	saved, err := e.store.UpdateAnnotation(ctx, e.docID, a)
	if err != nil {
		ev, err := e.persistFailed(op, err)
		return a, []event{ev}, err
	}
	e.replaceAnnotation(saved)
	return saved, nil, nil
}
