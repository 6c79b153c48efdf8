// Package app manages the open document: loading its page, building its
// engine and disposing the engine when another document replaces it.
package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"plan-tagger/internal/engine"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/metrics"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/page"
	"plan-tagger/internal/project"
	"plan-tagger/internal/store"
	"plan-tagger/internal/surface"
)

// ErrNoDocument is returned by operations that need an open document.
var ErrNoDocument = apperrors.New("no document open")

// Surface is a drawable layer that survives across documents. Engine
// disposal closes it; Reopen readies it for the next engine.
type Surface interface {
	surface.Surface
	Reopen()
}

// Deps are the long-lived collaborators shared by every document.
type Deps struct {
	Store      store.Store
	Recognizer ocr.Recognizer // optional
	Raster     engine.RasterFunc
	Metrics    *metrics.EngineMetrics
	Logger     *slog.Logger
	Config     engine.Config
}

// Document describes the open page.
type Document struct {
	ID    string
	Path  string
	Page  page.Info
	Pages int
	Image image.Image // nil for PDF pages, which the host renders
}

// Session owns at most one engine at a time.
type Session struct {
	mu      sync.Mutex
	deps    Deps
	surface Surface
	logger  *slog.Logger

	doc    Document
	engine *engine.Engine
}

// NewSession binds the shared collaborators and the surface.
func NewSession(deps Deps, s Surface) *Session {
	return &Session{
		deps:    deps,
		surface: s,
		logger:  logging.OrModule(deps.Logger, "app"),
	}
}

// DocumentID derives a stable id for one page of a file, so its
// annotations are found again when the file is reopened.
func DocumentID(path string, pageNumber int) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	name := fmt.Sprintf("file://%s#page=%d", filepath.ToSlash(path), pageNumber)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Open loads page pageNumber (1-based) of an image or PDF and builds its
// engine. The previous document's engine is disposed first.
func (s *Session) Open(ctx context.Context, path string, pageNumber int) (*engine.Engine, Document, error) {
	const op = "app.Open"
	infos, err := page.Measure(path)
	if err != nil {
		return nil, Document{}, err
	}
	if pageNumber < 1 || pageNumber > len(infos) {
		return nil, Document{}, apperrors.Newf(apperrors.CategoryValidation, op,
			"page %d out of range 1-%d", pageNumber, len(infos))
	}
	doc := Document{
		ID:    DocumentID(path, pageNumber),
		Path:  path,
		Page:  infos[pageNumber-1],
		Pages: len(infos),
	}
	if page.IsImage(path) {
		if doc.Image, err = page.LoadImage(path); err != nil {
			return nil, Document{}, apperrors.Wrap(apperrors.CategoryValidation, op, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeLocked(); err != nil {
		s.logger.Warn("previous document did not close cleanly", "error", err)
	}
	s.surface.Reopen()

	eng, err := engine.New(ctx, engine.Options{
		DocumentID: doc.ID,
		Store:      s.deps.Store,
		Surface:    s.surface,
		Recognizer: s.deps.Recognizer,
		Raster:     s.deps.Raster,
		Metrics:    s.deps.Metrics,
		Logger:     s.deps.Logger,
		Config:     s.deps.Config,
	})
	if err != nil {
		return nil, Document{}, err
	}

	if doc.Image != nil {
		err = eng.SetPageImage(doc.Image)
	} else {
		err = eng.MeasurePage(doc.Page.Size.Width, doc.Page.Size.Height)
		if err == nil && doc.Page.Rotate != 0 {
			err = eng.SetRotation(doc.Page.Rotate)
		}
	}
	if err != nil {
		_ = eng.Dispose()
		return nil, Document{}, err
	}

	s.doc = doc
	s.engine = eng
	s.logger.Info("document opened", "path", path, "page", pageNumber, "id", doc.ID,
		"annotations", len(eng.Annotations()), "patterns", len(eng.Patterns()))
	return eng, doc, nil
}

// Engine returns the open document's engine, or nil.
func (s *Session) Engine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Document returns the open document.
func (s *Session) Document() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.engine != nil
}

// Close disposes the open document's engine, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.engine == nil {
		return nil
	}
	eng := s.engine
	s.engine = nil
	s.doc = Document{}
	eng.FlushEdits()
	return eng.Dispose()
}

// ExportTags writes the open document's patterns and annotations to a tag
// file at path.
func (s *Session) ExportTags(ctx context.Context, path string) (*project.File, error) {
	s.mu.Lock()
	eng, doc := s.engine, s.doc
	s.mu.Unlock()
	if eng == nil {
		return nil, apperrors.Wrap(apperrors.CategoryValidation, "app.ExportTags", ErrNoDocument)
	}
	eng.FlushEdits()

	f, err := project.Export(ctx, s.deps.Store, doc.ID)
	if err != nil {
		return nil, err
	}
	f.SetSource(path, doc.Path, doc.Page.Number)
	if err := f.Save(path); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, "app.ExportTags", err)
	}
	s.logger.Info("tags exported", "path", path, "document", doc.ID, "contents", f.String())
	return f, nil
}

// ImportTags adds a tag file's contents to the open document and reopens
// it so the engine sees them. It returns the reopened engine.
func (s *Session) ImportTags(ctx context.Context, path string) (*engine.Engine, Document, error) {
	doc, ok := s.Document()
	if !ok {
		return nil, Document{}, apperrors.Wrap(apperrors.CategoryValidation, "app.ImportTags", ErrNoDocument)
	}
	f, err := project.Load(path)
	if err != nil {
		return nil, Document{}, err
	}
	if eng := s.Engine(); eng != nil {
		eng.FlushEdits()
	}
	patterns, anns, err := project.Import(ctx, s.deps.Store, doc.ID, f)
	if err != nil {
		return nil, Document{}, err
	}
	s.logger.Info("tags imported", "path", path, "document", doc.ID, "patterns", patterns, "annotations", anns)
	return s.Open(ctx, doc.Path, doc.Page.Number)
}
