package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
)

const slowQueryThreshold = 200 * time.Millisecond

// annotationColumns are the mutable columns written by UpdateAnnotation.
var annotationColumns = []string{
	"type", "pos_left", "pos_top", "pos_width", "pos_height", "pos_angle",
	"tag_pattern_id", "extracted_text", "confidence",
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	DB     *gorm.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	logger = logging.OrModule(logger, "store")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger(logger)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, "OpenSQLite",
			fmt.Errorf("failed to open SQLite database: %w", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, "OpenSQLite", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&AnnotationRecord{}, &TagPatternRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, "OpenSQLite",
			fmt.Errorf("failed to migrate schema: %w", err))
	}
	logger.Debug("database opened", "path", path)
	return &SQLiteStore{DB: db, logger: logger}, nil
}

func createGormLogger(l *slog.Logger) gormlogger.Interface {
	return gormlogger.New(
		slog.NewLogLogger(l.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return apperrors.Wrap(apperrors.CategoryNotFound, op, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.CategoryNotFound, op, fmt.Errorf("%w: %w", ErrNotFound, err))
	}
	return apperrors.Wrap(apperrors.CategoryPersistence, op, err)
}

// ListAnnotations returns a document's annotations in creation order.
func (s *SQLiteStore) ListAnnotations(ctx context.Context, documentID string) ([]annotation.Annotation, error) {
	var recs []AnnotationRecord
	err := s.DB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("rowid ASC").
		Find(&recs).Error
	if err != nil {
		return nil, wrap("ListAnnotations", err)
	}
	out := make([]annotation.Annotation, len(recs))
	for i, r := range recs {
		out[i] = r.toAnnotation()
	}
	return out, nil
}

func (s *SQLiteStore) getAnnotation(tx *gorm.DB, documentID, id string) (annotation.Annotation, error) {
	var rec AnnotationRecord
	if err := tx.Where("document_id = ? AND id = ?", documentID, id).First(&rec).Error; err != nil {
		return annotation.Annotation{}, err
	}
	return rec.toAnnotation(), nil
}

// CreateAnnotation inserts a and returns the stored record.
func (s *SQLiteStore) CreateAnnotation(ctx context.Context, documentID string, a annotation.Annotation) (annotation.Annotation, error) {
	if a.ID == "" {
		a.ID = annotation.NewID()
	}
	rec := annotationToRecord(documentID, a)
	var out annotation.Annotation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		var err error
		out, err = s.getAnnotation(tx, documentID, rec.ID)
		return err
	})
	return out, wrap("CreateAnnotation", err)
}

// UpdateAnnotation overwrites the mutable fields of an existing annotation.
func (s *SQLiteStore) UpdateAnnotation(ctx context.Context, documentID string, a annotation.Annotation) (annotation.Annotation, error) {
	rec := annotationToRecord(documentID, a)
	var out annotation.Annotation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AnnotationRecord{}).
			Where("document_id = ? AND id = ?", documentID, a.ID).
			Select(annotationColumns).
			Updates(&rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var err error
		out, err = s.getAnnotation(tx, documentID, a.ID)
		return err
	})
	return out, wrap("UpdateAnnotation", err)
}

// DeleteAnnotation removes one annotation.
func (s *SQLiteStore) DeleteAnnotation(ctx context.Context, documentID, id string) error {
	res := s.DB.WithContext(ctx).
		Where("document_id = ? AND id = ?", documentID, id).
		Delete(&AnnotationRecord{})
	if res.Error != nil {
		return wrap("DeleteAnnotation", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("DeleteAnnotation", ErrNotFound)
	}
	return nil
}

// DeleteAnnotations removes every annotation of a document.
func (s *SQLiteStore) DeleteAnnotations(ctx context.Context, documentID string) error {
	err := s.DB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&AnnotationRecord{}).Error
	return wrap("DeleteAnnotations", err)
}

// ListPatterns returns a document's patterns in creation order. The order
// is significant: the matcher takes the first pattern that matches.
func (s *SQLiteStore) ListPatterns(ctx context.Context, documentID string) ([]annotation.TagPattern, error) {
	var recs []TagPatternRecord
	err := s.DB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("rowid ASC").
		Find(&recs).Error
	if err != nil {
		return nil, wrap("ListPatterns", err)
	}
	out := make([]annotation.TagPattern, len(recs))
	for i, r := range recs {
		out[i] = r.toPattern()
	}
	return out, nil
}

func (s *SQLiteStore) getPattern(tx *gorm.DB, documentID, id string) (annotation.TagPattern, error) {
	var rec TagPatternRecord
	if err := tx.Where("document_id = ? AND id = ?", documentID, id).First(&rec).Error; err != nil {
		return annotation.TagPattern{}, err
	}
	return rec.toPattern(), nil
}

// CreatePattern inserts p and returns the stored record.
func (s *SQLiteStore) CreatePattern(ctx context.Context, documentID string, p annotation.TagPattern) (annotation.TagPattern, error) {
	if p.ID == "" {
		p.ID = annotation.NewID()
	}
	rec := patternToRecord(documentID, p)
	var out annotation.TagPattern
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		var err error
		out, err = s.getPattern(tx, documentID, rec.ID)
		return err
	})
	return out, wrap("CreatePattern", err)
}

// UpdatePattern overwrites prefix, description and schedule table.
func (s *SQLiteStore) UpdatePattern(ctx context.Context, documentID string, p annotation.TagPattern) (annotation.TagPattern, error) {
	rec := patternToRecord(documentID, p)
	var out annotation.TagPattern
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&TagPatternRecord{}).
			Where("document_id = ? AND id = ?", documentID, p.ID).
			Select("prefix", "description", "schedule_table").
			Updates(&rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var err error
		out, err = s.getPattern(tx, documentID, p.ID)
		return err
	})
	return out, wrap("UpdatePattern", err)
}

// DeletePattern implements Store.
func (s *SQLiteStore) DeletePattern(ctx context.Context, documentID, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&AnnotationRecord{}).
			Where("document_id = ? AND tag_pattern_id = ?", documentID, id).
			Update("tag_pattern_id", nil).Error; err != nil {
			return fmt.Errorf("unlinking annotations from pattern %s: %w", id, err)
		}
		res := tx.Where("document_id = ? AND id = ?", documentID, id).Delete(&TagPatternRecord{})
		if res.Error != nil {
			return fmt.Errorf("deleting pattern %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return wrap("DeletePattern", err)
}

// DeleteDocument implements Store.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&AnnotationRecord{}).Error; err != nil {
			return fmt.Errorf("deleting annotations for document %s: %w", documentID, err)
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&TagPatternRecord{}).Error; err != nil {
			return fmt.Errorf("deleting patterns for document %s: %w", documentID, err)
		}
		return nil
	})
	if err == nil {
		s.logger.Info("document deleted", "document", documentID)
	}
	return wrap("DeleteDocument", err)
}

var _ Store = (*SQLiteStore)(nil)
