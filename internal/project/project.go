// Package project reads and writes tag files: a portable JSON copy of one
// document page's patterns and annotations.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/store"
)

// Version is the tag file format version written by Save.
const Version = 1

// Ext is the conventional tag file extension.
const Ext = ".plantag.json"

// File is the contents of a tag file.
type File struct {
	Version    int       `json:"version"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
	DocumentID string    `json:"document_id"`

	// Plan path, relative to the tag file when possible
	Source string `json:"source,omitempty"`
	Page   int    `json:"page,omitempty"`

	Patterns    []annotation.TagPattern `json:"patterns"`
	Annotations []annotation.Annotation `json:"annotations"`
}

// Export reads a document's patterns and annotations from st.
func Export(ctx context.Context, st store.Store, documentID string) (*File, error) {
	const op = "project.Export"
	patterns, err := st.ListPatterns(ctx, documentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}
	anns, err := st.ListAnnotations(ctx, documentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}
	now := time.Now()
	return &File{
		Version:     Version,
		Created:     now,
		Modified:    now,
		DocumentID:  documentID,
		Patterns:    patterns,
		Annotations: anns,
	}, nil
}

// Import adds the file's patterns and annotations to a document. Records
// get fresh ids and links follow the renamed patterns. Patterns whose
// prefix the document already uses are merged into the existing pattern.
// The whole file is validated before anything is written, so an invalid
// file leaves the document unchanged.
// It returns the number of patterns and annotations created.
func Import(ctx context.Context, st store.Store, documentID string, f *File) (int, int, error) {
	const op = "project.Import"
	existing, err := st.ListPatterns(ctx, documentID)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
	}
	byPrefix := make(map[string]string, len(existing))
	for _, p := range existing {
		byPrefix[annotation.NormalizePrefix(p.Prefix)] = p.ID
	}

	ids := make(map[string]string, len(f.Patterns))
	// file pattern id -> id of the earlier file pattern with the same prefix
	aliases := make(map[string]string)
	pending := make(map[string]string)
	var created []annotation.TagPattern
	for _, p := range f.Patterns {
		p = p.Normalize()
		if id, ok := byPrefix[p.Prefix]; ok {
			ids[p.ID] = id
			continue
		}
		if first, ok := pending[p.Prefix]; ok {
			aliases[p.ID] = first
			continue
		}
		if err := p.Validate(nil); err != nil {
			return 0, 0, apperrors.Wrap(apperrors.CategoryValidation, op, err)
		}
		pending[p.Prefix] = p.ID
		created = append(created, p)
	}
	for i, a := range f.Annotations {
		if err := a.Position.Validate(); err != nil {
			return 0, 0, apperrors.Wrap(apperrors.CategoryValidation, op,
				fmt.Errorf("annotation %d: %w", i, err))
		}
	}

	var patterns, anns int
	for _, p := range created {
		old := p.ID
		p.ID = annotation.NewID()
		saved, err := st.CreatePattern(ctx, documentID, p)
		if err != nil {
			return patterns, anns, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
		}
		ids[old] = saved.ID
		patterns++
	}
	for alias, first := range aliases {
		ids[alias] = ids[first]
	}

	for _, a := range f.Annotations {
		a = a.Clone()
		a.ID = annotation.NewID()
		if a.Type == "" {
			a.Type = annotation.TypeBox
		}
		if a.TagPatternID != nil {
			if id, ok := ids[*a.TagPatternID]; ok {
				a.TagPatternID = annotation.Ptr(id)
			} else {
				a.TagPatternID = nil
			}
		}
		if _, err := st.CreateAnnotation(ctx, documentID, a); err != nil {
			return patterns, anns, apperrors.Wrap(apperrors.CategoryPersistence, op, err)
		}
		anns++
	}
	return patterns, anns, nil
}

// Load reads a tag file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryValidation, "project.Load", err)
	}
	if f.Version > Version {
		return nil, apperrors.Newf(apperrors.CategoryValidation, "project.Load",
			"tag file version %d is newer than supported version %d", f.Version, Version)
	}
	return &f, nil
}

// Save writes the file to path.
func (f *File) Save(path string) error {
	f.Modified = time.Now()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetSource records the plan page the file was exported from, relative to
// the tag file at filePath when possible.
func (f *File) SetSource(filePath, planPath string, page int) {
	rel, err := filepath.Rel(filepath.Dir(filePath), planPath)
	if err != nil {
		f.Source = planPath
	} else {
		f.Source = rel
	}
	f.Page = page
}

// SourcePath returns the absolute plan path for a tag file at filePath.
func (f *File) SourcePath(filePath string) string {
	if f.Source == "" {
		return ""
	}
	if filepath.IsAbs(f.Source) {
		return f.Source
	}
	return filepath.Join(filepath.Dir(filePath), f.Source)
}

// String summarizes the file for logs and command output.
func (f *File) String() string {
	return fmt.Sprintf("%d patterns, %d annotations", len(f.Patterns), len(f.Annotations))
}
