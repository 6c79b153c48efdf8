package project

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/annotation"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/store"
)

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, doc string) annotation.TagPattern {
	t.Helper()
	ctx := context.Background()
	p, err := st.CreatePattern(ctx, doc, annotation.TagPattern{ID: annotation.NewID(), Prefix: "P", ScheduleTable: "PLUMBING"})
	require.NoError(t, err)
	a := annotation.New(annotation.Position{Left: 10, Top: 20, Width: 30, Height: 12})
	a.TagPatternID = annotation.Ptr(p.ID)
	a.ExtractedText = annotation.Ptr("P-12")
	a.Confidence = annotation.Ptr(88.5)
	_, err = st.CreateAnnotation(ctx, doc, a)
	require.NoError(t, err)
	_, err = st.CreateAnnotation(ctx, doc, annotation.New(annotation.Position{Left: 50, Top: 50, Width: 5, Height: 5}))
	require.NoError(t, err)
	return p
}

func TestExportSaveLoad(t *testing.T) {
	st := openStore(t)
	seed(t, st, "doc-a")

	f, err := Export(context.Background(), st, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "1 patterns, 2 annotations", f.String())

	dir := t.TempDir()
	path := filepath.Join(dir, "tags"+Ext)
	f.SetSource(path, filepath.Join(dir, "plans", "level1.pdf"), 2)
	assert.Equal(t, filepath.Join("plans", "level1.pdf"), f.Source)
	require.NoError(t, f.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "doc-a", loaded.DocumentID)
	assert.Equal(t, 2, loaded.Page)
	assert.Equal(t, filepath.Join(dir, "plans", "level1.pdf"), loaded.SourcePath(path))
	assert.Equal(t, f.Patterns, loaded.Patterns)
	assert.Len(t, loaded.Annotations, 2)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{"), 0o644))
	_, err := Load(garbage)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.CategoryOf(err))

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99}`), 0o644))
	_, err = Load(future)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestImportRemapsIDsAndLinks(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	src := seed(t, st, "doc-a")

	f, err := Export(ctx, st, "doc-a")
	require.NoError(t, err)

	patterns, anns, err := Import(ctx, st, "doc-b", f)
	require.NoError(t, err)
	assert.Equal(t, 1, patterns)
	assert.Equal(t, 2, anns)

	gotPatterns, err := st.ListPatterns(ctx, "doc-b")
	require.NoError(t, err)
	require.Len(t, gotPatterns, 1)
	assert.NotEqual(t, src.ID, gotPatterns[0].ID)

	gotAnns, err := st.ListAnnotations(ctx, "doc-b")
	require.NoError(t, err)
	require.Len(t, gotAnns, 2)
	linked := 0
	for _, a := range gotAnns {
		if a.Linked() {
			linked++
			assert.Equal(t, gotPatterns[0].ID, a.PatternID())
			assert.Equal(t, "P-12", *a.ExtractedText)
		}
	}
	assert.Equal(t, 1, linked)

	// The source document is untouched.
	srcAnns, err := st.ListAnnotations(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, srcAnns, 2)
}

func TestImportMergesExistingPrefix(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	seed(t, st, "doc-a")
	existing := seed(t, st, "doc-b")

	f, err := Export(ctx, st, "doc-a")
	require.NoError(t, err)

	patterns, anns, err := Import(ctx, st, "doc-b", f)
	require.NoError(t, err)
	assert.Equal(t, 0, patterns, "the P prefix already exists")
	assert.Equal(t, 2, anns)

	counts := 0
	all, err := st.ListAnnotations(ctx, "doc-b")
	require.NoError(t, err)
	for _, a := range all {
		if a.PatternID() == existing.ID {
			counts++
		}
	}
	assert.Equal(t, 2, counts, "imported links follow the existing pattern")
}

func TestImportDropsDanglingLinks(t *testing.T) {
	st := openStore(t)
	f := &File{
		Version: Version,
		Annotations: []annotation.Annotation{{
			ID:           "x",
			Position:     annotation.Position{Width: 4, Height: 4},
			TagPatternID: annotation.Ptr("missing"),
		}},
	}

	_, anns, err := Import(context.Background(), st, "doc", f)
	require.NoError(t, err)
	assert.Equal(t, 1, anns)

	got, err := st.ListAnnotations(context.Background(), "doc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Linked())
	assert.Equal(t, annotation.TypeBox, got[0].Type)
}

func TestImportInvalidFileWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		file *File
	}{
		{
			name: "non-finite annotation after a valid one",
			file: &File{
				Version:  Version,
				Patterns: []annotation.TagPattern{{ID: "q", Prefix: "Q", ScheduleTable: "DOORS"}},
				Annotations: []annotation.Annotation{
					{ID: "a", Position: annotation.Position{Width: 4, Height: 4}, TagPatternID: annotation.Ptr("q")},
					{ID: "b", Position: annotation.Position{Width: math.NaN(), Height: 4}},
				},
			},
		},
		{
			name: "invalid pattern after a valid one",
			file: &File{
				Version: Version,
				Patterns: []annotation.TagPattern{
					{ID: "q", Prefix: "Q", ScheduleTable: "DOORS"},
					{ID: "r", Prefix: "R"},
				},
				Annotations: []annotation.Annotation{{ID: "a", Position: annotation.Position{Width: 4, Height: 4}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openStore(t)
			ctx := context.Background()

			patterns, anns, err := Import(ctx, st, "doc", tt.file)
			require.Error(t, err)
			assert.Equal(t, apperrors.CategoryValidation, apperrors.CategoryOf(err))
			assert.Zero(t, patterns)
			assert.Zero(t, anns)

			gotPatterns, err := st.ListPatterns(ctx, "doc")
			require.NoError(t, err)
			assert.Empty(t, gotPatterns)
			gotAnns, err := st.ListAnnotations(ctx, "doc")
			require.NoError(t, err)
			assert.Empty(t, gotAnns)
		})
	}
}

func TestImportMergesRepeatedPrefixInFile(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	f := &File{
		Version: Version,
		Patterns: []annotation.TagPattern{
			{ID: "p1", Prefix: "P", ScheduleTable: "PLUMBING"},
			{ID: "p2", Prefix: " p ", ScheduleTable: "PLUMBING"},
		},
		Annotations: []annotation.Annotation{
			{ID: "a", Position: annotation.Position{Width: 4, Height: 4}, TagPatternID: annotation.Ptr("p2")},
		},
	}

	patterns, anns, err := Import(ctx, st, "doc", f)
	require.NoError(t, err)
	assert.Equal(t, 1, patterns)
	assert.Equal(t, 1, anns)

	gotPatterns, err := st.ListPatterns(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, gotPatterns, 1)
	gotAnns, err := st.ListAnnotations(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, gotAnns, 1)
	assert.Equal(t, gotPatterns[0].ID, gotAnns[0].PatternID())
}
