package app

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/engine"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/store"
	"plan-tagger/internal/surface"
	"plan-tagger/internal/viewport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// reopenableSurface swaps in a fresh in-memory surface on Reopen.
type reopenableSurface struct {
	*surface.MemorySurface
	reopened int
}

func (s *reopenableSurface) Reopen() {
	s.MemorySurface = surface.NewMemorySurface()
	s.reopened++
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "plan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newSession(t *testing.T) (*Session, *reopenableSurface) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:", logging.Discard())
	require.NoError(t, err)
	s := &reopenableSurface{MemorySurface: surface.NewMemorySurface()}
	sess := NewSession(Deps{
		Store:  st,
		Logger: logging.Discard(),
		Config: engine.Config{MinDrawSize: 5, DevicePixelRatio: 1},
	}, s)
	t.Cleanup(func() {
		assert.NoError(t, sess.Close())
		_ = st.Close()
	})
	return sess, s
}

func TestDocumentIDIsStablePerPage(t *testing.T) {
	t.Parallel()
	a := DocumentID("plans/level1.pdf", 1)
	assert.Equal(t, a, DocumentID("plans/level1.pdf", 1))
	assert.NotEqual(t, a, DocumentID("plans/level1.pdf", 2))
	assert.NotEqual(t, a, DocumentID("plans/level2.pdf", 1))
}

func TestOpenImage(t *testing.T) {
	sess, surf := newSession(t)
	path := writePNG(t, 200, 100)

	eng, doc, err := sess.Open(context.Background(), path, 1)
	require.NoError(t, err)

	assert.Equal(t, DocumentID(path, 1), doc.ID)
	assert.Equal(t, 1, doc.Pages)
	assert.NotNil(t, doc.Image)
	assert.Equal(t, 1, surf.reopened)

	tr, err := eng.Transform()
	require.NoError(t, err)
	assert.Equal(t, 200.0, tr.Page().Width)
	assert.Equal(t, 0, eng.Viewport().Rotation, "landscape pages are not turned")
	assert.Same(t, eng, sess.Engine())
}

func TestOpenPortraitImageIsTurned(t *testing.T) {
	sess, _ := newSession(t)

	eng, _, err := sess.Open(context.Background(), writePNG(t, 100, 200), 1)
	require.NoError(t, err)
	assert.Equal(t, 90, eng.Viewport().Rotation)
}

func TestReopenRestoresAnnotations(t *testing.T) {
	sess, _ := newSession(t)
	path := writePNG(t, 200, 100)
	ctx := context.Background()

	first, _, err := sess.Open(ctx, path, 1)
	require.NoError(t, err)
	_, err = first.CreateAnnotation(ctx, annotation.Position{Left: 10, Top: 10, Width: 20, Height: 10})
	require.NoError(t, err)

	second, _, err := sess.Open(ctx, path, 1)
	require.NoError(t, err)

	assert.True(t, first.Disposed(), "the previous engine is disposed")
	assert.Len(t, second.Annotations(), 1)
	assert.NoError(t, second.SetMode(viewport.ModeDraw))
}

func TestOpenRejectsBadInput(t *testing.T) {
	sess, _ := newSession(t)
	ctx := context.Background()
	path := writePNG(t, 20, 10)

	_, _, err := sess.Open(ctx, path, 2)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.CategoryOf(err))

	_, _, err = sess.Open(ctx, filepath.Join(t.TempDir(), "notes.txt"), 1)
	require.Error(t, err)

	assert.Nil(t, sess.Engine(), "a failed open leaves nothing open")
}

func TestCloseDisposesEngine(t *testing.T) {
	sess, _ := newSession(t)

	eng, _, err := sess.Open(context.Background(), writePNG(t, 20, 10), 1)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	assert.True(t, eng.Disposed())
	_, ok := sess.Document()
	assert.False(t, ok)
	assert.NoError(t, sess.Close(), "closing twice is harmless")
}

func TestExportImportTags(t *testing.T) {
	sess, _ := newSession(t)
	ctx := context.Background()

	_, err := sess.ExportTags(ctx, filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, ErrNoDocument)

	eng, _, err := sess.Open(ctx, writePNG(t, 200, 100), 1)
	require.NoError(t, err)
	_, err = eng.SavePattern(ctx, annotation.TagPattern{Prefix: "P", ScheduleTable: "PLUMBING"})
	require.NoError(t, err)
	_, err = eng.CreateAnnotation(ctx, annotation.Position{Left: 10, Top: 10, Width: 20, Height: 10})
	require.NoError(t, err)

	tags := filepath.Join(t.TempDir(), "level1.plantag.json")
	f, err := sess.ExportTags(ctx, tags)
	require.NoError(t, err)
	assert.Len(t, f.Annotations, 1)
	assert.Len(t, f.Patterns, 1)

	other, _, err := sess.Open(ctx, writePNG(t, 300, 100), 1)
	require.NoError(t, err)
	assert.Empty(t, other.Annotations())

	reopened, _, err := sess.ImportTags(ctx, tags)
	require.NoError(t, err)
	assert.True(t, other.Disposed())
	assert.Len(t, reopened.Annotations(), 1)
	assert.Len(t, reopened.Patterns(), 1)
}
