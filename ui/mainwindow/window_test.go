package mainwindow

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/app"
	"plan-tagger/internal/engine"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/store"
	"plan-tagger/internal/viewport"
	"plan-tagger/ui/canvas"
)

func writePlan(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "level1.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newTestWindow(t *testing.T) *MainWindow {
	t.Helper()
	a := test.NewTempApp(t)

	st, err := store.OpenSQLite(":memory:", logging.Discard())
	require.NoError(t, err)

	ac := canvas.NewAnnotationCanvas(logging.Discard())
	session := app.NewSession(app.Deps{
		Store:  st,
		Raster: ac.RenderedPage,
		Logger: logging.Discard(),
		Config: engine.Config{MinDrawSize: 5, DevicePixelRatio: 1},
	}, ac)
	t.Cleanup(func() {
		assert.NoError(t, session.Close())
		_ = st.Close()
	})

	return New(a, session, ac, logging.Discard())
}

func TestWindowStartsEmpty(t *testing.T) {
	mw := newTestWindow(t)

	assert.Equal(t, "Plan Tagger", mw.Title())
	assert.Equal(t, "No tag selected", mw.details.Text)
	assert.True(t, mw.recognize.Disabled())
	assert.True(t, mw.prevPage.Disabled())
	assert.True(t, mw.nextPage.Disabled())

	// Actions without a document are ignored.
	mw.onZoomIn()
	mw.onRotateClockwise()
	mw.onModeChanged(modeDrawLabel)
}

func TestWindowOpensDocument(t *testing.T) {
	mw := newTestWindow(t)
	path := writePlan(t, 200, 100)

	require.NoError(t, mw.OpenDocument(path, 1))

	assert.Equal(t, "Plan Tagger - level1.png", mw.Title())
	assert.Equal(t, "0 tags, 0 patterns", mw.statusBar.Text)
	assert.Equal(t, "1 / 1", mw.pageLabel.Text)
	assert.Equal(t, "100%  0°  select", mw.viewLabel.Text)
	assert.Equal(t, path, mw.app.Preferences().String(prefKeyLastFile))

	require.Error(t, mw.OpenDocument(path, 3))
	assert.NotNil(t, mw.engine(), "a failed open keeps the current document")
}

func TestWindowFollowsEngineEvents(t *testing.T) {
	mw := newTestWindow(t)
	require.NoError(t, mw.OpenDocument(writePlan(t, 200, 100), 1))
	eng := mw.engine()
	ctx := context.Background()

	require.NoError(t, eng.SetMode(viewport.ModeDraw))
	assert.Equal(t, modeDrawLabel, mw.mode.Selected)

	mw.mode.SetSelected(modeSelectLabel)
	assert.Equal(t, viewport.ModeSelect, eng.Viewport().Mode)

	require.NoError(t, eng.ZoomIn())
	assert.Contains(t, mw.viewLabel.Text, "°  select")
	assert.NotEqual(t, "100%  0°  select", mw.viewLabel.Text)

	p, err := eng.SavePattern(ctx, annotation.TagPattern{Prefix: "P", ScheduleTable: "PLUMBING"})
	require.NoError(t, err)
	assert.Len(t, mw.patterns.patterns, 1)

	a, err := eng.CreateAnnotation(ctx, annotation.Position{Left: 10, Top: 10, Width: 30, Height: 12})
	require.NoError(t, err)
	require.NoError(t, eng.Select(a.ID))
	assert.Contains(t, mw.details.Text, "Not linked")
	assert.False(t, mw.remove.Disabled())

	mw.patterns.list.Select(0)
	assert.Equal(t, p.ID, mw.patterns.Selected())
	mw.onToggleLink()
	assert.Equal(t, "Tag linked to P", mw.statusBar.Text)
	assert.Equal(t, 1, mw.patterns.counts[p.ID])
	assert.Contains(t, mw.details.Text, "Linked to: P")

	mw.onDeleteSelected()
	assert.Empty(t, eng.Annotations())
	assert.Equal(t, "No tag selected", mw.details.Text)
	assert.Equal(t, 0, mw.patterns.counts[p.ID])
}
