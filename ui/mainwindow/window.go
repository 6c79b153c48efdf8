// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/app"
	"plan-tagger/internal/engine"
	apperrors "plan-tagger/internal/errors"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/page"
	"plan-tagger/internal/project"
	"plan-tagger/internal/viewport"
	"plan-tagger/internal/version"
	"plan-tagger/ui/canvas"
)

const (
	prefKeyLastDir  = "lastDirectory"
	prefKeyLastFile = "lastFile"
	prefKeyLastPage = "lastPage"
)

const (
	modeSelectLabel = "Select"
	modeDrawLabel   = "Draw"
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app     fyne.App
	session *app.Session
	canvas  *canvas.AnnotationCanvas
	logger  *slog.Logger

	patterns  *patternsPanel
	details   *widget.Label
	recognize *widget.Button
	link      *widget.Button
	remove    *widget.Button
	mode      *widget.RadioGroup
	statusBar *widget.Label
	viewLabel *widget.Label
	pageLabel *widget.Label
	prevPage  *widget.Button
	nextPage  *widget.Button

	fitToWindowItem *fyne.MenuItem
}

// New creates the main window around a session whose surface is ac.
func New(fyneApp fyne.App, session *app.Session, ac *canvas.AnnotationCanvas, logger *slog.Logger) *MainWindow {
	win := fyneApp.NewWindow("Plan Tagger")

	mw := &MainWindow{
		Window:  win,
		app:     fyneApp,
		session: session,
		canvas:  ac,
		logger:  logging.OrModule(logger, "mainwindow"),
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupKeys()
	mw.updateControls()

	return mw
}

func (mw *MainWindow) engine() *engine.Engine {
	return mw.session.Engine()
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.statusBar = widget.NewLabel("Open a plan image or PDF to start")
	mw.viewLabel = widget.NewLabel("")
	mw.pageLabel = widget.NewLabel("")

	mw.canvas.OnError(mw.report)
	mw.patterns = newPatternsPanel(mw.Window, mw.engine, mw.updateStatus)

	mw.details = widget.NewLabel("No tag selected")
	mw.details.Wrapping = fyne.TextWrapWord
	mw.recognize = widget.NewButton("Recognize", mw.onRecognize)
	mw.link = widget.NewButton("Link / Unlink", mw.onToggleLink)
	mw.remove = widget.NewButton("Delete", mw.onDeleteSelected)

	detailsPane := container.NewVBox(
		widget.NewLabelWithStyle("Selected tag", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		mw.details,
		container.NewGridWithColumns(3, mw.recognize, mw.link, mw.remove),
	)
	sidePanel := container.NewBorder(nil, detailsPane, nil, nil, mw.patterns.Container())

	canvasArea := container.NewBorder(
		mw.createToolbar(),
		nil,
		nil,
		nil,
		mw.canvas,
	)

	split := container.NewHSplit(sidePanel, canvasArea)
	split.SetOffset(0.25)

	status := container.NewBorder(nil, nil, nil,
		container.NewHBox(mw.viewLabel, mw.pageLabel),
		mw.statusBar)

	mw.SetContent(container.NewBorder(nil, container.NewPadded(status), nil, nil, split))
	mw.Resize(fyne.NewSize(1200, 800))
}

// createToolbar creates the tool, zoom, rotation and page controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	mw.mode = widget.NewRadioGroup([]string{modeSelectLabel, modeDrawLabel}, mw.onModeChanged)
	mw.mode.Horizontal = true
	mw.mode.SetSelected(modeSelectLabel)

	mw.prevPage = widget.NewButton("<", func() { mw.onStepPage(-1) })
	mw.nextPage = widget.NewButton(">", func() { mw.onStepPage(1) })

	return container.NewHBox(
		mw.mode,
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.onZoomOut),
		widget.NewButton("+", mw.onZoomIn),
		widget.NewButton("Fit", mw.onToggleFitToWindow),
		widget.NewButton("1:1", mw.onActualSize),
		widget.NewSeparator(),
		widget.NewButton("⟲", mw.onRotateCounterClockwise),
		widget.NewButton("⟳", mw.onRotateClockwise),
		widget.NewSeparator(),
		widget.NewButton("Clear", mw.onClear),
		widget.NewSeparator(),
		mw.prevPage,
		mw.nextPage,
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open...", mw.onOpen),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export Tags...", mw.onExportTags),
		fyne.NewMenuItem("Import Tags...", mw.onImportTags),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)

	mw.fitToWindowItem = fyne.NewMenuItem("Fit to Window", mw.onToggleFitToWindow)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		mw.fitToWindowItem,
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Rotate Clockwise", mw.onRotateClockwise),
		fyne.NewMenuItem("Rotate Counter-clockwise", mw.onRotateCounterClockwise),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, helpMenu))
}

func (mw *MainWindow) setupKeys() {
	mw.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		eng := mw.engine()
		if eng == nil {
			return
		}
		switch ev.Name {
		case fyne.KeyEscape:
			eng.CancelDrawing()
			mw.canvas.Refresh()
		case fyne.KeyDelete:
			mw.onDeleteSelected()
		}
	})
}

// OpenDocument opens page pageNumber of path and binds the window to its
// engine.
func (mw *MainWindow) OpenDocument(path string, pageNumber int) error {
	eng, doc, err := mw.session.Open(context.Background(), path, pageNumber)
	if err != nil {
		mw.logger.Warn("open failed", "path", path, "page", pageNumber, "error", err)
		return err
	}
	mw.bindEngine(eng, doc)

	prefs := mw.app.Preferences()
	prefs.SetString(prefKeyLastFile, path)
	prefs.SetInt(prefKeyLastPage, pageNumber)
	mw.saveLastDir(path)

	title := "Plan Tagger - " + filepath.Base(path)
	if doc.Pages > 1 {
		title += fmt.Sprintf(" (page %d)", pageNumber)
	}
	mw.SetTitle(title)
	mw.updateStatus(fmt.Sprintf("%d tags, %d patterns", len(eng.Annotations()), len(eng.Patterns())))
	return nil
}

// RestoreLastDocument reopens the document of the previous run, if any.
func (mw *MainWindow) RestoreLastDocument() {
	prefs := mw.app.Preferences()
	path := prefs.String(prefKeyLastFile)
	if path == "" {
		return
	}
	if err := mw.OpenDocument(path, prefs.IntWithFallback(prefKeyLastPage, 1)); err != nil {
		mw.updateStatus("Could not reopen " + filepath.Base(path))
	}
}

// bindEngine routes the canvas to eng and subscribes the panels to its
// events.
func (mw *MainWindow) bindEngine(eng *engine.Engine, doc app.Document) {
	mw.canvas.Bind(eng)
	mw.canvas.SetPage(doc.Image)
	mw.canvas.SetLabeler(func(id string) string {
		a, ok := eng.Annotation(id)
		if !ok || a.ExtractedText == nil {
			return ""
		}
		return *a.ExtractedText
	})

	eng.On(engine.EventViewportChanged, func(data any) {
		st, _ := data.(viewport.State)
		mw.applyViewport(eng, st)
	})
	eng.On(engine.EventSynced, func(any) {
		mw.updateDetails()
	})
	refreshPatterns := func(any) { mw.patterns.Reload() }
	eng.On(engine.EventPatternSaved, refreshPatterns)
	eng.On(engine.EventPatternDeleted, refreshPatterns)
	eng.On(engine.EventLinkChanged, refreshPatterns)
	eng.On(engine.EventAnnotationDeleted, refreshPatterns)
	eng.On(engine.EventAnnotationsCleared, refreshPatterns)
	eng.On(engine.EventRecognitionComplete, func(data any) {
		if out, ok := data.(engine.RecognitionOutcome); ok {
			mw.updateStatus(recognitionStatus(out))
		}
	})
	eng.On(engine.EventRecognitionFailed, func(data any) {
		if f, ok := data.(engine.RecognitionFailure); ok {
			mw.updateStatus("Recognition failed: " + f.Err.Error())
		}
	})
	eng.On(engine.EventPersistenceFailed, func(data any) {
		if err, ok := data.(error); ok {
			dialog.ShowError(fmt.Errorf("changes could not be saved: %w", err), mw.Window)
		}
	})

	mw.applyViewport(eng, eng.Viewport())
	if mw.canvas.GetFitToWindow() {
		mw.canvas.FitToWindow()
	}
	mw.patterns.Reload()
	mw.updateDetails()
	mw.updateControls()
}

func (mw *MainWindow) applyViewport(eng *engine.Engine, st viewport.State) {
	if tr, err := eng.Transform(); err == nil {
		mw.canvas.SetTransform(tr)
	}
	mw.viewLabel.SetText(viewportStatus(st))
	want := modeSelectLabel
	if st.Mode == viewport.ModeDraw {
		want = modeDrawLabel
	}
	if mw.mode.Selected != want {
		mw.mode.SetSelected(want)
	}
}

// selected returns the selected annotation of the open document.
func (mw *MainWindow) selected() (*engine.Engine, annotation.Annotation, bool) {
	eng := mw.engine()
	if eng == nil {
		return nil, annotation.Annotation{}, false
	}
	a, ok := eng.Annotation(eng.Highlight().SelectedID)
	return eng, a, ok
}

func (mw *MainWindow) updateDetails() {
	eng, a, ok := mw.selected()
	if !ok {
		mw.details.SetText("No tag selected")
		mw.recognize.Disable()
		mw.link.Disable()
		mw.remove.Disable()
		return
	}
	mw.details.SetText(annotationSummary(a, eng.Patterns()))
	mw.recognize.Enable()
	mw.link.Enable()
	mw.remove.Enable()
}

func (mw *MainWindow) updateControls() {
	doc, ok := mw.session.Document()
	if !ok {
		mw.pageLabel.SetText("")
		mw.prevPage.Disable()
		mw.nextPage.Disable()
		mw.updateDetails()
		return
	}
	mw.pageLabel.SetText(pageStatus(doc.Page.Number, doc.Pages))
	if doc.Page.Number > 1 {
		mw.prevPage.Enable()
	} else {
		mw.prevPage.Disable()
	}
	if doc.Page.Number < doc.Pages {
		mw.nextPage.Enable()
	} else {
		mw.nextPage.Disable()
	}
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// report shows a failed action in the status bar.
func (mw *MainWindow) report(err error) {
	if err == nil {
		return
	}
	mw.logger.Warn("action failed", "category", apperrors.CategoryOf(err), "error", err)
	mw.updateStatus(err.Error())
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.app.Preferences().String(prefKeyLastDir)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

// saveLastDir saves the directory of the given file path.
func (mw *MainWindow) saveLastDir(filePath string) {
	mw.app.Preferences().SetString(prefKeyLastDir, filepath.Dir(filePath))
}

// Menu and toolbar actions

func (mw *MainWindow) onOpen() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		if err := mw.OpenDocument(reader.URI().Path(), 1); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(append(page.SupportedImageFormats(), ".pdf")))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onExportTags() {
	doc, ok := mw.session.Document()
	if !ok {
		mw.updateStatus("Open a document first")
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.HasSuffix(path, ".json") {
			path += project.Ext
		}
		f, err := mw.session.ExportTags(context.Background(), path)
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.saveLastDir(path)
		mw.updateStatus("Exported " + f.String())
	}, mw.Window)
	base := filepath.Base(doc.Path)
	fd.SetFileName(strings.TrimSuffix(base, filepath.Ext(base)) + project.Ext)
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onImportTags() {
	if _, ok := mw.session.Document(); !ok {
		mw.updateStatus("Open a document first")
		return
	}
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		eng, doc, err := mw.session.ImportTags(context.Background(), reader.URI().Path())
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.bindEngine(eng, doc)
		mw.updateStatus(fmt.Sprintf("%d tags, %d patterns", len(eng.Annotations()), len(eng.Patterns())))
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onStepPage(delta int) {
	doc, ok := mw.session.Document()
	if !ok {
		return
	}
	if err := mw.OpenDocument(doc.Path, doc.Page.Number+delta); err != nil {
		mw.report(err)
	}
}

func (mw *MainWindow) onModeChanged(label string) {
	eng := mw.engine()
	if eng == nil {
		return
	}
	m := viewport.ModeSelect
	if label == modeDrawLabel {
		m = viewport.ModeDraw
	}
	if eng.Viewport().Mode == m {
		return
	}
	mw.report(eng.SetMode(m))
}

func (mw *MainWindow) onZoomIn() {
	mw.disableFitToWindow()
	if eng := mw.engine(); eng != nil {
		mw.report(eng.ZoomIn())
	}
}

func (mw *MainWindow) onZoomOut() {
	mw.disableFitToWindow()
	if eng := mw.engine(); eng != nil {
		mw.report(eng.ZoomOut())
	}
}

func (mw *MainWindow) onActualSize() {
	mw.disableFitToWindow()
	if eng := mw.engine(); eng != nil {
		mw.report(eng.SetScale(1))
	}
}

func (mw *MainWindow) onToggleFitToWindow() {
	enabled := !mw.canvas.GetFitToWindow()
	mw.canvas.SetFitToWindow(enabled)
	mw.setFitChecked(enabled)
}

func (mw *MainWindow) setFitChecked(checked bool) {
	mw.fitToWindowItem.Checked = checked
	if menu := mw.MainMenu(); menu != nil {
		menu.Refresh()
	}
}

func (mw *MainWindow) disableFitToWindow() {
	if mw.canvas.GetFitToWindow() {
		mw.canvas.SetFitToWindow(false)
		mw.setFitChecked(false)
	}
}

func (mw *MainWindow) onRotateClockwise() {
	if eng := mw.engine(); eng != nil {
		mw.report(eng.RotateClockwise())
		mw.refit()
	}
}

func (mw *MainWindow) onRotateCounterClockwise() {
	if eng := mw.engine(); eng != nil {
		mw.report(eng.RotateCounterClockwise())
		mw.refit()
	}
}

// refit keeps a fitted page fitted after its view dimensions swap.
func (mw *MainWindow) refit() {
	if mw.canvas.GetFitToWindow() {
		mw.canvas.FitToWindow()
	}
}

func (mw *MainWindow) onClear() {
	eng := mw.engine()
	if eng == nil {
		return
	}
	dialog.ShowConfirm("Clear tags",
		fmt.Sprintf("Delete all %d tags on this page?", len(eng.Annotations())),
		func(ok bool) {
			if !ok {
				return
			}
			if err := eng.ClearAnnotations(context.Background()); err != nil {
				dialog.ShowError(err, mw.Window)
				return
			}
			mw.updateStatus("All tags deleted")
		}, mw.Window)
}

func (mw *MainWindow) onRecognize() {
	eng, a, ok := mw.selected()
	if !ok {
		return
	}
	mw.updateStatus("Recognizing...")
	go func() {
		// Outcomes and pipeline failures arrive through the engine's events.
		_, err := eng.Recognize(context.Background(), a.ID)
		if err != nil && !apperrors.Is(err, engine.ErrStale) {
			mw.report(err)
		}
	}()
}

func (mw *MainWindow) onToggleLink() {
	eng, a, ok := mw.selected()
	if !ok {
		return
	}
	patternID := mw.patterns.Selected()
	if patternID == "" {
		patternID = a.PatternID()
	}
	if patternID == "" {
		mw.updateStatus("Select a pattern to link to")
		return
	}
	linked, err := eng.ToggleLink(context.Background(), a.ID, patternID)
	if err != nil {
		mw.report(err)
		return
	}
	if linked == nil {
		mw.updateStatus("Tag unlinked")
	} else {
		mw.updateStatus("Tag linked to " + patternName(*linked, eng.Patterns()))
	}
}

func (mw *MainWindow) onDeleteSelected() {
	eng, a, ok := mw.selected()
	if !ok {
		return
	}
	if err := eng.DeleteAnnotation(context.Background(), a.ID); err != nil {
		mw.report(err)
		return
	}
	mw.updateStatus("Tag deleted")
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About Plan Tagger",
		fmt.Sprintf("Plan Tagger %s\n\n"+
			"Marks tag codes on construction plans, reads them\n"+
			"and links them to schedule patterns.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}
