// Package canvas provides the annotation surface: a zoomable page raster
// on which rectangles are drawn, selected, moved and resized.
package canvas

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"sync"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/surface"
	"plan-tagger/internal/viewport"
	"plan-tagger/pkg/geometry"
)

// Controller receives the gestures of the surface. *engine.Engine
// satisfies it.
type Controller interface {
	Viewport() viewport.State
	ActiveRect() (annotation.Rectangle, bool)
	PointerDown(p geometry.Point2D) bool
	PointerMove(p geometry.Point2D)
	PointerUp(ctx context.Context, p geometry.Point2D) (*annotation.Annotation, error)
	ObjectModified(r annotation.Rectangle)
	Select(id string) error
	Hover(id string) error
	ZoomIn() error
	ZoomOut() error
	FitTo(viewWidth, viewHeight float64) error
}

var _ surface.Surface = (*AnnotationCanvas)(nil)

// AnnotationCanvas displays one page with its annotation rectangles and
// implements surface.Surface.
type AnnotationCanvas struct {
	widget.BaseWidget

	mu        sync.RWMutex
	ctrl      Controller
	page      image.Image
	transform *viewport.Transform
	objects   []annotation.Rectangle
	preview   *annotation.Rectangle // moved or resized rectangle awaiting the next rebuild
	label     func(id string) string
	closed    bool

	// Last rendered page, before overlays, for text recognition
	lastOutput *image.RGBA
	lastRatio  float64

	// Display
	raster  *fynecanvas.Raster
	scroll  *zoomScroll
	content *draggableContent
	imgSize fyne.Size // guarded by mu; read by the render goroutine

	fitToWindow    bool
	lastScrollSize fyne.Size

	// Gesture state, touched only from the UI goroutine
	gesture   Gesture
	dragStart geometry.Point2D
	dragLast  geometry.Point2D
	target    annotation.Rectangle
	hovered   string

	onError func(error)
	logger  *slog.Logger
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	canvas *AnnotationCanvas
}

func newZoomScroll(content fyne.CanvasObject, canvas *AnnotationCanvas) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, canvas: canvas}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	zs.canvas.wheel(ev)
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

// Offset returns the scroll container's current offset.
func (zs *zoomScroll) Offset() fyne.Position {
	return zs.scroll.Offset
}

// Size returns the scroll container's size.
func (zs *zoomScroll) Size() fyne.Size {
	return zs.scroll.Size()
}

func (zs *zoomScroll) Refresh() {
	zs.scroll.Refresh()
	zs.BaseWidget.Refresh()
}

// Resize sets the size of the scroll container and refits the page when
// fit-to-window is on.
func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
	zs.canvas.CheckResize(size)
}

// draggableContent wraps the raster to handle mouse events.
type draggableContent struct {
	widget.BaseWidget
	canvas *AnnotationCanvas
	raster *fynecanvas.Raster
}

var (
	_ fyne.Draggable    = (*draggableContent)(nil)
	_ fyne.Tappable     = (*draggableContent)(nil)
	_ desktop.Hoverable = (*draggableContent)(nil)
)

func newDraggableContent(ic *AnnotationCanvas, raster *fynecanvas.Raster) *draggableContent {
	dc := &draggableContent{canvas: ic, raster: raster}
	dc.ExtendBaseWidget(dc)
	return dc
}

func (dc *draggableContent) CreateRenderer() fyne.WidgetRenderer {
	return &draggableContentRenderer{content: dc}
}

func (dc *draggableContent) MinSize() fyne.Size {
	return dc.raster.MinSize()
}

func (dc *draggableContent) Dragged(ev *fyne.DragEvent) {
	ic := dc.canvas
	pos := ic.viewPoint(ev.Position)
	if ic.gesture == GestureNone {
		start := ic.viewPoint(ev.Position.Subtract(ev.Dragged))
		if !ic.beginGesture(start) {
			return
		}
	}
	ic.dragLast = pos

	switch ic.gesture {
	case GestureDraw:
		if ctrl := ic.controller(); ctrl != nil {
			ctrl.PointerMove(pos)
		}
	case GestureMove, GestureResize:
		r := ic.dragged()
		ic.mu.Lock()
		ic.preview = &r
		ic.mu.Unlock()
	}
	ic.Refresh()
}

func (dc *draggableContent) DragEnd() {
	dc.canvas.endGesture()
}

func (dc *draggableContent) Scrolled(ev *fyne.ScrollEvent) {
	dc.canvas.wheel(ev)
}

// Tapped selects the rectangle under the pointer, or clears the selection.
func (dc *draggableContent) Tapped(ev *fyne.PointEvent) {
	// Workaround for Fyne bug: reject clicks outside widget bounds
	size := dc.Size()
	if ev.Position.X < 0 || ev.Position.Y < 0 ||
		ev.Position.X > size.Width || ev.Position.Y > size.Height {
		return
	}
	ic := dc.canvas
	ctrl := ic.controller()
	if ctrl == nil || ctrl.Viewport().Mode != viewport.ModeSelect {
		return
	}
	var id string
	if r, ok := HitTest(ic.Objects(), ic.viewPoint(ev.Position)); ok {
		id = r.ID
	}
	ic.report(ctrl.Select(id))
}

func (dc *draggableContent) MouseIn(ev *desktop.MouseEvent) {
	dc.canvas.hover(ev.Position)
}

func (dc *draggableContent) MouseMoved(ev *desktop.MouseEvent) {
	dc.canvas.hover(ev.Position)
}

func (dc *draggableContent) MouseOut() {
	dc.canvas.setHovered("")
}

type draggableContentRenderer struct {
	content *draggableContent
}

func (r *draggableContentRenderer) Layout(size fyne.Size) {
	r.content.raster.Resize(size)
}

func (r *draggableContentRenderer) MinSize() fyne.Size {
	return r.content.raster.MinSize()
}

func (r *draggableContentRenderer) Refresh() {
	r.content.raster.Refresh()
}

func (r *draggableContentRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.content.raster}
}

func (r *draggableContentRenderer) Destroy() {}

// NewAnnotationCanvas creates an empty surface. Bind a controller before
// the user interacts with it.
func NewAnnotationCanvas(logger *slog.Logger) *AnnotationCanvas {
	ic := &AnnotationCanvas{
		imgSize: fyne.NewSize(400, 300),
		logger:  logging.OrModule(logger, "canvas"),
	}

	ic.raster = fynecanvas.NewRaster(ic.draw)
	ic.raster.ScaleMode = fynecanvas.ImageScalePixels
	ic.raster.SetMinSize(ic.imgSize)

	ic.content = newDraggableContent(ic, ic.raster)
	ic.scroll = newZoomScroll(ic.content, ic)

	ic.ExtendBaseWidget(ic)
	return ic
}

// CreateRenderer shows the scroll container.
func (ic *AnnotationCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(ic.scroll)
}

// Bind routes gestures to ctrl.
func (ic *AnnotationCanvas) Bind(ctrl Controller) {
	ic.mu.Lock()
	ic.ctrl = ctrl
	ic.mu.Unlock()
}

func (ic *AnnotationCanvas) controller() Controller {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.ctrl
}

// OnError sets the callback for failures of gestures the user started.
func (ic *AnnotationCanvas) OnError(callback func(error)) {
	ic.onError = callback
}

func (ic *AnnotationCanvas) report(err error) {
	if err == nil {
		return
	}
	ic.logger.Warn("canvas gesture failed", "error", err)
	if ic.onError != nil {
		ic.onError(err)
	}
}

// SetLabeler sets the function that supplies the text drawn above each
// rectangle. An empty result draws no label.
func (ic *AnnotationCanvas) SetLabeler(label func(id string) string) {
	ic.mu.Lock()
	ic.label = label
	ic.mu.Unlock()
	ic.Refresh()
}

// SetPage sets the native page raster.
func (ic *AnnotationCanvas) SetPage(img image.Image) {
	ic.mu.Lock()
	ic.page = img
	ic.lastOutput = nil
	ic.mu.Unlock()
	ic.Refresh()
}

// SetTransform sets the document-to-view mapping and resizes the content
// to the view dimensions.
func (ic *AnnotationCanvas) SetTransform(tr *viewport.Transform) {
	ic.mu.Lock()
	ic.transform = tr
	ic.mu.Unlock()
	ic.updateContentSize()
}

// Replace implements surface.Surface. It may be called from any goroutine.
func (ic *AnnotationCanvas) Replace(rects []annotation.Rectangle) error {
	ic.mu.Lock()
	if ic.closed {
		ic.mu.Unlock()
		return surface.ErrClosed
	}
	ic.objects = slices.Clone(rects)
	ic.preview = nil
	ic.mu.Unlock()
	ic.raster.Refresh()
	return nil
}

// Objects implements surface.Surface.
func (ic *AnnotationCanvas) Objects() []annotation.Rectangle {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return slices.Clone(ic.objects)
}

// Close implements surface.Surface.
func (ic *AnnotationCanvas) Close() error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.closed {
		return surface.ErrClosed
	}
	ic.closed = true
	ic.objects = nil
	ic.preview = nil
	ic.ctrl = nil
	return nil
}

// Reopen makes a closed surface usable for the next document.
func (ic *AnnotationCanvas) Reopen() {
	ic.mu.Lock()
	ic.closed = false
	ic.lastOutput = nil
	ic.mu.Unlock()
	ic.Refresh()
}

// RenderedPage returns the last rendered page without overlays and its
// backing pixels per view unit. It has the shape of engine.RasterFunc.
func (ic *AnnotationCanvas) RenderedPage() (image.Image, float64) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	if ic.lastOutput == nil {
		return nil, 0
	}
	return ic.lastOutput, ic.lastRatio
}

// FitToWindow scales the page to the visible area.
func (ic *AnnotationCanvas) FitToWindow() {
	ctrl := ic.controller()
	viewSize := ic.scroll.Size()
	if ctrl == nil || viewSize.Width <= 0 || viewSize.Height <= 0 {
		return
	}
	ic.report(ctrl.FitTo(float64(viewSize.Width), float64(viewSize.Height)))
}

// SetFitToWindow enables or disables fitting on resize.
func (ic *AnnotationCanvas) SetFitToWindow(fit bool) {
	ic.fitToWindow = fit
	if fit {
		ic.FitToWindow()
	}
}

// GetFitToWindow returns whether fit-to-window is on.
func (ic *AnnotationCanvas) GetFitToWindow() bool {
	return ic.fitToWindow
}

// CheckResize refits the page when fit-to-window is on and the visible
// area changed.
func (ic *AnnotationCanvas) CheckResize(size fyne.Size) {
	if !ic.fitToWindow {
		return
	}
	if size.Width > 0 && size.Height > 0 && size != ic.lastScrollSize {
		ic.lastScrollSize = size
		ic.FitToWindow()
	}
}

// Refresh redraws the raster.
func (ic *AnnotationCanvas) Refresh() {
	ic.raster.Refresh()
}

func (ic *AnnotationCanvas) updateContentSize() {
	size := fyne.NewSize(400, 300)
	ic.mu.Lock()
	if ic.transform != nil {
		view := ic.transform.ViewDimensions()
		size = fyne.NewSize(float32(view.Width), float32(view.Height))
	}
	ic.imgSize = size
	ic.mu.Unlock()

	ic.raster.SetMinSize(size)
	ic.raster.Resize(size)
	if ic.content != nil {
		ic.content.Resize(size)
		ic.content.Refresh()
	}
	ic.raster.Refresh()
	if ic.scroll != nil {
		ic.scroll.Refresh()
	}
}

// viewPoint converts a position on the content widget to view space.
func (ic *AnnotationCanvas) viewPoint(p fyne.Position) geometry.Point2D {
	// ev.Position is relative to the viewport, add scroll offset for content position
	offset := ic.scroll.Offset()
	return geometry.Point2D{X: float64(p.X + offset.X), Y: float64(p.Y + offset.Y)}
}

func (ic *AnnotationCanvas) beginGesture(start geometry.Point2D) bool {
	ctrl := ic.controller()
	if ctrl == nil {
		return false
	}
	ic.dragStart = start
	ic.dragLast = start

	if ctrl.Viewport().Mode == viewport.ModeDraw {
		if !ctrl.PointerDown(start) {
			return false
		}
		ic.gesture = GestureDraw
		return true
	}

	target, g := PickGesture(ic.Objects(), start)
	if g == GestureNone {
		return false
	}
	ic.target = target
	ic.gesture = g
	ic.report(ctrl.Select(target.ID))
	ic.logger.Debug("gesture started", "gesture", g, "id", target.ID)
	return true
}

// dragged returns the target rectangle after the current drag.
func (ic *AnnotationCanvas) dragged() annotation.Rectangle {
	d := ic.dragLast.Sub(ic.dragStart)
	if ic.gesture == GestureResize {
		return Resized(ic.target, d.X, d.Y)
	}
	return Moved(ic.target, d.X, d.Y)
}

func (ic *AnnotationCanvas) endGesture() {
	g := ic.gesture
	ic.gesture = GestureNone
	ctrl := ic.controller()
	if ctrl == nil || g == GestureNone {
		return
	}

	switch g {
	case GestureDraw:
		a, err := ctrl.PointerUp(context.Background(), ic.dragLast)
		if a != nil {
			ic.logger.Debug("rectangle committed", "id", a.ID)
		}
		ic.report(err)
	case GestureMove, GestureResize:
		if ic.dragLast == ic.dragStart {
			break
		}
		ctrl.ObjectModified(ic.dragged())
	}
	ic.Refresh()
}

func (ic *AnnotationCanvas) wheel(ev *fyne.ScrollEvent) {
	ctrl := ic.controller()
	if ctrl == nil {
		return
	}
	// Use wheel for zoom, not scroll
	if ev.Scrolled.DY > 0 {
		ic.report(ctrl.ZoomIn())
	} else if ev.Scrolled.DY < 0 {
		ic.report(ctrl.ZoomOut())
	}
}

func (ic *AnnotationCanvas) hover(p fyne.Position) {
	if ic.gesture != GestureNone {
		return
	}
	var id string
	if r, ok := HitTest(ic.Objects(), ic.viewPoint(p)); ok {
		id = r.ID
	}
	ic.setHovered(id)
}

func (ic *AnnotationCanvas) setHovered(id string) {
	if id == ic.hovered {
		return
	}
	ic.hovered = id
	if ctrl := ic.controller(); ctrl != nil {
		ic.report(ctrl.Hover(id))
	}
}

// draw is the raster generator; w and h are backing pixels.
func (ic *AnnotationCanvas) draw(w, h int) image.Image {
	ic.mu.RLock()
	f := Frame{
		Page:      ic.page,
		Transform: ic.transform,
		Objects:   slices.Clone(ic.objects),
		Label:     ic.label,
	}
	preview := ic.preview
	ctrl := ic.ctrl
	size := ic.imgSize
	ic.mu.RUnlock()

	if preview != nil {
		for i := range f.Objects {
			if f.Objects[i].Equivalent(*preview) {
				f.Objects[i] = *preview
			}
		}
	}
	if ctrl != nil {
		if r, ok := ctrl.ActiveRect(); ok {
			f.Active = &r
		}
	}
	if size.Width > 0 {
		f.PixelRatio = float64(w) / float64(size.Width)
	}

	out, page := Render(f, w, h)

	ic.mu.Lock()
	if f.Transform != nil && f.Page != nil {
		ic.lastOutput = page
		ic.lastRatio = f.ratio()
	}
	ic.mu.Unlock()
	return out
}
