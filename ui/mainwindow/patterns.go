package mainwindow

import (
	"context"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/engine"
)

// patternRow is one list entry; hovering it highlights the pattern's
// linked annotations on the page.
type patternRow struct {
	widget.BaseWidget
	label   *widget.Label
	id      string
	onHover func(id string)
}

var _ desktop.Hoverable = (*patternRow)(nil)

func newPatternRow(onHover func(id string)) *patternRow {
	r := &patternRow{label: widget.NewLabel(""), onHover: onHover}
	r.label.Truncation = fyne.TextTruncateEllipsis
	r.ExtendBaseWidget(r)
	return r
}

func (r *patternRow) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(r.label)
}

func (r *patternRow) MouseIn(*desktop.MouseEvent) { r.onHover(r.id) }

func (r *patternRow) MouseMoved(*desktop.MouseEvent) {}

func (r *patternRow) MouseOut() { r.onHover("") }

// patternsPanel lists the document's tag patterns with their link counts
// and edits them.
type patternsPanel struct {
	window fyne.Window
	engine func() *engine.Engine
	status func(string)

	mu       sync.Mutex
	patterns []annotation.TagPattern
	counts   map[string]int
	selected string

	list    *widget.List
	prefix  *widget.Entry
	desc    *widget.Entry
	table   *widget.Entry
	preview *widget.Label
	content fyne.CanvasObject
}

func newPatternsPanel(win fyne.Window, eng func() *engine.Engine, status func(string)) *patternsPanel {
	pp := &patternsPanel{window: win, engine: eng, status: status, counts: map[string]int{}}

	pp.list = widget.NewList(
		func() int {
			pp.mu.Lock()
			defer pp.mu.Unlock()
			return len(pp.patterns)
		},
		func() fyne.CanvasObject {
			return newPatternRow(pp.hover)
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			pp.mu.Lock()
			if i >= len(pp.patterns) {
				pp.mu.Unlock()
				return
			}
			p := pp.patterns[i]
			text := patternLabel(p, pp.counts[p.ID])
			pp.mu.Unlock()
			row := o.(*patternRow)
			row.id = p.ID
			row.label.SetText(text)
		},
	)
	pp.list.OnSelected = pp.onSelected
	pp.list.OnUnselected = func(widget.ListItemID) {
		pp.mu.Lock()
		pp.selected = ""
		pp.mu.Unlock()
		pp.preview.SetText("")
	}

	pp.prefix = widget.NewEntry()
	pp.prefix.SetPlaceHolder("Prefix, e.g. P")
	pp.desc = widget.NewEntry()
	pp.desc.SetPlaceHolder("Description")
	pp.table = widget.NewEntry()
	pp.table.SetPlaceHolder("Schedule table")
	pp.preview = widget.NewLabel("")
	pp.preview.Wrapping = fyne.TextWrapWord

	form := container.NewVBox(
		widget.NewLabelWithStyle("Tag pattern", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		pp.prefix,
		pp.desc,
		pp.table,
		container.NewGridWithColumns(3,
			widget.NewButton("Add", pp.onAdd),
			widget.NewButton("Update", pp.onUpdate),
			widget.NewButton("Delete", pp.onDelete),
		),
		pp.preview,
	)
	pp.content = container.NewBorder(
		widget.NewLabelWithStyle("Patterns", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		form, nil, nil,
		pp.list,
	)
	return pp
}

// Container returns the panel for embedding in layouts.
func (pp *patternsPanel) Container() fyne.CanvasObject {
	return pp.content
}

// Selected returns the selected pattern id, or "".
func (pp *patternsPanel) Selected() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.selected
}

// Reload re-reads patterns and link counts from the engine.
func (pp *patternsPanel) Reload() {
	var (
		patterns []annotation.TagPattern
		counts   = map[string]int{}
	)
	if eng := pp.engine(); eng != nil {
		patterns = eng.Patterns()
		counts = eng.LinkCounts()
	}
	pp.mu.Lock()
	pp.patterns = patterns
	pp.counts = counts
	selected := pp.selected
	pp.mu.Unlock()

	pp.list.Refresh()
	pp.showLinked(selected)
}

func (pp *patternsPanel) hover(id string) {
	if eng := pp.engine(); eng != nil {
		_ = eng.HoverPattern(id)
	}
}

func (pp *patternsPanel) onSelected(i widget.ListItemID) {
	pp.mu.Lock()
	if i >= len(pp.patterns) {
		pp.mu.Unlock()
		return
	}
	p := pp.patterns[i]
	pp.selected = p.ID
	pp.mu.Unlock()

	pp.prefix.SetText(p.Prefix)
	pp.desc.SetText(p.Description)
	pp.table.SetText(p.ScheduleTable)
	pp.showLinked(p.ID)
}

func (pp *patternsPanel) showLinked(id string) {
	eng := pp.engine()
	if eng == nil || id == "" {
		pp.preview.SetText("")
		return
	}
	pp.preview.SetText(linkedSummary(eng.LinkedAnnotations(id)))
}

func (pp *patternsPanel) fromForm(id string) annotation.TagPattern {
	return annotation.TagPattern{
		ID:            id,
		Prefix:        pp.prefix.Text,
		Description:   pp.desc.Text,
		ScheduleTable: pp.table.Text,
	}
}

func (pp *patternsPanel) save(p annotation.TagPattern) {
	eng := pp.engine()
	if eng == nil {
		return
	}
	saved, err := eng.SavePattern(context.Background(), p)
	if err != nil {
		dialog.ShowError(err, pp.window)
		return
	}
	pp.status("Saved pattern " + saved.Prefix)
	pp.Reload()
}

func (pp *patternsPanel) onAdd() {
	pp.save(pp.fromForm(""))
}

func (pp *patternsPanel) onUpdate() {
	id := pp.Selected()
	if id == "" {
		pp.status("Select a pattern to update")
		return
	}
	pp.save(pp.fromForm(id))
}

func (pp *patternsPanel) onDelete() {
	eng := pp.engine()
	id := pp.Selected()
	if eng == nil || id == "" {
		pp.status("Select a pattern to delete")
		return
	}
	dialog.ShowConfirm("Delete pattern",
		"Delete this pattern? Linked tags are kept but unlinked.",
		func(ok bool) {
			if !ok {
				return
			}
			if err := eng.DeletePattern(context.Background(), id); err != nil {
				dialog.ShowError(err, pp.window)
				return
			}
			pp.list.UnselectAll()
			pp.status("Pattern deleted")
			pp.Reload()
		}, pp.window)
}
