// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/tabbar/dialog.go
// Summary: Overlay listing background tabs so one can be brought back.

package tabbar

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/waymux/protocol"
	"github.com/framegrace/waymux/tabs"
)

type dialog struct {
	entries  []*tabs.Tab
	indexes  []int
	selected int
}

func (d *dialog) refresh(r *tabs.Registry) {
	var current *tabs.Tab
	if d.selected >= 0 && d.selected < len(d.entries) {
		current = d.entries[d.selected]
	}
	d.entries = d.entries[:0]
	d.indexes = d.indexes[:0]
	d.selected = 0
	for idx, t := range r.Tabs() {
		if !t.Background() {
			continue
		}
		if t == current {
			d.selected = len(d.entries)
		}
		d.entries = append(d.entries, t)
		d.indexes = append(d.indexes, idx)
	}
}

// ShowBackgroundDialog opens the background tab list.
func (b *Bar) ShowBackgroundDialog() {
	b.dialog = &dialog{}
	b.Update()
}

// HideBackgroundDialog closes the list and clears its rows.
func (b *Bar) HideBackgroundDialog() {
	if b.dialog == nil {
		return
	}
	rows := len(b.dialog.entries) + 2
	b.dialog = nil
	if b.screen != nil {
		width, _ := b.screen.Size()
		for y := 1; y <= rows; y++ {
			for x := 0; x < width; x++ {
				b.screen.SetContent(x, y, ' ', nil, tcell.StyleDefault)
			}
		}
	}
	b.Update()
}

// DialogVisible reports whether the background list is open.
func (b *Bar) DialogVisible() bool { return b.dialog != nil }

// DialogEntries returns the listed background tabs in order.
func (b *Bar) DialogEntries() []*tabs.Tab {
	if b.dialog == nil {
		return nil
	}
	return append([]*tabs.Tab(nil), b.dialog.entries...)
}

// HandleDialogKey moves the selection. Enter returns the chosen tab and
// closes the dialog; Escape closes it.
func (b *Bar) HandleDialogKey(ev *tcell.EventKey) (*tabs.Tab, bool) {
	d := b.dialog
	if d == nil {
		return nil, false
	}
	switch ev.Key() {
	case tcell.KeyUp:
		if d.selected > 0 {
			d.selected--
		}
	case tcell.KeyDown:
		if d.selected < len(d.entries)-1 {
			d.selected++
		}
	case tcell.KeyEnter:
		var chosen *tabs.Tab
		if d.selected < len(d.entries) {
			chosen = d.entries[d.selected]
		}
		b.HideBackgroundDialog()
		return chosen, true
	case tcell.KeyEscape:
		b.HideBackgroundDialog()
		return nil, true
	default:
		return nil, true
	}
	if b.screen != nil {
		b.drawDialog()
		b.screen.Show()
	}
	return nil, true
}

// DrawDialog repaints the open dialog without showing the screen.
func (b *Bar) DrawDialog() {
	if b.dialog != nil && b.screen != nil {
		b.drawDialog()
	}
}

func (b *Bar) drawDialog() {
	d := b.dialog
	width, _ := b.screen.Size()
	boxWidth := width / 2
	if boxWidth < 24 {
		boxWidth = min(width, 24)
	}
	left := (width - boxWidth) / 2
	title := " Background tabs "
	if len(d.entries) == 0 {
		title = " No background tabs "
	}
	fill(b.screen, left, 1, boxWidth, b.styles.Dialog)
	drawString(b.screen, left+1, 1, left+boxWidth, title, b.styles.Dialog)
	for i, t := range d.entries {
		y := 2 + i
		style := b.styles.Dialog
		if i == d.selected {
			style = b.styles.Selected
		}
		fill(b.screen, left, y, boxWidth, style)
		line := protocol.TabLine(d.indexes[i], t.AppID(), t.Title())
		line = runewidth.Truncate(line, boxWidth-2, ellipsis)
		drawString(b.screen, left+1, y, left+boxWidth-1, line, style)
	}
	fill(b.screen, left, 2+len(d.entries), boxWidth, b.styles.Dialog)
}

func fill(screen tcell.Screen, x, y, w int, style tcell.Style) {
	for i := 0; i < w; i++ {
		screen.SetContent(x+i, y, ' ', nil, style)
	}
}
