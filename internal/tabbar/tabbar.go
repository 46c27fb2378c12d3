// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/tabbar/tabbar.go
// Summary: Character-cell tab bar drawn on the top row of a tcell screen.
// Usage: Passed to tabs.NewRegistry as its Bar; Update redraws from registry state.
// Notes: Background tabs are not drawn. Labels carry the raw registry index so
//   they match the indexes used by waymuxctl.

package tabbar

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/waymux/tabs"
)

const (
	tabSeparator = '│'
	ellipsis     = "…"
	// DefaultMaxLabel bounds a single tab label in cells.
	DefaultMaxLabel = 28
)

// Styles used by the bar.
type Styles struct {
	Base     tcell.Style
	Active   tcell.Style
	Inactive tcell.Style
	Dialog   tcell.Style
	Selected tcell.Style
}

// DefaultStyles mirrors a dark status line.
func DefaultStyles() Styles {
	base := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorSilver)
	return Styles{
		Base:     base,
		Active:   tcell.StyleDefault.Background(tcell.ColorNavy).Foreground(tcell.ColorWhite).Bold(true),
		Inactive: tcell.StyleDefault.Background(tcell.ColorDimGray).Foreground(tcell.ColorLightGray),
		Dialog:   base.Reverse(true),
		Selected: tcell.StyleDefault.Background(tcell.ColorTeal).Foreground(tcell.ColorWhite),
	}
}

type segment struct {
	start, end int // [start, end) columns
	tab        *tabs.Tab
}

// Bar renders the registry on row 0 of screen.
type Bar struct {
	screen   tcell.Screen
	registry *tabs.Registry
	styles   Styles
	maxLabel int

	segments []segment
	dialog   *dialog
	// OnUpdate runs after every redraw; the host uses it to schedule work.
	OnUpdate func()
}

// New creates a bar. SetRegistry must be called before the first Update.
func New(screen tcell.Screen, styles Styles) *Bar {
	return &Bar{screen: screen, styles: styles, maxLabel: DefaultMaxLabel}
}

func (b *Bar) SetRegistry(r *tabs.Registry) { b.registry = r }

// SetMaxLabel bounds tab labels to n cells.
func (b *Bar) SetMaxLabel(n int) {
	if n > 3 {
		b.maxLabel = n
	}
}

// Height is the number of rows the bar reserves at the top of the screen.
func (b *Bar) Height() int { return 1 }

// Update implements tabs.Bar.
func (b *Bar) Update() {
	if b.registry != nil && b.screen != nil {
		b.draw()
		if b.dialog != nil {
			b.dialog.refresh(b.registry)
			b.drawDialog()
		}
		b.screen.Show()
	}
	if b.OnUpdate != nil {
		b.OnUpdate()
	}
}

// Label is the text drawn for a tab at raw index idx.
func (b *Bar) Label(idx int, t *tabs.Tab) string {
	title := t.Title()
	if title == "" {
		title = t.AppID()
	}
	if title == "" {
		title = "(unnamed)"
	}
	label := fmt.Sprintf(" %d: %s ", idx, title)
	if runewidth.StringWidth(label) > b.maxLabel {
		label = runewidth.Truncate(label, b.maxLabel-1, ellipsis) + " "
	}
	return label
}

func (b *Bar) draw() {
	width, _ := b.screen.Size()
	for x := 0; x < width; x++ {
		b.screen.SetContent(x, 0, ' ', nil, b.styles.Base)
	}
	b.segments = b.segments[:0]
	active := b.registry.Active()
	col := 0
	for idx, t := range b.registry.Tabs() {
		if t.Background() {
			continue
		}
		if col >= width {
			break
		}
		style := b.styles.Inactive
		if t == active {
			style = b.styles.Active
		}
		start := col
		col = drawString(b.screen, col, 0, width, b.Label(idx, t), style)
		b.segments = append(b.segments, segment{start: start, end: col, tab: t})
		if col < width {
			b.screen.SetContent(col, 0, tabSeparator, nil, b.styles.Base)
			col++
		}
	}
}

// TabAt hit-tests a pointer position against the drawn labels.
func (b *Bar) TabAt(x, y int) *tabs.Tab {
	if y != 0 {
		return nil
	}
	for _, seg := range b.segments {
		if x >= seg.start && x < seg.end {
			return seg.tab
		}
	}
	return nil
}

// drawString draws s from column x, clipped at limit, and returns the next column.
func drawString(screen tcell.Screen, x, y, limit int, s string, style tcell.Style) int {
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > limit {
			break
		}
		screen.SetContent(x, y, r, nil, style)
		x += w
	}
	return x
}
