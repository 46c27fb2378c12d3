// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/host/render.go
// Summary: Draws the active view's output below the tab bar.

package host

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Snapshotter is implemented by views that expose their recent output.
type Snapshotter interface {
	Snapshot(rows int) []string
}

func (h *Host) requestRender() {
	if h.screen == nil || h.renderQueued {
		return
	}
	h.renderQueued = true
	h.loop.Post(h.Render)
}

// Render redraws the content area and overlays.
func (h *Host) Render() {
	h.renderQueued = false
	if h.screen == nil {
		return
	}
	width, height := h.screen.Size()
	top := h.bar.Height()
	style := tcell.StyleDefault
	for y := top; y < height; y++ {
		for x := 0; x < width; x++ {
			h.screen.SetContent(x, y, ' ', nil, style)
		}
	}
	if active := h.registry.Active(); active != nil {
		if snap, ok := active.View().(Snapshotter); ok {
			lines := snap.Snapshot(height - top)
			for i, line := range lines {
				drawLine(h.screen, top+i, width, line, style)
			}
		}
	}
	h.bar.DrawDialog()
	h.launcher.Draw()
	h.profiles.Draw()
	h.screen.Show()
}

func drawLine(screen tcell.Screen, y, width int, s string, style tcell.Style) {
	x := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > width {
			return
		}
		screen.SetContent(x, y, r, nil, style)
		x += w
	}
}
