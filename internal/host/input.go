// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/host/input.go
// Summary: Routes terminal key, pointer and resize events.

package host

import (
	"io"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/waymux/internal/ptyview"
)

// HandleEvent dispatches one tcell event.
func (h *Host) HandleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		h.handleKey(ev)
	case *tcell.EventMouse:
		h.handleMouse(ev)
	case *tcell.EventResize:
		if h.screen != nil {
			h.screen.Sync()
		}
		h.resizeContent()
		h.bar.Update()
	}
}

func (h *Host) handleKey(ev *tcell.EventKey) {
	if h.profiles.HandleKey(ev) {
		return
	}
	if h.launcher.HandleKey(ev) {
		return
	}
	if h.bar.DialogVisible() {
		if chosen, _ := h.bar.HandleDialogKey(ev); chosen != nil {
			h.registry.Activate(chosen)
		}
		return
	}
	if action, ok := h.bindings.Lookup(ev); ok {
		h.Run(action)
		return
	}
	h.forwardKey(ev)
}

func (h *Host) forwardKey(ev *tcell.EventKey) {
	active := h.registry.Active()
	if active == nil {
		return
	}
	w, ok := active.View().(io.Writer)
	if !ok {
		return
	}
	if b := ptyview.EncodeKey(ev); len(b) > 0 {
		if _, err := w.Write(b); err != nil {
			debugLog.Printf("host: forward key: %v", err)
		}
	}
}

// handleMouse acts on button presses over the tab bar: primary activates,
// middle closes.
func (h *Host) handleMouse(ev *tcell.EventMouse) {
	buttons := ev.Buttons()
	pressed := buttons &^ h.lastButtons
	h.lastButtons = buttons
	if pressed == 0 {
		return
	}
	x, y := ev.Position()
	t := h.bar.TabAt(x, y)
	if t == nil {
		return
	}
	switch {
	case pressed&tcell.ButtonPrimary != 0:
		h.registry.Activate(t)
	case pressed&tcell.ButtonMiddle != 0:
		if t == h.registry.Active() {
			h.CloseActive()
		} else {
			h.registry.Destroy(t)
		}
	}
}

// resizeContent propagates the content area size to the spawner and the
// active view.
func (h *Host) resizeContent() {
	cols, rows := h.contentSize()
	if r, ok := h.spawner.(Resizer); ok && cols > 0 && rows > 0 {
		r.SetSize(cols, rows)
	}
	if active := h.registry.Active(); active != nil && active.View() != nil {
		active.View().Position()
	}
}

func (h *Host) contentSize() (cols, rows int) {
	if h.screen == nil {
		return 0, 0
	}
	w, ht := h.screen.Size()
	return w, ht - h.bar.Height()
}
