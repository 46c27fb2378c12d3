// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: tabs/registry.go
// Summary: Ordered tab collection with activation, navigation and two-phase destruction.
// Usage: Owned by the host event loop; every caller (hotkeys, pointer, control socket) mutates through it.
// Notes: The registry is not safe for concurrent use. Callers serialize access on one goroutine.

package tabs

import "log"

// Registry is the ordered collection of tabs plus the active-tab reference.
type Registry struct {
	tabs       []*Tab
	active     *Tab
	closing    map[View]*Tab
	bar        Bar
	nextID     uint64
	lastActive int
}

// NewRegistry returns an empty registry notifying bar after mutations.
// A nil bar is allowed.
func NewRegistry(bar Bar) *Registry {
	r := &Registry{closing: make(map[View]*Tab)}
	r.SetBar(bar)
	return r
}

// SetBar replaces the tab bar collaborator.
func (r *Registry) SetBar(bar Bar) {
	if bar == nil {
		bar = nopBar{}
	}
	r.bar = bar
}

// Create appends a new inactive tab bound to view.
func (r *Registry) Create(view View, opts ...TabOption) *Tab {
	r.nextID++
	t := &Tab{id: r.nextID, view: view}
	for _, opt := range opts {
		opt(t)
	}
	r.tabs = append(r.tabs, t)
	debugLog.Printf("tabs: created tab %d at index %d (background=%v)", t.id, len(r.tabs)-1, t.background)
	r.bar.Update()
	return t
}

// Activate makes t the active tab. Activating a background tab brings it
// back to the foreground first.
func (r *Registry) Activate(t *Tab) {
	idx := r.Index(t)
	if idx < 0 {
		log.Printf("tabs: activate on unregistered tab %v", tabID(t))
		return
	}
	changed := false
	if t.background {
		t.background = false
		changed = true
	}
	if t == r.active {
		if changed {
			r.bar.Update()
		}
		return
	}
	if prev := r.active; prev != nil {
		prev.visible = false
		prev.active = false
		if prev.view != nil {
			prev.view.Activate(false)
		}
	}
	r.active = t
	r.lastActive = idx
	t.active = true
	t.visible = true
	if t.view != nil {
		t.view.Activate(true)
		t.view.Position()
	}
	debugLog.Printf("tabs: activated tab %d at index %d", t.id, idx)
	r.bar.Update()
}

// Deactivate hides the active tab and leaves the registry without one.
func (r *Registry) Deactivate() {
	t := r.active
	if t == nil {
		return
	}
	r.clearActive(t)
	if t.view != nil {
		t.view.Activate(false)
	}
	r.bar.Update()
}

// Destroy removes t from the registry and closes its view. With a view bound
// the tab enters StateClosing until ViewUnmapped releases it; without one
// it is destroyed immediately.
func (r *Registry) Destroy(t *Tab) {
	if !r.remove(t) {
		return
	}
	if v := t.view; v != nil {
		t.view = nil
		t.phase = StateClosing
		r.closing[v] = t
		debugLog.Printf("tabs: tab %d closing", t.id)
		v.Close()
	} else {
		t.phase = StateDestroyed
		debugLog.Printf("tabs: tab %d destroyed", t.id)
	}
	r.bar.Update()
}

// Kill takes the immediate-kill path of the tab view, falling back to Close.
// The tab stays listed until the view reports its unmap.
func (r *Registry) Kill(t *Tab) {
	if r.Index(t) < 0 {
		return
	}
	switch v := t.view.(type) {
	case nil:
		r.Destroy(t)
	case Killer:
		v.Kill()
	default:
		v.Close()
	}
}

// ViewUnmapped handles the asynchronous unmap of view. It completes a
// pending destruction, or removes a live tab whose view went away on its
// own. It reports whether a tab was released.
func (r *Registry) ViewUnmapped(view View) bool {
	if view == nil {
		return false
	}
	if t, ok := r.closing[view]; ok {
		delete(r.closing, view)
		t.phase = StateDestroyed
		debugLog.Printf("tabs: tab %d destroyed after unmap", t.id)
		return true
	}
	t := r.FindByView(view)
	if t == nil {
		return false
	}
	r.remove(t)
	t.view = nil
	t.phase = StateDestroyed
	debugLog.Printf("tabs: tab %d destroyed, view exited", t.id)
	r.bar.Update()
	return true
}

// Next returns the foreground tab after cur in circular order, or cur when
// no other foreground tab exists. A nil or unknown cur yields the first
// foreground tab.
func (r *Registry) Next(cur *Tab) *Tab {
	return r.walk(cur, 1)
}

// Prev is Next walking backwards.
func (r *Registry) Prev(cur *Tab) *Tab {
	return r.walk(cur, -1)
}

func (r *Registry) walk(cur *Tab, dir int) *Tab {
	n := len(r.tabs)
	idx := r.Index(cur)
	if idx < 0 {
		return r.ForegroundFrom(0)
	}
	for step := 1; step < n; step++ {
		j := ((idx+dir*step)%n + n) % n
		if !r.tabs[j].background {
			return r.tabs[j]
		}
	}
	return cur
}

// SetBackground flags or unflags t as background. Activation is unchanged.
func (r *Registry) SetBackground(t *Tab, flag bool) {
	if r.Index(t) < 0 || t.background == flag {
		return
	}
	t.background = flag
	r.bar.Update()
}

// Count returns the number of listed tabs, background ones included.
func (r *Registry) Count() int { return len(r.tabs) }

// TabAt returns the tab at raw list index i, or nil.
func (r *Registry) TabAt(i int) *Tab {
	if i < 0 || i >= len(r.tabs) {
		return nil
	}
	return r.tabs[i]
}

// FindByView returns the listed tab bound to view, or nil.
func (r *Registry) FindByView(view View) *Tab {
	if view == nil {
		return nil
	}
	for _, t := range r.tabs {
		if t.view == view {
			return t
		}
	}
	return nil
}

// Index returns the raw list index of t, or -1.
func (r *Registry) Index(t *Tab) int {
	if t == nil {
		return -1
	}
	for i, candidate := range r.tabs {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Active returns the active tab, or nil.
func (r *Registry) Active() *Tab { return r.active }

// Tabs returns a copy of the tab list in order.
func (r *Registry) Tabs() []*Tab {
	out := make([]*Tab, len(r.tabs))
	copy(out, r.tabs)
	return out
}

// LastActiveIndex is the raw index the most recently active tab held.
func (r *Registry) LastActiveIndex() int { return r.lastActive }

// ForegroundFrom returns the first foreground tab at or after raw index i,
// wrapping around, or nil when every tab is background.
func (r *Registry) ForegroundFrom(i int) *Tab {
	n := len(r.tabs)
	if n == 0 {
		return nil
	}
	if i < 0 || i >= n {
		i = 0
	}
	for step := 0; step < n; step++ {
		if t := r.tabs[(i+step)%n]; !t.background {
			return t
		}
	}
	return nil
}

// Closing reports how many destroyed tabs still wait for their view unmap.
func (r *Registry) Closing() int { return len(r.closing) }

func (r *Registry) remove(t *Tab) bool {
	idx := r.Index(t)
	if idx < 0 {
		return false
	}
	if t == r.active {
		r.clearActive(t)
	}
	r.tabs = append(r.tabs[:idx], r.tabs[idx+1:]...)
	t.visible = false
	return true
}

func (r *Registry) clearActive(t *Tab) {
	if idx := r.Index(t); idx >= 0 {
		r.lastActive = idx
	}
	t.active = false
	t.visible = false
	r.active = nil
}

func tabID(t *Tab) any {
	if t == nil {
		return "<nil>"
	}
	return t.id
}
