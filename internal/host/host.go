// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/host/host.go
// Summary: Owns the tab registry, bar and launcher and applies view lifecycle events.
// Usage: cmd/waymux creates one Host; every method runs on the event loop.
// Notes: Re-selection after the active tab disappears is posted as a separate
//   loop task and never runs inside a bar notification.

package host

import (
	"fmt"
	"log"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/internal/launcher"
	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/internal/ptyview"
	"github.com/framegrace/waymux/internal/tabbar"
	"github.com/framegrace/waymux/keybinding"
	"github.com/framegrace/waymux/spawn"
	"github.com/framegrace/waymux/tabs"
)

// Resizer is implemented by spawners whose views follow the content area size.
type Resizer interface {
	SetSize(cols, rows int)
}

// Options configure a Host.
type Options struct {
	// Screen is nil in headless mode.
	Screen   tcell.Screen
	Bindings keybinding.Map
	MaxLabel int
}

// Host wires input, rendering and view lifecycle to the registry.
type Host struct {
	loop     *loop.Loop
	screen   tcell.Screen
	registry *tabs.Registry
	bar      *tabbar.Bar
	launcher *launcher.Launcher
	profiles *launcher.ProfilePicker
	bindings keybinding.Map

	spawner    spawn.Spawner
	displayEnv spawn.Env
	// pending holds pids spawned as background tabs whose view has not mapped yet.
	pending map[int]bool

	// titles remembers the last title drawn per view.
	titles map[tabs.View]string

	focus *FocusMetrics

	reselectQueued bool
	renderQueued   bool
	lastButtons    tcell.ButtonMask
}

// New builds the registry, bar and launcher around lp.
func New(lp *loop.Loop, opts Options) *Host {
	h := &Host{
		loop:     lp,
		screen:   opts.Screen,
		bindings: opts.Bindings,
		pending:  make(map[int]bool),
		titles:   make(map[tabs.View]string),
		focus:    NewFocusMetrics(debugLog),
	}
	if h.bindings == nil {
		h.bindings, _ = keybinding.ParseMap(nil)
	}
	h.bar = tabbar.New(opts.Screen, tabbar.DefaultStyles())
	h.bar.SetMaxLabel(opts.MaxLabel)
	h.registry = tabs.NewRegistry(h.bar)
	h.bar.SetRegistry(h.registry)
	h.bar.OnUpdate = h.registryChanged
	h.launcher = launcher.New(opts.Screen, h.bar.Height(), nil, h.SpawnEnv)
	h.launcher.OnChange = h.requestRender
	h.profiles = launcher.NewProfilePicker(opts.Screen, h.bar.Height())
	h.profiles.OnChange = h.requestRender
	return h
}

func (h *Host) Registry() *tabs.Registry     { return h.registry }
func (h *Host) Bar() *tabbar.Bar             { return h.bar }
func (h *Host) Launcher() *launcher.Launcher { return h.launcher }
func (h *Host) Bindings() keybinding.Map     { return h.bindings }
func (h *Host) Spawner() spawn.Spawner       { return h.spawner }
func (h *Host) Focus() *FocusMetrics         { return h.focus }

func (h *Host) Profiles() *launcher.ProfilePicker { return h.profiles }

// SetSpawner installs the process spawner used by the launcher and Spawn.
func (h *Host) SetSpawner(sp spawn.Spawner) {
	h.spawner = sp
	h.launcher.SetSpawner(sp)
	h.resizeContent()
}

// SetDisplayEnv sets the environment every child is started with.
func (h *Host) SetDisplayEnv(env spawn.Env) { h.displayEnv = env }

// SpawnEnv returns a copy of the display environment.
func (h *Host) SpawnEnv() spawn.Env { return h.displayEnv.With(nil) }

// Spawn starts argv. A background spawn flags its tab when the view maps.
func (h *Host) Spawn(argv []string, env spawn.Env, background bool) (int, error) {
	if h.spawner == nil {
		return 0, fmt.Errorf("spawn %v: no spawner", argv)
	}
	pid, err := h.spawner.Spawn(argv, env)
	if err != nil {
		return 0, err
	}
	if background {
		h.pending[pid] = true
	}
	return pid, nil
}

// PendingBackground is the number of background spawns still waiting for a view.
func (h *Host) PendingBackground() int { return len(h.pending) }

// ApplyConfig swaps in reloaded settings.
func (h *Host) ApplyConfig(cfg *config.Config) {
	if cfg.Bindings != nil {
		h.bindings = cfg.Bindings
	}
	h.launcher.SetEntries(cfg.Launcher)
	h.bar.SetMaxLabel(cfg.TabBar.MaxLabel)
	log.Printf("host: configuration applied (%d launcher entries)", len(cfg.Launcher.Entries))
	h.bar.Update()
}

// ViewMapped implements ptyview.Handler.
func (h *Host) ViewMapped(v *ptyview.View, _ spawn.Env) { h.MapView(v) }

// ViewUnmapped implements ptyview.Handler.
func (h *Host) ViewUnmapped(v *ptyview.View) { h.UnmapView(v) }

// ViewChanged implements ptyview.Handler.
func (h *Host) ViewChanged(v *ptyview.View) {
	if active := h.registry.Active(); active != nil && active.View() == v {
		h.requestRender()
	}
	if title := v.Title(); h.titles[v] != title {
		h.titles[v] = title
		h.bar.Update()
	}
}

type pidView interface {
	PID() int
}

// MapView binds a newly mapped view to a tab. Foreground tabs are activated.
func (h *Host) MapView(view tabs.View) *tabs.Tab {
	var opts []tabs.TabOption
	if p, ok := view.(pidView); ok && h.pending[p.PID()] {
		delete(h.pending, p.PID())
		opts = append(opts, tabs.WithBackground())
	}
	h.titles[view] = view.Title()
	t := h.registry.Create(view, opts...)
	if !t.Background() {
		h.registry.Activate(t)
	}
	debugLog.Printf("host: mapped %q as tab %d (%s)", view.Title(), h.registry.Index(t), t.State())
	return t
}

// UnmapView forwards an unmap to the registry.
func (h *Host) UnmapView(view tabs.View) {
	if p, ok := view.(pidView); ok {
		delete(h.pending, p.PID())
	}
	delete(h.titles, view)
	if !h.registry.ViewUnmapped(view) {
		debugLog.Printf("host: unmap of unknown view %q", view.Title())
	}
	h.requestRender()
}

// registryChanged runs after every bar update.
func (h *Host) registryChanged() {
	active := h.registry.Active()
	h.focus.Observe(active, h.registry.Index(active))
	if active == nil && !h.reselectQueued &&
		h.registry.ForegroundFrom(h.registry.LastActiveIndex()) != nil {
		h.reselectQueued = true
		h.loop.Post(h.reselect)
	}
	h.requestRender()
}

func (h *Host) reselect() {
	h.reselectQueued = false
	if h.registry.Active() != nil {
		return
	}
	if t := h.registry.ForegroundFrom(h.registry.LastActiveIndex()); t != nil {
		debugLog.Printf("host: reselecting tab %d", h.registry.Index(t))
		h.registry.Activate(t)
	}
}

// Run performs a bound action.
func (h *Host) Run(action keybinding.Action) {
	debugLog.Printf("host: action %s", action)
	switch action {
	case keybinding.ActionNextTab:
		if t := h.registry.Next(h.registry.Active()); t != nil {
			h.registry.Activate(t)
		}
	case keybinding.ActionPrevTab:
		if t := h.registry.Prev(h.registry.Active()); t != nil {
			h.registry.Activate(t)
		}
	case keybinding.ActionCloseTab:
		h.CloseActive()
	case keybinding.ActionOpenLauncher:
		h.launcher.Show()
	case keybinding.ActionToggleBackground:
		h.ToggleBackground()
	case keybinding.ActionShowBackgroundDialog:
		h.bar.ShowBackgroundDialog()
	default:
		log.Printf("host: unknown action %q", action)
	}
}

// CloseActive destroys the active tab and activates the tab that followed it.
func (h *Host) CloseActive() {
	active := h.registry.Active()
	if active == nil {
		return
	}
	next := h.registry.Next(active)
	h.registry.Destroy(active)
	if next != nil && next != active {
		h.registry.Activate(next)
	}
}

// ToggleBackground sends the active tab to the background and activates the
// next foreground tab, or leaves no tab active when none remains.
func (h *Host) ToggleBackground() {
	active := h.registry.Active()
	if active == nil {
		return
	}
	next := h.registry.Next(active)
	h.registry.SetBackground(active, true)
	if next != nil && next != active {
		h.registry.Activate(next)
	} else {
		h.registry.Deactivate()
	}
}

// ShowProfiles opens the profile picker over names. onSelect receives the
// chosen name, or "" to continue without a profile.
func (h *Host) ShowProfiles(names []string, locked func(string) bool, onSelect func(name string)) {
	h.profiles.SetProfiles(names, locked)
	h.profiles.OnSelect = onSelect
	h.profiles.Show()
}

// Shutdown closes every remaining view.
func (h *Host) Shutdown() {
	for _, t := range h.registry.Tabs() {
		h.registry.Destroy(t)
	}
}
