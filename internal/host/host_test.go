// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/host/host_test.go
// Summary: Exercises tab actions, view lifecycle handling and input routing.
// Usage: Executed during `go test` to guard against regressions.

package host

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/keybinding"
	"github.com/framegrace/waymux/spawn"
	"github.com/framegrace/waymux/tabs"
)

type fakeView struct {
	title  string
	pid    int
	closed int
	active bool
	input  bytes.Buffer
	lines  []string
}

var _ tabs.View = (*fakeView)(nil)

func (v *fakeView) Close()          { v.closed++ }
func (v *fakeView) Activate(a bool) { v.active = a }
func (v *fakeView) Position()       {}
func (v *fakeView) Title() string   { return v.title }
func (v *fakeView) AppID() string   { return "app" }
func (v *fakeView) PID() int        { return v.pid }

func (v *fakeView) Write(p []byte) (int, error) { return v.input.Write(p) }

func (v *fakeView) Snapshot(rows int) []string {
	if rows < len(v.lines) {
		return v.lines[len(v.lines)-rows:]
	}
	return v.lines
}

type fixedSpawner struct {
	pid   int
	argvs [][]string
}

func (s *fixedSpawner) Spawn(argv []string, _ spawn.Env) (int, error) {
	s.argvs = append(s.argvs, argv)
	return s.pid, nil
}

func startHost(t *testing.T, screen tcell.Screen) (*Host, *loop.Loop) {
	t.Helper()
	lp := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go lp.Run(ctx)
	t.Cleanup(cancel)
	return New(lp, Options{Screen: screen}), lp
}

func onLoop(t *testing.T, lp *loop.Loop, fn func()) {
	t.Helper()
	if err := lp.Call(context.Background(), fn); err != nil {
		t.Fatalf("loop call: %v", err)
	}
}

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(80, 10)
	t.Cleanup(screen.Fini)
	return screen
}

func mapViews(h *Host, titles ...string) []*fakeView {
	views := make([]*fakeView, len(titles))
	for i, title := range titles {
		views[i] = &fakeView{title: title}
		h.MapView(views[i])
	}
	return views
}

func TestMapActivatesForegroundViews(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "one", "two")
		if h.Registry().Active().View() != views[1] || !views[1].active || views[0].active {
			t.Fatalf("latest mapped view should be active")
		}
	})
}

func TestBackgroundSpawnMapsInBackground(t *testing.T) {
	h, lp := startHost(t, nil)
	sp := &fixedSpawner{pid: 42}
	h.SetSpawner(sp)
	onLoop(t, lp, func() {
		first := mapViews(h, "fg")[0]
		if _, err := h.Spawn([]string{"htop"}, h.SpawnEnv(), true); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
		if h.PendingBackground() != 1 {
			t.Fatalf("expected one pending background spawn")
		}
		tab := h.MapView(&fakeView{title: "bg", pid: 42})
		if !tab.Background() || h.Registry().Active().View() != first {
			t.Fatalf("background view must not take focus")
		}
		if h.PendingBackground() != 0 {
			t.Fatalf("pending count not consumed")
		}
	})
}

func TestCloseActiveActivatesFollowingTab(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a", "b", "c")
		h.Registry().Activate(h.Registry().TabAt(1))
		h.Run(keybinding.ActionCloseTab)
		if views[1].closed != 1 {
			t.Fatalf("closed view should be asked to close once")
		}
		if h.Registry().Count() != 2 || h.Registry().Active().View() != views[2] {
			t.Fatalf("expected c active after closing b")
		}
	})
}

func TestToggleBackground(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a", "b")
		h.Run(keybinding.ActionToggleBackground)
		reg := h.Registry()
		if !reg.TabAt(1).Background() || reg.Active().View() != views[0] {
			t.Fatalf("b should be background with a active")
		}
		h.Run(keybinding.ActionToggleBackground)
		if reg.Active() != nil {
			t.Fatalf("no foreground tab left, expected no active tab")
		}
	})
	// No re-selection happens when every tab is in the background.
	onLoop(t, lp, func() {
		if h.Registry().Active() != nil {
			t.Fatalf("background tab was reselected")
		}
	})
}

func TestReselectAfterSelfExit(t *testing.T) {
	h, lp := startHost(t, nil)
	var views []*fakeView
	onLoop(t, lp, func() {
		views = mapViews(h, "a", "b", "c")
		h.UnmapView(views[2])
		if h.Registry().Active() != nil {
			t.Fatalf("re-selection must not run inside the unmap")
		}
	})
	onLoop(t, lp, func() {
		active := h.Registry().Active()
		if active == nil || active.View() != views[0] {
			t.Fatalf("expected first foreground tab to be reselected")
		}
	})
}

func TestNextPrevBindings(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a", "b", "c")
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'k', tcell.ModMeta))
		if h.Registry().Active().View() != views[0] {
			t.Fatalf("next should wrap to a")
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'j', tcell.ModMeta))
		if h.Registry().Active().View() != views[2] {
			t.Fatalf("prev should wrap to c")
		}
	})
}

func TestUnboundKeysReachActiveView(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a")
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone))
		h.HandleEvent(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
		if got := views[0].input.String(); got != "x\r" {
			t.Fatalf("unexpected forwarded input %q", got)
		}
	})
}

func TestLauncherCapturesKeys(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a")
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'n', tcell.ModMeta))
		if !h.Launcher().Visible() {
			t.Fatalf("launcher should open")
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone))
		if views[0].input.Len() != 0 || h.Launcher().Query() != "x" {
			t.Fatalf("keys should go to the launcher")
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone))
		if h.Launcher().Visible() {
			t.Fatalf("escape should hide the launcher")
		}
	})
}

func TestProfilePickerCapturesKeys(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a")
		var chosen []string
		h.ShowProfiles([]string{"dev", "mail"}, nil, func(name string) { chosen = append(chosen, name) })
		for _, r := range "mai" {
			h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
		}
		if views[0].input.Len() != 0 {
			t.Fatalf("keys should go to the profile picker")
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
		if h.Profiles().Visible() || len(chosen) != 1 || chosen[0] != "mail" {
			t.Fatalf("enter should choose mail, got %v", chosen)
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone))
		if got := views[0].input.String(); got != "x" {
			t.Fatalf("keys should reach the view once the picker closed, got %q", got)
		}
	})
}

func TestPointerClicksOnBar(t *testing.T) {
	screen := newScreen(t)
	h, lp := startHost(t, screen)
	onLoop(t, lp, func() {
		views := mapViews(h, "one", "two")
		h.HandleEvent(tcell.NewEventMouse(2, 0, tcell.ButtonPrimary, tcell.ModNone))
		h.HandleEvent(tcell.NewEventMouse(2, 0, tcell.ButtonNone, tcell.ModNone))
		if h.Registry().Active().View() != views[0] {
			t.Fatalf("left click should activate the first tab")
		}
		h.HandleEvent(tcell.NewEventMouse(2, 0, tcell.ButtonMiddle, tcell.ModNone))
		h.HandleEvent(tcell.NewEventMouse(2, 0, tcell.ButtonNone, tcell.ModNone))
		if views[0].closed != 1 || h.Registry().Count() != 1 {
			t.Fatalf("middle click should close the tab")
		}
		if h.Registry().Active().View() != views[1] {
			t.Fatalf("closing the active tab should activate the next one")
		}
	})
}

func TestBackgroundDialogRestoresTab(t *testing.T) {
	screen := newScreen(t)
	h, lp := startHost(t, screen)
	onLoop(t, lp, func() {
		views := mapViews(h, "one", "two")
		h.Run(keybinding.ActionToggleBackground)
		h.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'B', tcell.ModMeta|tcell.ModShift))
		if !h.Bar().DialogVisible() || len(h.Bar().DialogEntries()) != 1 {
			t.Fatalf("dialog should list the background tab")
		}
		h.HandleEvent(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
		if h.Bar().DialogVisible() {
			t.Fatalf("enter should close the dialog")
		}
		active := h.Registry().Active()
		if active == nil || active.View() != views[1] || active.Background() {
			t.Fatalf("chosen tab should be active in the foreground")
		}
	})
}

func TestRenderDrawsActiveOutput(t *testing.T) {
	screen := newScreen(t)
	h, lp := startHost(t, screen)
	onLoop(t, lp, func() {
		v := &fakeView{title: "log", lines: []string{"hello", "world"}}
		h.MapView(v)
		h.Render()
	})
	row := func(y int) string {
		var sb strings.Builder
		for x := 0; x < 80; x++ {
			r, _, _, _ := screen.GetContent(x, y)
			sb.WriteRune(r)
		}
		return strings.TrimRight(sb.String(), " ")
	}
	if got := row(1); got != "hello" {
		t.Fatalf("row 1 = %q", got)
	}
	if got := row(2); got != "world" {
		t.Fatalf("row 2 = %q", got)
	}
	if !strings.Contains(row(0), "0: log") {
		t.Fatalf("bar row = %q", row(0))
	}
}

func TestShutdownClosesEveryView(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		views := mapViews(h, "a", "b")
		h.Shutdown()
		for _, v := range views {
			if v.closed != 1 {
				t.Fatalf("view %s not closed", v.title)
			}
		}
		if h.Registry().Count() != 0 || h.Registry().Closing() != 2 {
			t.Fatalf("tabs should wait for their unmap")
		}
		for _, v := range views {
			h.UnmapView(v)
		}
		if h.Registry().Closing() != 0 {
			t.Fatalf("unmap should release closing tabs")
		}
	})
}

func TestFocusMetricsCountActiveChanges(t *testing.T) {
	h, lp := startHost(t, nil)
	onLoop(t, lp, func() {
		mapViews(h, "one", "two")
		first := h.Registry().TabAt(0)
		h.Registry().Activate(first)
		h.Registry().Activate(first)
		stats := h.Focus().Snapshot()
		if stats.Changes != 3 || stats.LastTabID != first.ID() {
			t.Fatalf("unexpected focus stats %+v", stats)
		}
		if stats.LastChange.IsZero() {
			t.Fatalf("last change time not recorded")
		}
	})
}
