// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/launcher/launcher.go
// Summary: Overlay for picking a configured program and starting it as a new tab.
// Usage: Shown by the open_launcher binding and the show-launcher command; keys
//   are routed here by the host while it is visible.

package launcher

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/spawn"
)

// ErrNoSpawner is returned by Launch when no spawner is attached.
var ErrNoSpawner = errors.New("launcher: no spawner")

// UsageStore persists how often each entry was launched.
type UsageStore interface {
	UsageCounts() (map[string]int, error)
	RecordLaunch(name string) error
}

// Styles used by the overlay.
type Styles struct {
	Frame    tcell.Style
	Prompt   tcell.Style
	Normal   tcell.Style
	Selected tcell.Style
}

// DefaultStyles returns the overlay palette.
func DefaultStyles() Styles {
	frame := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorSilver)
	return Styles{
		Frame:    frame,
		Prompt:   frame.Foreground(tcell.ColorWhite).Bold(true),
		Normal:   frame,
		Selected: tcell.StyleDefault.Background(tcell.ColorTeal).Foreground(tcell.ColorWhite),
	}
}

// Launcher holds the entry list and the overlay state.
type Launcher struct {
	screen   tcell.Screen
	spawner  spawn.Spawner
	detached spawn.Spawner
	env      func() spawn.Env
	usage    UsageStore
	styles   Styles
	// top is the first screen row the overlay may use.
	top int

	entries     []config.LauncherEntry
	maxResults  int
	usageCounts map[string]int

	visible     bool
	query       []rune
	results     []config.LauncherEntry
	selectedIdx int

	// OnChange is called after the overlay state changed.
	OnChange func()
}

// New creates a launcher drawing on screen below row top. screen may be nil.
func New(screen tcell.Screen, top int, spawner spawn.Spawner, env func() spawn.Env) *Launcher {
	return &Launcher{
		screen:      screen,
		top:         top,
		spawner:     spawner,
		env:         env,
		styles:      DefaultStyles(),
		maxResults:  config.DefaultMaxResults,
		usageCounts: make(map[string]int),
	}
}

// SetSpawner replaces the spawner used by Launch.
func (l *Launcher) SetSpawner(sp spawn.Spawner) { l.spawner = sp }

// SetDetachedSpawner sets the spawner for entries marked detached.
func (l *Launcher) SetDetachedSpawner(sp spawn.Spawner) { l.detached = sp }

// SetEntries replaces the launchable entries.
func (l *Launcher) SetEntries(cfg config.LauncherConfig) {
	l.entries = append([]config.LauncherEntry(nil), cfg.Entries...)
	if cfg.MaxResults > 0 {
		l.maxResults = cfg.MaxResults
	}
	log.Printf("Launcher: loaded %d entries", len(l.entries))
	if l.visible {
		l.refresh()
	}
}

// SetUsageStore loads launch counts from u and records future launches there.
func (l *Launcher) SetUsageStore(u UsageStore) {
	l.usage = u
	if u == nil {
		return
	}
	counts, err := u.UsageCounts()
	if err != nil {
		log.Printf("Launcher: failed to load usage counts: %v", err)
		return
	}
	l.usageCounts = counts
}

// Show opens the overlay with an empty query.
func (l *Launcher) Show() {
	l.visible = true
	l.query = l.query[:0]
	l.selectedIdx = 0
	l.refresh()
}

// Hide closes the overlay.
func (l *Launcher) Hide() {
	if !l.visible {
		return
	}
	l.visible = false
	l.changed()
}

func (l *Launcher) Visible() bool { return l.visible }

// Query returns the current filter text.
func (l *Launcher) Query() string { return string(l.query) }

// Results returns the entries currently listed.
func (l *Launcher) Results() []config.LauncherEntry { return l.results }

// Selected returns the highlighted entry.
func (l *Launcher) Selected() (config.LauncherEntry, bool) {
	if l.selectedIdx < 0 || l.selectedIdx >= len(l.results) {
		return config.LauncherEntry{}, false
	}
	return l.results[l.selectedIdx], true
}

// Search ranks entry names against query, case-insensitively, best match
// first. An empty query lists every entry by launch count. The result holds
// at most max_results entries.
func (l *Launcher) Search(query string) []config.LauncherEntry {
	query = strings.TrimSpace(query)
	type scored struct {
		idx      int
		distance int
	}
	var hits []scored
	if query == "" {
		for i := range l.entries {
			hits = append(hits, scored{idx: i})
		}
	} else {
		names := make([]string, len(l.entries))
		for i, e := range l.entries {
			names[i] = e.Name
		}
		for _, rank := range fuzzy.RankFindNormalizedFold(query, names) {
			hits = append(hits, scored{idx: rank.OriginalIndex, distance: rank.Distance})
		}
		if len(hits) == 0 {
			lower := strings.ToLower(query)
			for i, e := range l.entries {
				if strings.Contains(strings.ToLower(e.Description), lower) {
					hits = append(hits, scored{idx: i, distance: len(e.Name)})
				}
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		ua, ub := l.usageCounts[l.entries[a.idx].Name], l.usageCounts[l.entries[b.idx].Name]
		if ua != ub {
			return ua > ub
		}
		return a.idx < b.idx
	})
	if len(hits) > l.maxResults {
		hits = hits[:l.maxResults]
	}
	out := make([]config.LauncherEntry, len(hits))
	for i, h := range hits {
		out[i] = l.entries[h.idx]
	}
	return out
}

// Launch starts entry as a new tab, or outside any tab when the entry is
// detached.
func (l *Launcher) Launch(entry config.LauncherEntry) error {
	argv, err := entry.Argv()
	if err != nil {
		return fmt.Errorf("launcher: %s: %w", entry.Name, err)
	}
	sp := l.spawner
	if entry.Detached {
		sp = l.detached
	}
	if sp == nil {
		return ErrNoSpawner
	}
	var env spawn.Env
	if l.env != nil {
		env = l.env()
	}
	env.Title = entry.Name
	pid, err := sp.Spawn(argv, env)
	if err != nil {
		log.Printf("Launcher: failed to launch %s: %v", entry.Name, err)
		return err
	}
	log.Printf("Launcher: launched %s (pid %d)", entry.Name, pid)
	l.usageCounts[entry.Name]++
	if l.usage != nil {
		if err := l.usage.RecordLaunch(entry.Name); err != nil {
			log.Printf("Launcher: failed to record usage: %v", err)
		}
	}
	return nil
}

// HandleKey processes a key while the overlay is visible and reports
// whether it was consumed.
func (l *Launcher) HandleKey(ev *tcell.EventKey) bool {
	if !l.visible {
		return false
	}
	switch ev.Key() {
	case tcell.KeyEsc:
		l.Hide()
	case tcell.KeyUp:
		if l.selectedIdx > 0 {
			l.selectedIdx--
			l.changed()
		}
	case tcell.KeyDown:
		if l.selectedIdx < len(l.results)-1 {
			l.selectedIdx++
			l.changed()
		}
	case tcell.KeyEnter:
		entry, ok := l.Selected()
		l.Hide()
		if ok {
			if err := l.Launch(entry); err != nil {
				log.Printf("Launcher: %v", err)
			}
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(l.query) > 0 {
			l.query = l.query[:len(l.query)-1]
			l.selectedIdx = 0
			l.refresh()
		}
	case tcell.KeyRune:
		l.query = append(l.query, ev.Rune())
		l.selectedIdx = 0
		l.refresh()
	}
	return true
}

func (l *Launcher) refresh() {
	l.results = l.Search(string(l.query))
	if l.selectedIdx >= len(l.results) {
		l.selectedIdx = 0
	}
	l.changed()
}

func (l *Launcher) changed() {
	if l.OnChange != nil {
		l.OnChange()
	}
}

// Draw paints the overlay when visible.
func (l *Launcher) Draw() {
	if !l.visible || l.screen == nil {
		return
	}
	width, height := l.screen.Size()
	boxW := min(width, 60)
	rows := len(l.results) + 3
	if l.top+rows > height {
		rows = height - l.top
	}
	if rows < 2 || boxW < 4 {
		return
	}
	x0 := (width - boxW) / 2
	for y := l.top; y < l.top+rows; y++ {
		for x := x0; x < x0+boxW; x++ {
			l.screen.SetContent(x, y, ' ', nil, l.styles.Frame)
		}
	}
	drawText(l.screen, x0+1, l.top, x0+boxW-1, "Launch: "+string(l.query), l.styles.Prompt)
	for i, e := range l.results {
		y := l.top + 2 + i
		if y >= l.top+rows {
			break
		}
		style := l.styles.Normal
		if i == l.selectedIdx {
			style = l.styles.Selected
		}
		text := e.Name
		if e.Description != "" {
			text += " - " + e.Description
		}
		drawText(l.screen, x0+1, y, x0+boxW-1, text, style)
	}
}

func drawText(screen tcell.Screen, x, y, limit int, s string, style tcell.Style) {
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > limit {
			return
		}
		screen.SetContent(x, y, r, nil, style)
		x += w
	}
}
