// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/launcher/profiles.go
// Summary: Startup overlay for choosing which profile's tabs to spawn.
// Usage: Shown once by `waymux -P`; keys are routed here by the host while it is visible.

package launcher

import (
	"log"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// NoProfile is the entry that starts the instance without a profile.
const NoProfile = "(no profile)"

// ProfileEntry is one selectable profile.
type ProfileEntry struct {
	Name string
	// Locked is set when another live instance uses the profile.
	Locked bool
}

// ProfilePicker lists profiles, filters them by the typed query and reports
// the chosen one.
type ProfilePicker struct {
	screen tcell.Screen
	top    int
	styles Styles

	profiles []ProfileEntry

	visible     bool
	query       []rune
	results     []ProfileEntry
	selectedIdx int

	// OnSelect receives the chosen profile name, or "" for NoProfile.
	OnSelect func(name string)
	// OnChange is called after the overlay state changed.
	OnChange func()
}

// NewProfilePicker creates a picker drawing on screen below row top.
// screen may be nil.
func NewProfilePicker(screen tcell.Screen, top int) *ProfilePicker {
	return &ProfilePicker{screen: screen, top: top, styles: DefaultStyles()}
}

// SetProfiles replaces the listed profiles. locked may be nil.
func (p *ProfilePicker) SetProfiles(names []string, locked func(name string) bool) {
	p.profiles = p.profiles[:0]
	for _, name := range names {
		e := ProfileEntry{Name: name}
		if locked != nil {
			e.Locked = locked(name)
		}
		p.profiles = append(p.profiles, e)
	}
	if p.visible {
		p.refresh()
	}
}

// Show opens the overlay with an empty query.
func (p *ProfilePicker) Show() {
	p.visible = true
	p.query = p.query[:0]
	p.selectedIdx = 0
	p.refresh()
}

// Hide closes the overlay without choosing.
func (p *ProfilePicker) Hide() {
	if !p.visible {
		return
	}
	p.visible = false
	p.changed()
}

func (p *ProfilePicker) Visible() bool { return p.visible }

// Results returns the entries currently listed.
func (p *ProfilePicker) Results() []ProfileEntry { return p.results }

// Selected returns the highlighted entry.
func (p *ProfilePicker) Selected() (ProfileEntry, bool) {
	if p.selectedIdx < 0 || p.selectedIdx >= len(p.results) {
		return ProfileEntry{}, false
	}
	return p.results[p.selectedIdx], true
}

// Filter returns the profiles matching query, best match first. An empty
// query lists NoProfile followed by every profile by name.
func (p *ProfilePicker) Filter(query string) []ProfileEntry {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]ProfileEntry, 0, len(p.profiles)+1)
		out = append(out, ProfileEntry{Name: NoProfile})
		return append(out, p.profiles...)
	}
	names := make([]string, len(p.profiles))
	for i, e := range p.profiles {
		names[i] = e.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	out := make([]ProfileEntry, len(ranks))
	for i, r := range ranks {
		out[i] = p.profiles[r.OriginalIndex]
	}
	return out
}

// HandleKey processes a key while the overlay is visible and reports
// whether it was consumed. Up and Down wrap around; Backspace on an empty
// query closes the overlay.
func (p *ProfilePicker) HandleKey(ev *tcell.EventKey) bool {
	if !p.visible {
		return false
	}
	switch ev.Key() {
	case tcell.KeyEsc:
		p.Hide()
	case tcell.KeyUp:
		if n := len(p.results); n > 0 {
			p.selectedIdx = (p.selectedIdx + n - 1) % n
			p.changed()
		}
	case tcell.KeyDown:
		if n := len(p.results); n > 0 {
			p.selectedIdx = (p.selectedIdx + 1) % n
			p.changed()
		}
	case tcell.KeyEnter:
		p.choose()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(p.query) == 0 {
			p.Hide()
			return true
		}
		p.query = p.query[:len(p.query)-1]
		p.selectedIdx = 0
		p.refresh()
	case tcell.KeyRune:
		p.query = append(p.query, ev.Rune())
		p.selectedIdx = 0
		p.refresh()
	}
	return true
}

func (p *ProfilePicker) choose() {
	entry, ok := p.Selected()
	if !ok {
		return
	}
	if entry.Locked {
		log.Printf("Profiles: %s is in use by another instance", entry.Name)
		return
	}
	p.Hide()
	name := entry.Name
	if name == NoProfile {
		log.Printf("Profiles: starting without a profile")
		name = ""
	} else {
		log.Printf("Profiles: selected %s", name)
	}
	if p.OnSelect != nil {
		p.OnSelect(name)
	}
}

func (p *ProfilePicker) refresh() {
	p.results = p.Filter(string(p.query))
	if p.selectedIdx >= len(p.results) {
		p.selectedIdx = 0
	}
	p.changed()
}

func (p *ProfilePicker) changed() {
	if p.OnChange != nil {
		p.OnChange()
	}
}

// Draw paints the overlay when visible.
func (p *ProfilePicker) Draw() {
	if !p.visible || p.screen == nil {
		return
	}
	width, height := p.screen.Size()
	boxW := min(width, 60)
	rows := len(p.results) + 3
	if p.top+rows > height {
		rows = height - p.top
	}
	if rows < 2 || boxW < 4 {
		return
	}
	x0 := (width - boxW) / 2
	for y := p.top; y < p.top+rows; y++ {
		for x := x0; x < x0+boxW; x++ {
			p.screen.SetContent(x, y, ' ', nil, p.styles.Frame)
		}
	}
	drawText(p.screen, x0+1, p.top, x0+boxW-1, "Profile: "+string(p.query), p.styles.Prompt)
	for i, e := range p.results {
		y := p.top + 2 + i
		if y >= p.top+rows {
			break
		}
		style := p.styles.Normal
		if i == p.selectedIdx {
			style = p.styles.Selected
		}
		text := e.Name
		if e.Locked {
			text += " (in use)"
		}
		drawText(p.screen, x0+1, y, x0+boxW-1, text, style)
	}
}
