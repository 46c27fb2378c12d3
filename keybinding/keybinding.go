// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: keybinding/keybinding.go
// Summary: Parses "Super+Shift+B" style bindings and matches them against tcell key events.
// Usage: config.Load turns the [keybindings] table into a Map; the host looks actions up per key event.

package keybinding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// Action names a host operation bound to a key.
type Action string

const (
	ActionNextTab              Action = "next_tab"
	ActionPrevTab              Action = "prev_tab"
	ActionCloseTab             Action = "close_tab"
	ActionOpenLauncher         Action = "open_launcher"
	ActionToggleBackground     Action = "toggle_background"
	ActionShowBackgroundDialog Action = "show_background_dialog"
)

// Actions lists every bindable action.
var Actions = []Action{
	ActionNextTab,
	ActionPrevTab,
	ActionCloseTab,
	ActionOpenLauncher,
	ActionToggleBackground,
	ActionShowBackgroundDialog,
}

var (
	ErrEmpty         = errors.New("keybinding: empty binding")
	ErrNoKey         = errors.New("keybinding: no key after modifiers")
	ErrMultipleKeys  = errors.New("keybinding: more than one key")
	ErrUnknownKey    = errors.New("keybinding: unknown key")
	ErrUnknownAction = errors.New("keybinding: unknown action")
)

const modMask = tcell.ModShift | tcell.ModCtrl | tcell.ModAlt | tcell.ModMeta

// Binding is a set of modifiers plus exactly one key.
type Binding struct {
	Mods tcell.ModMask
	Key  tcell.Key
	Rune rune // lower case, set when Key is tcell.KeyRune
}

var keysByName = func() map[string]tcell.Key {
	m := make(map[string]tcell.Key, len(tcell.KeyNames))
	for k, name := range tcell.KeyNames {
		m[strings.ToLower(name)] = k
	}
	m["escape"] = tcell.KeyEscape
	m["return"] = tcell.KeyEnter
	m["backspace"] = tcell.KeyBackspace2
	return m
}()

func parseModifier(s string) (tcell.ModMask, bool) {
	switch strings.ToLower(s) {
	case "super", "mod4", "meta", "logo":
		return tcell.ModMeta, true
	case "ctrl", "control":
		return tcell.ModCtrl, true
	case "alt", "mod1":
		return tcell.ModAlt, true
	case "shift":
		return tcell.ModShift, true
	}
	return 0, false
}

// Parse reads a binding such as "Super+J" or "Ctrl+Alt+F2".
func Parse(s string) (Binding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Binding{}, ErrEmpty
	}
	var b Binding
	haveKey := false
	for _, part := range strings.Split(s, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Binding{}, fmt.Errorf("%w: %q", ErrEmpty, s)
		}
		if mod, ok := parseModifier(part); ok {
			b.Mods |= mod
			continue
		}
		if haveKey {
			return Binding{}, fmt.Errorf("%w: %q", ErrMultipleKeys, s)
		}
		if err := b.setKey(part); err != nil {
			return Binding{}, fmt.Errorf("%w: %q", err, s)
		}
		haveKey = true
	}
	if !haveKey {
		return Binding{}, fmt.Errorf("%w: %q", ErrNoKey, s)
	}
	return b, nil
}

func (b *Binding) setKey(name string) error {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		b.Key = tcell.KeyRune
		b.Rune = unicode.ToLower(r)
		return nil
	}
	lower := strings.ToLower(name)
	if lower == "space" {
		b.Key = tcell.KeyRune
		b.Rune = ' '
		return nil
	}
	if k, ok := keysByName[lower]; ok {
		b.Key = k
		return nil
	}
	return ErrUnknownKey
}

// Matches reports whether ev is this binding.
func (b Binding) Matches(ev *tcell.EventKey) bool {
	mods := ev.Modifiers() & modMask
	switch {
	case b.Key == tcell.KeyRune && ev.Key() == tcell.KeyRune:
		r := ev.Rune()
		if unicode.IsUpper(r) {
			mods |= tcell.ModShift
		}
		return unicode.ToLower(r) == b.Rune && mods == b.Mods
	case b.Key == tcell.KeyRune && b.Mods&tcell.ModCtrl != 0 && b.Rune >= 'a' && b.Rune <= 'z':
		// Terminals report Ctrl+letter as a control key.
		return ev.Key() == tcell.KeyCtrlA+tcell.Key(b.Rune-'a') && mods|tcell.ModCtrl == b.Mods
	default:
		return ev.Key() == b.Key && mods == b.Mods
	}
}

func (b Binding) String() string {
	var parts []string
	if b.Mods&tcell.ModMeta != 0 {
		parts = append(parts, "Super")
	}
	if b.Mods&tcell.ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if b.Mods&tcell.ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if b.Mods&tcell.ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if b.Key == tcell.KeyRune {
		if b.Rune == ' ' {
			parts = append(parts, "Space")
		} else {
			parts = append(parts, strings.ToUpper(string(b.Rune)))
		}
	} else if name, ok := tcell.KeyNames[b.Key]; ok {
		parts = append(parts, name)
	}
	return strings.Join(parts, "+")
}

// Defaults returns the stock binding strings per action.
func Defaults() map[Action]string {
	return map[Action]string{
		ActionNextTab:              "Super+K",
		ActionPrevTab:              "Super+J",
		ActionCloseTab:             "Super+D",
		ActionOpenLauncher:         "Super+N",
		ActionToggleBackground:     "Super+B",
		ActionShowBackgroundDialog: "Super+Shift+B",
	}
}

// Map binds actions to keys.
type Map map[Action]Binding

// ParseMap starts from Defaults and applies overrides keyed by action name.
func ParseMap(overrides map[string]string) (Map, error) {
	specs := Defaults()
	for name, spec := range overrides {
		action := Action(name)
		if _, ok := specs[action]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
		}
		specs[action] = spec
	}
	m := make(Map, len(specs))
	for action, spec := range specs {
		b, err := Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", action, err)
		}
		m[action] = b
	}
	return m, nil
}

// Lookup returns the action bound to ev. Actions are tried in a fixed order
// so a duplicate binding resolves the same way every time.
func (m Map) Lookup(ev *tcell.EventKey) (Action, bool) {
	for _, action := range Actions {
		if b, ok := m[action]; ok && b.Matches(ev) {
			return action, true
		}
	}
	return "", false
}

// Describe lists the bindings as "action=Binding" in action name order.
func (m Map) Describe() []string {
	out := make([]string, 0, len(m))
	for action, b := range m {
		out = append(out, string(action)+"="+b.String())
	}
	sort.Strings(out)
	return out
}
