// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: tabs/tab.go
// Summary: Tab entries and the collaborator interfaces the registry drives.
// Usage: Views are supplied by a windowing backend; the registry only holds references.

package tabs

// View is one window surface owned by the windowing backend.
type View interface {
	// Close asks the surface to go away. The backend later reports the
	// unmap through Registry.ViewUnmapped.
	Close()
	Activate(active bool)
	// Position places the surface in the content area.
	Position()
	// Title and AppID return "" when the surface has none.
	Title() string
	AppID() string
}

// Killer is implemented by views that support an immediate kill.
type Killer interface {
	Kill()
}

// Bar is the tab bar renderer notified after every registry mutation.
type Bar interface {
	Update()
}

type nopBar struct{}

func (nopBar) Update() {}

// State is the lifecycle state of a Tab.
type State int

const (
	StateInactiveForeground State = iota
	StateInactiveBackground
	StateActive
	StateClosing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactiveForeground:
		return "inactive"
	case StateInactiveBackground:
		return "background"
	case StateClosing:
		return "closing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Tab binds an optional View to visibility and background flags.
type Tab struct {
	id         uint64
	view       View
	visible    bool
	background bool
	active     bool
	phase      State // only StateClosing or StateDestroyed once torn down
}

// ID is unique for the lifetime of the registry that created the tab.
func (t *Tab) ID() uint64 { return t.id }

// View returns the bound view, nil once destruction started.
func (t *Tab) View() View { return t.view }

func (t *Tab) Visible() bool    { return t.visible }
func (t *Tab) Background() bool { return t.background }

// State derives the lifecycle state from the tab flags.
func (t *Tab) State() State {
	switch {
	case t.phase == StateClosing || t.phase == StateDestroyed:
		return t.phase
	case t.active:
		return StateActive
	case t.background:
		return StateInactiveBackground
	default:
		return StateInactiveForeground
	}
}

// Title returns the view title, "" when absent.
func (t *Tab) Title() string {
	if t.view == nil {
		return ""
	}
	return t.view.Title()
}

// AppID returns the view application id, "" when absent.
func (t *Tab) AppID() string {
	if t.view == nil {
		return ""
	}
	return t.view.AppID()
}

// TabOption configures a tab at creation.
type TabOption func(*Tab)

// WithBackground creates the tab already flagged background.
func WithBackground() TabOption {
	return func(t *Tab) { t.background = true }
}
