// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/ptyview/view.go
// Summary: A pty-hosted program exposed as a tab view.

package ptyview

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
)

// maxPartial bounds an unterminated output line.
const maxPartial = 4096

// OSC 0 and OSC 2 set the window title; BEL or ST terminate them.
var titleSeq = regexp.MustCompile("\x1b\\][02];([^\x07\x1b]*)(?:\x07|\x1b\\\\)")

// View implements tabs.View and tabs.Killer for a pty child.
type View struct {
	backend *Backend
	argv    []string
	appID   string
	cmd     *exec.Cmd
	pty     *os.File
	pid     int
	done    chan struct{}
	dirty   atomic.Bool
	// exitCode is valid once done is closed.
	exitCode int

	mu      sync.Mutex
	title   string
	active  bool
	lines   []string
	partial []byte
}

func newView(b *Backend, argv []string, title string) *View {
	appID := ""
	if len(argv) > 0 {
		appID = filepath.Base(argv[0])
	}
	if title == "" {
		title = strings.Join(argv, " ")
	}
	return &View{
		backend: b,
		argv:    argv,
		appID:   appID,
		title:   title,
		done:    make(chan struct{}),
	}
}

// PID of the child process.
func (v *View) PID() int { return v.pid }

// Done is closed once the child exited.
func (v *View) Done() <-chan struct{} { return v.done }

// ExitCode is the child's exit status, -1 while it runs or when it was
// killed by a signal.
func (v *View) ExitCode() int {
	select {
	case <-v.done:
		return v.exitCode
	default:
		return -1
	}
}

// Close hangs up the child's session.
func (v *View) Close() { v.signal(syscall.SIGHUP) }

// Kill terminates the child's session immediately.
func (v *View) Kill() { v.signal(syscall.SIGKILL) }

func (v *View) signal(sig syscall.Signal) {
	if v.pid <= 0 {
		return
	}
	select {
	case <-v.done:
		return
	default:
	}
	// The child leads its own session, so -pid reaches the whole group.
	if err := syscall.Kill(-v.pid, sig); err != nil {
		debugLog.Printf("ptyview: signal %v to %d: %v", sig, v.pid, err)
	}
}

func (v *View) Activate(active bool) {
	v.mu.Lock()
	v.active = active
	v.mu.Unlock()
}

// Active reports the last Activate value.
func (v *View) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Position resizes the pty to the content area.
func (v *View) Position() {
	if v.pty == nil || v.backend == nil {
		return
	}
	cols, rows := v.backend.Size()
	if err := pty.Setsize(v.pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		debugLog.Printf("ptyview: resize %d: %v", v.pid, err)
	}
}

func (v *View) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title
}

func (v *View) AppID() string { return v.appID }

// Write forwards input to the child.
func (v *View) Write(p []byte) (int, error) {
	if v.pty == nil {
		return 0, os.ErrClosed
	}
	return v.pty.Write(p)
}

// Snapshot returns the last rows output lines, the unterminated line last.
func (v *View) Snapshot(rows int) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	all := v.lines
	if len(v.partial) > 0 {
		all = append(all[:len(all):len(all)], cleanLine(v.partial))
	}
	if rows <= 0 || rows >= len(all) {
		return append([]string(nil), all...)
	}
	return append([]string(nil), all[len(all)-rows:]...)
}

// consume appends raw pty output.
func (v *View) consume(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.partial = append(v.partial, data...)
	if m := titleSeq.FindAllSubmatch(v.partial, -1); len(m) > 0 {
		v.title = string(m[len(m)-1][1])
		v.partial = titleSeq.ReplaceAll(v.partial, nil)
	}
	for {
		i := bytes.IndexByte(v.partial, '\n')
		if i < 0 {
			break
		}
		v.appendLine(cleanLine(v.partial[:i]))
		v.partial = v.partial[i+1:]
	}
	if len(v.partial) > maxPartial {
		v.appendLine(cleanLine(v.partial))
		v.partial = nil
	}
	v.partial = append([]byte(nil), v.partial...)
}

func (v *View) appendLine(line string) {
	limit := DefaultScrollback
	if v.backend != nil && v.backend.scrollback > 0 {
		limit = v.backend.scrollback
	}
	v.lines = append(v.lines, line)
	if over := len(v.lines) - limit; over > 0 {
		v.lines = append(v.lines[:0:0], v.lines[over:]...)
	}
}

// cleanLine drops escape sequences and keeps the text after the last
// carriage return.
func cleanLine(raw []byte) string {
	s := ansi.Strip(string(raw))
	s = strings.TrimRight(s, "\r")
	if i := strings.LastIndexByte(s, '\r'); i >= 0 {
		s = s[i+1:]
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
