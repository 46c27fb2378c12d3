// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/ptyview/backend.go
// Summary: Terminal backend that hosts each spawned program on its own pty.
// Usage: cmd/waymux installs a Backend as the Spawner; map and unmap events
//   are delivered to the Handler on the event loop.

package ptyview

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/spawn"
)

// DefaultScrollback is the number of output lines kept per view.
const DefaultScrollback = 500

// Handler receives view lifecycle events. All methods run on the loop.
type Handler interface {
	ViewMapped(v *View, env spawn.Env)
	ViewUnmapped(v *View)
	// ViewChanged reports new output or a title change.
	ViewChanged(v *View)
}

// Backend spawns programs on ptys sized to the content area.
type Backend struct {
	loop    *loop.Loop
	handler Handler

	mu         sync.Mutex
	cols, rows int
	scrollback int
	views      map[int]*View
	wg         sync.WaitGroup
}

// NewBackend returns a backend posting events for handler onto lp.
func NewBackend(lp *loop.Loop, handler Handler) *Backend {
	return &Backend{
		loop:       lp,
		handler:    handler,
		cols:       80,
		rows:       24,
		scrollback: DefaultScrollback,
		views:      make(map[int]*View),
	}
}

// SetHandler replaces the event handler. Call before the first Spawn.
func (b *Backend) SetHandler(h Handler) { b.handler = h }

// SetSize records the content area size used by View.Position.
func (b *Backend) SetSize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	b.mu.Lock()
	b.cols, b.rows = cols, rows
	b.mu.Unlock()
}

// Size returns the content area size.
func (b *Backend) Size() (cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cols, b.rows
}

// Spawn implements spawn.Spawner. The mapped event is queued before the
// output reader starts so that unmap always follows map.
func (b *Backend) Spawn(argv []string, env spawn.Env) (int, error) {
	if len(argv) == 0 {
		return 0, spawn.ErrEmptyCommand
	}
	argv = spawn.PrepareArgv(argv)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env.With(map[string]string{"TERM": "xterm-256color"}).Apply(os.Environ())
	cmd.Dir = env.Dir

	cols, rows := b.Size()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		log.Printf("ptyview: failed to start %s: %v", argv[0], err)
		return 0, fmt.Errorf("start %s: %w", argv[0], err)
	}

	v := newView(b, argv, env.Title)
	v.cmd = cmd
	v.pty = ptmx
	v.pid = cmd.Process.Pid

	b.mu.Lock()
	b.views[v.pid] = v
	b.mu.Unlock()
	log.Printf("ptyview: started %s (pid %d)", argv[0], v.pid)

	b.loop.Post(func() { b.handler.ViewMapped(v, env) })

	b.wg.Add(1)
	go b.run(v)
	return v.pid, nil
}

func (b *Backend) run(v *View) {
	defer b.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := v.pty.Read(buf)
		if n > 0 {
			v.consume(buf[:n])
			b.notifyChanged(v)
		}
		if err != nil {
			break
		}
	}
	err := v.cmd.Wait()
	v.pty.Close()
	v.exitCode = v.cmd.ProcessState.ExitCode()
	debugLog.Printf("ptyview: pid %d exited: %v", v.pid, err)

	b.mu.Lock()
	delete(b.views, v.pid)
	b.mu.Unlock()
	close(v.done)
	b.loop.Post(func() { b.handler.ViewUnmapped(v) })
}

func (b *Backend) notifyChanged(v *View) {
	if !v.dirty.CompareAndSwap(false, true) {
		return
	}
	b.loop.Post(func() {
		v.dirty.Store(false)
		b.handler.ViewChanged(v)
	})
}

// Count returns the number of live views.
func (b *Backend) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views)
}

func (b *Backend) live() []*View {
	b.mu.Lock()
	defer b.mu.Unlock()
	views := make([]*View, 0, len(b.views))
	for _, v := range b.views {
		views = append(views, v)
	}
	return views
}

// CloseAll asks every live view to close.
func (b *Backend) CloseAll() {
	for _, v := range b.live() {
		v.Close()
	}
}

// KillAll kills every live view.
func (b *Backend) KillAll() {
	for _, v := range b.live() {
		v.Kill()
	}
}

// Wait blocks until every reader goroutine finished.
func (b *Backend) Wait() { b.wg.Wait() }
