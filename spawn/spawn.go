// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: spawn/spawn.go
// Summary: Process creation bound to the display context of the running instance.
// Usage: The control server, the launcher and profile bootstrap start programs through a Spawner.

package spawn

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// Environment variables exported to children.
const (
	EnvPID            = "WAYMUX_PID"
	EnvSocket         = "WAYMUX_SOCKET"
	EnvWaylandDisplay = "WAYLAND_DISPLAY"
	EnvWaylandSocket  = "WAYLAND_SOCKET"
	EnvX11Display     = "DISPLAY"
)

// ErrEmptyCommand is returned for an empty argv.
var ErrEmptyCommand = errors.New("spawn: empty command")

// Spawner starts a process and returns its pid.
type Spawner interface {
	Spawn(argv []string, env Env) (int, error)
}

// Func adapts a function to Spawner.
type Func func(argv []string, env Env) (int, error)

func (f Func) Spawn(argv []string, env Env) (int, error) { return f(argv, env) }

// Env lists overrides applied on top of the parent environment.
type Env struct {
	Set   map[string]string
	Unset []string
	Dir   string
	// Title is an initial tab title for backends that host the view.
	Title string
}

// DisplayEnv points children at this instance: the display variable is
// redirected, inherited display sockets are dropped.
func DisplayEnv(display string, pid int, controlSocket string) Env {
	env := Env{
		Set: map[string]string{
			EnvPID: strconv.Itoa(pid),
		},
		Unset: []string{EnvWaylandSocket, EnvX11Display},
	}
	if controlSocket != "" {
		env.Set[EnvSocket] = controlSocket
	}
	if display != "" {
		env.Set[EnvWaylandDisplay] = display
	}
	return env
}

// With returns a copy of e with extra variables set.
func (e Env) With(extra map[string]string) Env {
	out := Env{Set: make(map[string]string, len(e.Set)+len(extra)), Dir: e.Dir, Title: e.Title}
	out.Unset = append(out.Unset, e.Unset...)
	for k, v := range e.Set {
		out.Set[k] = v
	}
	for k, v := range extra {
		out.Set[k] = v
	}
	return out
}

// Apply merges the overrides into base (KEY=VALUE form).
func (e Env) Apply(base []string) []string {
	out := make([]string, 0, len(base)+len(e.Set))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if slices.Contains(e.Unset, key) {
			continue
		}
		if _, ok := e.Set[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(e.Set))
	for k := range e.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+e.Set[k])
	}
	return out
}

// PrepareArgv adjusts argv before exec. Firefox is single-instance by
// default and would open in an existing window elsewhere.
func PrepareArgv(argv []string) []string {
	if len(argv) == 0 {
		return argv
	}
	switch filepath.Base(argv[0]) {
	case "firefox", "firefox-bin":
		if !slices.Contains(argv[1:], "--new-instance") {
			out := make([]string, 0, len(argv)+1)
			out = append(out, argv[0], "--new-instance")
			return append(out, argv[1:]...)
		}
	}
	return argv
}

// Detached starts programs in their own session and reaps them when they exit.
type Detached struct {
	Stdout io.Writer
	Stderr io.Writer
	// OnExit is called from the reaping goroutine.
	OnExit func(pid int, err error)
}

// Spawn implements Spawner.
func (d *Detached) Spawn(argv []string, env Env) (int, error) {
	if len(argv) == 0 {
		return 0, ErrEmptyCommand
	}
	argv = PrepareArgv(argv)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env.Apply(os.Environ())
	cmd.Dir = env.Dir
	cmd.Stdout = d.Stdout
	cmd.Stderr = d.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	log.Printf("spawn: started %s (pid %d)", argv[0], pid)
	go func() {
		err := cmd.Wait()
		if d.OnExit != nil {
			d.OnExit(pid, err)
		}
	}()
	return pid, nil
}
