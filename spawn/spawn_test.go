// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: spawn/spawn_test.go
// Summary: Exercises environment overrides and detached process creation.
// Usage: Executed during `go test` to guard against regressions.

package spawn

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDisplayEnvApply(t *testing.T) {
	env := DisplayEnv("wayland-3", 42, "/run/user/1/waymux/42.sock")
	base := []string{"HOME=/home/u", "DISPLAY=:0", "WAYLAND_SOCKET=5", "WAYLAND_DISPLAY=wayland-0"}
	got := env.Apply(base)

	for _, kv := range got {
		if strings.HasPrefix(kv, "DISPLAY=") || strings.HasPrefix(kv, "WAYLAND_SOCKET=") {
			t.Fatalf("inherited display variable kept: %s", kv)
		}
	}
	for _, want := range []string{"HOME=/home/u", "WAYLAND_DISPLAY=wayland-3", "WAYMUX_PID=42", "WAYMUX_SOCKET=/run/user/1/waymux/42.sock"} {
		if !slices.Contains(got, want) {
			t.Fatalf("expected %s in %v", want, got)
		}
	}
	if slices.Contains(got, "WAYLAND_DISPLAY=wayland-0") {
		t.Fatalf("ambient display must be replaced")
	}
}

func TestEnvWithDoesNotAlias(t *testing.T) {
	base := DisplayEnv("", 1, "")
	extended := base.With(map[string]string{"EDITOR": "vi"})
	if _, ok := base.Set["EDITOR"]; ok {
		t.Fatalf("With must not mutate the receiver")
	}
	if extended.Set["EDITOR"] != "vi" || extended.Set[EnvPID] != "1" {
		t.Fatalf("unexpected env %+v", extended.Set)
	}
}

func TestPrepareArgvFirefox(t *testing.T) {
	got := PrepareArgv([]string{"firefox", "https://example.org"})
	want := []string{"firefox", "--new-instance", "https://example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	already := []string{"/usr/bin/firefox-bin", "--new-instance"}
	if got := PrepareArgv(already); !reflect.DeepEqual(got, already) {
		t.Fatalf("flag must not be duplicated: %v", got)
	}
	other := []string{"foot"}
	if got := PrepareArgv(other); !reflect.DeepEqual(got, other) {
		t.Fatalf("unexpected change %v", got)
	}
}

func TestDetachedSpawn(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")
	exited := make(chan error, 1)
	d := &Detached{OnExit: func(pid int, err error) { exited <- err }}

	env := DisplayEnv("wayland-9", os.Getpid(), "")
	env.Dir = dir
	pid, err := d.Spawn([]string{"sh", "-c", "echo $WAYLAND_DISPLAY > env.txt"}, env)
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("unexpected pid %d", pid)
	}
	select {
	case err := <-exited:
		if err != nil {
			t.Fatalf("child failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("child did not exit")
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "wayland-9" {
		t.Fatalf("unexpected display %q", data)
	}
}

func TestDetachedSpawnErrors(t *testing.T) {
	d := &Detached{}
	if _, err := d.Spawn(nil, Env{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := d.Spawn([]string{"/nonexistent/waymux-test-binary"}, Env{}); err == nil {
		t.Fatalf("expected start failure")
	}
}
