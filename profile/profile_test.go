// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/framegrace/waymux/spawn"
)

const devProfile = `
working_dir = "/srv/project"
proxy_command = ["ssh", "-t", "devbox"]

[env]
EDITOR = "vim"
GOFLAGS = "-mod=mod"

[[tabs]]
command = "foot"
title = "Shell"

[[tabs]]
command = "htop"
args = ["-d", "10"]
background = true

[[tabs]]
title = "no command"
`

func setupProfileDir(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	dir := filepath.Join(xdg, "waymux", "profiles.d")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Keep the working directory free of stray profiles.
	t.Chdir(t.TempDir())
	return dir
}

func TestLoadProfile(t *testing.T) {
	dir := setupProfileDir(t)
	if err := os.WriteFile(filepath.Join(dir, "dev.toml"), []byte(devProfile), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load("dev")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.WorkingDir != "/srv/project" {
		t.Fatalf("unexpected working dir %q", p.WorkingDir)
	}
	if len(p.Tabs) != 2 {
		t.Fatalf("tab without command should be skipped, got %d tabs", len(p.Tabs))
	}
	if p.BackgroundCount() != 1 {
		t.Fatalf("expected 1 background tab, got %d", p.BackgroundCount())
	}
	if p.Env["EDITOR"] != "vim" || p.Env["GOFLAGS"] != "-mod=mod" {
		t.Fatalf("environment names must keep their case: %v", p.Env)
	}

	argv := p.Argv(p.Tabs[1])
	want := []string{"ssh", "-t", "devbox", "htop", "-d", "10"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("got %v want %v", argv, want)
	}

	env := p.SpawnEnv(spawn.DisplayEnv("wayland-1", 5, ""), p.Tabs[0])
	if env.Dir != "/srv/project" || env.Title != "Shell" || env.Set["EDITOR"] != "vim" {
		t.Fatalf("unexpected spawn env %+v", env)
	}
	if env.Set[spawn.EnvWaylandDisplay] != "wayland-1" {
		t.Fatalf("display override lost")
	}
}

func TestLoadProfileStringProxy(t *testing.T) {
	dir := setupProfileDir(t)
	content := "proxy_command = \"toolbox run\"\n[[tabs]]\ncommand = \"foot\"\n"
	if err := os.WriteFile(filepath.Join(dir, "box.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load("box")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.Argv(p.Tabs[0]); !reflect.DeepEqual(got, []string{"toolbox", "run", "foot"}) {
		t.Fatalf("unexpected argv %v", got)
	}
}

func TestWorkingDirectoryWins(t *testing.T) {
	dir := setupProfileDir(t)
	if err := os.WriteFile(filepath.Join(dir, "dup.toml"), []byte("[[tabs]]\ncommand = \"a\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile("dup.toml", []byte("[[tabs]]\ncommand = \"b\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load("dup")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Tabs[0].Command != "b" {
		t.Fatalf("profile in the working directory should win")
	}
	if got := List(); !reflect.DeepEqual(got, []string{"dup"}) {
		t.Fatalf("unexpected profile list %v", got)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	setupProfileDir(t)
	if _, err := Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Load("../etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}
