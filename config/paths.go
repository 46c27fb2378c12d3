// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/paths.go
// Summary: Path helpers for waymux configuration, profiles and runtime files.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const appName = "waymux"

// ErrNoRuntimeDir is returned when XDG_RUNTIME_DIR is unset.
var ErrNoRuntimeDir = errors.New("config: XDG_RUNTIME_DIR not set")

// configRoots lists $XDG_CONFIG_HOME/waymux then ~/.config/waymux, without
// duplicates.
func configRoots() []string {
	var roots []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		roots = append(roots, filepath.Join(xdg, appName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		legacy := filepath.Join(home, ".config", appName)
		if len(roots) == 0 || roots[0] != legacy {
			roots = append(roots, legacy)
		}
	}
	return roots
}

// ConfigCandidates are the config.toml locations in search order.
func ConfigCandidates() []string {
	roots := configRoots()
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		out = append(out, filepath.Join(root, "config.toml"))
	}
	return out
}

// ProfileDirs are the directories searched for <name>.toml after the
// working directory.
func ProfileDirs() []string {
	roots := configRoots()
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		out = append(out, filepath.Join(root, "profiles.d"))
	}
	return out
}

// RuntimeDir returns XDG_RUNTIME_DIR.
func RuntimeDir() (string, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", ErrNoRuntimeDir
	}
	return dir, nil
}

// SocketDir is <runtime>/waymux.
func SocketDir() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// SocketPath is the control socket of the instance with the given pid.
func SocketPath(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("config: invalid pid %d", pid)
	}
	dir, err := SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%d.sock", pid)), nil
}

// InstanceDBPath is the SQLite instance registry shared by all instances
// of the user.
func InstanceDBPath() (string, error) {
	dir, err := SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "instances.db"), nil
}

// LogPath is the default log file of the instance with the given pid.
func LogPath(pid int) (string, error) {
	dir, err := SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%d.log", pid)), nil
}
