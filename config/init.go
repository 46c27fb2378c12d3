// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/init.go
// Summary: Writes the embedded default config.toml and example profile.
// Usage: waymux --init-config.

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/framegrace/waymux/defaults"
)

// ErrExists is returned when WriteDefault would overwrite a file.
var ErrExists = errors.New("config: file already exists")

// WriteDefault writes the default configuration to path, or to the first
// config candidate when path is empty, and an example profile next to it
// in profiles.d. Existing files are never overwritten.
func WriteDefault(path string) (string, error) {
	if path == "" {
		candidates := ConfigCandidates()
		if len(candidates) == 0 {
			return "", errors.New("config: no configuration directory")
		}
		path = candidates[0]
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	data, err := defaults.ConfigTOML()
	if err != nil {
		return "", err
	}
	if err := writeNew(path, data); err != nil {
		return "", err
	}
	log.Printf("Config: wrote default configuration to %s", path)

	example := filepath.Join(filepath.Dir(path), "profiles.d", "example.toml")
	if _, err := os.Stat(example); errors.Is(err, os.ErrNotExist) {
		profile, err := defaults.ProfileTOML()
		if err != nil {
			return path, err
		}
		if err := writeNew(example, profile); err != nil {
			return path, err
		}
	}
	return path, nil
}

func writeNew(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
