// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: defaults/embedded.go
// Summary: Embedded default configuration and example profile.

package defaults

import (
	"embed"
)

//go:embed config.toml profile.toml
var fs embed.FS

// ConfigTOML returns the default config.toml.
func ConfigTOML() ([]byte, error) {
	return fs.ReadFile("config.toml")
}

// ProfileTOML returns the example profile.
func ProfileTOML() ([]byte, error) {
	return fs.ReadFile("profile.toml")
}
