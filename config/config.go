// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: Loads config.toml with viper, applying defaults and WAYMUX_ environment overrides.
// Usage: cmd/waymux calls Load with the -c flag value (possibly empty) at startup.

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/framegrace/waymux/keybinding"
)

// ErrNotFound is returned when an explicit config path does not exist.
var ErrNotFound = errors.New("config: file not found")

const (
	DefaultBufferSize = 4096
	DefaultMaxClients = 64
	DefaultMaxResults = 20
	DefaultMaxLabel   = 28
)

// Config is the decoded config.toml.
type Config struct {
	Keybindings map[string]string `mapstructure:"keybindings"`
	Control     ControlConfig     `mapstructure:"control"`
	Launcher    LauncherConfig    `mapstructure:"launcher"`
	TabBar      TabBarConfig      `mapstructure:"tabbar"`
	Log         LogConfig         `mapstructure:"log"`

	// Path is the file that was read, empty when running on defaults.
	Path string `mapstructure:"-"`
	// Bindings is Keybindings parsed on top of the defaults.
	Bindings keybinding.Map `mapstructure:"-"`

	v *viper.Viper
}

// ControlConfig holds control socket limits.
type ControlConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	MaxClients int `mapstructure:"max_clients"`
}

// LauncherConfig lists launchable programs.
type LauncherConfig struct {
	MaxResults int             `mapstructure:"max_results"`
	Entries    []LauncherEntry `mapstructure:"entries"`
}

// LauncherEntry is one [[launcher.entries]] table. Command is a string
// (split on whitespace) or an array. Detached entries run outside any tab,
// for programs that open their own window on the display.
type LauncherEntry struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Command     any    `mapstructure:"command"`
	Detached    bool   `mapstructure:"detached"`
}

// Argv returns the entry command as an argument vector.
func (e LauncherEntry) Argv() ([]string, error) {
	return ToArgv(e.Command)
}

// TabBarConfig holds tab bar presentation settings.
type TabBarConfig struct {
	MaxLabel int `mapstructure:"max_label"`
}

// LogConfig selects the log destination.
type LogConfig struct {
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("control.buffer_size", DefaultBufferSize)
	v.SetDefault("control.max_clients", DefaultMaxClients)
	v.SetDefault("launcher.max_results", DefaultMaxResults)
	v.SetDefault("tabbar.max_label", DefaultMaxLabel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.verbose", false)
}

// Load reads the configuration. An explicit path must exist; otherwise the
// first existing candidate is used, and defaults apply when none exists.
// Parse errors and invalid keybindings are returned.
func Load(explicit string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix("WAYMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolvePath(explicit)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Printf("Config: loaded %s", path)
	} else {
		log.Printf("Config: no config file found, using defaults")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, explicit)
		}
		return explicit, nil
	}
	for _, candidate := range ConfigCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	bindings, err := keybinding.ParseMap(cfg.Keybindings)
	if err != nil {
		return nil, fmt.Errorf("keybindings: %w", err)
	}
	cfg.Bindings = bindings
	for i, entry := range cfg.Launcher.Entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("launcher entry %d: missing name", i)
		}
		if _, err := entry.Argv(); err != nil {
			return nil, fmt.Errorf("launcher entry %q: %w", entry.Name, err)
		}
	}
	if cfg.Control.BufferSize <= 0 {
		cfg.Control.BufferSize = DefaultBufferSize
	}
	if cfg.Control.MaxClients <= 0 {
		cfg.Control.MaxClients = DefaultMaxClients
	}
	if cfg.Launcher.MaxResults <= 0 {
		cfg.Launcher.MaxResults = DefaultMaxResults
	}
	return cfg, nil
}

// ToArgv accepts a whitespace separated string or an array of strings.
func ToArgv(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errors.New("missing command")
	case string:
		argv := strings.Fields(v)
		if len(argv) == 0 {
			return nil, errors.New("empty command")
		}
		return argv, nil
	case []string:
		if len(v) == 0 {
			return nil, errors.New("empty command")
		}
		return v, nil
	case []any:
		argv := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command element %v is not a string", item)
			}
			argv = append(argv, s)
		}
		if len(argv) == 0 {
			return nil, errors.New("empty command")
		}
		return argv, nil
	default:
		return nil, fmt.Errorf("unsupported command type %T", raw)
	}
}
