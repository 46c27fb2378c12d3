// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: profile/profile.go
// Summary: Session profiles: a named set of tabs spawned when an instance starts.
// Usage: cmd/waymux loads the profile named on its command line and spawns each tab.

package profile

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/spawn"
)

var (
	ErrNotFound    = errors.New("profile: not found")
	ErrInvalidName = errors.New("profile: invalid name")
)

// Tab is one [[tabs]] entry.
type Tab struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	Title      string   `mapstructure:"title"`
	Background bool     `mapstructure:"background"`
}

// Profile is a decoded <name>.toml.
type Profile struct {
	Name         string            `mapstructure:"-"`
	Path         string            `mapstructure:"-"`
	WorkingDir   string            `mapstructure:"working_dir"`
	ProxyCommand any               `mapstructure:"proxy_command"`
	Env          map[string]string `mapstructure:"-"`
	Tabs         []Tab             `mapstructure:"tabs"`

	proxy []string
}

func searchDirs() []string {
	dirs := []string{"."}
	return append(dirs, config.ProfileDirs()...)
}

// Find returns the path of <name>.toml: the working directory first, then
// the profiles.d directories.
func Find(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, dir := range searchDirs() {
		path := filepath.Join(dir, name+".toml")
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load finds and decodes the named profile.
func Load(name string) (*Profile, error) {
	path, err := Find(name)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	p := &Profile{Name: name, Path: path}
	if err := v.Unmarshal(p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	// viper folds keys to lower case; environment names keep the case
	// written in the file.
	env, err := envTable(path)
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	p.Env = env
	if p.ProxyCommand != nil {
		proxy, err := config.ToArgv(p.ProxyCommand)
		if err != nil {
			return nil, fmt.Errorf("profile %s: proxy_command: %w", name, err)
		}
		p.proxy = proxy
	}
	kept := p.Tabs[:0]
	for i, t := range p.Tabs {
		if strings.TrimSpace(t.Command) == "" {
			log.Printf("profile: %s: tab %d has no command, skipped", name, i)
			continue
		}
		kept = append(kept, t)
	}
	p.Tabs = kept
	log.Printf("profile: loaded %q with %d tabs", name, len(p.Tabs))
	return p, nil
}

func envTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Env map[string]any `toml:"env"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	env := make(map[string]string, len(doc.Env))
	for k, val := range doc.Env {
		s, ok := val.(string)
		if !ok {
			log.Printf("profile: env %s is not a string, skipped", k)
			continue
		}
		env[k] = s
	}
	return env, nil
}

// Argv is the command line of t, prefixed by the proxy command.
func (p *Profile) Argv(t Tab) []string {
	argv := make([]string, 0, len(p.proxy)+1+len(t.Args))
	argv = append(argv, p.proxy...)
	argv = append(argv, t.Command)
	return append(argv, t.Args...)
}

// SpawnEnv layers the profile environment and working directory on base.
func (p *Profile) SpawnEnv(base spawn.Env, t Tab) spawn.Env {
	env := base.With(p.Env)
	env.Dir = p.WorkingDir
	env.Title = t.Title
	return env
}

// BackgroundCount is the number of tabs flagged background.
func (p *Profile) BackgroundCount() int {
	n := 0
	for _, t := range p.Tabs {
		if t.Background {
			n++
		}
	}
	return n
}

// List returns the profile names found in every search directory, sorted.
func List() []string {
	seen := make(map[string]bool)
	for _, dir := range searchDirs() {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.toml"))
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ".toml")
			if name == "config" {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
