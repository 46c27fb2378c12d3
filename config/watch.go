// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/watch.go
// Summary: Reloads config.toml when it changes on disk.

package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the reloaded configuration after every write to
// the loaded file. onChange runs on a watcher goroutine; a reload that fails
// to parse is passed as err and the previous configuration stays valid.
// Watch is a no-op for a configuration built from defaults.
func (c *Config) Watch(onChange func(*Config, error)) {
	if c.Path == "" || c.v == nil {
		return
	}
	v := c.v
	path := c.Path
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		log.Printf("Config: %s changed (%s), reloading", path, ev.Op)
		next, err := decode(v)
		if err != nil {
			log.Printf("Config: reload failed: %v", err)
			onChange(nil, err)
			return
		}
		next.Path = path
		onChange(next, nil)
	})
	v.WatchConfig()
}
