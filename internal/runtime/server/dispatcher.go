// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/dispatcher.go
// Summary: Maps control commands onto the tab registry, the spawner and the launcher.
// Usage: Installed as the Server Handler; runs on the event loop.

package server

import (
	"log"

	"github.com/framegrace/waymux/protocol"
	"github.com/framegrace/waymux/spawn"
	"github.com/framegrace/waymux/tabs"
)

// Launcher is shown by show-launcher.
type Launcher interface {
	Show()
}

// Dispatcher turns a command line into a registry operation and a response.
type Dispatcher struct {
	registry *tabs.Registry
	spawner  spawn.Spawner
	env      func() spawn.Env
	launcher Launcher
}

// NewDispatcher wires the collaborators. env is evaluated per spawn and may
// be nil; launcher may be nil.
func NewDispatcher(registry *tabs.Registry, spawner spawn.Spawner, env func() spawn.Env, launcher Launcher) *Dispatcher {
	return &Dispatcher{registry: registry, spawner: spawner, env: env, launcher: launcher}
}

// Handle implements Handler.
func (d *Dispatcher) Handle(line string) protocol.Response {
	req := protocol.ParseRequest(line)
	debugLog.Printf("control: command %q", req.Line())
	switch req.Verb {
	case protocol.VerbListTabs:
		return d.listTabs()
	case protocol.VerbFocusTab:
		return d.focusTab(req.Args)
	case protocol.VerbCloseTab:
		return d.closeTab(req.Args)
	case protocol.VerbNewTab:
		return d.newTab(req)
	case protocol.VerbShowLauncher:
		if d.launcher != nil {
			d.launcher.Show()
		}
		return protocol.Ack()
	default:
		return protocol.Error(protocol.MsgUnknownCommand)
	}
}

func (d *Dispatcher) listTabs() protocol.Response {
	all := d.registry.Tabs()
	lines := make([]string, 0, len(all))
	for i, t := range all {
		lines = append(lines, protocol.TabLine(i, t.AppID(), t.Title()))
	}
	return protocol.List(lines)
}

func (d *Dispatcher) lookup(args []string) (*tabs.Tab, protocol.Response, bool) {
	idx, msg := protocol.ParseIndex(args)
	if msg != "" {
		return nil, protocol.Error(msg), false
	}
	t := d.registry.TabAt(idx)
	if t == nil {
		return nil, protocol.Error(protocol.MsgIndexOutOfRange), false
	}
	return t, protocol.Response{}, true
}

func (d *Dispatcher) focusTab(args []string) protocol.Response {
	t, resp, ok := d.lookup(args)
	if !ok {
		return resp
	}
	d.registry.Activate(t)
	return protocol.Ack()
}

func (d *Dispatcher) closeTab(args []string) protocol.Response {
	force := len(args) > 0 && args[0] == protocol.ForceFlag
	if force {
		args = args[1:]
	}
	t, resp, ok := d.lookup(args)
	if !ok {
		return resp
	}
	if force {
		d.registry.Kill(t)
	} else {
		d.registry.Destroy(t)
	}
	return protocol.Ack()
}

func (d *Dispatcher) newTab(req protocol.Request) protocol.Response {
	argv, msg := req.Command()
	if msg != "" {
		return protocol.Error(msg)
	}
	if d.spawner == nil {
		return protocol.Error(protocol.MsgFailedToFork)
	}
	var env spawn.Env
	if d.env != nil {
		env = d.env()
	}
	pid, err := d.spawner.Spawn(argv, env)
	if err != nil {
		log.Printf("control: new-tab %v: %v", argv, err)
		return protocol.Error(protocol.MsgFailedToFork)
	}
	debugLog.Printf("control: new-tab started pid %d", pid)
	return protocol.Ack()
}
