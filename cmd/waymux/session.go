// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/waymux/session.go
// Summary: Ends the instance when the primary command exits.

package main

import (
	"github.com/framegrace/waymux/internal/host"
	"github.com/framegrace/waymux/internal/ptyview"
)

// session forwards view events to the host and reports the exit status of
// the primary command. Runs on the event loop.
type session struct {
	*host.Host
	primary int
	exit    chan int
}

func (s *session) ViewUnmapped(v *ptyview.View) {
	s.Host.ViewUnmapped(v)
	if s.primary != 0 && v.PID() == s.primary {
		select {
		case s.exit <- v.ExitCode():
		default:
		}
	}
}
