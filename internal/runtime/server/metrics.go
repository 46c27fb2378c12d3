// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/metrics.go
// Summary: Command observers for the control server.
// Usage: Pass a CommandLogger in Options.Observer to log every command with its outcome and latency.

package server

import (
	"log"
	"strings"
	"time"

	"github.com/framegrace/waymux/protocol"
)

// CommandObserver is told about every dispatched command line.
type CommandObserver interface {
	ObserveCommand(line string, resp protocol.Response, duration time.Duration)
}

// CommandLogger logs command metrics to the provided logger.
type CommandLogger struct {
	logger *log.Logger
}

// NewCommandLogger creates an observer that logs to l, or the default logger.
func NewCommandLogger(l *log.Logger) *CommandLogger {
	if l == nil {
		l = log.Default()
	}
	return &CommandLogger{logger: l}
}

func (c *CommandLogger) ObserveCommand(line string, resp protocol.Response, duration time.Duration) {
	if c == nil || c.logger == nil {
		return
	}
	verb, _, _ := strings.Cut(line, " ")
	status := "ok"
	if !resp.OK {
		status = "error: " + resp.Message
	}
	c.logger.Printf("control command=%s status=%q duration=%s", verb, status, duration)
}
