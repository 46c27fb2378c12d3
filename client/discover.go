// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/discover.go
// Summary: Locates the control socket of a running instance.

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/spawn"
)

// ErrNoInstance is returned when no reachable control socket exists.
var ErrNoInstance = errors.New("client: no running instance found")

// HealthChecker verifies a control socket accepts connections.
type HealthChecker interface {
	Check(ctx context.Context, socketPath string) error
}

// SocketHealthChecker dials the socket and hangs up.
type SocketHealthChecker struct {
	timeout time.Duration
}

// NewSocketHealthChecker creates a health checker with the given timeout.
func NewSocketHealthChecker(timeout time.Duration) *SocketHealthChecker {
	return &SocketHealthChecker{timeout: timeout}
}

// Check implements HealthChecker.
func (h *SocketHealthChecker) Check(ctx context.Context, socketPath string) error {
	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to socket: %w", err)
	}
	return conn.Close()
}

// Discover resolves the control socket: explicit wins, then WAYMUX_SOCKET,
// then the socket of WAYMUX_PID, then the first socket in the socket
// directory (sorted by name) that accepts a connection.
func Discover(ctx context.Context, explicit string, checker HealthChecker) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path := os.Getenv(spawn.EnvSocket); path != "" {
		return path, nil
	}
	if pidStr := os.Getenv(spawn.EnvPID); pidStr != "" {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", spawn.EnvPID, pidStr, err)
		}
		return config.SocketPath(pid)
	}

	dir, err := config.SocketDir()
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.sock"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	if checker == nil {
		checker = NewSocketHealthChecker(time.Second)
	}
	for _, path := range matches {
		if err := checker.Check(ctx, path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoInstance, dir)
}
