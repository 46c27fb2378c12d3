// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/client.go
// Summary: Sends one control command to a running instance and decodes the reply.
// Usage: waymuxctl resolves a socket with Discover and calls Send per invocation.

package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/framegrace/waymux/protocol"
)

// DefaultTimeout bounds a whole request.
const DefaultTimeout = 5 * time.Second

// Client talks to one control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// New creates a client for socketPath.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: DefaultTimeout}
}

// SocketPath returns the control socket this client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// SetTimeout changes the per-request deadline.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Send writes req and reads the response until the server closes its side.
func (c *Client) Send(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write([]byte(req.Line() + "\n")); err != nil {
		return protocol.Response{}, fmt.Errorf("send %s: %w", req.Verb, err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
