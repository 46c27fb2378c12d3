// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/connection.go
// Summary: One accepted control connection with its bounded receive buffer.
// Usage: Created by Server.addClient; readLoop and writeLoop run on their own
//   goroutines, feed and enqueue on the event loop.

package server

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

type client struct {
	id        string
	server    *Server
	conn      *net.UnixConn
	buf       []byte
	responded bool
	closed    bool
	space     chan int
	done      chan struct{}

	// out holds encoded responses for writeLoop; shut requests the
	// half-close once out is drained.
	mu   sync.Mutex
	out  [][]byte
	shut bool
	wake chan struct{}
}

func newClient(s *Server, conn *net.UnixConn) *client {
	c := &client{
		id:     uuid.NewString()[:8],
		server: s,
		conn:   conn,
		buf:    make([]byte, 0, s.opts.BufferSize),
		space:  make(chan int, 1),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	c.space <- s.opts.BufferSize
	return c
}

// readLoop reads at most the free buffer space, hands the bytes to the
// event loop and waits for it to report the new free space.
func (c *client) readLoop() {
	chunk := make([]byte, c.server.opts.BufferSize)
	for {
		var space int
		select {
		case space = <-c.space:
		case <-c.done:
			return
		}
		n, err := c.conn.Read(chunk[:space])
		if n > 0 {
			data := bytes.Clone(chunk[:n])
			if !c.server.loop.Post(func() { c.feed(data) }) {
				_ = c.conn.Close()
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				debugLog.Printf("control: client %s read error: %v", c.id, err)
			}
			c.server.loop.Post(func() { c.server.removeClient(c) })
			return
		}
		if n == 0 {
			c.space <- space
		}
	}
}

// feed runs on the event loop. Every complete line of the chunk is
// dispatched in order. Responses are queued for writeLoop, which half-closes
// the write side once they are sent. Lines arriving after that are still
// dispatched but their responses are dropped.
func (c *client) feed(data []byte) {
	if c.closed {
		return
	}
	c.buf = append(c.buf, data...)
	answered := false
	for {
		idx := bytes.IndexByte(c.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(c.buf[:idx], []byte{'\r'}))
		c.buf = c.buf[:copy(c.buf, c.buf[idx+1:])]
		if line == "" {
			continue
		}
		start := time.Now()
		resp := c.server.handler.Handle(line)
		if obs := c.server.opts.Observer; obs != nil {
			obs.ObserveCommand(line, resp, time.Since(start))
		}
		if c.responded {
			debugLog.Printf("control: client %s already answered, dropping response to %q", c.id, line)
			continue
		}
		c.enqueue(resp.Encode(), false)
		answered = true
	}
	if answered {
		c.responded = true
		c.enqueue(nil, true)
	}
	if len(c.buf) >= cap(c.buf) {
		log.Printf("control: client %s filled %d byte buffer without a newline, closing", c.id, cap(c.buf))
		c.server.removeClient(c)
		return
	}
	c.space <- cap(c.buf) - len(c.buf)
}

// enqueue hands data to writeLoop without blocking.
func (c *client) enqueue(data []byte, shut bool) {
	c.mu.Lock()
	if data != nil {
		c.out = append(c.out, data)
	}
	if shut {
		c.shut = true
	}
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// writeLoop sends queued responses and half-closes once shut is set. A
// failed write removes the client on the event loop.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}
		c.mu.Lock()
		batch, shut := c.out, c.shut
		c.out = nil
		c.mu.Unlock()

		for _, data := range batch {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
			if _, err := c.conn.Write(data); err != nil {
				select {
				case <-c.done:
				default:
					log.Printf("control: client %s write failed: %v", c.id, err)
				}
				if !c.server.loop.Post(func() { c.server.removeClient(c) }) {
					_ = c.conn.Close()
				}
				return
			}
		}
		if shut {
			if err := c.conn.CloseWrite(); err != nil {
				debugLog.Printf("control: client %s half-close: %v", c.id, err)
			}
			return
		}
	}
}

func (c *client) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}
