// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server.go
// Summary: Control socket server that accepts one-shot command connections.
// Usage: The waymux host starts one Server per instance, bound to <runtime>/waymux/<pid>.sock.
// Notes: Socket goroutines only move bytes and never block the event loop;
//   buffering, dispatch and client bookkeeping run on the event loop.

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/protocol"
)

const (
	DefaultBufferSize   = 4096
	DefaultMaxClients   = 64
	DefaultWriteTimeout = time.Second
)

var (
	ErrNotSocket      = errors.New("server: refusing to replace non-socket path")
	ErrAlreadyStarted = errors.New("server: already started")
)

// Handler answers one command line.
type Handler interface {
	Handle(line string) protocol.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(line string) protocol.Response

func (f HandlerFunc) Handle(line string) protocol.Response { return f(line) }

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Path         string
	BufferSize   int
	MaxClients   int
	WriteTimeout time.Duration
	Observer     CommandObserver
}

// Server listens on a Unix domain socket and feeds command lines to a Handler.
type Server struct {
	opts     Options
	loop     *loop.Loop
	handler  Handler
	listener *net.UnixListener
	clients  map[*client]struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
	started  bool
}

func NewServer(opts Options, lp *loop.Loop, handler Handler) *Server {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		opts:    opts,
		loop:    lp,
		handler: handler,
		clients: make(map[*client]struct{}),
		quit:    make(chan struct{}),
	}
}

// Addr is the socket path.
func (s *Server) Addr() string { return s.opts.Path }

// Start creates the socket directory, replaces a stale socket and begins
// accepting connections.
func (s *Server) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := removeStaleSocket(s.opts.Path); err != nil {
		return err
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.opts.Path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Path, err)
	}
	l.SetUnlinkOnClose(false)
	if err := os.Chmod(s.opts.Path, 0o600); err != nil {
		log.Printf("control: chmod %s: %v", s.opts.Path, err)
	}
	s.listener = l
	s.started = true
	s.wg.Add(1)
	go s.acceptLoop()
	log.Printf("control: listening on %s", s.opts.Path)
	return nil
}

func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s", ErrNotSocket, path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	debugLog.Printf("control: removed stale socket %s", path)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			log.Printf("control: accept failed: %v", err)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if !s.loop.Post(func() { s.addClient(conn) }) {
			_ = conn.Close()
		}
	}
}

// addClient runs on the event loop.
func (s *Server) addClient(conn *net.UnixConn) {
	select {
	case <-s.quit:
		_ = conn.Close()
		return
	default:
	}
	if len(s.clients) >= s.opts.MaxClients {
		log.Printf("control: rejecting connection, %d clients connected", len(s.clients))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			_, _ = conn.Write(protocol.Error(protocol.MsgTooManyClients).Encode())
			_ = conn.Close()
		}()
		return
	}
	c := newClient(s, conn)
	s.clients[c] = struct{}{}
	debugLog.Printf("control: client %s connected (%d total)", c.id, len(s.clients))
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
}

// removeClient runs on the event loop.
func (s *Server) removeClient(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.close()
	debugLog.Printf("control: client %s removed (%d left)", c.id, len(s.clients))
}

// ClientCount must be called on the event loop.
func (s *Server) ClientCount() int { return len(s.clients) }

func (s *Server) closeClients() {
	for c := range s.clients {
		s.removeClient(c)
	}
}

// Stop closes the listener and every client, then removes the socket and,
// when empty, its directory.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.quit:
		return nil
	default:
		close(s.quit)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if err := s.loop.Call(ctx, s.closeClients); errors.Is(err, loop.ErrStopped) {
		select {
		case <-s.loop.Done():
			s.closeClients()
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err != nil {
		return err
	}
	if s.started {
		if err := os.Remove(s.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("control: remove socket: %v", err)
		}
		_ = os.Remove(filepath.Dir(s.opts.Path))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
