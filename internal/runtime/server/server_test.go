// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server_test.go
// Summary: Exercises the control server over real Unix sockets.
// Usage: Executed during `go test` to guard against regressions.

package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/tabs"
)

type testServer struct {
	srv  *Server
	loop *loop.Loop
	reg  *tabs.Registry
	path string
}

func startTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	lp := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go lp.Run(ctx)

	reg := tabs.NewRegistry(nil)
	reg.Create(&stubView{title: "Title1", app: "app1"})
	reg.Create(&stubView{title: "Title2", app: "app2"})

	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "waymux", "1.sock")
	}
	srv := NewServer(opts, lp, NewDispatcher(reg, nil, nil, nil))
	if err := srv.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			t.Errorf("stop failed: %v", err)
		}
		cancel()
	})
	return &testServer{srv: srv, loop: lp, reg: reg, path: opts.Path}
}

func (ts *testServer) roundTrip(t *testing.T, payload string) string {
	t.Helper()
	conn, err := net.Dial("unix", ts.path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.WriteString(conn, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(data)
}

func (ts *testServer) clientCount(t *testing.T) int {
	t.Helper()
	n := 0
	if err := ts.loop.Call(context.Background(), func() { n = ts.srv.ClientCount() }); err != nil {
		t.Fatalf("loop call failed: %v", err)
	}
	return n
}

func TestServerListTabs(t *testing.T) {
	ts := startTestServer(t, Options{})
	got := ts.roundTrip(t, "list-tabs\n")
	want := "OK 2\n0: [app1] Title1\n1: [app2] Title2\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestServerPipelinedCommands(t *testing.T) {
	ts := startTestServer(t, Options{})
	got := ts.roundTrip(t, "focus-tab 0\nlist-tabs\n")
	want := "OK\nOK 2\n0: [app1] Title1\n1: [app2] Title2\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	active := -1
	_ = ts.loop.Call(context.Background(), func() { active = ts.reg.Index(ts.reg.Active()) })
	if active != 0 {
		t.Fatalf("expected tab 0 active, got %d", active)
	}
}

func TestServerErrorsStayWithClient(t *testing.T) {
	ts := startTestServer(t, Options{})
	if got := ts.roundTrip(t, "focus-tab abc\n"); got != "ERROR Invalid tab index\n" {
		t.Fatalf("unexpected response %q", got)
	}
	if got := ts.roundTrip(t, "close-tab 5\r\n"); got != "ERROR Tab index out of range\n" {
		t.Fatalf("unexpected response %q", got)
	}
	if got := ts.roundTrip(t, "list-tabs\n"); !strings.HasPrefix(got, "OK 2\n") {
		t.Fatalf("server should keep serving, got %q", got)
	}
}

func TestServerNonReadingClientsDoNotStallLoop(t *testing.T) {
	ts := startTestServer(t, Options{WriteTimeout: 5 * time.Second})
	if err := ts.loop.Call(context.Background(), func() {
		for i := 0; i < 200; i++ {
			ts.reg.Create(&stubView{title: strings.Repeat("t", 40), app: "app"})
		}
	}); err != nil {
		t.Fatalf("loop call failed: %v", err)
	}

	payload := strings.Repeat("list-tabs\n", 400)
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("unix", ts.path)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer conn.Close()
		if _, err := io.WriteString(conn, payload); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	if err := ts.loop.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("loop call failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("event loop stalled for %v behind clients that never read", elapsed)
	}

	if got := ts.roundTrip(t, "list-tabs\n"); !strings.HasPrefix(got, "OK 202\n") {
		t.Fatalf("other clients must be served, got %.40q", got)
	}
}

func TestServerDispatchesLinesAfterResponse(t *testing.T) {
	ts := startTestServer(t, Options{})
	conn, err := net.Dial("unix", ts.path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.WriteString(conn, "focus-tab 1\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "OK\n" {
		t.Fatalf("unexpected response %q", data)
	}

	// The write side is closed, but a later line still runs.
	if _, err := io.WriteString(conn, "focus-tab 0\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		active := -1
		_ = ts.loop.Call(context.Background(), func() { active = ts.reg.Index(ts.reg.Active()) })
		if active == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("late line was not dispatched, active tab %d", active)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerClosesOnOverflow(t *testing.T) {
	ts := startTestServer(t, Options{BufferSize: 64})
	conn, err := net.Dial("unix", ts.path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write([]byte(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, _ := io.ReadAll(conn)
	if len(data) != 0 {
		t.Fatalf("expected no response, got %q", data)
	}

	if got := ts.roundTrip(t, "list-tabs\n"); !strings.HasPrefix(got, "OK 2\n") {
		t.Fatalf("other clients must be unaffected, got %q", got)
	}
}

func TestServerMaxClients(t *testing.T) {
	ts := startTestServer(t, Options{MaxClients: 1})
	idle, err := net.Dial("unix", ts.path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer idle.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.clientCount(t) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("first client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rejected, err := net.Dial("unix", ts.path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer rejected.Close()
	_ = rejected.SetDeadline(time.Now().Add(3 * time.Second))
	data, err := io.ReadAll(rejected)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "ERROR Too many clients\n" {
		t.Fatalf("unexpected response %q", data)
	}
}

func TestServerReplacesStaleSocketOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.sock")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()

	ts := startTestServer(t, Options{Path: path})
	if got := ts.roundTrip(t, "list-tabs\n"); !strings.HasPrefix(got, "OK 2\n") {
		t.Fatalf("unexpected response %q", got)
	}

	regular := filepath.Join(dir, "regular.sock")
	if err := os.WriteFile(regular, []byte("x"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	srv := NewServer(Options{Path: regular}, loop.New(), HandlerFunc(nil))
	if err := srv.Start(); !errors.Is(err, ErrNotSocket) {
		t.Fatalf("expected ErrNotSocket, got %v", err)
	}
}

func TestServerStopRemovesSocket(t *testing.T) {
	lp := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lp.Run(ctx)

	dir := filepath.Join(t.TempDir(), "waymux")
	path := filepath.Join(dir, "9.sock")
	srv := NewServer(Options{Path: path}, lp, NewDispatcher(tabs.NewRegistry(nil), nil, nil, nil))
	if err := srv.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("socket missing: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected socket mode %v", fi.Mode().Perm())
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket should be removed, stat err %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("empty socket directory should be removed")
	}
}
