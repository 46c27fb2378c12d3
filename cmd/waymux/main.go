// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/waymux/main.go
// Summary: Starts one multiplexer instance: tab host, control socket and optional profile.
// Usage: waymux [-c config] [-D] [-i name] [--headless] [-P | profile] [-- command...]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/internal/host"
	"github.com/framegrace/waymux/internal/instances"
	"github.com/framegrace/waymux/internal/loop"
	"github.com/framegrace/waymux/internal/ptyview"
	"github.com/framegrace/waymux/internal/runtime/server"
	"github.com/framegrace/waymux/profile"
	"github.com/framegrace/waymux/spawn"
	"github.com/framegrace/waymux/tabs"
)

var version = "dev"

const defaultInstance = "default"

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

type options struct {
	configPath   string
	debug        bool
	instance     string
	headless     bool
	logFile      string
	display      string
	showVersion  bool
	listProfiles bool
	initConfig   bool
	// pickProfile shows the profile picker at startup.
	pickProfile bool

	profile string
	command []string
}

// parseArgs splits off everything after "--" as the primary command. The
// first remaining positional argument names a profile.
func parseArgs(args []string) (options, error) {
	var opts options
	var command []string
	for i, a := range args {
		if a == "--" {
			command = args[i+1:]
			args = args[:i]
			break
		}
	}

	fs := flag.NewFlagSet("waymux", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "c", "", "Path to config file (default: $XDG_CONFIG_HOME/waymux/config.toml)")
	fs.BoolVar(&opts.debug, "D", false, "Enable debug logging")
	fs.StringVar(&opts.instance, "i", defaultInstance, "Instance name")
	fs.BoolVar(&opts.headless, "headless", false, "Run without the terminal UI (control socket only)")
	fs.StringVar(&opts.logFile, "log-file", "", "Append logs to this file")
	fs.StringVar(&opts.display, "display", "", "Display name exported to children as WAYLAND_DISPLAY")
	fs.BoolVar(&opts.showVersion, "v", false, "Show the version number and exit")
	fs.BoolVar(&opts.listProfiles, "list-profiles", false, "List available profiles and exit")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the default config (to -c or the user config directory) and exit")
	fs.BoolVar(&opts.pickProfile, "P", false, "Choose a profile from a list at startup")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: waymux [OPTIONS] [-P | PROFILE] [--] [APPLICATION...]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	rest := fs.Args()
	if len(rest) > 0 {
		opts.profile = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && len(command) == 0 {
		command = rest
	} else if len(rest) > 0 {
		return opts, fmt.Errorf("unexpected arguments %v", rest)
	}
	if opts.pickProfile && opts.profile != "" {
		return opts, fmt.Errorf("-P cannot be combined with profile %q", opts.profile)
	}
	opts.command = command
	return opts, nil
}

func setupLogging(path string, verbose bool) (func(), error) {
	closeFn := func() {}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return closeFn, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closeFn, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		closeFn = func() { _ = f.Close() }
	}
	tabs.SetVerboseLogging(verbose)
	server.SetVerboseLogging(verbose)
	host.SetVerboseLogging(verbose)
	ptyview.SetVerboseLogging(verbose)
	instances.SetVerboseLogging(verbose)
	return closeFn, nil
}

func run(args []string) (int, error) {
	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, nil
		}
		return 2, err
	}
	if opts.showVersion {
		fmt.Printf("waymux version %s\n", version)
		return 0, nil
	}
	if opts.listProfiles {
		for _, name := range profile.List() {
			fmt.Println(name)
		}
		return 0, nil
	}

	if opts.initConfig {
		path, err := config.WriteDefault(opts.configPath)
		if err != nil {
			return 1, err
		}
		fmt.Printf("Wrote %s\n", path)
		return 0, nil
	}

	if opts.pickProfile && opts.headless {
		return 2, errors.New("-P needs the terminal UI and cannot be used with --headless")
	}
	if !opts.headless && !term.IsTerminal(int(os.Stdin.Fd())) {
		return 1, errors.New("standard input is not a terminal (use --headless)")
	}

	pid := os.Getpid()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 1, err
	}
	logPath := opts.logFile
	if logPath == "" {
		logPath = cfg.Log.File
	}
	if logPath == "" && !opts.headless {
		// The terminal belongs to the UI.
		if logPath, err = config.LogPath(pid); err != nil {
			return 1, err
		}
	}
	closeLog, err := setupLogging(logPath, opts.debug || cfg.Log.Verbose)
	if err != nil {
		return 1, err
	}
	defer closeLog()
	log.Printf("waymux %s starting (pid %d)", version, pid)

	var prof *profile.Profile
	if opts.profile != "" {
		if prof, err = profile.Load(opts.profile); err != nil {
			return 1, err
		}
	}

	socketPath, err := config.SocketPath(pid)
	if err != nil {
		return 1, err
	}

	store := openStore()
	if store != nil {
		defer store.Close()
	}
	if prof != nil && store != nil {
		locked, err := store.IsProfileLocked(prof.Name)
		if err != nil {
			log.Printf("instances: lock check failed: %v", err)
		} else if locked {
			return 1, fmt.Errorf("profile %q is already in use by another waymux instance", prof.Name)
		}
	}

	var screen tcell.Screen
	if !opts.headless {
		tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)
		if screen, err = tcell.NewScreen(); err != nil {
			return 1, fmt.Errorf("create screen: %w", err)
		}
		if err := screen.Init(); err != nil {
			return 1, fmt.Errorf("init screen: %w", err)
		}
		screen.EnableMouse()
		defer screen.Fini()
	}

	lp := loop.New()
	h := host.New(lp, host.Options{Screen: screen, Bindings: cfg.Bindings, MaxLabel: cfg.TabBar.MaxLabel})
	h.ApplyConfig(cfg)
	if store != nil {
		h.Launcher().SetUsageStore(store)
	}
	h.SetDisplayEnv(spawn.DisplayEnv(opts.display, pid, socketPath))
	h.Launcher().SetDetachedSpawner(&spawn.Detached{OnExit: func(pid int, err error) {
		if err != nil {
			log.Printf("spawn: detached pid %d exited: %v", pid, err)
		}
	}})

	sess := &session{Host: h, exit: make(chan int, 1)}
	backend := ptyview.NewBackend(lp, sess)
	h.SetSpawner(backend)

	srv := server.NewServer(server.Options{
		Path:       socketPath,
		BufferSize: cfg.Control.BufferSize,
		MaxClients: cfg.Control.MaxClients,
		Observer:   server.NewCommandLogger(log.Default()),
	}, lp, server.NewDispatcher(h.Registry(), backend, h.SpawnEnv, h.Launcher()))
	if err := srv.Start(); err != nil {
		return 1, fmt.Errorf("start control server: %w", err)
	}

	instanceName := registerInstance(store, opts.instance, pid, opts.profile, socketPath)
	if store != nil && instanceName != "" {
		defer func() {
			if err := store.Unregister(instanceName); err != nil {
				log.Printf("instances: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lp.Run(ctx)

	var locks map[string]bool
	var profileNames []string
	if opts.pickProfile {
		profileNames = profile.List()
		locks = profileLocks(store, profileNames)
	}
	self := instances.Instance{Name: instanceName, PID: pid, Socket: socketPath}

	startFailed := make(chan error, 1)
	lp.Post(func() {
		if prof != nil {
			spawnProfile(h, prof)
		}
		if opts.pickProfile {
			h.ShowProfiles(profileNames, func(name string) bool { return locks[name] }, func(name string) {
				if name == "" {
					return
				}
				if err := startProfile(h, store, self, name); err != nil {
					log.Printf("profile: %v", err)
				}
			})
		}
		if len(opts.command) > 0 {
			primary, err := h.Spawn(opts.command, h.SpawnEnv(), false)
			if err != nil {
				startFailed <- fmt.Errorf("spawn %s: %w", opts.command[0], err)
				return
			}
			sess.primary = primary
		}
	})

	cfg.Watch(func(next *config.Config, err error) {
		if err != nil {
			return
		}
		lp.Post(func() { h.ApplyConfig(next) })
	})

	if screen != nil {
		go pumpEvents(screen, lp, h)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	code := 0
	var runErr error
wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Println("Received SIGHUP, reloading configuration...")
				next, err := config.Load(cfg.Path)
				if err != nil {
					log.Printf("Config: reload failed: %v", err)
					continue
				}
				lp.Post(func() { h.ApplyConfig(next) })
				continue
			}
			log.Printf("Received %v, shutting down", sig)
			break wait
		case code = <-sess.exit:
			log.Printf("primary command exited with status %d", code)
			if code < 0 {
				// Killed by a signal.
				code = 1
			}
			break wait
		case runErr = <-startFailed:
			code = 1
			break wait
		}
	}

	shutdown(srv, lp, h, backend)
	return code, runErr
}

func openStore() *instances.Store {
	path, err := config.InstanceDBPath()
	if err != nil {
		log.Printf("instances: %v", err)
		return nil
	}
	store, err := instances.Open(path)
	if err != nil {
		log.Printf("instances: %v", err)
		return nil
	}
	return store
}

// registerInstance records this process. A name held by another live
// instance falls back to name-pid; registry failures are not fatal.
func registerInstance(store *instances.Store, name string, pid int, profileName, socket string) string {
	if store == nil {
		return ""
	}
	inst := instances.Instance{Name: name, PID: pid, Profile: profileName, Socket: socket}
	err := store.Register(inst)
	if errors.Is(err, instances.ErrAlreadyRegistered) {
		inst.Name = fmt.Sprintf("%s-%d", name, pid)
		err = store.Register(inst)
	}
	if err != nil {
		log.Printf("instances: failed to register %s: %v", name, err)
		return ""
	}
	log.Printf("instances: registered %s", inst.Name)
	return inst.Name
}

// profileLocks reports which of names are held by another live instance.
func profileLocks(store *instances.Store, names []string) map[string]bool {
	locks := make(map[string]bool)
	if store == nil {
		return locks
	}
	for _, name := range names {
		locked, err := store.IsProfileLocked(name)
		if err != nil {
			log.Printf("instances: lock check for %s failed: %v", name, err)
			continue
		}
		locks[name] = locked
	}
	return locks
}

// claimProfile records name as the profile of the registered instance self.
// It fails with instances.ErrProfileLocked when a live instance holds it.
func claimProfile(store *instances.Store, self instances.Instance, name string) error {
	if store == nil || self.Name == "" {
		return nil
	}
	self.Profile = name
	return store.Register(self)
}

// startProfile loads the profile chosen in the picker, claims it and spawns
// its tabs.
func startProfile(h *host.Host, store *instances.Store, self instances.Instance, name string) error {
	prof, err := profile.Load(name)
	if err != nil {
		return err
	}
	if err := claimProfile(store, self, prof.Name); err != nil {
		return fmt.Errorf("claim %s: %w", prof.Name, err)
	}
	log.Printf("profile: starting %s (%d tabs)", prof.Name, len(prof.Tabs))
	spawnProfile(h, prof)
	return nil
}

func spawnProfile(h *host.Host, prof *profile.Profile) {
	for i, t := range prof.Tabs {
		argv := prof.Argv(t)
		if _, err := h.Spawn(argv, prof.SpawnEnv(h.SpawnEnv(), t), t.Background); err != nil {
			log.Printf("profile: failed to spawn tab %d (%s): %v", i, t.Command, err)
		}
	}
	if n := h.PendingBackground(); n > 0 {
		log.Printf("profile: %d background tabs pending", n)
	}
}

func pumpEvents(screen tcell.Screen, lp *loop.Loop, h *host.Host) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		if !lp.Post(func() { h.HandleEvent(ev) }) {
			return
		}
	}
}

func shutdown(srv *server.Server, lp *loop.Loop, h *host.Host, backend *ptyview.Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Printf("control: stop: %v", err)
	}
	if err := lp.Call(ctx, h.Shutdown); err != nil {
		backend.CloseAll()
	}

	done := make(chan struct{})
	go func() {
		backend.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Printf("views did not exit after hangup, killing")
		backend.KillAll()
		<-done
	}
	lp.Stop()
	stats := h.Focus().Snapshot()
	log.Printf("host: %d tab focus changes", stats.Changes)
	log.Println("waymux stopped")
}
