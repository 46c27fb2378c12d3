// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/waymux/main_test.go
// Summary: Exercises command line parsing and instance registration.

package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/framegrace/waymux/internal/instances"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if opts.instance != defaultInstance || opts.profile != "" || len(opts.command) != 0 {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestParseArgsProfileAndCommand(t *testing.T) {
	opts, err := parseArgs([]string{"-D", "-i", "work", "dev", "--", "foot", "-e", "htop"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !opts.debug || opts.instance != "work" || opts.profile != "dev" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if !reflect.DeepEqual(opts.command, []string{"foot", "-e", "htop"}) {
		t.Fatalf("unexpected command %v", opts.command)
	}
}

func TestParseArgsFlagsAfterSeparatorBelongToCommand(t *testing.T) {
	opts, err := parseArgs([]string{"--headless", "--", "sh", "-c", "-v"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !opts.headless || opts.showVersion {
		t.Fatalf("unexpected options %+v", opts)
	}
	if !reflect.DeepEqual(opts.command, []string{"sh", "-c", "-v"}) {
		t.Fatalf("unexpected command %v", opts.command)
	}
}

func TestParseArgsCommandWithoutSeparator(t *testing.T) {
	opts, err := parseArgs([]string{"dev", "foot"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if opts.profile != "dev" || !reflect.DeepEqual(opts.command, []string{"foot"}) {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := parseArgs([]string{"dev", "extra", "--", "foot"}); err == nil {
		t.Fatalf("expected error for stray arguments")
	}
}

func TestParseArgsHelpAndUnknownFlag(t *testing.T) {
	if _, err := parseArgs([]string{"-h"}); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if _, err := parseArgs([]string{"--bogus"}); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}

func TestParseArgsProfilePicker(t *testing.T) {
	opts, err := parseArgs([]string{"-P", "--", "foot"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !opts.pickProfile || opts.profile != "" || !reflect.DeepEqual(opts.command, []string{"foot"}) {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseArgs([]string{"-P", "dev"}); err == nil {
		t.Fatalf("expected error for -P with a profile name")
	}
	if code, err := run([]string{"-P", "--headless"}); err == nil || code != 2 {
		t.Fatalf("-P with --headless should be refused, got %d %v", code, err)
	}
}

func TestClaimProfile(t *testing.T) {
	store, err := instances.Open(filepath.Join(t.TempDir(), "instances.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Register(instances.Instance{Name: "other", PID: os.Getppid(), Profile: "dev"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	self := instances.Instance{Name: "default", PID: os.Getpid(), Socket: "/tmp/self.sock"}
	if err := store.Register(self); err != nil {
		t.Fatalf("Register: %v", err)
	}

	locks := profileLocks(store, []string{"dev", "mail"})
	if !locks["dev"] || locks["mail"] {
		t.Fatalf("unexpected locks %v", locks)
	}
	if err := claimProfile(store, self, "dev"); !errors.Is(err, instances.ErrProfileLocked) {
		t.Fatalf("expected ErrProfileLocked, got %v", err)
	}
	if err := claimProfile(store, self, "mail"); err != nil {
		t.Fatalf("claimProfile: %v", err)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, inst := range list {
		if inst.Name == "default" && inst.Profile != "mail" {
			t.Fatalf("profile not recorded: %+v", inst)
		}
	}
	if err := claimProfile(nil, self, "dev"); err != nil {
		t.Fatalf("nil store should be ignored, got %v", err)
	}
}

func TestRegisterInstanceFallsBackOnConflict(t *testing.T) {
	store, err := instances.Open(filepath.Join(t.TempDir(), "instances.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	// The parent process is alive, so "default" stays taken.
	if err := store.Register(instances.Instance{Name: "default", PID: os.Getppid(), Socket: "/tmp/a.sock"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid := os.Getpid()
	name := registerInstance(store, "default", pid, "", "/tmp/b.sock")
	if name == "default" || name == "" {
		t.Fatalf("expected fallback name, got %q", name)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two instances, got %+v", list)
	}

	if got := registerInstance(nil, "default", pid, "", ""); got != "" {
		t.Fatalf("nil store should not register, got %q", got)
	}
}

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waymux", "config.toml")
	code, err := run([]string{"--init-config", "-c", path})
	if err != nil || code != 0 {
		t.Fatalf("init-config: %d %v", code, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if code, err := run([]string{"--init-config", "-c", path}); err == nil || code != 1 {
		t.Fatalf("second init-config must refuse to overwrite, got %d %v", code, err)
	}
}
