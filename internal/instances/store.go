// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/instances/store.go
// Summary: SQLite-backed registry of running instances and launcher usage.
// Usage: cmd/waymux registers itself at startup; waymuxctl lists entries.
// Notes: Rows whose pid is no longer alive are treated as absent and pruned.

package instances

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrAlreadyRegistered = errors.New("instances: name already registered by a running process")
	ErrProfileLocked     = errors.New("instances: profile in use by a running instance")
)

const instancesSchema = `
CREATE TABLE IF NOT EXISTS instances (
    name TEXT PRIMARY KEY,
    pid INTEGER NOT NULL,
    profile TEXT NOT NULL DEFAULT '',
    socket TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_profile ON instances(profile) WHERE profile != '';

CREATE TABLE IF NOT EXISTS launcher_usage (
    name TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0,
    last_used INTEGER NOT NULL
);
`

// Instance is one row of the registry.
type Instance struct {
	Name      string
	PID       int
	Profile   string
	Socket    string
	StartedAt time.Time
}

// Store wraps the instances database.
type Store struct {
	db   *sql.DB
	path string
	// alive reports whether pid is a running process.
	alive func(pid int) bool
}

// Open creates the database at path if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(2000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(instancesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, path: path, alive: processRunning}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Register records inst. An existing row for the same name is replaced when
// its process is gone.
func (s *Store) Register(inst Instance) error {
	if inst.StartedAt.IsZero() {
		inst.StartedAt = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pid int
	err = tx.QueryRow("SELECT pid FROM instances WHERE name = ?", inst.Name).Scan(&pid)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("lookup %s: %w", inst.Name, err)
	case pid == inst.PID:
	case s.alive(pid):
		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRegistered, inst.Name, pid)
	default:
		log.Printf("instances: replacing stale entry %s (pid %d)", inst.Name, pid)
	}

	if inst.Profile != "" {
		owner, err := s.liveOwner(tx, inst.Profile, inst.Name)
		if err != nil {
			return err
		}
		if owner != "" {
			return fmt.Errorf("%w: %s held by %s", ErrProfileLocked, inst.Profile, owner)
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO instances (name, pid, profile, socket, started_at) VALUES (?, ?, ?, ?, ?)`,
		inst.Name, inst.PID, inst.Profile, inst.Socket, inst.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("register %s: %w", inst.Name, err)
	}
	return tx.Commit()
}

// liveOwner returns the first instance other than name whose process is
// alive and that uses profile. Dead rows are skipped.
func (s *Store) liveOwner(tx *sql.Tx, profile, name string) (string, error) {
	rows, err := tx.Query("SELECT name, pid FROM instances WHERE profile = ? AND name != ? ORDER BY name", profile, name)
	if err != nil {
		return "", fmt.Errorf("lookup profile %s: %w", profile, err)
	}
	defer rows.Close()
	for rows.Next() {
		var owner string
		var pid int
		if err := rows.Scan(&owner, &pid); err != nil {
			return "", fmt.Errorf("scan instance: %w", err)
		}
		if s.alive(pid) {
			return owner, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("lookup profile %s: %w", profile, err)
	}
	return "", nil
}

// Unregister removes name. Removing an unknown name is not an error.
func (s *Store) Unregister(name string) error {
	if _, err := s.db.Exec("DELETE FROM instances WHERE name = ?", name); err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	return nil
}

// IsProfileLocked reports whether a live instance uses profile.
func (s *Store) IsProfileLocked(profile string) (bool, error) {
	if profile == "" {
		return false, nil
	}
	list, err := s.List()
	if err != nil {
		return false, err
	}
	for _, inst := range list {
		if inst.Profile == profile {
			return true, nil
		}
	}
	return false, nil
}

// List returns live instances sorted by name, pruning dead rows.
func (s *Store) List() ([]Instance, error) {
	rows, err := s.db.Query("SELECT name, pid, profile, socket, started_at FROM instances ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	var live []Instance
	var dead []string
	for rows.Next() {
		var inst Instance
		var started int64
		if err := rows.Scan(&inst.Name, &inst.PID, &inst.Profile, &inst.Socket, &started); err != nil {
			rows.Close()
			return nil, err
		}
		inst.StartedAt = time.Unix(started, 0)
		if s.alive(inst.PID) {
			live = append(live, inst)
		} else {
			dead = append(dead, inst.Name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, name := range dead {
		debugLog.Printf("instances: pruning %s", name)
		if err := s.Unregister(name); err != nil {
			log.Printf("instances: prune %s: %v", name, err)
		}
	}
	return live, nil
}

// UsageCounts returns how often each launcher entry was started.
func (s *Store) UsageCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT name, count FROM launcher_usage")
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// RecordLaunch increments the usage count of a launcher entry.
func (s *Store) RecordLaunch(name string) error {
	_, err := s.db.Exec(`INSERT INTO launcher_usage (name, count, last_used) VALUES (?, 1, ?)
ON CONFLICT(name) DO UPDATE SET count = count + 1, last_used = excluded.last_used`, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record launch %s: %w", name, err)
	}
	return nil
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
