// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package store implements the file-resident document store shared between
// the dispatcher, the recovery engine and the external UI layer.
//
// Every document is a JSON file under one data root:
//
//	queue.json                                primary trigger queue
//	oneshot/<id>.json                         single-fire presets
//	addgroup/<id>.json                        recovery follow-up jobs
//	tracking/<id>.json                        moderation tracking records
//	presets/<id>.json                         preset library (UI-authored)
//	cabinets/<cabinet>/settings.json          per-cabinet knobs (UI-authored)
//	cabinets/<cabinet>/credentials.json       bearer credential pool (UI-authored)
//	cabinets/<cabinet>/moderation_history.json per-asset moderation log
//	cabinets/<cabinet>/outcomes.log           append-only outcome records (JSONL)
//
// Writes are atomic: the document is written to a temp path in the same
// directory and renamed over the target, so a crash mid-write never leaves
// a torn document. Read-modify-write cycles hold an advisory exclusive
// flock on a sidecar .lock file, scoped to that one document, so the two
// polling loops and the UI process never interleave updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: document not found")

// Store provides load/save/update access to the data root.
type Store struct {
	root        string
	lockTimeout time.Duration
}

// New creates a Store rooted at dir and ensures the fixed layout exists.
func New(dir string, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	s := &Store{root: dir, lockTimeout: lockTimeout}
	for _, sub := range []string{"", "oneshot", "addgroup", "tracking", "presets", "cabinets"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return s, nil
}

// Root returns the data root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) queuePath() string   { return filepath.Join(s.root, "queue.json") }
func (s *Store) oneShotDir() string  { return filepath.Join(s.root, "oneshot") }
func (s *Store) addGroupDir() string { return filepath.Join(s.root, "addgroup") }
func (s *Store) trackingDir() string { return filepath.Join(s.root, "tracking") }

func (s *Store) presetPath(id string) string {
	return filepath.Join(s.root, "presets", id+".json")
}

func (s *Store) cabinetDir(cabinet string) string {
	return filepath.Join(s.root, "cabinets", cabinet)
}

// withLock runs fn while holding the advisory exclusive lock guarding path.
// The lock lives in a sidecar file so the document itself can be atomically
// renamed while locked. Contention is not failure: we poll until the
// configured timeout.
func (s *Store) withLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	ok, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("acquire lock %s: timed out after %s", lock.Path(), s.lockTimeout)
	}
	defer lock.Unlock() //nolint:errcheck // releasing an flock cannot be meaningfully handled

	return fn()
}

// readJSON loads a document into v. Missing files map to ErrNotFound.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSONAtomic writes v to path via temp file + rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// listJSONFiles returns the ids (basenames without extension) of all .json
// documents in dir, skipping temp and lock files.
func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || name[0] == '.' {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
