// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// LoadQueue returns the primary trigger queue. A missing queue file is an
// empty queue, not an error.
func (s *Store) LoadQueue(ctx context.Context) ([]models.QueueEntry, error) {
	var queue []models.QueueEntry
	err := s.withLock(ctx, s.queuePath(), func() error {
		if err := readJSON(s.queuePath(), &queue); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		return nil
	})
	return queue, err
}

// SaveQueue replaces the primary trigger queue.
func (s *Store) SaveQueue(ctx context.Context, queue []models.QueueEntry) error {
	return s.withLock(ctx, s.queuePath(), func() error {
		return writeJSONAtomic(s.queuePath(), queue)
	})
}

// UpdateQueue applies fn to the queue inside its lock, so concurrent
// additions from the UI layer are never clobbered by a dispatcher rewrite.
func (s *Store) UpdateQueue(ctx context.Context, fn func([]models.QueueEntry) []models.QueueEntry) error {
	return s.withLock(ctx, s.queuePath(), func() error {
		var queue []models.QueueEntry
		if err := readJSON(s.queuePath(), &queue); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return writeJSONAtomic(s.queuePath(), fn(queue))
	})
}

// LoadPreset reads a preset by id from the preset library.
func (s *Store) LoadPreset(_ context.Context, id string) (*models.Preset, error) {
	preset := &models.Preset{}
	if err := readJSON(s.presetPath(id), preset); err != nil {
		return nil, err
	}
	if preset.ID == "" {
		preset.ID = id
	}
	return preset, nil
}

// LoadCabinetSettings reads a cabinet's settings document. A missing
// document yields permissive defaults with the cabinet enabled.
func (s *Store) LoadCabinetSettings(_ context.Context, cabinet string) (*models.CabinetSettings, error) {
	settings := &models.CabinetSettings{Enabled: true}
	err := readJSON(filepath.Join(s.cabinetDir(cabinet), "settings.json"), settings)
	if errors.Is(err, ErrNotFound) {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// LoadCredentials reads a cabinet's bearer credential pool.
func (s *Store) LoadCredentials(_ context.Context, cabinet string) ([]models.Credential, error) {
	var creds []models.Credential
	if err := readJSON(filepath.Join(s.cabinetDir(cabinet), "credentials.json"), &creds); err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("cabinet %s: empty credential pool", cabinet)
	}
	return creds, nil
}

// ListOneShots returns the ids of pending one-shot preset jobs.
func (s *Store) ListOneShots(_ context.Context) ([]string, error) {
	return listJSONFiles(s.oneShotDir())
}

// LoadOneShot reads a one-shot job. The document shape is a queue entry
// with an embedded preset, fired once regardless of trigger time.
type OneShot struct {
	models.QueueEntry
	Preset models.Preset `json:"preset"`
}

// GetOneShot reads one pending one-shot job by id.
func (s *Store) GetOneShot(_ context.Context, id string) (*OneShot, error) {
	job := &OneShot{}
	if err := readJSON(filepath.Join(s.oneShotDir(), id+".json"), job); err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteOneShot removes a processed one-shot job.
func (s *Store) DeleteOneShot(_ context.Context, id string) error {
	return removeDocument(filepath.Join(s.oneShotDir(), id+".json"))
}

// ListAddGroups returns the ids of pending add-group follow-up jobs.
func (s *Store) ListAddGroups(_ context.Context) ([]string, error) {
	return listJSONFiles(s.addGroupDir())
}

// GetAddGroup reads one add-group job by id.
func (s *Store) GetAddGroup(_ context.Context, id string) (*models.AddGroupRequest, error) {
	req := &models.AddGroupRequest{}
	if err := readJSON(filepath.Join(s.addGroupDir(), id+".json"), req); err != nil {
		return nil, err
	}
	return req, nil
}

// SaveAddGroup persists a new add-group job and returns its id.
func (s *Store) SaveAddGroup(ctx context.Context, req *models.AddGroupRequest) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(s.addGroupDir(), id+".json")
	err := s.withLock(ctx, path, func() error {
		return writeJSONAtomic(path, req)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteAddGroup removes a completed or unrecoverable add-group job.
func (s *Store) DeleteAddGroup(_ context.Context, id string) error {
	return removeDocument(filepath.Join(s.addGroupDir(), id+".json"))
}

func removeDocument(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	os.Remove(path + ".lock")
	return nil
}
