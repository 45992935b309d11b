// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package store

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// CreateTracking persists a fresh moderation tracking record under a random
// 6-digit id and returns the id. The id only names the file; the record is
// logically keyed by the campaign ids it tracks.
func (s *Store) CreateTracking(ctx context.Context, rec *models.ModerationTrackingRecord) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		id := fmt.Sprintf("%06d", rand.Intn(1000000))
		claimed, err := s.claimTracking(ctx, id, rec)
		if err != nil {
			return "", err
		}
		if claimed {
			return id, nil
		}
	}
	return "", fmt.Errorf("tracking: could not allocate a free record id")
}

// claimTracking writes rec under id unless the id is already taken. The
// existence check runs inside the document lock so two writers racing on
// the same id cannot overwrite each other.
func (s *Store) claimTracking(ctx context.Context, id string, rec *models.ModerationTrackingRecord) (bool, error) {
	path := filepath.Join(s.trackingDir(), id+".json")
	claimed := false
	err := s.withLock(ctx, path, func() error {
		if _, err := os.Stat(path); err == nil {
			return nil // collision, caller rolls again
		}
		claimed = true
		return writeJSONAtomic(path, rec)
	})
	return claimed, err
}

// ListTracking returns the ids of all live tracking records.
func (s *Store) ListTracking(_ context.Context) ([]string, error) {
	return listJSONFiles(s.trackingDir())
}

// GetTracking reads one tracking record by file id.
func (s *Store) GetTracking(_ context.Context, id string) (*models.ModerationTrackingRecord, error) {
	rec := &models.ModerationTrackingRecord{}
	if err := readJSON(filepath.Join(s.trackingDir(), id+".json"), rec); err != nil {
		return nil, err
	}
	if rec.AdGroups == nil {
		rec.AdGroups = make(map[int64]models.TrackedGroup)
	}
	return rec, nil
}

// UpdateTracking applies fn to a tracking record inside its lock. When fn
// leaves the record resolved (no groups, no outstanding recreations) the
// document is deleted instead of rewritten.
func (s *Store) UpdateTracking(ctx context.Context, id string, fn func(*models.ModerationTrackingRecord) error) error {
	path := filepath.Join(s.trackingDir(), id+".json")
	return s.withLock(ctx, path, func() error {
		rec := &models.ModerationTrackingRecord{}
		if err := readJSON(path, rec); err != nil {
			return err
		}
		if rec.AdGroups == nil {
			rec.AdGroups = make(map[int64]models.TrackedGroup)
		}
		if err := fn(rec); err != nil {
			return err
		}
		if rec.Resolved() {
			return removeDocument(path)
		}
		return writeJSONAtomic(path, rec)
	})
}
