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
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vmelnikoff/adpilot/internal/models"
)

func (s *Store) historyPath(cabinet string) string {
	return filepath.Join(s.cabinetDir(cabinet), "moderation_history.json")
}

func (s *Store) outcomePath(cabinet string) string {
	return filepath.Join(s.cabinetDir(cabinet), "outcomes.log")
}

// LoadHistory reads a cabinet's asset moderation history. Missing file
// means no history yet.
func (s *Store) LoadHistory(ctx context.Context, cabinet string) (models.AssetModerationHistory, error) {
	history := make(models.AssetModerationHistory)
	err := s.withLock(ctx, s.historyPath(cabinet), func() error {
		if err := readJSON(s.historyPath(cabinet), &history); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		return nil
	})
	return history, err
}

// AppendHistory appends one moderation outcome for an (asset, objective)
// pair. Existing entries are never rewritten.
func (s *Store) AppendHistory(ctx context.Context, cabinet, assetID, objective string, entry models.HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	path := s.historyPath(cabinet)
	return s.withLock(ctx, path, func() error {
		history := make(models.AssetModerationHistory)
		if err := readJSON(path, &history); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		history.Append(assetID, objective, entry)
		return writeJSONAtomic(path, history)
	})
}

// AppendOutcome appends one submission outcome to the cabinet's log. The
// log is JSONL: one record per line, only ever appended.
func (s *Store) AppendOutcome(ctx context.Context, cabinet string, rec models.OutcomeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	path := s.outcomePath(cabinet)
	return s.withLock(ctx, path, func() error {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open outcome log: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append outcome: %w", err)
		}
		return f.Sync()
	})
}
