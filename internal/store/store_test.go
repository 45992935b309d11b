// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package store

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vmelnikoff/adpilot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return st
}

func TestNewCreatesLayout(t *testing.T) {
	st := newTestStore(t)
	for _, sub := range []string{"oneshot", "addgroup", "tracking", "presets", "cabinets"} {
		if _, err := os.Stat(filepath.Join(st.Root(), sub)); err != nil {
			t.Errorf("layout dir %s missing: %v", sub, err)
		}
	}
}

func TestQueueRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Missing queue file reads as empty.
	queue, err := st.LoadQueue(ctx)
	if err != nil {
		t.Fatalf("LoadQueue error = %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("initial queue = %d entries, want 0", len(queue))
	}

	entries := []models.QueueEntry{
		{ID: "a", User: "alice", Cabinet: "cab1", PresetID: "p1", TriggerTime: "10:00"},
		{ID: "b", User: "bob", Cabinet: "cab1", PresetID: "p2", TriggerTime: "11:30", Status: models.QueueStatusPaused},
	}
	if err := st.SaveQueue(ctx, entries); err != nil {
		t.Fatalf("SaveQueue error = %v", err)
	}

	queue, err = st.LoadQueue(ctx)
	if err != nil {
		t.Fatalf("LoadQueue error = %v", err)
	}
	if len(queue) != 2 || queue[0].ID != "a" || queue[1].Status != models.QueueStatusPaused {
		t.Errorf("queue = %+v", queue)
	}
}

func TestUpdateQueueSerializesWriters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Concurrent appenders under the advisory lock must not lose entries.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := st.UpdateQueue(ctx, func(queue []models.QueueEntry) []models.QueueEntry {
				return append(queue, models.QueueEntry{ID: string(rune('a' + n))})
			})
			if err != nil {
				t.Errorf("UpdateQueue error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	queue, err := st.LoadQueue(ctx)
	if err != nil {
		t.Fatalf("LoadQueue error = %v", err)
	}
	if len(queue) != 10 {
		t.Errorf("queue entries = %d, want 10", len(queue))
	}
}

func TestLoadPresetNotFound(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.LoadPreset(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadPreset error = %v, want ErrNotFound", err)
	}
}

func TestLoadCabinetSettingsDefaults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	settings, err := st.LoadCabinetSettings(ctx, "nope")
	if err != nil {
		t.Fatalf("LoadCabinetSettings error = %v", err)
	}
	if !settings.Enabled {
		t.Error("missing settings document must default to enabled")
	}

	dir := filepath.Join(st.Root(), "cabinets", "cab1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `{"enabled": false, "deleteRejected": true, "timeStart": "09:00"}`
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err = st.LoadCabinetSettings(ctx, "cab1")
	if err != nil {
		t.Fatalf("LoadCabinetSettings error = %v", err)
	}
	if settings.Enabled || !settings.DeleteRejected || settings.TimeStart != "09:00" {
		t.Errorf("settings = %+v", settings)
	}
}

func TestLoadCredentials(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.LoadCredentials(ctx, "missing"); err == nil {
		t.Error("missing credentials: error = nil, want error")
	}

	dir := filepath.Join(st.Root(), "cabinets", "cab1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadCredentials(ctx, "cab1"); err == nil {
		t.Error("empty credential pool: error = nil, want error")
	}

	doc := `[{"token": "t1", "cabinet": "cab1"}, {"token": "t2", "cabinet": "cab1"}]`
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	creds, err := st.LoadCredentials(ctx, "cab1")
	if err != nil {
		t.Fatalf("LoadCredentials error = %v", err)
	}
	if len(creds) != 2 || creds[0].Token != "t1" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestAddGroupLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	req := &models.AddGroupRequest{
		User:    "alice",
		Cabinet: "cab1",
		ModerationInfo: models.ModerationInfo{
			NewMediaID: 555,
			AdPlanID:   100,
		},
	}
	id, err := st.SaveAddGroup(ctx, req)
	if err != nil {
		t.Fatalf("SaveAddGroup error = %v", err)
	}

	ids, err := st.ListAddGroups(ctx)
	if err != nil {
		t.Fatalf("ListAddGroups error = %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("ListAddGroups = %v, want [%s]", ids, id)
	}

	got, err := st.GetAddGroup(ctx, id)
	if err != nil {
		t.Fatalf("GetAddGroup error = %v", err)
	}
	if got.ModerationInfo.NewMediaID != 555 || got.Cabinet != "cab1" {
		t.Errorf("job = %+v", got)
	}

	if err := st.DeleteAddGroup(ctx, id); err != nil {
		t.Fatalf("DeleteAddGroup error = %v", err)
	}
	if ids, _ := st.ListAddGroups(ctx); len(ids) != 0 {
		t.Errorf("jobs after delete = %v, want none", ids)
	}
	// Deleting twice is not an error.
	if err := st.DeleteAddGroup(ctx, id); err != nil {
		t.Errorf("second DeleteAddGroup error = %v", err)
	}
}

func TestTrackingLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := &models.ModerationTrackingRecord{
		User:       "alice",
		Cabinet:    "cab1",
		CompanyIDs: []int64{100},
		AdGroups: map[int64]models.TrackedGroup{
			201: {OriginalVideoID: "vid-1"},
			202: {OriginalVideoID: "vid-2"},
		},
	}
	id, err := st.CreateTracking(ctx, rec)
	if err != nil {
		t.Fatalf("CreateTracking error = %v", err)
	}
	if len(id) != 6 {
		t.Errorf("tracking id = %q, want 6 digits", id)
	}

	// Removing one group keeps the record.
	err = st.UpdateTracking(ctx, id, func(r *models.ModerationTrackingRecord) error {
		delete(r.AdGroups, 201)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTracking error = %v", err)
	}
	got, err := st.GetTracking(ctx, id)
	if err != nil {
		t.Fatalf("GetTracking error = %v", err)
	}
	if len(got.AdGroups) != 1 {
		t.Errorf("groups = %d, want 1", len(got.AdGroups))
	}

	// Emptying groups while a recreation is pending keeps the record.
	err = st.UpdateTracking(ctx, id, func(r *models.ModerationTrackingRecord) error {
		delete(r.AdGroups, 202)
		r.PendingRecreations = 1
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTracking error = %v", err)
	}
	if _, err := st.GetTracking(ctx, id); err != nil {
		t.Fatalf("record deleted while recreation pending: %v", err)
	}

	// Releasing the last watch deletes the document.
	err = st.UpdateTracking(ctx, id, func(r *models.ModerationTrackingRecord) error {
		r.PendingRecreations = 0
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTracking error = %v", err)
	}
	if _, err := st.GetTracking(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTracking after resolve = %v, want ErrNotFound", err)
	}
}

func TestClaimTrackingNeverOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := &models.ModerationTrackingRecord{Cabinet: "cab1", CompanyIDs: []int64{100}}
	claimed, err := st.claimTracking(ctx, "123456", first)
	if err != nil {
		t.Fatalf("claimTracking error = %v", err)
	}
	if !claimed {
		t.Fatal("first claim = false, want true")
	}

	// A second writer landing on the same id must lose and leave the
	// original record intact.
	second := &models.ModerationTrackingRecord{Cabinet: "cab2", CompanyIDs: []int64{200}}
	claimed, err = st.claimTracking(ctx, "123456", second)
	if err != nil {
		t.Fatalf("second claimTracking error = %v", err)
	}
	if claimed {
		t.Error("second claim = true, want collision")
	}

	got, err := st.GetTracking(ctx, "123456")
	if err != nil {
		t.Fatalf("GetTracking error = %v", err)
	}
	if got.Cabinet != "cab1" || len(got.CompanyIDs) != 1 || got.CompanyIDs[0] != 100 {
		t.Errorf("record = %+v, want the first writer's content", got)
	}
}

func TestUpdateTrackingPropagatesFnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateTracking(ctx, &models.ModerationTrackingRecord{
		AdGroups: map[int64]models.TrackedGroup{201: {}},
	})
	if err != nil {
		t.Fatalf("CreateTracking error = %v", err)
	}

	wantErr := errors.New("refuse")
	err = st.UpdateTracking(ctx, id, func(*models.ModerationTrackingRecord) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("UpdateTracking error = %v, want %v", err, wantErr)
	}
}

func TestHistoryAppend(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	history, err := st.LoadHistory(ctx, "cab1")
	if err != nil {
		t.Fatalf("LoadHistory error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("initial history = %d assets, want 0", len(history))
	}

	entries := []models.HistoryEntry{
		{Status: models.ModerationBanned, ShortText: "s1", LongText: "l1"},
		{Status: models.ModerationApproved, ShortText: "s2", LongText: "l2"},
	}
	for _, e := range entries {
		if err := st.AppendHistory(ctx, "cab1", "vid-1", "siteconversions", e); err != nil {
			t.Fatalf("AppendHistory error = %v", err)
		}
	}
	if err := st.AppendHistory(ctx, "cab1", "vid-1", "leadads", entries[0]); err != nil {
		t.Fatalf("AppendHistory error = %v", err)
	}

	history, err = st.LoadHistory(ctx, "cab1")
	if err != nil {
		t.Fatalf("LoadHistory error = %v", err)
	}

	got := history.Lookup("vid-1", "siteconversions")
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	// Append order is preserved and timestamps are filled.
	if got[0].Status != models.ModerationBanned || got[1].Status != models.ModerationApproved {
		t.Errorf("order = %s, %s", got[0].Status, got[1].Status)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not filled on append")
	}
	if other := history.Lookup("vid-1", "leadads"); len(other) != 1 {
		t.Errorf("leadads entries = %d, want 1", len(other))
	}
	if none := history.Lookup("vid-2", "siteconversions"); len(none) != 0 {
		t.Errorf("unknown asset entries = %d, want 0", len(none))
	}
}

func TestAppendOutcomeJSONL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	records := []models.OutcomeRecord{
		{User: "alice", PresetID: "p1", Status: "submitted", Message: "ok", CampaignIDs: []int64{100}},
		{User: "bob", PresetID: "p2", Status: "failed", Message: "boom", Detail: "500"},
	}
	for _, rec := range records {
		if err := st.AppendOutcome(ctx, "cab1", rec); err != nil {
			t.Fatalf("AppendOutcome error = %v", err)
		}
	}

	f, err := os.Open(filepath.Join(st.Root(), "cabinets", "cab1", "outcomes.log"))
	if err != nil {
		t.Fatalf("open outcome log: %v", err)
	}
	defer f.Close()

	var lines []models.OutcomeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.OutcomeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %q not valid JSON: %v", line, err)
		}
		lines = append(lines, rec)
	}

	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}
	if lines[0].User != "alice" || lines[1].Status != "failed" {
		t.Errorf("lines = %+v", lines)
	}
	if lines[0].ID == "" || lines[0].Timestamp.IsZero() {
		t.Error("outcome id/timestamp not filled on append")
	}
}

func TestWriteJSONAtomicLeavesNoTempFiles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveQueue(ctx, []models.QueueEntry{{ID: "a"}}); err != nil {
		t.Fatalf("SaveQueue error = %v", err)
	}

	entries, err := os.ReadDir(st.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("stray temp file %s", e.Name())
		}
	}
}

func TestOneShotLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job := OneShot{
		QueueEntry: models.QueueEntry{ID: "os1", User: "alice", Cabinet: "cab1"},
		Preset: models.Preset{
			ID:      "embedded",
			Company: models.PresetCompany{Objective: "siteconversions"},
		},
	}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(st.Root(), "oneshot", "os1.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := st.ListOneShots(ctx)
	if err != nil {
		t.Fatalf("ListOneShots error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "os1" {
		t.Fatalf("ListOneShots = %v", ids)
	}

	got, err := st.GetOneShot(ctx, "os1")
	if err != nil {
		t.Fatalf("GetOneShot error = %v", err)
	}
	if got.Preset.ID != "embedded" || got.User != "alice" {
		t.Errorf("one-shot = %+v", got)
	}

	if err := st.DeleteOneShot(ctx, "os1"); err != nil {
		t.Fatalf("DeleteOneShot error = %v", err)
	}
	if ids, _ := st.ListOneShots(ctx); len(ids) != 0 {
		t.Errorf("one-shots after delete = %v", ids)
	}
}
