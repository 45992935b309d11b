// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/notify"
	"github.com/vmelnikoff/adpilot/internal/platform"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// fakeCaller scripts the remote platform underneath platform.API. Calls
// are routed by URL shape.
type fakeCaller struct {
	mu            sync.Mutex
	calls         []string
	planErr       error
	planFailAfter int // planErr kicks in after this many successful plan calls
	planCalls     int
	listErr       error
	groupSets     [][]int64 // successive ListAdGroupIDs responses
	groupIdx      int
}

func (f *fakeCaller) Call(_ context.Context, method, url string, _ []models.Credential, _ any) (*platform.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+url)

	ok := func(body string) (*platform.Response, error) {
		return &platform.Response{Status: 200, Raw: []byte(body), IsJSON: true}, nil
	}

	switch {
	case strings.Contains(url, "/urls.json"):
		return ok(`{"id": 77}`)
	case strings.Contains(url, "/ad_plans.json"):
		f.planCalls++
		if f.planErr != nil && f.planCalls > f.planFailAfter {
			return nil, f.planErr
		}
		return ok(fmt.Sprintf(`{"response": {"id": %d, "ad_groups": [{"id": %d}]}}`,
			99+f.planCalls, 200+f.planCalls))
	case strings.Contains(url, "/ad_groups.json?"):
		if f.listErr != nil {
			return nil, f.listErr
		}
		set := []int64{}
		if f.groupIdx < len(f.groupSets) {
			set = f.groupSets[f.groupIdx]
			f.groupIdx++
		}
		items := make([]map[string]int64, 0, len(set))
		for _, id := range set {
			items = append(items, map[string]int64{"id": id})
		}
		raw, _ := json.Marshal(map[string]any{"items": items})
		return &platform.Response{Status: 200, Raw: raw, IsJSON: true}, nil
	case strings.Contains(url, "/ad_groups.json"):
		return ok(`{}`)
	}
	return nil, fmt.Errorf("fakeCaller: unexpected %s %s", method, url)
}

func (f *fakeCaller) Upload(context.Context, string, []models.Credential, string, string) (*platform.Response, error) {
	return nil, fmt.Errorf("fakeCaller: upload not scripted")
}

func (f *fakeCaller) called(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func testDispatcher(t *testing.T, caller *fakeCaller) (*Dispatcher, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("store.New error = %v", err)
	}
	cfg := config.DispatchConfig{
		Enabled:       true,
		TickInterval:  30 * time.Second,
		TriggerSecond: 0,
		MatchWindow:   55 * time.Second,
	}
	d := New(st, platform.NewAPI(caller, ""), notify.Noop{}, cfg)
	d.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	}
	return d, st
}

func seedCabinet(t *testing.T, st *store.Store, cabinet string) {
	t.Helper()
	dir := filepath.Join(st.Root(), "cabinets", cabinet)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	creds := fmt.Sprintf(`[{"token": "tok", "cabinet": %q}]`, cabinet)
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(creds), 0o644); err != nil {
		t.Fatal(err)
	}
}

func seedPreset(t *testing.T, st *store.Store, id string) {
	t.Helper()
	preset := models.Preset{
		ID: id,
		Company: models.PresetCompany{
			Objective:  models.ObjectiveSiteConversions,
			LandingURL: "https://example.com/buy",
		},
		Groups: []models.PresetGroup{{Segments: []int64{11}}},
		Ads: []models.PresetAd{{
			Videos:    []models.MediaRef{{CatalogID: "vid-1", PlatformID: 9001}},
			ShortText: "short",
			LongText:  "long",
		}},
	}
	data, err := json.Marshal(preset)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(st.Root(), "presets", id+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTickFiresDueEntryOnce(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")
	seedPreset(t, st, "p1")

	queue := []models.QueueEntry{
		{ID: "due", Cabinet: "cab1", PresetID: "p1", TriggerTime: "10:00", Status: models.QueueStatusActive},
		{ID: "later", Cabinet: "cab1", PresetID: "p1", TriggerTime: "18:00", Status: models.QueueStatusActive},
		{ID: "paused", Cabinet: "cab1", PresetID: "p1", TriggerTime: "10:00", Status: models.QueueStatusPaused},
	}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	if got := caller.called("/ad_plans.json"); got != 1 {
		t.Errorf("campaign submissions = %d, want 1", got)
	}

	// The fired entry is consumed; the not-due and paused entries survive.
	remaining, err := st.LoadQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, e := range remaining {
		ids[e.ID] = true
	}
	if ids["due"] || !ids["later"] || !ids["paused"] {
		t.Errorf("remaining queue = %v, want later+paused only", ids)
	}

	// A second tick at the same instant must not fire again.
	d.tick(ctx)
	if got := caller.called("/ad_plans.json"); got != 1 {
		t.Errorf("submissions after second tick = %d, want still 1", got)
	}

	// The submission left a tracking record pairing group 201 with the
	// creative provenance.
	tracking, err := st.ListTracking(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracking) != 1 {
		t.Fatalf("tracking records = %d, want 1", len(tracking))
	}
	rec, err := st.GetTracking(ctx, tracking[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.CompanyIDs) != 1 || rec.CompanyIDs[0] != 100 {
		t.Errorf("company ids = %v, want [100]", rec.CompanyIDs)
	}
	tracked, ok := rec.AdGroups[201]
	if !ok {
		t.Fatalf("group 201 not tracked: %v", rec.AdGroups)
	}
	if tracked.OriginalVideoID != "vid-1" || tracked.VideoID != 9001 {
		t.Errorf("tracked group = %+v", tracked)
	}
}

func TestTickRepeatsSubmitMultipleCampaigns(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")
	seedPreset(t, st, "p1")

	queue := []models.QueueEntry{{
		ID: "due", Cabinet: "cab1", PresetID: "p1",
		TriggerTime: "10:00", Status: models.QueueStatusActive, RepeatCount: 3,
	}}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	if got := caller.called("/ad_plans.json"); got != 3 {
		t.Errorf("campaign submissions = %d, want 3", got)
	}
	tracking, _ := st.ListTracking(ctx)
	if len(tracking) != 1 {
		t.Fatalf("tracking records = %d, want 1 accumulated record", len(tracking))
	}
	rec, err := st.GetTracking(ctx, tracking[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.CompanyIDs) != 3 {
		t.Errorf("company ids = %v, want 3 campaigns in one record", rec.CompanyIDs)
	}
}

func TestTickMalformedTriggerIsTerminal(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")

	queue := []models.QueueEntry{{
		ID: "bad", User: "alice", Cabinet: "cab1", PresetID: "p1",
		TriggerTime: "nonsense", Status: models.QueueStatusActive,
	}}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	remaining, _ := st.LoadQueue(ctx)
	if len(remaining) != 0 {
		t.Errorf("malformed entry still queued: %v", remaining)
	}
	if got := caller.called("/ad_plans.json"); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}

	// The failure landed in the outcome log.
	data, err := os.ReadFile(filepath.Join(st.Root(), "cabinets", "cab1", "outcomes.log"))
	if err != nil {
		t.Fatalf("outcome log missing: %v", err)
	}
	if !strings.Contains(string(data), `"failed"`) {
		t.Errorf("outcome log = %s, want failed record", data)
	}
}

func TestTickDisabledCabinetKeepsEntry(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")
	seedPreset(t, st, "p1")

	dir := filepath.Join(st.Root(), "cabinets", "cab1")
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"enabled": false}`), 0o644); err != nil {
		t.Fatal(err)
	}

	queue := []models.QueueEntry{{
		ID: "due", Cabinet: "cab1", PresetID: "p1",
		TriggerTime: "10:00", Status: models.QueueStatusActive,
	}}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	remaining, _ := st.LoadQueue(ctx)
	if len(remaining) != 1 {
		t.Errorf("disabled cabinet consumed the entry, queue = %v", remaining)
	}
	if got := caller.called("/ad_plans.json"); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
}

func TestTickSubmissionFailureIsTerminal(t *testing.T) {
	caller := &fakeCaller{
		planErr: &platform.HTTPError{Status: 400, Body: `{"error":{"code":"invalid_payload"}}`},
	}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")
	seedPreset(t, st, "p1")

	queue := []models.QueueEntry{{
		ID: "due", User: "alice", Cabinet: "cab1", PresetID: "p1",
		TriggerTime: "10:00", Status: models.QueueStatusActive,
	}}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	remaining, _ := st.LoadQueue(ctx)
	if len(remaining) != 0 {
		t.Errorf("failed entry still queued: %v", remaining)
	}
	if tracking, _ := st.ListTracking(ctx); len(tracking) != 0 {
		t.Errorf("tracking records = %d, want 0 on failure", len(tracking))
	}
}

func TestTickPartialRepeatFailureTracksCreated(t *testing.T) {
	// Repeat 1 succeeds, repeat 2 hits a permanent 400. The entry is
	// terminal, but the campaign from repeat 1 exists remotely and must
	// stay under moderation watch instead of being orphaned.
	caller := &fakeCaller{
		planErr:       &platform.HTTPError{Status: 400, Body: `{"error":{"code":"invalid_payload"}}`},
		planFailAfter: 1,
	}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")
	seedPreset(t, st, "p1")

	queue := []models.QueueEntry{{
		ID: "due", User: "alice", Cabinet: "cab1", PresetID: "p1",
		TriggerTime: "10:00", Status: models.QueueStatusActive, RepeatCount: 3,
	}}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	remaining, _ := st.LoadQueue(ctx)
	if len(remaining) != 0 {
		t.Errorf("failed entry still queued: %v", remaining)
	}

	tracking, err := st.ListTracking(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracking) != 1 {
		t.Fatalf("tracking records = %d, want 1 for the partial batch", len(tracking))
	}
	rec, err := st.GetTracking(ctx, tracking[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.CompanyIDs) != 1 || rec.CompanyIDs[0] != 100 {
		t.Errorf("tracked company ids = %v, want [100]", rec.CompanyIDs)
	}
	if _, ok := rec.AdGroups[201]; !ok {
		t.Errorf("group 201 not tracked: %v", rec.AdGroups)
	}

	// The failure outcome names the campaigns that did get created.
	data, err := os.ReadFile(filepath.Join(st.Root(), "cabinets", "cab1", "outcomes.log"))
	if err != nil {
		t.Fatalf("outcome log missing: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, `"failed"`) || !strings.Contains(log, `"campaign_ids":[100]`) {
		t.Errorf("outcome log = %s, want failed record carrying campaign 100", log)
	}
}

func TestProcessOneShots(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")

	job := store.OneShot{
		QueueEntry: models.QueueEntry{User: "alice", Cabinet: "cab1"},
		Preset: models.Preset{
			ID: "embedded",
			Company: models.PresetCompany{
				Objective:  models.ObjectiveSiteConversions,
				LandingURL: "https://example.com",
			},
			Groups: []models.PresetGroup{{Segments: []int64{11}}},
			Ads: []models.PresetAd{{
				Videos:    []models.MediaRef{{CatalogID: "vid-1", PlatformID: 9001}},
				ShortText: "s", LongText: "l",
			}},
		},
	}
	data, _ := json.Marshal(job)
	if err := os.WriteFile(filepath.Join(st.Root(), "oneshot", "os1.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	// Fired immediately regardless of trigger time, then deleted.
	if got := caller.called("/ad_plans.json"); got != 1 {
		t.Errorf("submissions = %d, want 1", got)
	}
	if ids, _ := st.ListOneShots(ctx); len(ids) != 0 {
		t.Errorf("one-shots after tick = %v, want none", ids)
	}
}

func TestProcessAddGroups(t *testing.T) {
	caller := &fakeCaller{groupSets: [][]int64{{201}, {201, 301}}}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")

	// The tracking record awaiting the recreation.
	recordID, err := st.CreateTracking(ctx, &models.ModerationTrackingRecord{
		Cabinet:            "cab1",
		CompanyIDs:         []int64{100},
		AdGroups:           map[int64]models.TrackedGroup{201: {OriginalVideoID: "vid-1"}},
		PendingRecreations: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := &models.AddGroupRequest{
		User:    "alice",
		Cabinet: "cab1",
		Company: models.PresetCompany{Objective: models.ObjectiveSiteConversions},
		Groups:  []models.PresetGroup{{}},
		Ads:     []models.PresetAd{{ShortText: "s", LongText: "l"}},
		ModerationInfo: models.ModerationInfo{
			NewMediaID:      555,
			MediaType:       "video",
			AdPlanID:        100,
			OriginalMediaID: "vid-1",
			ShortText:       "s2",
			LongText:        "l2",
		},
	}
	if _, err := st.SaveAddGroup(ctx, req); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	// Job consumed; the new group 301 went back under watch and the
	// recreation counter released.
	if jobs, _ := st.ListAddGroups(ctx); len(jobs) != 0 {
		t.Errorf("add-group jobs after tick = %v, want none", jobs)
	}
	rec, err := st.GetTracking(ctx, recordID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.PendingRecreations != 0 {
		t.Errorf("pending recreations = %d, want 0", rec.PendingRecreations)
	}
	tracked, ok := rec.AdGroups[301]
	if !ok {
		t.Fatalf("recreated group 301 not tracked: %v", rec.AdGroups)
	}
	if tracked.VideoID != 555 || tracked.ShortText != "s2" {
		t.Errorf("tracked recreation = %+v", tracked)
	}
}

func TestProcessAddGroupsTransientFailureKeepsJob(t *testing.T) {
	caller := &fakeCaller{}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	// No credentials seeded: submission fails, but a missing credential
	// pool is transient (the UI may write it any moment), so the job stays.
	req := &models.AddGroupRequest{
		Cabinet: "cab1",
		Company: models.PresetCompany{Objective: models.ObjectiveSiteConversions},
		Groups:  []models.PresetGroup{{}},
		Ads:     []models.PresetAd{{}},
		ModerationInfo: models.ModerationInfo{
			NewMediaID: 555, MediaType: "video", AdPlanID: 100, OriginalMediaID: "vid-1",
		},
	}
	if _, err := st.SaveAddGroup(ctx, req); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	if jobs, _ := st.ListAddGroups(ctx); len(jobs) != 1 {
		t.Errorf("transient failure dropped the job, jobs = %v", jobs)
	}
}

func TestProcessAddGroupsUnrecoverableDropsJob(t *testing.T) {
	// The parent campaign is gone: the group snapshot 404s and the job is
	// dropped with a failed outcome instead of retrying forever.
	caller := &fakeCaller{
		listErr: &platform.HTTPError{Status: 404, Body: `{"error":{"code":"not_found"}}`},
	}
	d, st := testDispatcher(t, caller)
	ctx := context.Background()
	seedCabinet(t, st, "cab1")

	req := &models.AddGroupRequest{
		User:    "alice",
		Cabinet: "cab1",
		Company: models.PresetCompany{Objective: models.ObjectiveSiteConversions},
		Groups:  []models.PresetGroup{{}},
		Ads:     []models.PresetAd{{}},
		ModerationInfo: models.ModerationInfo{
			NewMediaID: 555, MediaType: "video", AdPlanID: 100, OriginalMediaID: "vid-1",
		},
	}
	if _, err := st.SaveAddGroup(ctx, req); err != nil {
		t.Fatal(err)
	}

	d.tick(ctx)

	if jobs, _ := st.ListAddGroups(ctx); len(jobs) != 0 {
		t.Errorf("unrecoverable job survived, jobs = %v", jobs)
	}
	data, err := os.ReadFile(filepath.Join(st.Root(), "cabinets", "cab1", "outcomes.log"))
	if err != nil {
		t.Fatalf("outcome log missing: %v", err)
	}
	if !strings.Contains(string(data), `"failed"`) {
		t.Errorf("outcome log = %s, want failed record", data)
	}
}
