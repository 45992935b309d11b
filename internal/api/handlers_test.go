// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("store.New error = %v", err)
	}
	cfg := config.ServerConfig{
		Host:        "127.0.0.1",
		Port:        0,
		Timeout:     5 * time.Second,
		CORSOrigins: []string{"*"},
	}
	return NewServer(cfg, st), st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, st := testServer(t)
	h := srv.routes(NewHandler(st))

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rec.Code)
	}
}

func TestStatusReportsQueueDepths(t *testing.T) {
	srv, st := testServer(t)
	h := srv.routes(NewHandler(st))
	ctx := context.Background()

	queue := []models.QueueEntry{
		{ID: "a", Status: models.QueueStatusActive},
		{ID: "b", Status: models.QueueStatusPaused},
	}
	if err := st.SaveQueue(ctx, queue); err != nil {
		t.Fatal(err)
	}
	_, err := st.CreateTracking(ctx, &models.ModerationTrackingRecord{
		Cabinet:            "cab1",
		CompanyIDs:         []int64{100},
		AdGroups:           map[int64]models.TrackedGroup{201: {}, 202: {}},
		PendingRecreations: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, h, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/v1/status status = %d, want 200", rec.Code)
	}

	var envelope struct {
		Success bool       `json:"success"`
		Data    StatusView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if !envelope.Success {
		t.Error("success = false, want true")
	}
	view := envelope.Data
	if view.QueueEntries != 2 || view.QueueActive != 1 {
		t.Errorf("queue counts = %d/%d, want 2/1", view.QueueEntries, view.QueueActive)
	}
	if view.TrackedRecords != 1 || view.TrackedGroups != 2 || view.PendingRecreat != 1 {
		t.Errorf("tracking counts = %+v, want 1 record, 2 groups, 1 pending", view)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv, st := testServer(t)
	h := srv.routes(NewHandler(st))

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv, st := testServer(t)
	h := srv.routes(NewHandler(st))

	if rec := get(t, h, "/api/v1/nonsense"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}
}
