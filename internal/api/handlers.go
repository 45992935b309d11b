// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package api

import (
	"net/http"

	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// Handler serves the operational endpoints. The store is the single source
// of truth: every view is computed from the files on request, never cached.
type Handler struct {
	store *store.Store
}

func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// HealthLive always succeeds while the process serves.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady verifies the data root is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.LoadQueue(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusView is the read-only snapshot of all work queues.
type StatusView struct {
	QueueEntries   int `json:"queue_entries"`
	QueueActive    int `json:"queue_active"`
	OneShots       int `json:"oneshots"`
	AddGroupJobs   int `json:"addgroup_jobs"`
	TrackedRecords int `json:"tracked_records"`
	TrackedGroups  int `json:"tracked_groups"`
	PendingRecreat int `json:"pending_recreations"`
}

// Status reports queue depths and moderation tracking totals.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var view StatusView

	queue, err := h.store.LoadQueue(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue_unreadable", err.Error())
		return
	}
	view.QueueEntries = len(queue)
	for _, entry := range queue {
		if entry.Status != models.QueueStatusPaused {
			view.QueueActive++
		}
	}

	oneShots, err := h.store.ListOneShots(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "oneshot_unreadable", err.Error())
		return
	}
	view.OneShots = len(oneShots)

	addGroups, err := h.store.ListAddGroups(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "addgroup_unreadable", err.Error())
		return
	}
	view.AddGroupJobs = len(addGroups)

	tracking, err := h.store.ListTracking(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tracking_unreadable", err.Error())
		return
	}
	view.TrackedRecords = len(tracking)
	for _, id := range tracking {
		rec, err := h.store.GetTracking(ctx, id)
		if err != nil {
			continue
		}
		view.TrackedGroups += len(rec.AdGroups)
		view.PendingRecreat += rec.PendingRecreations
	}

	writeJSON(w, http.StatusOK, view)
}
