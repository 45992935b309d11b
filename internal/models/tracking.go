// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package models

import "time"

// Moderation status values recorded in asset history.
const (
	ModerationApproved = "APPROVED"
	ModerationBanned   = "BANNED"
)

// TrackedGroup is the creative metadata remembered for one remote ad group
// so the recovery engine can interpret and recover from its moderation
// outcome.
type TrackedGroup struct {
	VideoID         int64  `json:"video_id,omitempty"` // platform media id
	OriginalVideoID string `json:"original_video_id,omitempty"`
	ImageID         int64  `json:"image_id,omitempty"`
	OriginalImageID string `json:"original_image_id,omitempty"`
	TextsetID       string `json:"textset_id,omitempty"`
	ShortText       string `json:"short_description"`
	LongText        string `json:"long_description"`
}

// OriginalAssetID returns the local catalog id the group's moderation
// history is keyed by.
func (g *TrackedGroup) OriginalAssetID() string {
	if g.OriginalVideoID != "" {
		return g.OriginalVideoID
	}
	return g.OriginalImageID
}

// MediaType reports the creative kind carried by the group.
func (g *TrackedGroup) MediaType() string {
	if g.OriginalVideoID != "" {
		return "video"
	}
	return "image"
}

// ModerationTrackingRecord links remote campaign/group ids back to creative
// metadata. One JSON document per submitted campaign batch. Groups are
// removed as they resolve; the document is deleted only when no groups
// remain and no recreation watch is outstanding.
type ModerationTrackingRecord struct {
	User       string                 `json:"user"`
	Cabinet    string                 `json:"cabinet"`
	PresetID   string                 `json:"preset_id"`
	Preset     Preset                 `json:"preset"`
	CompanyIDs []int64                `json:"company_ids"`
	AdGroups   map[int64]TrackedGroup `json:"ad_groups_ids"`

	// PendingRecreations counts banned groups whose replacement add-group
	// job is queued but not yet observed back as a new tracked group.
	PendingRecreations int `json:"pending_recreations"`

	CreatedAt time.Time `json:"created_at"`
}

// Resolved reports whether the record can be deleted.
func (r *ModerationTrackingRecord) Resolved() bool {
	return len(r.AdGroups) == 0 && r.PendingRecreations == 0
}

// HistoryEntry is one append-only moderation outcome for an (asset,
// objective) pair.
type HistoryEntry struct {
	VideoID         int64     `json:"video_id,omitempty"`
	OriginalVideoID string    `json:"original_video_id,omitempty"`
	Status          string    `json:"status"` // APPROVED or BANNED
	TextsetID       string    `json:"textset_id,omitempty"`
	ShortText       string    `json:"short_text"`
	LongText        string    `json:"long_text"`
	Timestamp       time.Time `json:"timestamp"`
}

// AssetModerationHistory maps original asset id -> objective -> outcomes.
// Entries are only ever appended.
type AssetModerationHistory map[string]map[string][]HistoryEntry

// Append records an outcome for an (asset, objective) pair.
func (h AssetModerationHistory) Append(assetID, objective string, entry HistoryEntry) {
	byObjective, ok := h[assetID]
	if !ok {
		byObjective = make(map[string][]HistoryEntry)
		h[assetID] = byObjective
	}
	byObjective[objective] = append(byObjective[objective], entry)
}

// Lookup returns the recorded outcomes for an (asset, objective) pair.
func (h AssetModerationHistory) Lookup(assetID, objective string) []HistoryEntry {
	return h[assetID][objective]
}

// OutcomeRecord is one line of a cabinet's append-only outcome log.
type OutcomeRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	PresetID    string    `json:"preset_id"`
	Status      string    `json:"status"` // "submitted" or "failed"
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"` // raw technical error text
	CampaignIDs []int64   `json:"campaign_ids,omitempty"`
}
