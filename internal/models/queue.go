// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package models holds the durable document types shared between the
// dispatcher, the recovery engine and the external UI layer. The UI layer
// authors queue entries, presets and cabinet settings; this process only
// reads those and owns everything else.
package models

// Queue entry status values. Anything other than active is an external
// toggle and is skipped by the dispatcher.
const (
	QueueStatusActive = "active"
	QueueStatusPaused = "paused"
)

// QueueEntry is one scheduled campaign-creation job in the primary queue.
type QueueEntry struct {
	ID          string   `json:"id"`
	User        string   `json:"user"`
	Cabinet     string   `json:"cabinet"`
	PresetID    string   `json:"preset_id"`
	Tokens      []string `json:"tokens"`
	TriggerTime string   `json:"trigger_time"` // bare HH:MM
	RepeatCount int      `json:"repeat_count"`
	FastMode    bool     `json:"fast_mode"`
	Status      string   `json:"status"`
}

// Repeats returns the number of independent campaign submissions the entry
// requests, at least one.
func (e *QueueEntry) Repeats() int {
	if e.RepeatCount < 1 {
		return 1
	}
	return e.RepeatCount
}

// ModerationInfo carries the recovery context an add-group job needs to
// rebuild a single banned group inside an existing campaign.
type ModerationInfo struct {
	NewMediaID   int64   `json:"new_media_id"`
	MediaType    string  `json:"media_type"` // "video" or "image"
	Segments     []int64 `json:"segments"`
	AdPlanID     int64   `json:"ad_plan_id"`
	AudienceName string  `json:"audience_name"`

	// Provenance for the moderation history of the replacement group.
	OriginalMediaID string `json:"original_media_id"`
	ShortText       string `json:"short_text"`
	LongText        string `json:"long_text"`
}

// AddGroupRequest is a follow-up job produced by the recovery engine and
// consumed by the dispatcher's add-group path. One file per job; deleted on
// success or on a classified-unrecoverable failure.
type AddGroupRequest struct {
	ModerationInfo ModerationInfo `json:"_moderation_info"`
	User           string         `json:"user"`
	Cabinet        string         `json:"cabinet"`
	Company        PresetCompany  `json:"company"`
	Groups         []PresetGroup  `json:"groups"`
	Ads            []PresetAd     `json:"ads"`
}
