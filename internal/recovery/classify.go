// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package recovery implements the moderation recovery engine: a polling
// loop that inspects tracked campaigns, classifies every ad group's
// moderation outcome, and turns banned groups into add-group follow-up
// jobs carrying a rehashed creative and mutated text.
//
// Per tracked group the engine is a state machine:
//
//	TRACKED -> APPROVED            -> RESOLVED (history record, removed)
//	TRACKED -> ON_MODERATION       -> re-checked next pass
//	TRACKED -> BANNED -> RECREATING -> RESOLVED (job packaged, removed)
//
// The tracking record file is deleted only when it holds zero groups and
// no recreation watch is outstanding.
package recovery

import "github.com/vmelnikoff/adpilot/internal/platform"

// GroupState is the classification of one tracked ad group.
type GroupState int

const (
	// StateApproved means the group serves: no blocking issues.
	StateApproved GroupState = iota
	// StateBanned means moderation rejected the group's banner; the
	// group is recoverable now.
	StateBanned
	// StateOnModeration means the outcome is not final yet; the group
	// is left tracked and re-checked next pass.
	StateOnModeration
)

func (s GroupState) String() string {
	switch s {
	case StateApproved:
		return "approved"
	case StateBanned:
		return "banned"
	default:
		return "on_moderation"
	}
}

// classifyGroup decides a tracked group's state from its remote issue
// lists. The campaign-level flags are deliberately ignored: a campaign
// "problem" flag can be caused by one bad group among healthy ones, so
// every group is judged on its own issues.
func classifyGroup(group *platform.AdGroupState) GroupState {
	if !hasIssue(group.Issues, platform.IssueNoAllowedBanners) {
		return StateApproved
	}

	// The group carries the "no allowed banners" signal: the banner's own
	// issues distinguish a final ban from moderation still in flight.
	if len(group.Banners) == 0 {
		return StateOnModeration
	}
	banner := group.Banners[0]
	if hasIssue(banner.Issues, platform.IssueBannerBanned) {
		return StateBanned
	}
	// "on_moderation" or any unrecognized banner code: not actionable yet.
	return StateOnModeration
}

func hasIssue(issues []platform.Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
