// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package recovery

import (
	"testing"

	"github.com/vmelnikoff/adpilot/internal/platform"
)

func TestClassifyGroup(t *testing.T) {
	tests := []struct {
		name  string
		group platform.AdGroupState
		want  GroupState
	}{
		{
			name:  "no issues means approved",
			group: platform.AdGroupState{ID: 1},
			want:  StateApproved,
		},
		{
			name: "unrelated issue still approved",
			group: platform.AdGroupState{
				ID:     1,
				Issues: []platform.Issue{{Code: "low_budget"}},
			},
			want: StateApproved,
		},
		{
			name: "no allowed banners, banner banned",
			group: platform.AdGroupState{
				ID:     1,
				Issues: []platform.Issue{{Code: platform.IssueNoAllowedBanners}},
				Banners: []platform.BannerState{
					{ID: 10, Issues: []platform.Issue{{Code: platform.IssueBannerBanned}}},
				},
			},
			want: StateBanned,
		},
		{
			name: "no allowed banners, banner still on moderation",
			group: platform.AdGroupState{
				ID:     1,
				Issues: []platform.Issue{{Code: platform.IssueNoAllowedBanners}},
				Banners: []platform.BannerState{
					{ID: 10, Issues: []platform.Issue{{Code: platform.IssueBannerModeration}}},
				},
			},
			want: StateOnModeration,
		},
		{
			name: "no allowed banners, no banner detail yet",
			group: platform.AdGroupState{
				ID:     1,
				Issues: []platform.Issue{{Code: platform.IssueNoAllowedBanners}},
			},
			want: StateOnModeration,
		},
		{
			name: "unrecognized banner issue is not a ban",
			group: platform.AdGroupState{
				ID:     1,
				Issues: []platform.Issue{{Code: platform.IssueNoAllowedBanners}},
				Banners: []platform.BannerState{
					{ID: 10, Issues: []platform.Issue{{Code: "something_new"}}},
				},
			},
			want: StateOnModeration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyGroup(&tt.group); got != tt.want {
				t.Errorf("classifyGroup = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroupStateString(t *testing.T) {
	if StateApproved.String() != "approved" || StateBanned.String() != "banned" || StateOnModeration.String() != "on_moderation" {
		t.Error("GroupState strings do not match metric label values")
	}
}
