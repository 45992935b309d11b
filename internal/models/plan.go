// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package models

// Wire-ready campaign plan structures. Invariants the builder maintains:
// every banner references exactly one of {VideoID, ImageID} plus an icon,
// and every group carries resolved numeric ids only — no names or templates
// survive into these types.

// BannerContent references uploaded platform media by numeric id.
type BannerContent struct {
	VideoID int64 `json:"video_id,omitempty"`
	ImageID int64 `json:"image_id,omitempty"`
	IconID  int64 `json:"icon_id"`
}

// BannerTextblocks carries the creative copy.
type BannerTextblocks struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	CTA        string `json:"cta,omitempty"`
	ButtonText string `json:"button_text,omitempty"`
	Advertiser string `json:"about_company,omitempty"`
}

// BannerPayload is one banner inside an ad group payload.
type BannerPayload struct {
	Name       string           `json:"name"`
	Content    BannerContent    `json:"content"`
	Textblocks BannerTextblocks `json:"textblocks"`
}

// TargetingPayload is the resolved targeting block of an ad group.
type TargetingPayload struct {
	AgeList   []int    `json:"age,omitempty"`
	Sex       []string `json:"sex,omitempty"`
	Regions   []int64  `json:"geo,omitempty"`
	Interests []int64  `json:"interests,omitempty"`
	Segments  []int64  `json:"segments,omitempty"`
	Pads      []int64  `json:"pads,omitempty"`
}

// AdGroupPayload is one ad group inside a campaign plan.
type AdGroupPayload struct {
	Name      string           `json:"name"`
	Targeting TargetingPayload `json:"targetings"`

	// Money fields are pre-rendered strings with exact two-decimal
	// rounding; the platform rejects off-by-one-cent floats.
	BudgetLimitDay string `json:"budget_limit_day,omitempty"`
	BudgetLimit    string `json:"budget_limit,omitempty"`
	MaxPrice       string `json:"max_price"`

	Banners []BannerPayload `json:"banners"`
}

// CampaignPlanPayload is the top-level structure submitted to the campaign
// plan creation endpoint.
type CampaignPlanPayload struct {
	Name        string `json:"name"`
	Objective   string `json:"objective"`
	ObjectiveID int64  `json:"objective_id"` // resolved landing-object id
	PricingGoal string `json:"pricing_goal,omitempty"`

	AdGroups []AdGroupPayload `json:"ad_groups"`
}

// GroupCreative records which physical creative a built group's banner uses,
// so a tracking record can be written next to the submission.
type GroupCreative struct {
	Index           int    // position in CampaignPlanPayload.AdGroups
	OriginalVideoID string // local catalog id, empty for image creatives
	OriginalImageID string
	PlatformVideoID int64 // platform media id actually submitted
	PlatformImageID int64
	ShortText       string
	LongText        string
}
