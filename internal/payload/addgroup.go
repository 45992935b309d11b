// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package payload

import (
	"fmt"
	"time"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// BuildRecoveredGroup assembles the single-group payload for an add-group
// follow-up job. Unlike a fresh build, targeting segments and the audience
// name were read back from the live banned group, and the banner carries
// the rehashed media id plus the mutated text — no remote resolution
// happens here.
//
// The returned TrackedGroup is what the caller appends to the owning
// tracking record once the platform reports the new group's id.
func BuildRecoveredGroup(req *models.AddGroupRequest, now time.Time) (*models.AdGroupPayload, models.TrackedGroup, error) {
	if len(req.Groups) == 0 || len(req.Ads) == 0 {
		return nil, models.TrackedGroup{}, fmt.Errorf("payload: add-group job carries no group/ad snapshot")
	}
	info := &req.ModerationInfo
	if info.NewMediaID == 0 {
		return nil, models.TrackedGroup{}, fmt.Errorf("payload: add-group job carries no replacement media id")
	}

	group := &req.Groups[0]
	ad := &req.Ads[0]

	advertiser := ad.Advertiser
	if advertiser == "" {
		advertiser = req.Company.Advertiser
	}

	payload := &models.AdGroupPayload{
		Name: RenderName(group.NameTpl, NameContext{
			Date:      now,
			Sequence:  1,
			Objective: req.Company.Objective,
			AgeRange:  group.AgeRange,
			Gender:    group.Gender,
			Audiences: []string{info.AudienceName},
		}),
		Targeting: models.TargetingPayload{
			AgeList:   ParseAgeRange(group.AgeRange),
			Sex:       GenderList(group.Gender),
			Regions:   group.Regions,
			Interests: group.Interests,
			Segments:  info.Segments,
			Pads:      group.Pads,
		},
		MaxPrice: BidCeiling(group.Bid.Strategy, group.Bid.Cap),
	}
	if group.BudgetDaily > 0 {
		payload.BudgetLimitDay = FormatMoney(group.BudgetDaily)
	}
	if group.BudgetTotal > 0 {
		payload.BudgetLimit = FormatMoney(group.BudgetTotal)
	}

	banner := models.BannerPayload{
		Name: RenderName(ad.NameTpl, NameContext{
			Date:      now,
			Sequence:  1,
			Objective: req.Company.Objective,
		}),
		Content: models.BannerContent{IconID: ad.Icon.PlatformID},
		Textblocks: models.BannerTextblocks{
			Title:      info.ShortText,
			Text:       info.LongText,
			CTA:        ad.CTA,
			ButtonText: ad.ButtonText,
			Advertiser: advertiser,
		},
	}

	tracked := models.TrackedGroup{
		ShortText: info.ShortText,
		LongText:  info.LongText,
	}
	if info.MediaType == "video" {
		banner.Content.VideoID = info.NewMediaID
		tracked.VideoID = info.NewMediaID
		tracked.OriginalVideoID = info.OriginalMediaID
	} else {
		banner.Content.ImageID = info.NewMediaID
		tracked.ImageID = info.NewMediaID
		tracked.OriginalImageID = info.OriginalMediaID
	}
	payload.Banners = []models.BannerPayload{banner}

	return payload, tracked, nil
}
