// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package payload

import (
	"context"
	"fmt"
	"time"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// CreativeCheck decides whether a creative is currently usable. It returns
// a replacement platform media id (0 keeps the original) and false when
// the (asset, objective) pair is banned with no approved fallback, in
// which case the creative is skipped entirely.
type CreativeCheck func(catalogID string) (replacement int64, ok bool)

// BuildInput is everything a build needs beyond the preset itself.
type BuildInput struct {
	Preset      *models.Preset
	ObjectiveID int64 // resolved landing-object id
	Sequence    int   // repeat index, feeds the %SEQ% naming token
	Creatives   CreativeCheck
	Now         time.Time
}

// BuildResult pairs the wire payload with the creative provenance needed
// to write a tracking record after submission. Creatives[i] describes the
// banner of Plan.AdGroups[Creatives[i].Index].
type BuildResult struct {
	Plan      *models.CampaignPlanPayload
	Creatives []models.GroupCreative
}

// Builder assembles a campaign plan from a preset.
type Builder interface {
	Build(ctx context.Context, creds []models.Credential, in BuildInput) (*BuildResult, error)
}

// NewBuilder selects the fan-out strategy. Standard mode pairs group i
// with ad i; fast mode fans every physical creative of every ad into its
// own synthetic group per targeting container.
func NewBuilder(segments SegmentSource, fastMode bool) Builder {
	if fastMode {
		return &fastBuilder{segments: segments}
	}
	return &standardBuilder{segments: segments}
}

type standardBuilder struct {
	segments SegmentSource
}

func (b *standardBuilder) Build(ctx context.Context, creds []models.Credential, in BuildInput) (*BuildResult, error) {
	preset := in.Preset
	if err := validatePreset(preset); err != nil {
		return nil, err
	}
	if len(preset.Groups) != len(preset.Ads) {
		return nil, fmt.Errorf("payload: standard mode needs groups and ads positionally paired, got %d groups / %d ads",
			len(preset.Groups), len(preset.Ads))
	}

	result := &BuildResult{Plan: newPlan(preset, in)}
	segments := newSegmentCache(b.segments)
	for i := range preset.Groups {
		group := &preset.Groups[i]
		ad := &preset.Ads[i]

		creative, ok := pickCreative(ad, in.Creatives)
		if !ok {
			continue // every creative of this ad is banned with no fallback
		}

		segmentIDs, err := ResolveAudiences(ctx, segments, creds, group)
		if err != nil {
			return nil, err
		}

		payload := assembleGroup(group, segmentIDs, in, i)
		payload.Banners = []models.BannerPayload{assembleBanner(preset, ad, creative, in, i)}
		appendGroup(result, payload, ad, creative)
	}

	if len(result.Plan.AdGroups) == 0 {
		return nil, ErrNoCreatableGroups
	}
	return result, nil
}

type fastBuilder struct {
	segments SegmentSource
}

func (b *fastBuilder) Build(ctx context.Context, creds []models.Credential, in BuildInput) (*BuildResult, error) {
	preset := in.Preset
	if err := validatePreset(preset); err != nil {
		return nil, err
	}

	result := &BuildResult{Plan: newPlan(preset, in)}
	segments := newSegmentCache(b.segments)
	for i := range preset.Groups {
		group := &preset.Groups[i]

		segmentIDs, err := ResolveAudiences(ctx, segments, creds, group)
		if err != nil {
			return nil, err
		}

		for a := range preset.Ads {
			ad := &preset.Ads[a]
			for _, creative := range adCreatives(ad) {
				resolved := creative
				if in.Creatives != nil {
					replacement, ok := in.Creatives(creative.ref.CatalogID)
					if !ok {
						continue
					}
					if replacement != 0 {
						resolved.ref.PlatformID = replacement
					}
				}

				idx := len(result.Plan.AdGroups)
				payload := assembleGroup(group, segmentIDs, in, idx)
				payload.Banners = []models.BannerPayload{assembleBanner(preset, ad, resolved, in, idx)}
				appendGroup(result, payload, ad, resolved)
			}
		}
	}

	if len(result.Plan.AdGroups) == 0 {
		return nil, ErrNoCreatableGroups
	}
	return result, nil
}

// ErrNoCreatableGroups means every creative was banned with no approved
// fallback. The dispatcher treats this as terminal for the queue entry.
var ErrNoCreatableGroups = fmt.Errorf("payload: no creatable ad groups")

func validatePreset(p *models.Preset) error {
	if p.Company.Objective == "" {
		return fmt.Errorf("payload: preset %s: missing objective", p.ID)
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("payload: preset %s: no groups", p.ID)
	}
	if len(p.Ads) == 0 {
		return fmt.Errorf("payload: preset %s: no ads", p.ID)
	}
	return nil
}

func newPlan(preset *models.Preset, in BuildInput) *models.CampaignPlanPayload {
	return &models.CampaignPlanPayload{
		Name: RenderName(preset.Company.NameTpl, NameContext{
			Date:      in.Now,
			Sequence:  in.Sequence,
			Objective: preset.Company.Objective,
		}),
		Objective:   preset.Company.Objective,
		ObjectiveID: in.ObjectiveID,
		PricingGoal: preset.Company.PricingGoal,
	}
}

// creative is a resolved banner media choice.
type creative struct {
	ref     models.MediaRef
	isVideo bool
}

// pickCreative returns the first usable creative of an ad, videos first.
func pickCreative(ad *models.PresetAd, check CreativeCheck) (creative, bool) {
	for _, c := range adCreatives(ad) {
		if check == nil {
			return c, true
		}
		replacement, ok := check(c.ref.CatalogID)
		if !ok {
			continue
		}
		if replacement != 0 {
			c.ref.PlatformID = replacement
		}
		return c, true
	}
	return creative{}, false
}

func adCreatives(ad *models.PresetAd) []creative {
	out := make([]creative, 0, len(ad.Videos)+len(ad.Images))
	for _, ref := range ad.Videos {
		out = append(out, creative{ref: ref, isVideo: true})
	}
	for _, ref := range ad.Images {
		out = append(out, creative{ref: ref})
	}
	return out
}

func assembleGroup(group *models.PresetGroup, segmentIDs []int64, in BuildInput, seq int) models.AdGroupPayload {
	ages := ParseAgeRange(group.AgeRange)
	payload := models.AdGroupPayload{
		Name: RenderName(group.NameTpl, NameContext{
			Date:      in.Now,
			Sequence:  seq,
			Objective: in.Preset.Company.Objective,
			AgeRange:  group.AgeRange,
			Gender:    group.Gender,
			Audiences: group.AudienceNames,
		}),
		Targeting: models.TargetingPayload{
			AgeList:   ages,
			Sex:       GenderList(group.Gender),
			Regions:   group.Regions,
			Interests: group.Interests,
			Segments:  segmentIDs,
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
	return payload
}

func assembleBanner(preset *models.Preset, ad *models.PresetAd, c creative, in BuildInput, seq int) models.BannerPayload {
	advertiser := ad.Advertiser
	if advertiser == "" {
		advertiser = preset.Company.Advertiser
	}

	banner := models.BannerPayload{
		Name: RenderName(ad.NameTpl, NameContext{
			Date:      in.Now,
			Sequence:  seq,
			Objective: preset.Company.Objective,
		}),
		Content: models.BannerContent{IconID: ad.Icon.PlatformID},
		Textblocks: models.BannerTextblocks{
			Title:      ad.ShortText,
			Text:       ad.LongText,
			CTA:        ad.CTA,
			ButtonText: ad.ButtonText,
			Advertiser: advertiser,
		},
	}
	if c.isVideo {
		banner.Content.VideoID = c.ref.PlatformID
	} else {
		banner.Content.ImageID = c.ref.PlatformID
	}
	return banner
}

func appendGroup(result *BuildResult, payload models.AdGroupPayload, ad *models.PresetAd, c creative) {
	idx := len(result.Plan.AdGroups)
	result.Plan.AdGroups = append(result.Plan.AdGroups, payload)

	provenance := models.GroupCreative{
		Index:     idx,
		ShortText: ad.ShortText,
		LongText:  ad.LongText,
	}
	if c.isVideo {
		provenance.OriginalVideoID = c.ref.CatalogID
		provenance.PlatformVideoID = c.ref.PlatformID
	} else {
		provenance.OriginalImageID = c.ref.CatalogID
		provenance.PlatformImageID = c.ref.PlatformID
	}
	result.Creatives = append(result.Creatives, provenance)
}
