// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package models

// Campaign objectives recognized by the payload builder. The platform
// accepts more; these are the ones presets author today.
const (
	ObjectiveSiteConversions = "siteconversions"
	ObjectiveLeadAds         = "leadads"
	ObjectiveAppInstalls     = "appinstalls"
)

// PresetCompany is the campaign-level portion of a preset: objective,
// landing target, branding and pricing goal.
type PresetCompany struct {
	Objective   string `json:"objective"`
	LandingURL  string `json:"landing_url,omitempty"`
	LeadFormID  int64  `json:"lead_form_id,omitempty"`
	Advertiser  string `json:"advertiser,omitempty"`
	PricingGoal string `json:"pricing_goal,omitempty"`
	NameTpl     string `json:"name_tpl,omitempty"`
}

// BidStrategy is a {strategy, cap} pair. The cap only applies when the
// strategy is "capped"; otherwise the platform receives a zero ceiling.
type BidStrategy struct {
	Strategy string  `json:"strategy"`
	Cap      float64 `json:"cap"`
}

// PresetGroup declares targeting and budget for one ad group.
type PresetGroup struct {
	NameTpl   string  `json:"name_tpl,omitempty"`
	Regions   []int64 `json:"regions"`
	AgeRange  string  `json:"age_range"` // inclusive "min-max"; unparsable means any
	Gender    string  `json:"gender"`    // "male", "female" or "" (all)
	Interests []int64 `json:"interests,omitempty"`

	// Segments are literal audience segment ids; AudienceNames are
	// "abstract" names resolved remotely at build time.
	Segments      []int64  `json:"segments,omitempty"`
	AudienceNames []string `json:"audience_names,omitempty"`

	BudgetDaily float64     `json:"budget_daily"`
	BudgetTotal float64     `json:"budget_total"`
	Bid         BidStrategy `json:"bid"`
	Pads        []int64     `json:"pads,omitempty"` // ad-placement whitelist
}

// MediaRef names one physical creative twice: by its stable local catalog
// id (moderation history is keyed by it) and by the platform media id the
// UI layer obtained on upload.
type MediaRef struct {
	CatalogID  string `json:"catalog_id"`
	PlatformID int64  `json:"platform_id"`
}

// PresetAd declares one creative set: asset references plus copy.
type PresetAd struct {
	NameTpl    string     `json:"name_tpl,omitempty"`
	Videos     []MediaRef `json:"videos,omitempty"`
	Images     []MediaRef `json:"images,omitempty"`
	Icon       MediaRef   `json:"icon"`
	ShortText  string     `json:"short_text"`
	LongText   string     `json:"long_text"`
	CTA        string     `json:"cta,omitempty"`
	ButtonText string     `json:"button_text,omitempty"`
	Advertiser string     `json:"advertiser,omitempty"` // branding override
}

// Preset is an immutable (per run) declarative campaign spec. Groups and ads
// are positionally paired in standard mode; fast mode fans every creative of
// every ad into its own group per targeting container.
type Preset struct {
	ID      string        `json:"id"`
	Company PresetCompany `json:"company"`
	Groups  []PresetGroup `json:"groups"`
	Ads     []PresetAd    `json:"ads"`
}

// CabinetSettings are per-cabinet knobs authored by the UI layer.
type CabinetSettings struct {
	Enabled            bool   `json:"enabled"`
	DeleteRejected     bool   `json:"deleteRejected"`
	SkipModerationFail bool   `json:"skipModerationFail"`
	TimeStart          string `json:"timeStart,omitempty"` // HH:MM, empty means always
	TimeEnd            string `json:"timeEnd,omitempty"`
}

// Credential is one bearer token usable against a cabinet.
type Credential struct {
	Token   string `json:"token"`
	Cabinet string `json:"cabinet"`
}
