// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// Campaign wrapper status values.
const (
	CampaignStatusActive  = "active"
	CampaignStatusBlocked = "blocked"
)

// Moderation status values reported alongside the wrapper status. The
// aggregate flag can read "banned" while the wrapper status is still
// active, so callers must inspect group-level issues either way.
const (
	ModerationStatusAllowed = "allowed"
	ModerationStatusBanned  = "banned"
)

// Issue codes observed on groups and banners.
const (
	IssueNoAllowedBanners = "no_allowed_banners"
	IssueBannerBanned     = "banned"
	IssueBannerModeration = "on_moderation"
)

// Issue is one moderation/serving problem reported by the platform.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// BannerState is the remote view of one banner.
type BannerState struct {
	ID     int64   `json:"id"`
	Issues []Issue `json:"issues,omitempty"`
}

// GroupTargeting is the slice of remote targeting the recovery engine
// reads back from a banned group to rebuild it.
type GroupTargeting struct {
	Segments     []int64 `json:"segments,omitempty"`
	AudienceName string  `json:"audience_name,omitempty"`
}

// AdGroupState is the remote view of one ad group.
type AdGroupState struct {
	ID        int64          `json:"id"`
	Issues    []Issue        `json:"issues,omitempty"`
	Banners   []BannerState  `json:"banners,omitempty"`
	Targeting GroupTargeting `json:"targetings,omitempty"`
}

// CampaignState is the remote view of one campaign and its groups.
type CampaignState struct {
	ID               int64          `json:"id"`
	Status           string         `json:"status"`
	ModerationStatus string         `json:"moderation_status,omitempty"`
	Issues           []Issue        `json:"issues,omitempty"`
	AdGroups         []AdGroupState `json:"ad_groups,omitempty"`
}

// Segment is one remote audience segment usable in targeting.
type Segment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type itemsEnvelope[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count,omitempty"`
}

// API exposes the typed platform operations over a resilient Caller.
type API struct {
	caller  Caller
	baseURL string
}

// NewAPI binds the typed operations to a caller and a base URL.
func NewAPI(caller Caller, baseURL string) *API {
	return &API{caller: caller, baseURL: baseURL}
}

func (a *API) endpoint(format string, args ...any) string {
	return a.baseURL + fmt.Sprintf(format, args...)
}

// ResolveURL registers a landing URL with the platform and returns the
// numeric url-object id campaign payloads must reference.
func (a *API) ResolveURL(ctx context.Context, creds []models.Credential, landing string) (int64, error) {
	resp, err := a.caller.Call(ctx, http.MethodPost, a.endpoint("/urls.json"), creds,
		map[string]string{"url": landing})
	if err != nil {
		return 0, err
	}
	created, err := DecodeCreated(resp.Raw)
	if err != nil {
		return 0, err
	}
	if len(created.CampaignIDs) == 0 {
		return 0, fmt.Errorf("platform: url resolution returned no id")
	}
	return created.CampaignIDs[0], nil
}

// CreateLeadFormURL registers a fresh lead-form deep link as a url object.
// Lead-form objectives need a new object per campaign; reusing one is
// rejected by plan validation.
func (a *API) CreateLeadFormURL(ctx context.Context, creds []models.Credential, leadFormID int64) (int64, error) {
	deepLink := fmt.Sprintf("https://vk.com/app-leadforms#form_id=%d", leadFormID)
	return a.ResolveURL(ctx, creds, deepLink)
}

// CreateCampaign submits one campaign plan and returns the created ids.
func (a *API) CreateCampaign(ctx context.Context, creds []models.Credential, plan *models.CampaignPlanPayload) (*Created, error) {
	resp, err := a.caller.Call(ctx, http.MethodPost, a.endpoint("/ad_plans.json"), creds, plan)
	if err != nil {
		return nil, err
	}
	return DecodeCreated(resp.Raw)
}

// GetCampaignState fetches a campaign's status together with every group's
// and banner's issue lists and the group targeting slices.
func (a *API) GetCampaignState(ctx context.Context, creds []models.Credential, campaignID int64) (*CampaignState, error) {
	fields := url.QueryEscape("id,status,moderation_status,issues,ad_groups.id,ad_groups.issues,ad_groups.banners,ad_groups.targetings")
	resp, err := a.caller.Call(ctx, http.MethodGet,
		a.endpoint("/ad_plans/%d.json?fields=%s", campaignID, fields), creds, nil)
	if err != nil {
		return nil, err
	}
	state := &CampaignState{}
	if err := resp.Decode(state); err != nil {
		return nil, err
	}
	return state, nil
}

// ListAdGroupIDs returns the ids of all ad groups currently attached to a
// campaign. The add-group path snapshots this set before and after a
// creation call to discover the new group's id.
func (a *API) ListAdGroupIDs(ctx context.Context, creds []models.Credential, campaignID int64) ([]int64, error) {
	resp, err := a.caller.Call(ctx, http.MethodGet,
		a.endpoint("/ad_groups.json?_ad_plan_id=%d&fields=id&limit=200", campaignID), creds, nil)
	if err != nil {
		return nil, err
	}
	var envelope itemsEnvelope[struct {
		ID int64 `json:"id"`
	}]
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(envelope.Items))
	for _, item := range envelope.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// AddAdGroup creates a single ad group inside an existing campaign.
func (a *API) AddAdGroup(ctx context.Context, creds []models.Credential, campaignID int64, group *models.AdGroupPayload) error {
	payload := struct {
		AdPlanID int64 `json:"ad_plan_id"`
		models.AdGroupPayload
	}{AdPlanID: campaignID, AdGroupPayload: *group}

	_, err := a.caller.Call(ctx, http.MethodPost, a.endpoint("/ad_groups.json"), creds, payload)
	return err
}

// DeleteAdGroup soft-deletes a remote ad group.
func (a *API) DeleteAdGroup(ctx context.Context, creds []models.Credential, groupID int64) error {
	_, err := a.caller.Call(ctx, http.MethodPost,
		a.endpoint("/ad_groups/%d.json", groupID), creds,
		map[string]string{"status": "deleted"})
	return err
}

// ListSegments returns the cabinet's audience segments for abstract
// audience name resolution.
func (a *API) ListSegments(ctx context.Context, creds []models.Credential) ([]Segment, error) {
	resp, err := a.caller.Call(ctx, http.MethodGet,
		a.endpoint("/remarketing/segments.json?limit=500"), creds, nil)
	if err != nil {
		return nil, err
	}
	var envelope itemsEnvelope[Segment]
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Items, nil
}

// IsUnrecoverable classifies a submission error as permanently failed:
// either the platform reported a permanent code, or the parent object is
// gone. Such work units are dropped, not retried.
func IsUnrecoverable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.Permanent() {
		return true
	}
	return httpErr.Status == http.StatusNotFound
}
