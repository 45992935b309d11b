// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package platform

import (
	"fmt"

	"github.com/goccy/go-json"
)

// The platform has shipped two envelope generations for creation endpoints:
// a flat object and the same object nested under "response". Both are still
// observed in the wild, so extraction decodes them as a tagged union rather
// than probing an untyped map.

type createdObject struct {
	ID       int64 `json:"id"`
	AdGroups []struct {
		ID int64 `json:"id"`
	} `json:"ad_groups,omitempty"`
}

type createdEnvelope struct {
	// Nested generation: {"response": {...}} or {"response": [{...}]}.
	Response json.RawMessage `json:"response,omitempty"`

	// Flat generation fields, ignored when Response is present.
	ID       int64 `json:"id,omitempty"`
	AdGroups []struct {
		ID int64 `json:"id"`
	} `json:"ad_groups,omitempty"`
}

// Created holds the ids extracted from a creation response.
type Created struct {
	CampaignIDs []int64
	GroupIDs    []int64
}

// DecodeCreated extracts created campaign and group ids from a creation
// response, accepting both envelope generations and both the single-object
// and list forms.
func DecodeCreated(raw []byte) (*Created, error) {
	var envelope createdEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Top level may be a bare list of created objects.
		var list []createdObject
		if lerr := json.Unmarshal(raw, &list); lerr != nil {
			return nil, fmt.Errorf("platform: unrecognized creation response: %w", err)
		}
		return collect(list), nil
	}

	if len(envelope.Response) > 0 {
		var inner createdObject
		if err := json.Unmarshal(envelope.Response, &inner); err == nil && inner.ID != 0 {
			return collect([]createdObject{inner}), nil
		}
		var innerList []createdObject
		if err := json.Unmarshal(envelope.Response, &innerList); err == nil {
			return collect(innerList), nil
		}
		return nil, fmt.Errorf("platform: unrecognized response envelope: %s", truncateForLog(envelope.Response))
	}

	if envelope.ID == 0 {
		return nil, fmt.Errorf("platform: creation response carries no id: %s", truncateForLog(raw))
	}
	flat := createdObject{ID: envelope.ID, AdGroups: envelope.AdGroups}
	return collect([]createdObject{flat}), nil
}

func collect(objects []createdObject) *Created {
	created := &Created{}
	for _, obj := range objects {
		if obj.ID != 0 {
			created.CampaignIDs = append(created.CampaignIDs, obj.ID)
		}
		for _, g := range obj.AdGroups {
			created.GroupIDs = append(created.GroupIDs, g.ID)
		}
	}
	return created
}
