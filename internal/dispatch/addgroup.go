// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/payload"
	"github.com/vmelnikoff/adpilot/internal/platform"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// processAddGroups drains the recovery engine's follow-up queue: each job
// recreates one banned ad group inside its original campaign.
//
// Deletion policy mirrors the error taxonomy: success deletes the job, an
// unrecoverable submission (parent campaign gone, payload permanently
// invalid) deletes it too, anything else leaves the file for the next tick.
func (d *Dispatcher) processAddGroups(ctx context.Context) {
	ids, err := d.store.ListAddGroups(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("add-group listing failed")
		return
	}
	metrics.QueueDepth.WithLabelValues("addgroup").Set(float64(len(ids)))

	for _, id := range ids {
		req, err := d.store.GetAddGroup(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			d.logger.Error().Err(err).Str("job", id).Msg("add-group job unreadable")
			continue
		}

		err = d.submitAddGroup(ctx, req)
		switch {
		case err == nil:
			if derr := d.store.DeleteAddGroup(ctx, id); derr != nil {
				d.logger.Error().Err(derr).Str("job", id).Msg("add-group delete failed")
			}
		case platform.IsUnrecoverable(err):
			d.logger.Warn().Err(err).Str("job", id).Msg("add-group job unrecoverable, dropping")
			d.appendAddGroupOutcome(ctx, req, "failed", "group recreation unrecoverable", err)
			if derr := d.store.DeleteAddGroup(ctx, id); derr != nil {
				d.logger.Error().Err(derr).Str("job", id).Msg("add-group delete failed")
			}
		default:
			// Transient: the file stays for the next pass.
			d.logger.Warn().Err(err).Str("job", id).Msg("add-group submission failed, will retry")
		}
	}
}

func (d *Dispatcher) submitAddGroup(ctx context.Context, req *models.AddGroupRequest) error {
	creds, err := d.store.LoadCredentials(ctx, req.Cabinet)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	group, tracked, err := payload.BuildRecoveredGroup(req, d.now())
	if err != nil {
		return err
	}

	campaignID := req.ModerationInfo.AdPlanID

	// Creation responses for single groups historically omit the new id,
	// so the id is discovered by diffing the campaign's group set around
	// the call.
	before, err := d.api.ListAdGroupIDs(ctx, creds, campaignID)
	if err != nil {
		return fmt.Errorf("snapshot groups: %w", err)
	}

	if err := d.api.AddAdGroup(ctx, creds, campaignID, group); err != nil {
		return err
	}

	after, err := d.api.ListAdGroupIDs(ctx, creds, campaignID)
	if err != nil {
		return fmt.Errorf("resnapshot groups: %w", err)
	}
	newIDs := diffIDs(before, after)
	if len(newIDs) == 0 {
		d.logger.Warn().Int64("campaign", campaignID).Msg("add-group created no observable group")
	}

	// The replacement group goes back under watch so its own moderation
	// outcome is evaluated; the record outlives the recreation.
	if err := d.attachToTracking(ctx, campaignID, newIDs, tracked); err != nil {
		d.logger.Error().Err(err).Int64("campaign", campaignID).Msg("tracking attach failed")
	}

	d.appendAddGroupOutcome(ctx, req, "submitted",
		fmt.Sprintf("recreated group in campaign %d", campaignID), nil)
	return nil
}

// attachToTracking appends the recreated group(s) to the tracking record
// owning campaignID and releases its recreation watch.
func (d *Dispatcher) attachToTracking(ctx context.Context, campaignID int64, groupIDs []int64, tracked models.TrackedGroup) error {
	recordID, err := d.findTrackingRecord(ctx, campaignID)
	if err != nil {
		return err
	}
	return d.store.UpdateTracking(ctx, recordID, func(rec *models.ModerationTrackingRecord) error {
		for _, id := range groupIDs {
			rec.AdGroups[id] = tracked
		}
		if rec.PendingRecreations > 0 {
			rec.PendingRecreations--
		}
		return nil
	})
}

func (d *Dispatcher) findTrackingRecord(ctx context.Context, campaignID int64) (string, error) {
	ids, err := d.store.ListTracking(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		rec, err := d.store.GetTracking(ctx, id)
		if err != nil {
			continue
		}
		for _, cid := range rec.CompanyIDs {
			if cid == campaignID {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("no tracking record owns campaign %d", campaignID)
}

func (d *Dispatcher) appendAddGroupOutcome(ctx context.Context, req *models.AddGroupRequest, status, message string, cause error) {
	outcome := models.OutcomeRecord{
		User:        req.User,
		Status:      status,
		Message:     message,
		CampaignIDs: []int64{req.ModerationInfo.AdPlanID},
	}
	if cause != nil {
		outcome.Detail = cause.Error()
	}
	if err := d.store.AppendOutcome(ctx, req.Cabinet, outcome); err != nil {
		d.logger.Error().Err(err).Msg("outcome log append failed")
	}
	if status == "failed" {
		d.notifier.Notify(ctx, fmt.Sprintf("Group recreation dropped (cabinet %s, campaign %d): %s",
			req.Cabinet, req.ModerationInfo.AdPlanID, message))
	}
}

func diffIDs(before, after []int64) []int64 {
	known := make(map[int64]bool, len(before))
	for _, id := range before {
		known[id] = true
	}
	var fresh []int64
	for _, id := range after {
		if !known[id] {
			fresh = append(fresh, id)
		}
	}
	return fresh
}
