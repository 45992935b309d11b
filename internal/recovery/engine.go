// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/notify"
	"github.com/vmelnikoff/adpilot/internal/platform"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// Engine runs the moderation recovery loop.
type Engine struct {
	store    *store.Store
	api      *platform.API
	notifier notify.Notifier
	cfg      config.RecoveryConfig
	rehash   *rehasher
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a recovery engine.
func New(st *store.Store, api *platform.API, notifier notify.Notifier, cfg config.RecoveryConfig) *Engine {
	return &Engine{
		store:    st,
		api:      api,
		notifier: notifier,
		cfg:      cfg,
		rehash: &rehasher{
			uploader:     api,
			remuxCommand: cfg.RemuxCommand,
			mediaDir:     cfg.MediaDir,
		},
		logger: logging.Component("recovery"),
		now:    time.Now,
	}
}

// Start begins the recovery loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("recovery engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	if !e.cfg.Enabled {
		e.logger.Info().Msg("Moderation recovery disabled")
		go func() {
			defer close(e.doneCh)
			<-e.stopCh
		}()
		return nil
	}

	e.logger.Info().
		Dur("tick_interval", e.cfg.TickInterval).
		Str("remux_command", e.cfg.RemuxCommand).
		Msg("Starting moderation recovery engine")

	go e.run(ctx)
	return nil
}

// Stop stops the loop and waits for the in-flight pass to finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info().Msg("Moderation recovery engine stopped")
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.pass(ctx)

	for {
		select {
		case <-ticker.C:
			e.pass(ctx)
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pass inspects every tracking record once. The rehash cache is scoped to
// exactly one pass: fresh here, garbage afterwards.
func (e *Engine) pass(ctx context.Context) {
	start := e.now()
	cache := make(rehashCache)

	ids, err := e.store.ListTracking(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("tracking listing failed")
		return
	}
	metrics.QueueDepth.WithLabelValues("tracking").Set(float64(len(ids)))

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}
		e.processRecord(ctx, id, cache)
	}

	metrics.RecoveryPassDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) processRecord(ctx context.Context, recordID string, cache rehashCache) {
	rec, err := e.store.GetTracking(ctx, recordID)
	if err != nil {
		e.logger.Error().Err(err).Str("record", recordID).Msg("tracking record unreadable")
		return
	}

	settings, err := e.store.LoadCabinetSettings(ctx, rec.Cabinet)
	if err != nil {
		e.logger.Error().Err(err).Str("cabinet", rec.Cabinet).Msg("cabinet settings unreadable")
		return
	}
	if !settings.Enabled || !withinActiveWindow(settings, e.now()) {
		return
	}

	creds, err := e.store.LoadCredentials(ctx, rec.Cabinet)
	if err != nil {
		e.logger.Error().Err(err).Str("cabinet", rec.Cabinet).Msg("credentials unreadable")
		return
	}

	resolved := make(map[int64]bool)
	recreations := 0
	remoteSeen := make(map[int64]bool)
	allFetched := true

	for _, campaignID := range rec.CompanyIDs {
		state, err := e.api.GetCampaignState(ctx, creds, campaignID)
		if err != nil {
			// Fail-open: a failed status query leaves every group of
			// this campaign untouched for the next pass.
			e.logger.Warn().Err(err).Int64("campaign", campaignID).Msg("status query failed, deferring campaign")
			allFetched = false
			continue
		}

		for i := range state.AdGroups {
			group := &state.AdGroups[i]
			remoteSeen[group.ID] = true
			tracked, ok := rec.AdGroups[group.ID]
			if !ok {
				continue
			}

			st := classifyGroup(group)
			metrics.GroupsClassified.WithLabelValues(st.String()).Inc()

			switch st {
			case StateApproved:
				e.recordOutcome(ctx, rec, &tracked, models.ModerationApproved)
				resolved[group.ID] = true
			case StateBanned:
				if err := e.recoverGroup(ctx, creds, settings, rec, campaignID, group, &tracked, cache); err != nil {
					// Left BANNED in the record; retried next pass.
					e.logger.Warn().Err(err).
						Int64("group", group.ID).
						Msg("group recovery failed, will retry")
					continue
				}
				resolved[group.ID] = true
				recreations++
				metrics.GroupsRecovered.WithLabelValues(rec.Cabinet).Inc()
			case StateOnModeration:
				// Not actionable yet.
			}
		}
	}

	// A group deleted out-of-band never comes back in any state query.
	// Once the record is old enough that remote listing lag cannot explain
	// the absence, write the group off so the record can resolve.
	if allFetched && e.cfg.VanishedGrace > 0 && e.now().Sub(rec.CreatedAt) >= e.cfg.VanishedGrace {
		for id := range rec.AdGroups {
			if !remoteSeen[id] && !resolved[id] {
				e.logger.Warn().
					Int64("group", id).
					Str("record", recordID).
					Msg("tracked group gone from remote view, resolving")
				resolved[id] = true
			}
		}
	}

	if len(resolved) == 0 && recreations == 0 {
		return
	}
	err = e.store.UpdateTracking(ctx, recordID, func(rec *models.ModerationTrackingRecord) error {
		for id := range resolved {
			delete(rec.AdGroups, id)
		}
		rec.PendingRecreations += recreations
		return nil
	})
	if err != nil {
		e.logger.Error().Err(err).Str("record", recordID).Msg("tracking record update failed")
	}
}

// recordOutcome appends a moderation outcome to the asset history.
func (e *Engine) recordOutcome(ctx context.Context, rec *models.ModerationTrackingRecord, tracked *models.TrackedGroup, status string) {
	entry := models.HistoryEntry{
		VideoID:         tracked.VideoID,
		OriginalVideoID: tracked.OriginalVideoID,
		Status:          status,
		TextsetID:       tracked.TextsetID,
		ShortText:       tracked.ShortText,
		LongText:        tracked.LongText,
	}
	assetID := tracked.OriginalAssetID()
	objective := rec.Preset.Company.Objective
	if err := e.store.AppendHistory(ctx, rec.Cabinet, assetID, objective, entry); err != nil {
		e.logger.Error().Err(err).Str("asset", assetID).Msg("history append failed")
	}
}

// recoverGroup runs the full recovery procedure for one banned group. A
// nil return means the follow-up job is durably queued and the group may
// leave the tracking record; the eventual remote submission is the
// dispatcher's problem.
func (e *Engine) recoverGroup(
	ctx context.Context,
	creds []models.Credential,
	settings *models.CabinetSettings,
	rec *models.ModerationTrackingRecord,
	campaignID int64,
	group *platform.AdGroupState,
	tracked *models.TrackedGroup,
	cache rehashCache,
) error {
	if settings.DeleteRejected || e.cfg.DeleteRejected {
		if err := e.api.DeleteAdGroup(ctx, creds, group.ID); err != nil {
			// The banned group serves nothing either way; recovery
			// proceeds regardless.
			e.logger.Warn().Err(err).Int64("group", group.ID).Msg("remote group delete failed")
		}
	}

	// The ban goes into history first: future runs must know this exact
	// text was rejected for this original asset even if the rest of the
	// procedure fails mid-way.
	e.recordOutcome(ctx, rec, tracked, models.ModerationBanned)

	assetID := tracked.OriginalAssetID()
	objective := rec.Preset.Company.Objective
	banned := TextPair{Short: tracked.ShortText, Long: tracked.LongText}

	history, err := e.store.LoadHistory(ctx, rec.Cabinet)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	var tried []historyText
	for _, entry := range history.Lookup(assetID, objective) {
		tried = append(tried, historyText{Short: entry.ShortText, Long: entry.LongText})
	}
	used := usedPairs(tried, banned)

	newMediaID, err := e.rehash.replace(ctx, creds, cache, assetID, tracked.MediaType())
	if err != nil {
		return fmt.Errorf("rehash: %w", err)
	}

	replacement := SwapTextSymbols(banned, e.cfg.SwapChar, e.cfg.SwapSymbols, used)

	groupSnap, adSnap := snapshotFor(&rec.Preset, assetID)
	req := &models.AddGroupRequest{
		ModerationInfo: models.ModerationInfo{
			NewMediaID:      newMediaID,
			MediaType:       tracked.MediaType(),
			Segments:        group.Targeting.Segments,
			AdPlanID:        campaignID,
			AudienceName:    group.Targeting.AudienceName,
			OriginalMediaID: assetID,
			ShortText:       replacement.Short,
			LongText:        replacement.Long,
		},
		User:    rec.User,
		Cabinet: rec.Cabinet,
		Company: rec.Preset.Company,
		Groups:  []models.PresetGroup{groupSnap},
		Ads:     []models.PresetAd{adSnap},
	}

	jobID, err := e.store.SaveAddGroup(ctx, req)
	if err != nil {
		return fmt.Errorf("queue add-group job: %w", err)
	}

	e.logger.Info().
		Str("job", jobID).
		Int64("campaign", campaignID).
		Int64("group", group.ID).
		Str("asset", assetID).
		Int64("new_media", newMediaID).
		Msg("banned group packaged for recreation")
	e.notifier.Notify(ctx, fmt.Sprintf(
		"Moderation ban: group %d in campaign %d (cabinet %s) queued for recreation with fresh creative",
		group.ID, campaignID, rec.Cabinet))
	return nil
}

// snapshotFor picks the preset group/ad pair that owns the asset. Fast
// mode fans creatives across synthetic groups, so the ad is located by
// its creative reference and the group falls back positionally.
func snapshotFor(preset *models.Preset, assetID string) (models.PresetGroup, models.PresetAd) {
	adIdx := 0
	for i := range preset.Ads {
		if adUsesAsset(&preset.Ads[i], assetID) {
			adIdx = i
			break
		}
	}
	groupIdx := adIdx
	if groupIdx >= len(preset.Groups) {
		groupIdx = 0
	}
	return preset.Groups[groupIdx], preset.Ads[adIdx]
}

func adUsesAsset(ad *models.PresetAd, assetID string) bool {
	for _, ref := range ad.Videos {
		if ref.CatalogID == assetID {
			return true
		}
	}
	for _, ref := range ad.Images {
		if ref.CatalogID == assetID {
			return true
		}
	}
	return false
}

// withinActiveWindow applies the cabinet's HH:MM activity window. An
// empty bound disables the check; an end before the start spans midnight.
func withinActiveWindow(settings *models.CabinetSettings, now time.Time) bool {
	if settings.TimeStart == "" || settings.TimeEnd == "" {
		return true
	}
	start, err1 := time.Parse("15:04", settings.TimeStart)
	end, err2 := time.Parse("15:04", settings.TimeEnd)
	if err1 != nil || err2 != nil {
		return true
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minutes >= startMin && minutes <= endMin
	}
	return minutes >= startMin || minutes <= endMin
}
