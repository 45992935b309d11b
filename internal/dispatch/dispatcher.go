// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package dispatch implements the trigger dispatcher: a fixed-tick loop
// that reads the shared queue, fires entries inside their trigger window,
// and drains the one-shot and add-group auxiliary queues on the same tick.
//
// Per queue entry the dispatcher is a small state machine:
//
//	PENDING (not yet due) -> DUE (inside window) -> SUBMITTED | FAILED
//
// Both terminal states remove the entry from the queue and append an
// outcome record; FAILED additionally notifies the operator. Entries with
// status != active are skipped entirely (external toggle).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/notify"
	"github.com/vmelnikoff/adpilot/internal/payload"
	"github.com/vmelnikoff/adpilot/internal/platform"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// errCabinetDisabled keeps a due entry queued instead of consuming it.
var errCabinetDisabled = errors.New("dispatch: cabinet disabled")

// Dispatcher runs the trigger loop.
type Dispatcher struct {
	store    *store.Store
	api      *platform.API
	notifier notify.Notifier
	cfg      config.DispatchConfig
	clock    TriggerClock
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a dispatcher.
func New(st *store.Store, api *platform.API, notifier notify.Notifier, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		store:    st,
		api:      api,
		notifier: notifier,
		cfg:      cfg,
		clock: TriggerClock{
			Shift:  cfg.ClockShift,
			Second: cfg.TriggerSecond,
			Window: cfg.MatchWindow,
		},
		logger: logging.Component("dispatcher"),
		now:    time.Now,
	}
}

// Start begins the dispatcher loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	if !d.cfg.Enabled {
		d.logger.Info().Msg("Trigger dispatcher disabled")
		go func() {
			defer close(d.doneCh)
			<-d.stopCh
		}()
		return nil
	}

	d.logger.Info().
		Dur("tick_interval", d.cfg.TickInterval).
		Dur("match_window", d.cfg.MatchWindow).
		Dur("clock_shift", d.cfg.ClockShift).
		Msg("Starting trigger dispatcher")

	go d.run(ctx)
	return nil
}

// Stop stops the loop and waits for the in-flight tick to finish.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	close(d.stopCh)
	<-d.doneCh

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Trigger dispatcher stopped")
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.tick(ctx)

	for {
		select {
		case <-ticker.C:
			d.tick(ctx)
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick processes the primary queue, then the auxiliary queues. Work items
// are strictly sequential; ordering between due items is not guaranteed.
func (d *Dispatcher) tick(ctx context.Context) {
	d.processQueue(ctx)
	d.processOneShots(ctx)
	d.processAddGroups(ctx)
}

func (d *Dispatcher) processQueue(ctx context.Context) {
	queue, err := d.store.LoadQueue(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("queue read failed")
		return
	}
	metrics.QueueDepth.WithLabelValues("primary").Set(float64(len(queue)))

	fired := make(map[string]bool)
	now := d.now()

	for i := range queue {
		entry := &queue[i]
		if entry.Status != models.QueueStatusActive {
			continue
		}

		due, err := d.clock.Due(entry.TriggerTime, now)
		if err != nil {
			// Malformed trigger time is input-malformed: terminal.
			d.recordFailure(ctx, entry, "malformed trigger time", err)
			fired[entry.ID] = true
			continue
		}
		if !due {
			continue
		}

		d.logger.Info().
			Str("entry", entry.ID).
			Str("cabinet", entry.Cabinet).
			Str("trigger", entry.TriggerTime).
			Msg("queue entry due")

		switch err := d.fire(ctx, entry, nil); {
		case errors.Is(err, errCabinetDisabled):
			// Entry stays queued; the toggle may flip back before the
			// window closes.
		case err != nil:
			metrics.TriggersFired.WithLabelValues(entry.Cabinet, "failed").Inc()
			fired[entry.ID] = true
		default:
			metrics.TriggersFired.WithLabelValues(entry.Cabinet, "submitted").Inc()
			fired[entry.ID] = true
		}
	}

	if len(fired) == 0 {
		return
	}
	err = d.store.UpdateQueue(ctx, func(current []models.QueueEntry) []models.QueueEntry {
		remaining := current[:0]
		for _, e := range current {
			if !fired[e.ID] {
				remaining = append(remaining, e)
			}
		}
		return remaining
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("queue rewrite failed")
	}
}

// fire runs one due entry end to end. presetOverride carries the embedded
// preset of a one-shot job; nil loads the entry's preset from the library.
func (d *Dispatcher) fire(ctx context.Context, entry *models.QueueEntry, presetOverride *models.Preset) error {
	settings, err := d.store.LoadCabinetSettings(ctx, entry.Cabinet)
	if err != nil {
		return d.recordFailure(ctx, entry, "cabinet settings unreadable", err)
	}
	if !settings.Enabled {
		d.logger.Debug().Str("cabinet", entry.Cabinet).Msg("cabinet disabled, entry skipped")
		return errCabinetDisabled
	}

	creds, err := d.credentials(ctx, entry)
	if err != nil {
		return d.recordFailure(ctx, entry, "no usable credentials", err)
	}

	preset := presetOverride
	if preset == nil {
		preset, err = d.store.LoadPreset(ctx, entry.PresetID)
		if err != nil {
			return d.recordFailure(ctx, entry, "preset unreadable", err)
		}
	}

	objectiveID, err := d.resolveObjectiveID(ctx, creds, &preset.Company)
	if err != nil {
		return d.recordFailure(ctx, entry, "landing object resolution failed", err)
	}

	check, err := d.creativeCheck(ctx, entry.Cabinet, preset.Company.Objective, settings)
	if err != nil {
		return d.recordFailure(ctx, entry, "moderation history unreadable", err)
	}

	builder := payload.NewBuilder(d.api, entry.FastMode)
	tracking := &models.ModerationTrackingRecord{
		User:      entry.User,
		Cabinet:   entry.Cabinet,
		PresetID:  entry.PresetID,
		Preset:    *preset,
		AdGroups:  make(map[int64]models.TrackedGroup),
		CreatedAt: d.now().UTC(),
	}

	for seq := 1; seq <= entry.Repeats(); seq++ {
		result, err := builder.Build(ctx, creds, payload.BuildInput{
			Preset:      preset,
			ObjectiveID: objectiveID,
			Sequence:    seq,
			Creatives:   check,
			Now:         d.now(),
		})
		if err != nil {
			// Zero creatable groups and malformed presets are terminal
			// for the whole entry, not per-repeat.
			return d.failKeepingCreated(ctx, entry, tracking, "payload build failed", err)
		}

		created, err := d.api.CreateCampaign(ctx, creds, result.Plan)
		if err != nil {
			return d.failKeepingCreated(ctx, entry, tracking, "campaign submission failed", err)
		}

		tracking.CompanyIDs = append(tracking.CompanyIDs, created.CampaignIDs...)
		associateGroups(tracking, created.GroupIDs, result.Creatives)
		metrics.CampaignsCreated.WithLabelValues(entry.Cabinet).Add(float64(len(created.CampaignIDs)))
	}

	if _, err := d.store.CreateTracking(ctx, tracking); err != nil {
		// The campaigns exist remotely; losing the tracking record only
		// costs recovery, so log loudly but report the entry submitted.
		d.logger.Error().Err(err).Msg("tracking record write failed")
	}

	outcome := models.OutcomeRecord{
		User:        entry.User,
		PresetID:    entry.PresetID,
		Status:      "submitted",
		Message:     fmt.Sprintf("created %d campaign(s)", len(tracking.CompanyIDs)),
		CampaignIDs: tracking.CompanyIDs,
	}
	if err := d.store.AppendOutcome(ctx, entry.Cabinet, outcome); err != nil {
		d.logger.Error().Err(err).Msg("outcome log append failed")
	}
	return nil
}

// associateGroups pairs returned group ids with the builder's creative
// provenance. The platform returns group ids in payload order.
func associateGroups(rec *models.ModerationTrackingRecord, groupIDs []int64, creatives []models.GroupCreative) {
	for i, groupID := range groupIDs {
		if i >= len(creatives) {
			break
		}
		c := creatives[i]
		rec.AdGroups[groupID] = models.TrackedGroup{
			VideoID:         c.PlatformVideoID,
			OriginalVideoID: c.OriginalVideoID,
			ImageID:         c.PlatformImageID,
			OriginalImageID: c.OriginalImageID,
			ShortText:       c.ShortText,
			LongText:        c.LongText,
		}
	}
}

// credentials resolves the credential pool for an entry: explicit tokens
// on the entry win, otherwise the cabinet pool.
func (d *Dispatcher) credentials(ctx context.Context, entry *models.QueueEntry) ([]models.Credential, error) {
	if len(entry.Tokens) > 0 {
		creds := make([]models.Credential, 0, len(entry.Tokens))
		for _, token := range entry.Tokens {
			if strings.TrimSpace(token) == "" {
				continue
			}
			creds = append(creds, models.Credential{Token: token, Cabinet: entry.Cabinet})
		}
		if len(creds) > 0 {
			return creds, nil
		}
	}
	return d.store.LoadCredentials(ctx, entry.Cabinet)
}

// resolveObjectiveID resolves the landing-object id a plan references.
// Lead-form objectives register a fresh url object per campaign.
func (d *Dispatcher) resolveObjectiveID(ctx context.Context, creds []models.Credential, company *models.PresetCompany) (int64, error) {
	if company.Objective == models.ObjectiveLeadAds {
		if company.LeadFormID == 0 {
			return 0, fmt.Errorf("leadads preset carries no lead form id")
		}
		return d.api.CreateLeadFormURL(ctx, creds, company.LeadFormID)
	}
	if company.LandingURL == "" {
		return 0, fmt.Errorf("preset carries no landing url")
	}
	return d.api.ResolveURL(ctx, creds, company.LandingURL)
}

// creativeCheck builds the moderation-history filter for a build. With
// skipModerationFail set the filter is disabled and banned creatives are
// submitted as-is.
func (d *Dispatcher) creativeCheck(ctx context.Context, cabinet, objective string, settings *models.CabinetSettings) (payload.CreativeCheck, error) {
	if settings.SkipModerationFail {
		return nil, nil
	}
	history, err := d.store.LoadHistory(ctx, cabinet)
	if err != nil {
		return nil, err
	}
	return func(catalogID string) (int64, bool) {
		entries := history.Lookup(catalogID, objective)
		if len(entries) == 0 {
			return 0, true
		}
		if entries[len(entries)-1].Status != models.ModerationBanned {
			return 0, true
		}
		// Latest outcome is a ban: usable only via a previously
		// approved replacement for this same original asset.
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Status == models.ModerationApproved && entries[i].VideoID != 0 {
				return entries[i].VideoID, true
			}
		}
		return 0, false
	}, nil
}

// recordFailure writes the terminal failure outcome and notifies the
// operator. The returned error is the original cause for metric counting.
func (d *Dispatcher) recordFailure(ctx context.Context, entry *models.QueueEntry, message string, cause error) error {
	return d.failEntry(ctx, entry, message, cause, nil)
}

// failKeepingCreated fails an entry whose earlier repeats may already have
// created campaigns remotely. Those campaigns are real whether or not the
// entry counts as failed, so they go under a tracking record first;
// abandoning them would cut them off from moderation recovery.
func (d *Dispatcher) failKeepingCreated(ctx context.Context, entry *models.QueueEntry, tracking *models.ModerationTrackingRecord, message string, cause error) error {
	if len(tracking.CompanyIDs) == 0 {
		return d.failEntry(ctx, entry, message, cause, nil)
	}
	if _, err := d.store.CreateTracking(ctx, tracking); err != nil {
		d.logger.Error().Err(err).Msg("tracking record write failed")
	}
	message = fmt.Sprintf("%s; %d earlier campaign(s) created and kept under watch", message, len(tracking.CompanyIDs))
	return d.failEntry(ctx, entry, message, cause, tracking.CompanyIDs)
}

func (d *Dispatcher) failEntry(ctx context.Context, entry *models.QueueEntry, message string, cause error, created []int64) error {
	d.logger.Warn().
		Str("entry", entry.ID).
		Str("cabinet", entry.Cabinet).
		Str("preset", entry.PresetID).
		Err(cause).
		Msg(message)

	outcome := models.OutcomeRecord{
		User:        entry.User,
		PresetID:    entry.PresetID,
		Status:      "failed",
		Message:     message,
		Detail:      cause.Error(),
		CampaignIDs: created,
	}
	if err := d.store.AppendOutcome(ctx, entry.Cabinet, outcome); err != nil {
		d.logger.Error().Err(err).Msg("outcome log append failed")
	}

	d.notifier.Notify(ctx, fmt.Sprintf("Campaign trigger failed (cabinet %s, preset %s): %s\n%s",
		entry.Cabinet, entry.PresetID, message, cause.Error()))
	return cause
}

func (d *Dispatcher) processOneShots(ctx context.Context) {
	ids, err := d.store.ListOneShots(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("one-shot listing failed")
		return
	}
	metrics.QueueDepth.WithLabelValues("oneshot").Set(float64(len(ids)))

	for _, id := range ids {
		job, err := d.store.GetOneShot(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			d.logger.Error().Err(err).Str("job", id).Msg("one-shot unreadable")
			continue
		}

		entry := job.QueueEntry
		if entry.ID == "" {
			entry.ID = id
		}
		if entry.Status == "" {
			entry.Status = models.QueueStatusActive
		}

		switch err := d.fire(ctx, &entry, &job.Preset); {
		case errors.Is(err, errCabinetDisabled):
			continue // keep the job for when the cabinet re-enables
		case err != nil:
			metrics.TriggersFired.WithLabelValues(entry.Cabinet, "failed").Inc()
		default:
			metrics.TriggersFired.WithLabelValues(entry.Cabinet, "submitted").Inc()
		}

		// One-shots never retry: processed means deleted.
		if err := d.store.DeleteOneShot(ctx, id); err != nil {
			d.logger.Error().Err(err).Str("job", id).Msg("one-shot delete failed")
		}
	}
}
