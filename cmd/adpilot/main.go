// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package main is the entry point for the adpilot daemon.
//
// Adpilot keeps ad campaigns on the advertising platform alive without an
// operator: it fires scheduled campaign submissions from a file-backed
// queue, watches moderation outcomes for every created ad group, and
// recreates banned groups with rehashed creatives and mutated texts.
//
// The daemon initializes in order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Logging: zerolog, JSON or console format
//  3. Store: file-backed state under the data root, flock-guarded
//  4. Platform client: retrying HTTP client, optional circuit breaker
//  5. Dispatcher and recovery engine loops
//  6. Supervision tree: suture restarts crashed loops with backoff
//  7. Operational HTTP server: health, metrics, status
//
// Shutdown on SIGINT/SIGTERM is graceful: loops finish their in-flight
// tick, the HTTP server drains, then the process exits.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vmelnikoff/adpilot/internal/api"
	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/dispatch"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/notify"
	"github.com/vmelnikoff/adpilot/internal/platform"
	"github.com/vmelnikoff/adpilot/internal/recovery"
	"github.com/vmelnikoff/adpilot/internal/store"
	"github.com/vmelnikoff/adpilot/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize logging")
	}

	logging.Info().
		Str("base_url", cfg.Platform.BaseURL).
		Str("data_root", cfg.Data.Root).
		Bool("recovery_enabled", cfg.Recovery.Enabled).
		Msg("Starting adpilot")

	st, err := store.New(cfg.Data.Root, cfg.Data.LockTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}

	var caller platform.Caller = platform.NewClient(cfg.Platform)
	if cfg.Platform.BreakerEnabled {
		caller = platform.NewBreakerCaller(caller)
	}
	platformAPI := platform.NewAPI(caller, cfg.Platform.BaseURL)

	notifier := notify.New(cfg.Notify)

	dispatcher := dispatch.New(st, platformAPI, notifier, cfg.Dispatch)
	engine := recovery.New(st, platformAPI, notifier, cfg.Recovery)
	server := api.NewServer(cfg.Server, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddLoopService(supervisor.NewLoopService("dispatcher", dispatcher))
	tree.AddLoopService(supervisor.NewLoopService("recovery-engine", engine))
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Adpilot stopped gracefully")
}
