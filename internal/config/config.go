// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package config defines the daemon configuration and its layered loading
// (defaults, optional YAML file, environment variables) via Koanf v2.
package config

import "time"

// Config is the root configuration for the Adpilot daemon.
type Config struct {
	Platform PlatformConfig `koanf:"platform"`
	Data     DataConfig     `koanf:"data"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Recovery RecoveryConfig `koanf:"recovery"`
	Notify   NotifyConfig   `koanf:"notify"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// PlatformConfig configures the ad platform API client.
type PlatformConfig struct {
	// BaseURL is the ad platform API root, e.g. https://ads.example.com/api/v2.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// MaxAttempts bounds retries for transient failures.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1,max=20"`

	// ClientErrorAttempts bounds retries for unclassified 4xx responses.
	// Kept deliberately smaller than MaxAttempts.
	ClientErrorAttempts int `koanf:"client_error_attempts" validate:"min=1,max=10"`

	// BackoffBase is the exponential backoff base delay.
	BackoffBase time.Duration `koanf:"backoff_base"`

	// BackoffCap caps a single retry delay.
	BackoffCap time.Duration `koanf:"backoff_cap"`

	// RequestsPerSecond limits outbound call rate per process. 0 disables.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`

	// BreakerEnabled wraps the client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// DataConfig locates the file-resident state shared with the UI layer.
type DataConfig struct {
	// Root is the directory holding queues, tracking records, moderation
	// history and outcome logs. Layout is fixed relative to this root.
	Root string `koanf:"root" validate:"required"`

	// LockTimeout bounds how long a read-modify-write waits for the
	// advisory lock of a contended document.
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

// DispatchConfig configures the trigger dispatcher loop.
type DispatchConfig struct {
	Enabled bool `koanf:"enabled"`

	// TickInterval is the dispatcher polling cadence.
	TickInterval time.Duration `koanf:"tick_interval"`

	// ClockShift compensates the known offset between the trigger
	// author's timezone and server time. Added to server "now" before
	// window matching.
	ClockShift time.Duration `koanf:"clock_shift"`

	// TriggerSecond is the fixed second-of-minute a trigger targets.
	TriggerSecond int `koanf:"trigger_second" validate:"min=0,max=59"`

	// MatchWindow is how long past the target instant an entry still
	// fires. Must exceed TickInterval or triggers can be skipped.
	MatchWindow time.Duration `koanf:"match_window"`
}

// RecoveryConfig configures the moderation recovery loop.
type RecoveryConfig struct {
	Enabled bool `koanf:"enabled"`

	// TickInterval is the recovery polling cadence.
	TickInterval time.Duration `koanf:"tick_interval"`

	// RemuxCommand is the external tool invoked to change a media file's
	// content hash while preserving visual content. The input path is
	// appended as the first argument, the output path as the second.
	RemuxCommand string `koanf:"remux_command" validate:"required"`

	// MediaDir is where local creative files live, keyed by catalog id.
	MediaDir string `koanf:"media_dir" validate:"required"`

	// SwapChar is the character replaced inside creative texts to make
	// a rejected text distinct on resubmission.
	SwapChar string `koanf:"swap_char" validate:"required"`

	// SwapSymbols is the ordered candidate list SwapChar rotates through.
	SwapSymbols []string `koanf:"swap_symbols" validate:"min=1"`

	// DeleteRejected soft-deletes a banned remote ad group before
	// recreating it. Overridable per cabinet.
	DeleteRejected bool `koanf:"delete_rejected"`

	// VanishedGrace is how old a tracking record must be before a tracked
	// group absent from every remote state query is written off as
	// deleted out-of-band. 0 disables the write-off.
	VanishedGrace time.Duration `koanf:"vanished_grace"`
}

// NotifyConfig configures best-effort operator notifications.
type NotifyConfig struct {
	Enabled       bool   `koanf:"enabled"`
	TelegramToken string `koanf:"telegram_token" validate:"required_if=Enabled true"`
	TelegramChat  string `koanf:"telegram_chat" validate:"required_if=Enabled true"`
}

// ServerConfig configures the admin/observability HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:             "https://target.my.com/api/v2",
			MaxAttempts:         8,
			ClientErrorAttempts: 3,
			BackoffBase:         2 * time.Second,
			BackoffCap:          2 * time.Minute,
			RequestsPerSecond:   5,
			BreakerEnabled:      true,
		},
		Data: DataConfig{
			Root:        "/data/adpilot",
			LockTimeout: 30 * time.Second,
		},
		Dispatch: DispatchConfig{
			Enabled:       true,
			TickInterval:  30 * time.Second,
			ClockShift:    4 * time.Hour,
			TriggerSecond: 20,
			MatchWindow:   55 * time.Second,
		},
		Recovery: RecoveryConfig{
			Enabled:       true,
			TickInterval:  5 * time.Minute,
			RemuxCommand:  "remux-clean",
			MediaDir:      "/data/adpilot/media",
			SwapChar:      "!",
			SwapSymbols:   []string{"🔥", "⚡", "✨", "💥", "🚀", "🎯", "⭐", "❗"},
			VanishedGrace: time.Hour,
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3861,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
