// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adpilot/config.yaml",
	"/etc/adpilot/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ADPILOT_CONFIG"

// Load builds the configuration from layered sources, highest priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. ADPILOT_* environment variables
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// ADPILOT_PLATFORM_BASE_URL -> platform.base_url, etc.
	if err := k.Load(env.Provider("ADPILOT_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings resolves variables whose section or key contains its own
// underscore, where the generic prefix split would guess wrong.
var envMappings = map[string]string{
	"adpilot_platform_base_url":              "platform.base_url",
	"adpilot_platform_max_attempts":          "platform.max_attempts",
	"adpilot_platform_client_error_attempts": "platform.client_error_attempts",
	"adpilot_platform_backoff_base":          "platform.backoff_base",
	"adpilot_platform_backoff_cap":           "platform.backoff_cap",
	"adpilot_platform_requests_per_second":   "platform.requests_per_second",
	"adpilot_platform_breaker_enabled":       "platform.breaker_enabled",
	"adpilot_data_lock_timeout":              "data.lock_timeout",
	"adpilot_dispatch_tick_interval":         "dispatch.tick_interval",
	"adpilot_dispatch_clock_shift":           "dispatch.clock_shift",
	"adpilot_dispatch_trigger_second":        "dispatch.trigger_second",
	"adpilot_dispatch_match_window":          "dispatch.match_window",
	"adpilot_recovery_tick_interval":         "recovery.tick_interval",
	"adpilot_recovery_remux_command":         "recovery.remux_command",
	"adpilot_recovery_media_dir":             "recovery.media_dir",
	"adpilot_recovery_swap_char":             "recovery.swap_char",
	"adpilot_recovery_swap_symbols":          "recovery.swap_symbols",
	"adpilot_recovery_delete_rejected":       "recovery.delete_rejected",
	"adpilot_recovery_vanished_grace":        "recovery.vanished_grace",
	"adpilot_notify_telegram_token":          "notify.telegram_token",
	"adpilot_notify_telegram_chat":           "notify.telegram_chat",
	"adpilot_server_rate_limit_reqs":         "server.rate_limit_reqs",
	"adpilot_server_rate_limit_window":       "server.rate_limit_window",
	"adpilot_server_cors_origins":            "server.cors_origins",
	"adpilot_logging_level":                  "logging.level",
	"adpilot_logging_format":                 "logging.format",
	"adpilot_logging_caller":                 "logging.caller",
}

// envTransformFunc maps ADPILOT_SECTION_KEY variables to koanf paths.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	if mapped, ok := envMappings[lower]; ok {
		return mapped
	}

	trimmed := strings.TrimPrefix(lower, "adpilot_")
	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) != 2 {
		return trimmed
	}
	return parts[0] + "." + parts[1]
}

// sliceConfigPaths are parsed from comma-separated strings when supplied
// via environment variables.
var sliceConfigPaths = []string{
	"recovery.swap_symbols",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var items []string
		for _, item := range strings.Split(s, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
