// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags plus the cross-field constraints the tags
// cannot express.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("config validation setup: %w", err)
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config field %s: failed %q", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if c.Platform.BackoffBase <= 0 {
		return fmt.Errorf("platform.backoff_base must be positive")
	}
	if c.Platform.BackoffCap < c.Platform.BackoffBase {
		return fmt.Errorf("platform.backoff_cap must be >= platform.backoff_base")
	}
	if c.Dispatch.Enabled {
		if c.Dispatch.TickInterval <= 0 {
			return fmt.Errorf("dispatch.tick_interval must be positive")
		}
		// A window shorter than the tick lets a due entry slip past unfired.
		if c.Dispatch.MatchWindow < c.Dispatch.TickInterval {
			return fmt.Errorf("dispatch.match_window (%s) must be >= dispatch.tick_interval (%s)",
				c.Dispatch.MatchWindow, c.Dispatch.TickInterval)
		}
	}
	if c.Recovery.Enabled {
		if c.Recovery.TickInterval <= 0 {
			return fmt.Errorf("recovery.tick_interval must be positive")
		}
		if len(c.Recovery.SwapChar) == 0 {
			return fmt.Errorf("recovery.swap_char must not be empty")
		}
	}
	return nil
}
