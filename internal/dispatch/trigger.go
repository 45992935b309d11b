// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerClock holds the fixed parameters of trigger window matching.
type TriggerClock struct {
	// Shift compensates the known offset between the trigger author's
	// timezone and server time. Added to server time before matching.
	Shift time.Duration

	// Second is the fixed second-of-minute a trigger targets.
	Second int

	// Window is how long past the target instant an entry still fires.
	Window time.Duration
}

// Due reports whether a bare HH:MM trigger fires at now.
//
// The window is asymmetric on purpose: the entry never fires early, and
// fires up to Window late. Combined with the dispatcher removing the entry
// once fired, this yields exactly one firing per day regardless of tick
// granularity. The target is anchored to the shifted calendar day, so a
// window that would nominally cross midnight is cut off at 00:00; a missed
// late-night trigger simply waits for its slot the next day.
func (c TriggerClock) Due(triggerTime string, now time.Time) (bool, error) {
	hour, minute, err := parseTrigger(triggerTime)
	if err != nil {
		return false, err
	}

	shifted := now.Add(c.Shift)
	target := time.Date(shifted.Year(), shifted.Month(), shifted.Day(),
		hour, minute, c.Second, 0, shifted.Location())

	delta := shifted.Sub(target)
	return delta >= 0 && delta <= c.Window, nil
}

func parseTrigger(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("dispatch: malformed trigger time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("dispatch: malformed trigger hour %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("dispatch: malformed trigger minute %q", s)
	}
	return hour, minute, nil
}
