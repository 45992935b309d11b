// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package payload turns declarative presets into the wire-ready campaign
// plan structures the ad platform expects. Two fan-out strategies share
// the targeting and budget assembly: standard mode pairs group i with ad
// i, fast mode creates one synthetic group per targeting container ×
// physical creative.
package payload

import (
	"math"
	"strconv"
	"strings"
)

// ParseAgeRange expands an inclusive "min-max" range into the explicit
// age list the platform wants. Anything unparsable means "any age" and
// yields [0].
func ParseAgeRange(s string) []int {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return []int{0}
	}
	min, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	max, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || min < 0 || max < min {
		return []int{0}
	}
	ages := make([]int, 0, max-min+1)
	for age := min; age <= max; age++ {
		ages = append(ages, age)
	}
	return ages
}

// GenderList maps a preset gender string to the platform enum.
func GenderList(gender string) []string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m":
		return []string{"male"}
	case "female", "f":
		return []string{"female"}
	default:
		return []string{"male", "female"}
	}
}

// FormatMoney renders a money value with exact two-decimal round-half-up.
// The platform rejects payloads whose totals are off by a cent, which is
// exactly what naive float formatting produces.
func FormatMoney(v float64) string {
	cents := math.Floor(v*100 + 0.5)
	return strconv.FormatFloat(cents/100, 'f', 2, 64)
}

// BidCeiling computes the max price from a {strategy, cap} pair. Only the
// capped strategy carries a ceiling; everything else submits zero and
// lets the platform optimize.
func BidCeiling(strategy string, cap float64) string {
	if strings.EqualFold(strings.TrimSpace(strategy), "capped") && cap > 0 {
		return FormatMoney(cap)
	}
	return "0.00"
}
