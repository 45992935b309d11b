// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package recovery

import (
	"math/rand"
	"strings"
)

// TextPair is one (short, long) creative text combination.
type TextPair struct {
	Short string
	Long  string
}

// SwapTextSymbols produces a replacement text pair that does not collide
// with any previously used pair for the same original asset.
//
// Candidates are generated by substituting swapChar with each symbol from
// the ordered list. When every candidate collides (including the
// degenerate case where swapChar is absent from the texts, so substitution
// changes nothing), a random symbol is appended instead: recovery must
// always produce some distinct text rather than block.
func SwapTextSymbols(current TextPair, swapChar string, symbols []string, used map[TextPair]bool) TextPair {
	for _, symbol := range symbols {
		candidate := TextPair{
			Short: strings.ReplaceAll(current.Short, swapChar, symbol),
			Long:  strings.ReplaceAll(current.Long, swapChar, symbol),
		}
		if !used[candidate] {
			return candidate
		}
	}

	symbol := symbols[rand.Intn(len(symbols))]
	return TextPair{
		Short: current.Short + symbol,
		Long:  current.Long + symbol,
	}
}

// usedPairs collects the text pairs already tried for an (asset,
// objective) combination, force-including the pair that just got banned.
// The force-include guards the degenerate case where swapChar is absent
// and substitution would regenerate the banned text verbatim.
func usedPairs(entries []historyText, banned TextPair) map[TextPair]bool {
	used := make(map[TextPair]bool, len(entries)+1)
	for _, e := range entries {
		used[TextPair{Short: e.Short, Long: e.Long}] = true
	}
	used[banned] = true
	return used
}

type historyText struct {
	Short string
	Long  string
}
