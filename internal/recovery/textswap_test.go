// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package recovery

import (
	"strings"
	"testing"
)

var testSymbols = []string{"⚡", "🔥", "✨", "💥"}

func TestSwapTextSymbolsRotates(t *testing.T) {
	current := TextPair{Short: "Buy now!", Long: "Great deal! Act today!"}
	used := usedPairs(nil, current)

	// Each ban burns one symbol; as long as symbols remain, every
	// replacement is a pure substitution and never repeats.
	seen := map[TextPair]bool{current: true}
	for i := 0; i < len(testSymbols); i++ {
		next := SwapTextSymbols(current, "!", testSymbols, used)
		if seen[next] {
			t.Fatalf("iteration %d produced repeated pair %+v", i, next)
		}
		if strings.Contains(next.Short, "!") {
			t.Errorf("iteration %d: swap char survived in %q", i, next.Short)
		}
		if !strings.Contains(next.Short, testSymbols[i]) {
			t.Errorf("iteration %d: short = %q, want symbol %q", i, next.Short, testSymbols[i])
		}
		seen[next] = true
		used[next] = true
	}
}

func TestSwapTextSymbolsExhaustedFallsBackToAppend(t *testing.T) {
	current := TextPair{Short: "Buy now!", Long: "Act!"}
	used := usedPairs(nil, current)
	for _, sym := range testSymbols {
		used[TextPair{
			Short: strings.ReplaceAll(current.Short, "!", sym),
			Long:  strings.ReplaceAll(current.Long, "!", sym),
		}] = true
	}

	next := SwapTextSymbols(current, "!", testSymbols, used)
	if next == current {
		t.Fatal("exhausted swap returned the banned pair unchanged")
	}
	if !strings.HasPrefix(next.Short, current.Short) {
		t.Errorf("fallback short = %q, want append to %q", next.Short, current.Short)
	}
}

func TestSwapTextSymbolsNoSwapChar(t *testing.T) {
	// Texts without the swap char: substitution is a no-op and would
	// regenerate the banned pair, so the fallback must kick in.
	current := TextPair{Short: "plain", Long: "plain long"}
	used := usedPairs(nil, current)

	next := SwapTextSymbols(current, "!", testSymbols, used)
	if next == current {
		t.Fatal("swap returned the banned pair unchanged")
	}
}

func TestUsedPairsForceIncludesBanned(t *testing.T) {
	banned := TextPair{Short: "s", Long: "l"}
	history := []historyText{{Short: "a", Long: "b"}}

	used := usedPairs(history, banned)
	if !used[banned] {
		t.Error("banned pair missing from used set")
	}
	if !used[TextPair{Short: "a", Long: "b"}] {
		t.Error("history pair missing from used set")
	}
	if len(used) != 2 {
		t.Errorf("used size = %d, want 2", len(used))
	}
}
