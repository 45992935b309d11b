// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package payload

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestRenderName(t *testing.T) {
	date := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tpl  string
		nc   NameContext
		want string
	}{
		{
			name: "all tokens",
			tpl:  "%DATE% %OBJ% %SEQ% %AGE% %GENDER% %AUD%",
			nc: NameContext{
				Date:      date,
				Sequence:  3,
				Objective: "siteconversions",
				AgeRange:  "18-24",
				Gender:    "male",
				Audiences: []string{"lookalike", "buyers"},
			},
			want: "24.08.2026 SC 3 18-24 male lookalike+buyers",
		},
		{
			name: "empty template falls back",
			tpl:  "",
			nc:   NameContext{Date: date, Sequence: 1, Objective: "leadads"},
			want: "24.08.2026-LA-1",
		},
		{
			name: "unknown objective upper-cased",
			tpl:  "%OBJ%",
			nc:   NameContext{Objective: "custom"},
			want: "CUSTOM",
		},
		{
			name: "unknown token passes through",
			tpl:  "camp %WHAT%",
			nc:   NameContext{},
			want: "camp %WHAT%",
		},
		{
			name: "appinstalls code",
			tpl:  "%OBJ%",
			nc:   NameContext{Objective: "AppInstalls"},
			want: "AI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderName(tt.tpl, tt.nc); got != tt.want {
				t.Errorf("RenderName(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestRenderNameTruncation(t *testing.T) {
	long := strings.Repeat("x", 150)
	got := RenderName(long, NameContext{})
	if len(got) > MaxNameLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxNameLength)
	}

	// Multibyte: never cut inside a rune.
	cyrillic := strings.Repeat("ж", 120)
	got = RenderName(cyrillic, NameContext{})
	if len(got) > MaxNameLength {
		t.Errorf("multibyte len = %d, want <= %d", len(got), MaxNameLength)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
}
