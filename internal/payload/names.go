// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package payload

import (
	"strconv"
	"strings"
	"time"
)

// MaxNameLength is the hard cap applied to every rendered name. The
// platform truncates longer names inconsistently between list and detail
// views, so we truncate deterministically on our side.
const MaxNameLength = 100

// objectiveCodes are the short codes substituted for %OBJ%.
var objectiveCodes = map[string]string{
	"siteconversions": "SC",
	"leadads":         "LA",
	"appinstalls":     "AI",
}

// NameContext carries the token values available to a name template.
type NameContext struct {
	Date      time.Time
	Sequence  int
	Objective string
	AgeRange  string
	Gender    string
	Audiences []string
}

// RenderName substitutes the recognized tokens in tpl and hard-truncates
// the result. Unknown tokens pass through verbatim; an empty template
// falls back to a date+sequence name so no object ever ships unnamed.
//
// Tokens: %DATE% %SEQ% %OBJ% %AGE% %GENDER% %AUD%
func RenderName(tpl string, nc NameContext) string {
	if strings.TrimSpace(tpl) == "" {
		tpl = "%DATE%-%OBJ%-%SEQ%"
	}

	code, ok := objectiveCodes[strings.ToLower(nc.Objective)]
	if !ok {
		code = strings.ToUpper(nc.Objective)
	}

	replacer := strings.NewReplacer(
		"%DATE%", nc.Date.Format("02.01.2006"),
		"%SEQ%", strconv.Itoa(nc.Sequence),
		"%OBJ%", code,
		"%AGE%", nc.AgeRange,
		"%GENDER%", nc.Gender,
		"%AUD%", strings.Join(nc.Audiences, "+"),
	)
	name := replacer.Replace(tpl)

	if len(name) > MaxNameLength {
		// Truncate on a rune boundary; names carry emoji and cyrillic.
		runes := []rune(name)
		if len(runes) > MaxNameLength {
			runes = runes[:MaxNameLength]
		}
		name = string(runes)
		for len(name) > MaxNameLength {
			runes = runes[:len(runes)-1]
			name = string(runes)
		}
	}
	return name
}
