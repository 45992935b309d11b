// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package payload

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vmelnikoff/adpilot/internal/models"
	"github.com/vmelnikoff/adpilot/internal/platform"
)

// SegmentSource lists the cabinet's remote audience segments.
// Satisfied by *platform.API.
type SegmentSource interface {
	ListSegments(ctx context.Context, creds []models.Credential) ([]platform.Segment, error)
}

// AllMatchPrefix switches an abstract audience name into return-every-match
// mode instead of first-match.
const AllMatchPrefix = "%ALL%"

// segmentCache memoizes the remote segment list for the duration of one
// build, so a preset with several abstract-audience groups lists segments
// once instead of once per group. Not safe for concurrent use; a build is
// sequential.
type segmentCache struct {
	source   SegmentSource
	loaded   bool
	segments []platform.Segment
}

func newSegmentCache(source SegmentSource) *segmentCache {
	return &segmentCache{source: source}
}

func (c *segmentCache) ListSegments(ctx context.Context, creds []models.Credential) ([]platform.Segment, error) {
	if c.loaded {
		return c.segments, nil
	}
	segments, err := c.source.ListSegments(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.segments = segments
	c.loaded = true
	return c.segments, nil
}

// ResolveAudiences expands a group's audience specification into concrete
// segment ids: the literal ids first, then each abstract name resolved
// against the remote segment list. The result is deduplicated preserving
// first-seen order.
//
// Name matching keeps the platform-specific three-way branch observed in
// production: wildcard patterns (containing '*') match as anchored regex,
// otherwise an exact name match wins, otherwise prefix match. A %ALL%
// prefix collects every match instead of the first.
func ResolveAudiences(ctx context.Context, source SegmentSource, creds []models.Credential, group *models.PresetGroup) ([]int64, error) {
	ids := make([]int64, 0, len(group.Segments))
	seen := make(map[int64]bool)
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range group.Segments {
		add(id)
	}

	if len(group.AudienceNames) == 0 {
		return ids, nil
	}

	segments, err := source.ListSegments(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("resolve audiences: %w", err)
	}

	for _, name := range group.AudienceNames {
		matched, err := matchSegments(segments, name)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("resolve audiences: no segment matches %q", name)
		}
		for _, id := range matched {
			add(id)
		}
	}
	return ids, nil
}

func matchSegments(segments []platform.Segment, name string) ([]int64, error) {
	all := strings.HasPrefix(name, AllMatchPrefix)
	pattern := strings.TrimPrefix(name, AllMatchPrefix)

	var matcher func(string) bool
	if strings.Contains(pattern, "*") {
		re, err := wildcardRegexp(pattern)
		if err != nil {
			return nil, fmt.Errorf("audience pattern %q: %w", name, err)
		}
		matcher = re.MatchString
	} else {
		// Exact beats prefix; only fall back when nothing matches exactly.
		exact := func(s string) bool { return s == pattern }
		if segmentMatchExists(segments, exact) {
			matcher = exact
		} else {
			matcher = func(s string) bool { return strings.HasPrefix(s, pattern) }
		}
	}

	var ids []int64
	for _, seg := range segments {
		if matcher(seg.Name) {
			ids = append(ids, seg.ID)
			if !all {
				break
			}
		}
	}
	return ids, nil
}

func segmentMatchExists(segments []platform.Segment, match func(string) bool) bool {
	for _, seg := range segments {
		if match(seg.Name) {
			return true
		}
	}
	return false
}

// wildcardRegexp compiles a '*' wildcard pattern into an anchored regexp.
func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(pattern, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*") + "$"
	return regexp.Compile(expr)
}
