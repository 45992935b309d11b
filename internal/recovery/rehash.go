// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package recovery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
)

// mediaUploader uploads a local file and returns the platform media id.
// Satisfied by *platform.API.
type mediaUploader interface {
	UploadMedia(ctx context.Context, creds []models.Credential, filePath, mediaType string) (int64, error)
}

// rehashCache memoizes replacement media ids within ONE recovery pass:
// several banned groups often share one underlying asset, and each remux +
// upload is expensive. The cache is created at pass start and never
// outlives the pass.
type rehashCache map[string]int64

// rehasher produces a content-equivalent, differently-fingerprinted copy
// of a local asset and uploads it for a fresh platform media id.
type rehasher struct {
	uploader     mediaUploader
	remuxCommand string
	mediaDir     string
}

// replace returns a platform media id for a rehashed copy of the asset.
// The temporary remux output is removed on every exit path.
func (r *rehasher) replace(ctx context.Context, creds []models.Credential, cache rehashCache, assetID, mediaType string) (int64, error) {
	if id, ok := cache[assetID]; ok {
		metrics.RehashOperations.WithLabelValues("cache_hit").Inc()
		return id, nil
	}

	source, err := r.locateAsset(assetID)
	if err != nil {
		metrics.RehashOperations.WithLabelValues("failed").Inc()
		return 0, err
	}

	output := filepath.Join(os.TempDir(),
		fmt.Sprintf("rehash-%s-%d%s", assetID, time.Now().UnixNano(), filepath.Ext(source)))
	defer os.Remove(output)

	if err := r.remux(ctx, source, output); err != nil {
		metrics.RehashOperations.WithLabelValues("failed").Inc()
		return 0, err
	}

	mediaID, err := r.uploader.UploadMedia(ctx, creds, output, mediaType)
	if err != nil {
		metrics.RehashOperations.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("upload rehashed asset %s: %w", assetID, err)
	}

	cache[assetID] = mediaID
	metrics.RehashOperations.WithLabelValues("remuxed").Inc()
	return mediaID, nil
}

// locateAsset finds the local file stored under the asset's catalog id,
// whatever its extension.
func (r *rehasher) locateAsset(assetID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(r.mediaDir, assetID+".*"))
	if err != nil {
		return "", fmt.Errorf("locate asset %s: %w", assetID, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("locate asset %s: no file under %s", assetID, r.mediaDir)
	}
	return matches[0], nil
}

// remux invokes the external tool that strips metadata and changes the
// content hash while preserving visual content. Non-zero exit is a hard
// failure for this asset this pass.
func (r *rehasher) remux(ctx context.Context, input, output string) error {
	parts := strings.Fields(r.remuxCommand)
	if len(parts) == 0 {
		return fmt.Errorf("remux: empty command")
	}
	args := append(parts[1:], input, output)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("remux %s: %w: %s", input, err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("remux %s: tool reported success but wrote no output", input)
	}
	return nil
}
