// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package platform

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/vmelnikoff/adpilot/internal/models"
)

// Upload posts a local file as multipart form data and returns the
// platform reply. The body is buffered once and replayed across retry
// attempts; upload endpoints share the same classification and credential
// rotation as JSON calls.
func (c *Client) Upload(ctx context.Context, url string, creds []models.Credential, filePath, fieldName string) (*Response, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("platform: read upload file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("platform: build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("platform: write multipart form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("platform: finalize multipart form: %w", err)
	}

	return c.do(ctx, "POST", url, creds, buf.Bytes(), writer.FormDataContentType())
}

// UploadMedia uploads a creative file and returns the platform-assigned
// media id. mediaType selects the content endpoint ("video" or "image").
func (a *API) UploadMedia(ctx context.Context, creds []models.Credential, filePath, mediaType string) (int64, error) {
	var endpoint, field string
	switch mediaType {
	case "video":
		endpoint = a.endpoint("/content/videos.json")
		field = "file"
	case "image":
		endpoint = a.endpoint("/content/static.json")
		field = "file"
	default:
		return 0, fmt.Errorf("platform: unknown media type %q", mediaType)
	}

	resp, err := a.caller.Upload(ctx, endpoint, creds, filePath, field)
	if err != nil {
		return 0, err
	}
	created, err := DecodeCreated(resp.Raw)
	if err != nil {
		return 0, err
	}
	if len(created.CampaignIDs) == 0 {
		return 0, fmt.Errorf("platform: media upload returned no id")
	}
	return created.CampaignIDs[0], nil
}
