// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package notify delivers best-effort operator notifications. Delivery
// failure is logged and otherwise ignored: notifications never gate the
// orchestration workflow.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/metrics"
)

// Notifier sends a human-readable message somewhere an operator looks.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Noop discards all notifications.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, string) {}

// Telegram delivers messages via the Telegram Bot API.
type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

// New returns the configured notifier, or a Noop when disabled.
func New(cfg config.NotifyConfig) Notifier {
	if !cfg.Enabled {
		return Noop{}
	}
	return &Telegram{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.telegram.org",
		token:   cfg.TelegramToken,
		chatID:  cfg.TelegramChat,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Notify implements Notifier. Telegram caps messages at 4096 characters;
// longer texts are truncated rather than split.
func (t *Telegram) Notify(ctx context.Context, message string) {
	const maxLen = 4096
	if len(message) > maxLen {
		runes := []rune(message)
		if len(runes) > maxLen {
			runes = runes[:maxLen]
		}
		message = string(runes)
	}

	if err := t.send(ctx, message); err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Msg("notification delivery failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
}

func (t *Telegram) send(ctx context.Context, message string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  message,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil || !parsed.OK {
		desc := strings.TrimSpace(parsed.Description)
		if desc == "" {
			desc = string(body)
		}
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, desc)
	}
	return nil
}
