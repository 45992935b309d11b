// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package platform implements the resilient REST client for the ad
// platform: credential rotation, outcome classification, bounded retries
// with exponential backoff, and the typed endpoint operations built on top.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
)

// Permanent platform error codes. A 4xx carrying one of these is final:
// retrying an invalid payload or a deleted parent never succeeds.
var permanentErrorCodes = map[string]bool{
	"invalid_payload":   true,
	"validation_failed": true,
	"object_not_found":  true,
	"ad_plan_deleted":   true,
	"access_denied":     true,
}

// HTTPError is the terminal failure surfaced to callers. Body is the full,
// untruncated response body: it is the only forensic signal available for
// later triage.
type HTTPError struct {
	Status int
	Body   string
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform: %s returned %d: %s", e.URL, e.Status, e.Body)
}

// Code extracts the platform error code from the body, if any.
func (e *HTTPError) Code() string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(e.Body), &envelope); err != nil {
		return ""
	}
	if envelope.Error.Code != "" {
		return envelope.Error.Code
	}
	return envelope.Code
}

// Permanent reports whether the failure must not be retried.
func (e *HTTPError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && permanentErrorCodes[e.Code()]
}

// Response is a parsed platform reply. Raw always holds the verbatim body;
// JSON bodies additionally decode via Decode.
type Response struct {
	Status int
	Raw    []byte
	IsJSON bool
}

// Decode unmarshals a JSON response body into v.
func (r *Response) Decode(v any) error {
	if !r.IsJSON {
		return fmt.Errorf("platform: response is not JSON: %q", truncateForLog(r.Raw))
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

// Caller issues resilient platform calls. Satisfied by *Client and by the
// circuit breaker wrapper.
type Caller interface {
	Call(ctx context.Context, method, url string, creds []models.Credential, body any) (*Response, error)
	Upload(ctx context.Context, url string, creds []models.Credential, filePath, fieldName string) (*Response, error)
}

// Client is the resilient HTTP client. It deliberately carries no
// end-to-end timeout: some asset-processing endpoints are slow by nature,
// and callers bound individual calls with their context when needed.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.PlatformConfig
}

// NewClient creates a resilient platform client.
func NewClient(cfg config.PlatformConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{},
		limiter:    limiter,
		cfg:        cfg,
	}
}

// Call issues method url with the given body, rotating credentials
// round-robin across attempts so one exhausted credential never stalls the
// call. Outcomes are classified per attempt:
//
//   - network error, 429, 5xx: retry with backoff up to MaxAttempts
//   - 4xx with a recognized permanent code: fail immediately
//   - other 4xx: retry up to ClientErrorAttempts
//   - 2xx: return parsed response
func (c *Client) Call(ctx context.Context, method, url string, creds []models.Credential, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("platform: encode request body: %w", err)
		}
	}
	return c.do(ctx, method, url, creds, payload, "application/json")
}

// do runs the classified retry loop for a prepared request body.
func (c *Client) do(ctx context.Context, method, url string, creds []models.Credential, payload []byte, contentType string) (*Response, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("platform: no credentials for %s", url)
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.APICredentialRotations.Inc()
		}
		cred := creds[attempt%len(creds)]

		resp, retryIn, err := c.attempt(ctx, method, url, cred, payload, contentType)
		if err == nil {
			metrics.APIRequestDuration.WithLabelValues(method, "success").Observe(time.Since(start).Seconds())
			return resp, nil
		}
		lastErr = err

		var httpErr *HTTPError
		isHTTP := errors.As(err, &httpErr)
		switch {
		case !isHTTP:
			metrics.APIRetries.WithLabelValues("network").Inc()
		case httpErr.Status == http.StatusTooManyRequests:
			metrics.APIRetries.WithLabelValues("rate_limited").Inc()
		case httpErr.Status >= 500:
			metrics.APIRetries.WithLabelValues("server_error").Inc()
		case httpErr.Permanent():
			metrics.APIRequestDuration.WithLabelValues(method, "permanent").Observe(time.Since(start).Seconds())
			return nil, err
		default:
			// Unclassified 4xx: tolerated a few times, the platform is
			// known to emit transient 400s during plan propagation.
			if attempt+1 >= c.cfg.ClientErrorAttempts {
				metrics.APIRequestDuration.WithLabelValues(method, "exhausted").Observe(time.Since(start).Seconds())
				return nil, err
			}
			metrics.APIRetries.WithLabelValues("client_error").Inc()
		}

		delay := retryIn
		if delay <= 0 {
			delay = c.backoff(attempt)
		}
		logging.Debug().
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("platform call retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	metrics.APIRequestDuration.WithLabelValues(method, "exhausted").Observe(time.Since(start).Seconds())
	return nil, fmt.Errorf("platform: %d attempts exhausted for %s: %w", c.cfg.MaxAttempts, url, lastErr)
}

// attempt performs a single HTTP exchange. A non-zero retryIn carries a
// server-supplied retry delay (429 Retry-After).
func (c *Client) attempt(ctx context.Context, method, url string, cred models.Credential, payload []byte, contentType string) (resp *Response, retryIn time.Duration, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("platform: execute request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("platform: read response body: %w", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{
			Status: httpResp.StatusCode,
			Raw:    raw,
			IsJSON: json.Valid(raw),
		}, 0, nil
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		if after := httpResp.Header.Get("Retry-After"); after != "" {
			if secs, perr := strconv.Atoi(after); perr == nil && secs > 0 {
				retryIn = time.Duration(secs) * time.Second
			}
		}
	}

	return nil, retryIn, &HTTPError{
		Status: httpResp.StatusCode,
		Body:   string(raw),
		URL:    url,
	}
}

// backoff computes base*2^attempt with proportional jitter, capped.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffBase << uint(attempt)
	if delay > c.cfg.BackoffCap || delay <= 0 {
		delay = c.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > c.cfg.BackoffCap {
		delay = c.cfg.BackoffCap
	}
	return delay
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
