// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package platform

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/metrics"
	"github.com/vmelnikoff/adpilot/internal/models"
)

// BreakerCaller wraps a Caller with a circuit breaker so a dead platform
// does not keep both polling loops stuck inside full retry cycles.
//
// The breaker sits OUTSIDE the client's retry loop: one "request" in
// breaker terms is one fully retried call. Permanent 4xx outcomes are
// business failures, not platform health signals, and are not counted.
type BreakerCaller struct {
	inner Caller
	cb    *gobreaker.CircuitBreaker[*Response]
	name  string
}

// NewBreakerCaller wraps inner in a circuit breaker.
func NewBreakerCaller(inner Caller) *BreakerCaller {
	const cbName = "ad-platform"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var httpErr *HTTPError
			// A permanent rejection means the platform is healthy and
			// disliked our payload. Only transport-level exhaustion
			// counts against the breaker.
			return errors.As(err, &httpErr) && httpErr.Permanent()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerCaller{inner: inner, cb: cb, name: cbName}
}

// Call implements Caller through the breaker.
func (b *BreakerCaller) Call(ctx context.Context, method, url string, creds []models.Credential, body any) (*Response, error) {
	return b.execute(func() (*Response, error) {
		return b.inner.Call(ctx, method, url, creds, body)
	})
}

// Upload implements Caller through the breaker.
func (b *BreakerCaller) Upload(ctx context.Context, url string, creds []models.Credential, filePath, fieldName string) (*Response, error) {
	return b.execute(func() (*Response, error) {
		return b.inner.Upload(ctx, url, creds, filePath, fieldName)
	})
}

func (b *BreakerCaller) execute(fn func() (*Response, error)) (*Response, error) {
	resp, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		logging.Warn().Err(err).Msg("platform call rejected by open circuit")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return resp, err
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
