// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package metrics exposes Prometheus instrumentation for the orchestration
// daemon: ad platform API call outcomes, trigger dispatch activity, the
// moderation recovery pipeline and durable queue depths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ad platform API client

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adplatform_request_duration_seconds",
			Help:    "Duration of ad platform API calls in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "outcome"}, // outcome: "success", "permanent", "exhausted"
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adplatform_request_retries_total",
			Help: "Total retry attempts against the ad platform API",
		},
		[]string{"reason"}, // "network", "rate_limited", "server_error", "client_error"
	)

	APICredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adplatform_credential_rotations_total",
			Help: "Times the client moved to the next credential in the pool",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adplatform_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adplatform_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Trigger dispatcher

	TriggersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_triggers_fired_total",
			Help: "Queue entries that entered their trigger window and were dispatched",
		},
		[]string{"cabinet", "outcome"}, // "submitted", "failed"
	)

	CampaignsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_campaigns_created_total",
			Help: "Remote campaigns successfully created",
		},
		[]string{"cabinet"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Entries currently present per durable queue",
		},
		[]string{"queue"}, // "primary", "oneshot", "addgroup", "tracking"
	)

	// Moderation recovery

	GroupsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_groups_classified_total",
			Help: "Tracked ad groups classified per recovery pass",
		},
		[]string{"state"}, // "approved", "banned", "on_moderation", "unknown"
	)

	GroupsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_groups_recovered_total",
			Help: "Banned ad groups for which a replacement add-group job was packaged",
		},
		[]string{"cabinet"},
	)

	RehashOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_rehash_operations_total",
			Help: "Media rehash attempts by result",
		},
		[]string{"result"}, // "remuxed", "cache_hit", "failed"
	)

	RecoveryPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recovery_pass_duration_seconds",
			Help:    "Duration of a full moderation recovery pass",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_messages_total",
			Help: "Operator notifications by delivery result",
		},
		[]string{"result"}, // "sent", "failed"
	)
)
