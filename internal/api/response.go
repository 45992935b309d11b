// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

// Package api serves the operational HTTP surface: health probes,
// Prometheus metrics, and a read-only status view of the work queues.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/vmelnikoff/adpilot/internal/logging"
)

// APIResponse is the response wrapper for JSON endpoints.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// APIError carries a machine-readable code plus a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{Success: status < 400, Data: data, Time: time.Now().UTC()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Time:    time.Now().UTC(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Msg("response encoding failed")
	}
}
