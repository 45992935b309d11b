// Adpilot - Self-Healing Ad Campaign Orchestration
// Copyright 2026 V. Melnikov (vmelnikoff)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vmelnikoff/adpilot

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vmelnikoff/adpilot/internal/config"
	"github.com/vmelnikoff/adpilot/internal/logging"
	"github.com/vmelnikoff/adpilot/internal/store"
)

// Server hosts the operational HTTP listener.
type Server struct {
	cfg    config.ServerConfig
	srv    *http.Server
	logger zerolog.Logger
}

func NewServer(cfg config.ServerConfig, st *store.Store) *Server {
	handler := NewHandler(st)
	s := &Server{
		cfg:    cfg,
		logger: logging.Component("api"),
	}
	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(handler),
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	return s
}

func (s *Server) routes(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/healthz", handler.HealthLive)
	r.Get("/readyz", handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
		}
		r.Get("/status", handler.Status)
	})

	return r
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("Starting HTTP server")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
