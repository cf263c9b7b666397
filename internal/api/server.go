// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP control surface of relinkd.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/relinkd/internal/api/middleware"
	v1 "github.com/ManuGH/relinkd/internal/api/v1"
	"github.com/ManuGH/relinkd/internal/health"
)

// Config selects the optional parts of the router.
type Config struct {
	MetricsEnabled    bool
	TracingService    string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server represents the HTTP API server for relinkd.
type Server struct {
	cfg    Config
	ctrl   v1.Controller
	health *health.Manager
	hub    *Hub
}

// New wires the control API. hub may be nil to disable the events stream.
func New(cfg Config, ctrl v1.Controller, hm *health.Manager, hub *Hub) *Server {
	return &Server{cfg: cfg, ctrl: ctrl, health: hm, hub: hub}
}

// Handler returns the configured HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:     s.cfg.MetricsEnabled,
		TracingService:    s.cfg.TracingService,
		EnableLogging:     true,
		RateLimitRequests: s.cfg.RateLimitRequests,
		RateLimitWindow:   s.cfg.RateLimitWindow,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	if s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		v1.NewHandler(s.ctrl).Routes(r)
		if s.hub != nil {
			r.Method(http.MethodGet, "/events", s.hub)
		}
	})
	return r
}
