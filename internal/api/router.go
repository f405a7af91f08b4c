// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/attendsmart/internal/config"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler  *Handler
	security *config.SecurityConfig
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, security *config.SecurityConfig) *Router {
	return &Router{handler: handler, security: security}
}

// rateLimit returns the IP-based limiter, or a pass-through when disabled
// (development only; Config.Validate rejects it in production).
func (router *Router) rateLimit() func(http.Handler) http.Handler {
	if router.security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	requests := router.security.RateLimitReqs
	if requests <= 0 {
		requests = 100
	}
	window := router.security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(requests, window)
}

// Setup configures all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(prometheusMetrics)
	r.Use(requestLogger)

	// Device ingestion. Rate limited per source IP; one device posts at
	// human tap frequency, so the default budget is generous.
	r.With(router.rateLimit()).Post("/post_data", router.handler.PostData)

	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Get("/attendance", router.handler.Attendance)
	})

	return r
}
