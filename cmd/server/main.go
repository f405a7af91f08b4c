// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package main is the entry point for the AttendSmart server.
//
// AttendSmart ingests badge taps from RFID access-control devices and keeps a
// per-device, per-day attendance ledger. Taps before noon record arrivals,
// taps from noon onward record departures; repeats are idempotent. Each
// recorded tap optionally pushes a notification to the person's configured
// endpoint.
//
// The server initializes components in order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml, env)
//  2. Ledger: embedded DuckDB attendance store
//  3. Duplicate cache: BadgerDB (day, badge) index, restart-durable
//  4. Register: CSV identity file, re-read per lookup
//  5. Notifier: rate-limited, circuit-broken HTTP push
//  6. HTTP server: device ingestion plus admin endpoints, supervised by suture
//
// Configuration environment variables include:
//
//	HTTP_PORT        listen port (default 5000)
//	DUCKDB_PATH      ledger database file
//	CACHE_PATH       duplicate cache directory
//	REGISTER_PATH    identity register CSV
//	NOTIFY_ENABLED   enable notification pushes
//	NOTIFY_SITE_NAME site name used in notification messages
//
// The server handles graceful shutdown on SIGINT and SIGTERM: in-flight
// requests drain within the shutdown timeout, then the cache and ledger are
// checkpointed and closed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/attendsmart/internal/api"
	"github.com/tomtom215/attendsmart/internal/config"
	"github.com/tomtom215/attendsmart/internal/dupcache"
	"github.com/tomtom215/attendsmart/internal/ledger"
	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/notifier"
	"github.com/tomtom215/attendsmart/internal/processor"
	"github.com/tomtom215/attendsmart/internal/registry"
	"github.com/tomtom215/attendsmart/internal/supervisor"
	"github.com/tomtom215/attendsmart/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting AttendSmart")

	// Ledger store (DuckDB).
	store, err := ledger.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open ledger store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close ledger store")
		}
	}()

	// Duplicate cache. The durable Badger cache is the default; the
	// in-memory cache is for development only.
	var cache dupcache.Cache
	var badgerCache *dupcache.Badger
	if cfg.Cache.InMemory {
		logging.Warn().Msg("Using in-memory duplicate cache; entries will not survive restart")
		cache = dupcache.NewMemory()
	} else {
		badgerCache, err = dupcache.NewBadgerAtPath(cfg.Cache.Path, cfg.Cache.EntryTTL)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open duplicate cache")
		}
		cache = badgerCache
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close duplicate cache")
		}
	}()

	// Identity register and notifier.
	register := registry.NewFileRegistry(cfg.Registry.Path)

	var notif notifier.Notifier = notifier.Noop{}
	if cfg.Notify.Enabled {
		notif = notifier.NewHTTP(&cfg.Notify)
	} else {
		logging.Info().Msg("Notifications disabled")
	}

	proc := processor.New(register, store, cache, notif,
		processor.WithNotifyTimeout(cfg.Notify.Timeout),
		processor.WithLookupTimeout(cfg.Registry.LookupTimeout))

	// HTTP surface.
	handler := api.NewHandler(proc, store, cfg.Security.MaxBodyBytes)
	router := api.NewRouter(handler, &cfg.Security)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervision tree: data layer (cache GC) and api layer (HTTP server).
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if badgerCache != nil {
		tree.AddDataService(services.NewCacheGCService(badgerCache.DB(), cfg.Cache.GCInterval))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Listening for badge taps")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor exited with error")
		os.Exit(1)
	}

	logging.Info().Msg("Shutdown complete")
}
