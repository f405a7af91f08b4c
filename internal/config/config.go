// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package config provides layered configuration for AttendSmart using Koanf:
// built-in defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Registry RegistryConfig `koanf:"registry"`
	Notify   NotifyConfig   `koanf:"notify"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Timeout bounds request handling; it is also the per-request
	// processing deadline passed to the event processor.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Environment is "development" or "production". Production enables
	// additional hardening checks in Validate.
	Environment string `koanf:"environment"`
}

// DatabaseConfig holds the DuckDB ledger store settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CacheConfig holds the duplicate cache settings.
type CacheConfig struct {
	// Path is the BadgerDB directory for the restart-durable cache.
	Path string `koanf:"path"`

	// EntryTTL is how long (day, badge) entries are retained. Entries only
	// matter for the calendar day they record, so anything past 48h is
	// dead weight.
	EntryTTL time.Duration `koanf:"entry_ttl"`

	// GCInterval is how often the Badger value log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// InMemory selects the non-durable in-process cache. Test/dev only:
	// it loses restart-safety.
	InMemory bool `koanf:"in_memory"`
}

// RegistryConfig holds the identity register settings.
type RegistryConfig struct {
	// Path is the CSV register file (columns: uid, name, notify_url).
	// It is re-read on every lookup; external edits take effect immediately.
	Path string `koanf:"path"`

	// LookupTimeout bounds a single register lookup.
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
}

// NotifyConfig holds guardian notification settings.
type NotifyConfig struct {
	Enabled bool `koanf:"enabled"`

	// SiteName appears in notification messages ("X has arrived to <SiteName>").
	SiteName string `koanf:"site_name"`

	// Timeout bounds a single outbound push.
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond and Burst bound outbound push throughput.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit; BreakerCooldown is how long it stays open.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// SecurityConfig holds ingestion hardening settings. Device authentication is
// out of scope (devices are pre-authorized by network placement).
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// MaxBodyBytes caps the request body accepted by the ingestion endpoint.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			Timeout:         15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/attendsmart.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Path:       "/data/seen",
			EntryTTL:   48 * time.Hour,
			GCInterval: 10 * time.Minute,
			InMemory:   false,
		},
		Registry: RegistryConfig{
			Path:          "/data/register.csv",
			LookupTimeout: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:          true,
			SiteName:         "school",
			Timeout:          5 * time.Second,
			RatePerSecond:    5,
			Burst:            10,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			MaxBodyBytes:      4 << 10, // taps are tiny JSON objects
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path must not be empty")
	}
	if c.Registry.LookupTimeout <= 0 {
		return fmt.Errorf("registry.lookup_timeout must be positive, got %s", c.Registry.LookupTimeout)
	}
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache.path must not be empty when cache.in_memory is false")
	}
	if c.Notify.Enabled && c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive, got %s", c.Notify.Timeout)
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs <= 0 {
		return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.MaxBodyBytes <= 0 {
		return fmt.Errorf("security.max_body_bytes must be positive, got %d", c.Security.MaxBodyBytes)
	}

	if c.IsProduction() {
		if c.Cache.InMemory {
			return fmt.Errorf("cache.in_memory is not allowed in production: restart-safety requires the durable cache")
		}
		if c.Security.RateLimitDisabled {
			return fmt.Errorf("security.rate_limit_disabled is not allowed in production")
		}
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
