// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package services

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/metrics"
)

// CacheGCService periodically runs BadgerDB value-log garbage collection for
// the duplicate cache. TTL-expired (day, badge) entries free their value-log
// space only when GC runs.
type CacheGCService struct {
	db       *badger.DB
	interval time.Duration
}

// NewCacheGCService creates the GC service. interval defaults to 10 minutes.
func NewCacheGCService(db *badger.DB, interval time.Duration) *CacheGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheGCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *CacheGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runGC()
		}
	}
}

// runGC reclaims value-log space. ErrNoRewrite means nothing needed
// collecting, which is the common case.
func (s *CacheGCService) runGC() {
	start := time.Now()
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		metrics.DupCacheOperationsTotal.WithLabelValues("gc", "failure").Inc()
		logging.Warn().Err(err).Msg("Duplicate cache GC failed")
		return
	}
	metrics.DupCacheOperationsTotal.WithLabelValues("gc", "success").Inc()
	logging.Debug().Dur("duration", time.Since(start)).Msg("Duplicate cache GC completed")
}

// String implements fmt.Stringer for suture's event log.
func (s *CacheGCService) String() string {
	return "cache-gc"
}
