// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package dupcache implements the restart-durable duplicate cache: a derived
// index of (calendar day, badge id) -> last recorded status used to
// short-circuit repeat taps without re-reading the ledger.
//
// The cache is an accelerator, never a second source of truth. The event
// processor must not treat a cache miss as proof that no ledger row exists
// (an unclean shutdown can write the ledger but not the cache), and any
// decision to mutate is always confirmed against the ledger.
//
// Two implementations exist: Memory for tests/development, and Badger for
// production where entries must survive crash and redeploy.
package dupcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/attendsmart/internal/metrics"
	"github.com/tomtom215/attendsmart/internal/models"
)

// ErrClosed indicates the cache has been closed.
var ErrClosed = errors.New("duplicate cache is closed")

// Entry is a stored duplicate-cache record.
type Entry struct {
	// Day is the calendar day key, "2006-01-02".
	Day string `json:"day"`

	// BadgeID is the normalized badge identifier.
	BadgeID string `json:"badge_id"`

	// Status is the last recorded status for this badge on this day.
	Status models.Status `json:"status"`

	// RecordedAt is when the entry was written.
	RecordedAt time.Time `json:"recorded_at"`
}

// Cache is the duplicate cache contract. Present entries mean a ledger field
// was successfully set for (day, badge); absence proves nothing.
type Cache interface {
	// Get returns the last recorded status for (day, badge), if any.
	Get(ctx context.Context, day, badgeID string) (models.Status, bool, error)

	// Put records the status for (day, badge), overwriting any prior value.
	Put(ctx context.Context, day, badgeID string, status models.Status) error

	// Close releases resources.
	Close() error
}

// Memory is an in-memory cache for tests and development.
// Entries are lost on restart, so it forfeits restart-safety.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemory creates an in-memory duplicate cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func cacheKey(day, badgeID string) string {
	return day + ":" + badgeID
}

// Get returns the cached status for (day, badge).
func (m *Memory) Get(_ context.Context, day, badgeID string) (models.Status, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	entry, ok := m.entries[cacheKey(day, badgeID)]
	if !ok {
		metrics.DupCacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		return "", false, nil
	}
	metrics.DupCacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return entry.Status, true, nil
}

// Put records the status for (day, badge).
func (m *Memory) Put(_ context.Context, day, badgeID string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		metrics.DupCacheOperationsTotal.WithLabelValues("put", "failure").Inc()
		return ErrClosed
	}
	m.entries[cacheKey(day, badgeID)] = Entry{
		Day:        day,
		BadgeID:    badgeID,
		Status:     status,
		RecordedAt: time.Now(),
	}
	metrics.DupCacheOperationsTotal.WithLabelValues("put", "success").Inc()
	return nil
}

// Close closes the cache.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// Badger is the production cache backed by BadgerDB. Entries carry a TTL so
// past days age out without explicit cleanup.
type Badger struct {
	db       *badger.DB
	prefix   []byte
	entryTTL time.Duration
	ownDB    bool
	closed   bool
	mu       sync.RWMutex
}

// OpenBadger opens (or creates) a BadgerDB directory for the cache.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open duplicate cache at %s: %w", path, err)
	}
	return db, nil
}

// NewBadger creates a Badger-backed cache on an already-open DB.
// entryTTL bounds how long (day, badge) entries are retained.
func NewBadger(db *badger.DB, entryTTL time.Duration) *Badger {
	if entryTTL <= 0 {
		entryTTL = 48 * time.Hour
	}
	return &Badger{
		db:       db,
		prefix:   []byte("seen:"),
		entryTTL: entryTTL,
	}
}

// NewBadgerAtPath opens path and wraps it in a cache that owns the DB
// (Close closes the underlying store).
func NewBadgerAtPath(path string, entryTTL time.Duration) (*Badger, error) {
	db, err := OpenBadger(path)
	if err != nil {
		return nil, err
	}
	c := NewBadger(db, entryTTL)
	c.ownDB = true
	return c, nil
}

func (b *Badger) makeKey(day, badgeID string) []byte {
	return append(b.prefix, []byte(cacheKey(day, badgeID))...)
}

// Get returns the cached status for (day, badge).
func (b *Badger) Get(_ context.Context, day, badgeID string) (models.Status, bool, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return "", false, ErrClosed
	}
	b.mu.RUnlock()

	var entry Entry
	var found bool

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.makeKey(day, badgeID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		metrics.DupCacheOperationsTotal.WithLabelValues("get", "failure").Inc()
		return "", false, fmt.Errorf("duplicate cache read failed: %w", err)
	}

	if !found {
		metrics.DupCacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		return "", false, nil
	}
	metrics.DupCacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return entry.Status, true, nil
}

// Put records the status for (day, badge).
func (b *Badger) Put(_ context.Context, day, badgeID string, status models.Status) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		metrics.DupCacheOperationsTotal.WithLabelValues("put", "failure").Inc()
		return ErrClosed
	}
	b.mu.RUnlock()

	entry := Entry{
		Day:        day,
		BadgeID:    badgeID,
		Status:     status,
		RecordedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		metrics.DupCacheOperationsTotal.WithLabelValues("put", "failure").Inc()
		return fmt.Errorf("duplicate cache marshal failed: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(b.makeKey(day, badgeID), data).WithTTL(b.entryTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		metrics.DupCacheOperationsTotal.WithLabelValues("put", "failure").Inc()
		return fmt.Errorf("duplicate cache write failed: %w", err)
	}

	metrics.DupCacheOperationsTotal.WithLabelValues("put", "success").Inc()
	return nil
}

// DB returns the underlying BadgerDB, shared with the GC service.
func (b *Badger) DB() *badger.DB {
	return b.db
}

// Close closes the cache, and the underlying DB if this cache owns it.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.ownDB {
		return b.db.Close()
	}
	return nil
}
