// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package processor implements tap event processing: identity resolution,
// arrival/departure classification, idempotent ledger recording, duplicate
// short-circuiting and best-effort notification.
//
// Ordering rules, all derived from the event's receive time:
//
//   - before noon the tap is an arrival, from noon onward a departure;
//   - each (day, device, badge, slot) records at most one time, first tap
//     wins, repeats are duplicates;
//   - a departure with no prior arrival still records (the person was
//     present, the morning tap was missed).
//
// The duplicate cache accelerates the repeat-tap path but never decides a
// write: every mutation is confirmed against the ledger under the per-badge
// lock, so a stale or lost cache can cause extra ledger reads, never wrong
// rows.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/attendsmart/internal/dupcache"
	"github.com/tomtom215/attendsmart/internal/ledger"
	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/metrics"
	"github.com/tomtom215/attendsmart/internal/models"
	"github.com/tomtom215/attendsmart/internal/notifier"
	"github.com/tomtom215/attendsmart/internal/registry"
)

// Kind classifies the outcome of processing one tap.
type Kind int

const (
	// Success: a ledger slot was set and the tap is recorded.
	Success Kind = iota

	// Duplicate: the slot for this (day, badge, direction) is already set.
	Duplicate

	// NotFound: the badge id is absent from the register.
	NotFound

	// DependencyError: a backing store failed; the tap may be retried.
	DependencyError
)

// String returns the metrics label for the outcome kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Duplicate:
		return "duplicate"
	case NotFound:
		return "not_found"
	default:
		return "dependency_error"
	}
}

// Outcome is the result of processing a tap event.
type Outcome struct {
	Kind Kind

	// Name is the resolved display name; set for Success and Duplicate.
	Name string

	// Status is the classified direction; set for Success and Duplicate.
	Status models.Status

	// Err carries the underlying failure for DependencyError.
	Err error
}

// LedgerStore is the subset of the ledger the processor needs. *ledger.Store
// satisfies it; tests substitute an in-memory fake.
type LedgerStore interface {
	GetOrCreatePartition(ctx context.Context, monthYear, deviceID, day string) (ledger.Partition, error)
	FindRow(ctx context.Context, p ledger.Partition, badgeID string) (*models.LedgerRow, error)
	AppendRow(ctx context.Context, p ledger.Partition, row models.LedgerRow) (bool, error)
	SetField(ctx context.Context, p ledger.Partition, badgeID string, field ledger.Field, value string) (bool, error)
	LockKey(p ledger.Partition, badgeID string) func()
}

// Processor handles tap events end to end.
type Processor struct {
	registry registry.Registry
	ledger   LedgerStore
	cache    dupcache.Cache
	notifier notifier.Notifier

	notifyTimeout time.Duration
	lookupTimeout time.Duration

	// now is replaceable in tests to pin the clock.
	now func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the processor's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithNotifyTimeout bounds the detached notification send.
func WithNotifyTimeout(d time.Duration) Option {
	return func(p *Processor) { p.notifyTimeout = d }
}

// WithLookupTimeout bounds the register lookup independently of the request
// deadline.
func WithLookupTimeout(d time.Duration) Option {
	return func(p *Processor) { p.lookupTimeout = d }
}

// New creates a Processor.
func New(reg registry.Registry, led LedgerStore, cache dupcache.Cache, notif notifier.Notifier, opts ...Option) *Processor {
	p := &Processor{
		registry:      reg,
		ledger:        led,
		cache:         cache,
		notifier:      notif,
		notifyTimeout: 10 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// classify maps an event time to the direction and the slot it fills.
// The boundary is noon local time: 11:59 is an arrival, 12:00 a departure.
func classify(at time.Time) (models.Status, ledger.Field) {
	if at.Hour() < 12 {
		return models.StatusArrived, ledger.FieldArrival
	}
	return models.StatusLeft, ledger.FieldLeave
}

// Process handles one tap event and returns its outcome. The event's badge id
// must already be normalized by the caller.
func (p *Processor) Process(ctx context.Context, event models.TapEvent) Outcome {
	start := time.Now()
	outcome := p.process(ctx, event)
	metrics.TapProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.TapsProcessedTotal.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome
}

func (p *Processor) process(ctx context.Context, event models.TapEvent) Outcome {
	at := event.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	status, field := classify(at)
	dayKey := at.Format("2006-01-02")

	lookupCtx := ctx
	if p.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, p.lookupTimeout)
		defer cancel()
	}
	person, err := p.registry.Lookup(lookupCtx, event.BadgeID)
	if errors.Is(err, registry.ErrNotFound) {
		return Outcome{Kind: NotFound}
	}
	if err != nil {
		return Outcome{Kind: DependencyError, Err: fmt.Errorf("register lookup failed: %w", err)}
	}

	// Fast path: a cached entry with the same direction means the slot is
	// already recorded, so the repeat tap needs no ledger read. A cache
	// failure here only forfeits the shortcut.
	cached, hit, err := p.cache.Get(ctx, dayKey, event.BadgeID)
	if err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Duplicate cache read failed, falling through to ledger")
	} else if hit && cached == status {
		return Outcome{Kind: Duplicate, Name: person.DisplayName, Status: status}
	}

	partition, err := p.ledger.GetOrCreatePartition(ctx, at.Format("January 2006"), event.DeviceID, fmt.Sprintf("%d", at.Day()))
	if err != nil {
		return Outcome{Kind: DependencyError, Err: fmt.Errorf("partition setup failed: %w", err)}
	}

	recorded, err := p.record(ctx, partition, event.BadgeID, person.DisplayName, field, at.Format("15:04"))
	if err != nil {
		return Outcome{Kind: DependencyError, Err: err}
	}
	if !recorded {
		return Outcome{Kind: Duplicate, Name: person.DisplayName, Status: status}
	}

	// The write is committed; cache and notification failures past this
	// point are logged, never surfaced.
	if err := p.cache.Put(ctx, dayKey, event.BadgeID, status); err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Duplicate cache write failed")
	}
	p.notifyAsync(event.ID, person, status, at)

	return Outcome{Kind: Success, Name: person.DisplayName, Status: status}
}

// record sets the target slot in the ledger, creating the row on first touch.
// Returns false when the slot was already occupied. The keyed lock serializes
// racing taps for the same badge so exactly one of them wins.
func (p *Processor) record(ctx context.Context, partition ledger.Partition, badgeID, name string, field ledger.Field, value string) (bool, error) {
	unlock := p.ledger.LockKey(partition, badgeID)
	defer unlock()

	row, err := p.ledger.FindRow(ctx, partition, badgeID)
	if err != nil {
		return false, fmt.Errorf("ledger read failed: %w", err)
	}

	if row == nil {
		newRow := models.LedgerRow{DisplayName: name, BadgeID: badgeID}
		if field == ledger.FieldArrival {
			newRow.ArrivalTime = value
		} else {
			// Departure without a recorded arrival: record it anyway,
			// the arrival slot stays empty.
			newRow.LeaveTime = value
		}
		inserted, err := p.ledger.AppendRow(ctx, partition, newRow)
		if err != nil {
			return false, fmt.Errorf("ledger append failed: %w", err)
		}
		if inserted {
			return true, nil
		}
		// Lost an append race despite the lock (another instance or a
		// pre-existing row): fall through to the slot update.
	}

	if row != nil {
		occupied := row.ArrivalTime != ""
		if field == ledger.FieldLeave {
			occupied = row.LeaveTime != ""
		}
		if occupied {
			return false, nil
		}
	}

	set, err := p.ledger.SetField(ctx, partition, badgeID, field, value)
	if err != nil {
		return false, fmt.Errorf("ledger update failed: %w", err)
	}
	return set, nil
}

// notifyAsync fires the notification on a detached context so a slow push
// can never hold up the tap response.
func (p *Processor) notifyAsync(eventID string, person *models.Person, status models.Status, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.notifyTimeout)
		defer cancel()
		if err := p.notifier.Notify(ctx, person, status, at); err != nil {
			logging.Warn().
				Err(err).
				Str("event_id", eventID).
				Str("status", string(status)).
				Msg("Notification delivery failed")
		}
	}()
}
