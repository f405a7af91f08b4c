// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package ledger implements the authoritative attendance ledger on embedded
// DuckDB. The ledger is partitioned by (month-year, device) and day; rows are
// keyed by badge id within a day partition and mutated at most twice, once
// per time slot.
//
// Concurrency discipline: the conditional UPDATEs make each check-then-set
// atomic on its own, and the per-(partition, badge) keyed mutex serializes
// the event processor's wider read-modify-write so only one writer can
// observe "slot empty" and win. Different badges, days and devices never
// contend.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/attendsmart/internal/config"
	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/metrics"
	"github.com/tomtom215/attendsmart/internal/models"
)

// Field selects which time slot of a ledger row to set.
type Field int

const (
	// FieldArrival is the pre-noon slot.
	FieldArrival Field = iota

	// FieldLeave is the post-noon slot.
	FieldLeave
)

// column maps a Field to its column name. Fields are a closed enum so the
// identifier can never be caller-controlled.
func (f Field) column() string {
	if f == FieldLeave {
		return "leave_time"
	}
	return "arrival_time"
}

// Partition addresses one device-day subdivision of the ledger.
type Partition struct {
	// MonthYear is formatted "January 2006", matching the register books
	// this ledger replaces.
	MonthYear string

	// DeviceID is the posting device.
	DeviceID string

	// Day is the day of month, "2".
	Day string
}

// PartitionFor derives the partition key for an event time and device.
func PartitionFor(t time.Time, deviceID string) Partition {
	return Partition{
		MonthYear: t.Format("January 2006"),
		DeviceID:  deviceID,
		Day:       fmt.Sprintf("%d", t.Day()),
	}
}

// Store wraps the DuckDB connection and provides ledger access.
type Store struct {
	conn *sql.DB

	// rowLocks holds per-(partition, badge) mutexes for the processor's
	// read-modify-write sequence.
	rowLocks sync.Map
}

// New opens (or creates) the ledger database and initializes the schema.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for the database file.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dbDir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return s, nil
}

// createSchema creates the partition and attendance tables. The seq sequence
// preserves insertion order for readability of day listings.
func (s *Store) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS attendance_seq`,
		`CREATE TABLE IF NOT EXISTS partitions (
			month_year TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			day        TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
			PRIMARY KEY (month_year, device_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			seq          BIGINT NOT NULL DEFAULT nextval('attendance_seq'),
			month_year   TEXT NOT NULL,
			device_id    TEXT NOT NULL,
			day          TEXT NOT NULL,
			badge_id     TEXT NOT NULL,
			name         TEXT NOT NULL,
			arrival_time TEXT NOT NULL DEFAULT '',
			leave_time   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (month_year, device_id, day, badge_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint ledger before close")
	}
	return s.conn.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("ledger connection is nil")
	}
	return s.conn.PingContext(ctx)
}

// observe records operation latency and errors.
func observe(operation string, start time.Time, err error) {
	metrics.LedgerOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LedgerOperationErrors.WithLabelValues(operation).Inc()
	}
}

// GetOrCreatePartition registers the partition lazily. Creation is
// idempotent: concurrent first-touches converge on the single row.
func (s *Store) GetOrCreatePartition(ctx context.Context, monthYear, deviceID, day string) (p Partition, err error) {
	start := time.Now()
	defer func() { observe("create_partition", start, err) }()

	p = Partition{MonthYear: monthYear, DeviceID: deviceID, Day: day}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO partitions (month_year, device_id, day) VALUES (?, ?, ?)
		 ON CONFLICT (month_year, device_id, day) DO NOTHING`,
		monthYear, deviceID, day)
	if err != nil {
		return Partition{}, fmt.Errorf("failed to create partition %s/%s/%s: %w", monthYear, deviceID, day, err)
	}
	return p, nil
}

// FindRow returns the ledger row for a badge within the partition, or nil if
// none exists yet.
func (s *Store) FindRow(ctx context.Context, p Partition, badgeID string) (row *models.LedgerRow, err error) {
	start := time.Now()
	defer func() { observe("find_row", start, err) }()

	r := &models.LedgerRow{}
	err = s.conn.QueryRowContext(ctx,
		`SELECT name, badge_id, arrival_time, leave_time FROM attendance
		 WHERE month_year = ? AND device_id = ? AND day = ? AND badge_id = ?`,
		p.MonthYear, p.DeviceID, p.Day, badgeID,
	).Scan(&r.DisplayName, &r.BadgeID, &r.ArrivalTime, &r.LeaveTime)
	if err == sql.ErrNoRows {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger row for %s: %w", badgeID, err)
	}
	return r, nil
}

// AppendRow inserts a new row into the partition. Returns false without error
// when a row for the badge already exists (a lost first-tap race); the caller
// falls through to SetField.
func (s *Store) AppendRow(ctx context.Context, p Partition, row models.LedgerRow) (inserted bool, err error) {
	start := time.Now()
	defer func() { observe("append_row", start, err) }()

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO attendance (month_year, device_id, day, badge_id, name, arrival_time, leave_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (month_year, device_id, day, badge_id) DO NOTHING`,
		p.MonthYear, p.DeviceID, p.Day, row.BadgeID, row.DisplayName, row.ArrivalTime, row.LeaveTime)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger row for %s: %w", row.BadgeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read append result: %w", err)
	}
	return n > 0, nil
}

// SetField sets a time slot if and only if it is still empty. Returns false
// without error when the slot was already set: the conditional UPDATE is the
// atomic check-then-set, so concurrent callers cannot both win.
func (s *Store) SetField(ctx context.Context, p Partition, badgeID string, field Field, value string) (set bool, err error) {
	start := time.Now()
	defer func() { observe("set_field", start, err) }()

	col := field.column()
	res, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE attendance SET %s = ?
		 WHERE month_year = ? AND device_id = ? AND day = ? AND badge_id = ? AND %s = ''`, col, col),
		value, p.MonthYear, p.DeviceID, p.Day, badgeID)
	if err != nil {
		return false, fmt.Errorf("failed to set %s for %s: %w", col, badgeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// Rows lists the partition's rows in insertion order.
func (s *Store) Rows(ctx context.Context, p Partition) (rows []models.LedgerRow, err error) {
	start := time.Now()
	defer func() { observe("rows", start, err) }()

	result, err := s.conn.QueryContext(ctx,
		`SELECT name, badge_id, arrival_time, leave_time FROM attendance
		 WHERE month_year = ? AND device_id = ? AND day = ?
		 ORDER BY seq`,
		p.MonthYear, p.DeviceID, p.Day)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition rows: %w", err)
	}
	defer result.Close()

	out := make([]models.LedgerRow, 0, 64)
	for result.Next() {
		var r models.LedgerRow
		if err = result.Scan(&r.DisplayName, &r.BadgeID, &r.ArrivalTime, &r.LeaveTime); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		out = append(out, r)
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return out, nil
}

// LockKey acquires the per-(partition, badge) mutex and returns the unlock
// function. The lock map grows with distinct keys; entries are tiny and the
// working set is bounded by headcount per day.
func (s *Store) LockKey(p Partition, badgeID string) func() {
	key := p.MonthYear + "|" + p.DeviceID + "|" + p.Day + "|" + badgeID
	v, _ := s.rowLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
