// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package registry resolves badge identifiers to person records.
//
// The production register is a CSV file maintained outside this service
// (columns: uid, name, notify_url). It is re-read on every lookup so external
// edits take effect immediately; the core never caches identity data. The
// file is headcount-sized, so a full scan per lookup is bounded and cheap.
package registry

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tomtom215/attendsmart/internal/models"
)

// ErrNotFound indicates the badge id is absent from the register.
// It is an expected outcome, not a dependency failure.
var ErrNotFound = errors.New("badge id not found in register")

// Registry resolves a badge id to a person record.
type Registry interface {
	Lookup(ctx context.Context, badgeID string) (*models.Person, error)
}

// NormalizeBadgeID canonicalizes a badge identifier: trimmed, uppercase.
// All registry and ledger keys use the normalized form.
func NormalizeBadgeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FileRegistry reads the register CSV from disk on every lookup.
type FileRegistry struct {
	path string
}

// NewFileRegistry creates a registry backed by the CSV file at path.
// The file is not opened until the first lookup.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Lookup scans the register for an exact, case-insensitive badge id match.
// Returns ErrNotFound for unknown badges; any I/O or format error is a
// dependency failure.
func (r *FileRegistry) Lookup(ctx context.Context, badgeID string) (*models.Person, error) {
	badgeID = NormalizeBadgeID(badgeID)
	if badgeID == "" {
		return nil, ErrNotFound
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open register %s: %w", r.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read register header: %w", err)
	}

	uidCol, nameCol, notifyCol := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "uid":
			uidCol = i
		case "name":
			nameCol = i
		case "notify_url", "ntfy url", "ntfy_url":
			notifyCol = i
		}
	}
	if uidCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("register %s is missing uid/name columns", r.path)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("register lookup canceled: %w", err)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read register row: %w", err)
		}
		if len(record) <= uidCol || len(record) <= nameCol {
			continue
		}
		if NormalizeBadgeID(record[uidCol]) != badgeID {
			continue
		}

		person := &models.Person{
			BadgeID:     badgeID,
			DisplayName: strings.TrimSpace(record[nameCol]),
		}
		if notifyCol >= 0 && len(record) > notifyCol {
			person.NotifyEndpoint = strings.TrimSpace(record[notifyCol])
		}
		return person, nil
	}
}

// StaticRegistry is an in-memory registry for tests.
type StaticRegistry struct {
	mu      sync.RWMutex
	persons map[string]models.Person
}

// NewStaticRegistry creates a registry from a fixed set of persons.
func NewStaticRegistry(persons ...models.Person) *StaticRegistry {
	m := make(map[string]models.Person, len(persons))
	for _, p := range persons {
		m[NormalizeBadgeID(p.BadgeID)] = p
	}
	return &StaticRegistry{persons: m}
}

// Lookup resolves against the in-memory set.
func (r *StaticRegistry) Lookup(_ context.Context, badgeID string) (*models.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persons[NormalizeBadgeID(badgeID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}
