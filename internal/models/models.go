// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package models defines the shared data types for AttendSmart: tap events,
// registry persons, ledger rows and the wire formats of the device-facing and
// administrative APIs.
package models

import "time"

// Status is the recorded attendance status for a badge on a given day.
type Status string

const (
	// StatusArrived records a pre-noon tap.
	StatusArrived Status = "arrived"

	// StatusLeft records a post-noon tap.
	StatusLeft Status = "left"
)

// TapEvent is a single badge presentation received from a device. It is
// created per inbound request and discarded after processing.
type TapEvent struct {
	// ID is a per-request UUID, used only for log correlation.
	ID string

	// BadgeID is the normalized (uppercase, trimmed) badge identifier.
	BadgeID string

	// DeviceID identifies the posting access-control device.
	DeviceID string

	// ReceivedAt is stamped by the ingestion endpoint when the request
	// arrives. Devices do not send their own timestamps.
	ReceivedAt time.Time
}

// Person is a registry record resolved from a badge identifier.
// It is read fresh per event; the register may change at any time.
type Person struct {
	BadgeID        string
	DisplayName    string
	NotifyEndpoint string
}

// LedgerRow is one attendance row within a day partition. At most one
// non-empty ArrivalTime and one non-empty LeaveTime ever exist for a row.
type LedgerRow struct {
	DisplayName string `json:"name"`
	BadgeID     string `json:"uid"`
	ArrivalTime string `json:"arrival_time"`
	LeaveTime   string `json:"leave_time"`
}

// TapRequest is the device wire format for POST /post_data. UID is validated
// after normalization (trim, uppercase), so the badgeid rule sees canonical
// form.
type TapRequest struct {
	UID      string `json:"uid" validate:"required,max=64,badgeid"`
	DeviceID string `json:"device_id" validate:"required,max=64"`
}

// TapResponse is the device wire format for tap outcomes. Only the fields
// relevant to the outcome are populated; the rest are omitted.
type TapResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// APIResponse is the envelope for the administrative API (/api/v1/*).
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata for administrative endpoints.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a structured error for administrative endpoints.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus reports service liveness and dependency connectivity.
type HealthStatus struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	LedgerConnected bool    `json:"ledger_connected"`
	CacheConnected  bool    `json:"cache_connected"`
	Uptime          float64 `json:"uptime_seconds"`
}
