// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package api implements the HTTP surface: the device-facing ingestion
// endpoint (POST /post_data) speaking the flat tap wire format, and the
// administrative endpoints (health, day listings, metrics) speaking the
// enveloped API format.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/attendsmart/internal/ledger"
	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/models"
	"github.com/tomtom215/attendsmart/internal/processor"
	"github.com/tomtom215/attendsmart/internal/registry"
	"github.com/tomtom215/attendsmart/internal/validation"
)

// Version is the service version reported by the health endpoint.
// Overridden at build time via -ldflags.
var Version = "dev"

// TapProcessor handles a tap event end to end.
type TapProcessor interface {
	Process(ctx context.Context, event models.TapEvent) processor.Outcome
}

// LedgerReader is the read-side ledger access used by admin endpoints.
type LedgerReader interface {
	Rows(ctx context.Context, p ledger.Partition) ([]models.LedgerRow, error)
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	processor    TapProcessor
	ledger       LedgerReader
	maxBodyBytes int64
	startTime    time.Time
}

// NewHandler creates the API handler set.
func NewHandler(proc TapProcessor, led LedgerReader, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 4 << 10
	}
	return &Handler{
		processor:    proc,
		ledger:       led,
		maxBodyBytes: maxBodyBytes,
		startTime:    time.Now(),
	}
}

// PostData handles POST /post_data, the device tap ingestion endpoint.
//
// Responses use the flat wire format devices expect:
//
//	200 {"status":"success","name":"..."}  tap recorded
//	200 {"status":"duplicate"}             slot already recorded
//	404 {"status":"not_found","message"}   badge absent from register
//	400 {"status":"error","message"}       malformed or invalid request
//	500 {"status":"error","message"}       backing store failure (generic
//	                                       message; detail is logged only)
func (h *Handler) PostData(w http.ResponseWriter, r *http.Request) {
	receivedAt := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req models.TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondTap(w, http.StatusBadRequest, models.TapResponse{
			Status:  "error",
			Message: "invalid request body",
		})
		return
	}

	// Normalize before validation so the badge rule sees canonical form.
	req.UID = registry.NormalizeBadgeID(req.UID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)

	if verr := validation.ValidateStruct(&req); verr != nil {
		respondTap(w, http.StatusBadRequest, models.TapResponse{
			Status:  "error",
			Message: verr.Error(),
		})
		return
	}

	event := models.TapEvent{
		ID:         uuid.NewString(),
		BadgeID:    req.UID,
		DeviceID:   req.DeviceID,
		ReceivedAt: receivedAt,
	}

	outcome := h.processor.Process(r.Context(), event)
	switch outcome.Kind {
	case processor.Success:
		respondTap(w, http.StatusOK, models.TapResponse{
			Status: "success",
			Name:   outcome.Name,
		})
	case processor.Duplicate:
		respondTap(w, http.StatusOK, models.TapResponse{
			Status: "duplicate",
		})
	case processor.NotFound:
		respondTap(w, http.StatusNotFound, models.TapResponse{
			Status:  "not_found",
			Message: fmt.Sprintf("UID %s not found in register", req.UID),
		})
	default:
		// Failure detail stays server-side; devices get a generic message.
		logging.Error().
			Err(outcome.Err).
			Str("event_id", event.ID).
			Str("uid", sanitizeLogValue(req.UID)).
			Str("device_id", sanitizeLogValue(req.DeviceID)).
			Msg("Tap processing failed")
		respondTap(w, http.StatusInternalServerError, models.TapResponse{
			Status:  "error",
			Message: "internal error",
		})
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := models.HealthStatus{
		Status:          "healthy",
		Version:         Version,
		LedgerConnected: true,
		CacheConnected:  true,
		Uptime:          time.Since(h.startTime).Seconds(),
	}

	status := http.StatusOK
	if err := h.ledger.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.LedgerConnected = false
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   health.Status,
		Data:     health,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// attendanceQuery carries the validated day-listing parameters.
type attendanceQuery struct {
	MonthYear string `validate:"required,max=32"`
	DeviceID  string `validate:"required,max=64"`
	Day       string `validate:"required,max=2"`
}

// Attendance handles GET /api/v1/attendance, listing one day partition.
// Query parameters: month_year ("March 2025"), device_id, day ("5").
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := attendanceQuery{
		MonthYear: strings.TrimSpace(r.URL.Query().Get("month_year")),
		DeviceID:  strings.TrimSpace(r.URL.Query().Get("device_id")),
		Day:       strings.TrimSpace(r.URL.Query().Get("day")),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	rows, err := h.ledger.Rows(r.Context(), ledger.Partition{
		MonthYear: q.MonthYear,
		DeviceID:  q.DeviceID,
		Day:       q.Day,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "LEDGER_ERROR", "failed to read attendance", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   rows,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}
