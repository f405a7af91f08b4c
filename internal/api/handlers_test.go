// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/attendsmart/internal/config"
	"github.com/tomtom215/attendsmart/internal/ledger"
	"github.com/tomtom215/attendsmart/internal/models"
	"github.com/tomtom215/attendsmart/internal/processor"
)

// fakeProcessor returns a canned outcome and records the event it saw.
type fakeProcessor struct {
	outcome processor.Outcome
	event   models.TapEvent
	called  bool
}

func (f *fakeProcessor) Process(_ context.Context, event models.TapEvent) processor.Outcome {
	f.called = true
	f.event = event
	return f.outcome
}

// fakeLedger serves canned rows for the admin endpoints.
type fakeLedger struct {
	rows    []models.LedgerRow
	rowsErr error
	pingErr error
	gotPart ledger.Partition
}

func (f *fakeLedger) Rows(_ context.Context, p ledger.Partition) ([]models.LedgerRow, error) {
	f.gotPart = p
	return f.rows, f.rowsErr
}

func (f *fakeLedger) Ping(context.Context) error { return f.pingErr }

func newTestRouter(proc TapProcessor, led LedgerReader) http.Handler {
	h := NewHandler(proc, led, 4<<10)
	sec := &config.SecurityConfig{RateLimitReqs: 1000, RateLimitWindow: 0, MaxBodyBytes: 4 << 10}
	return NewRouter(h, sec).Setup()
}

func postTap(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/post_data", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeTap(t *testing.T, rec *httptest.ResponseRecorder) models.TapResponse {
	t.Helper()
	var resp models.TapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestPostDataSuccess(t *testing.T) {
	proc := &fakeProcessor{outcome: processor.Outcome{Kind: processor.Success, Name: "Jane Doe", Status: models.StatusArrived}}
	handler := newTestRouter(proc, &fakeLedger{})

	rec := postTap(t, handler, `{"uid":"ab12","device_id":"gate-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	resp := decodeTap(t, rec)
	if resp.Status != "success" || resp.Name != "Jane Doe" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Message != "" {
		t.Errorf("success response must omit message, got %q", resp.Message)
	}

	// The handler normalizes before processing and stamps the event.
	if proc.event.BadgeID != "AB12" {
		t.Errorf("expected normalized badge id, got %q", proc.event.BadgeID)
	}
	if proc.event.ID == "" {
		t.Error("expected a generated event id")
	}
	if proc.event.ReceivedAt.IsZero() {
		t.Error("expected ReceivedAt to be stamped")
	}
}

func TestPostDataDuplicate(t *testing.T) {
	proc := &fakeProcessor{outcome: processor.Outcome{Kind: processor.Duplicate, Name: "Jane Doe", Status: models.StatusArrived}}
	handler := newTestRouter(proc, &fakeLedger{})

	rec := postTap(t, handler, `{"uid":"AB12","device_id":"gate-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeTap(t, rec)
	if resp.Status != "duplicate" {
		t.Errorf("expected duplicate status, got %q", resp.Status)
	}
	if resp.Name != "" || resp.Message != "" {
		t.Errorf("duplicate response must carry status only, got %+v", resp)
	}
}

func TestPostDataNotFound(t *testing.T) {
	proc := &fakeProcessor{outcome: processor.Outcome{Kind: processor.NotFound}}
	handler := newTestRouter(proc, &fakeLedger{})

	rec := postTap(t, handler, `{"uid":"zz99","device_id":"gate-1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	resp := decodeTap(t, rec)
	if resp.Status != "not_found" {
		t.Errorf("expected not_found status, got %q", resp.Status)
	}
	if !strings.Contains(resp.Message, "ZZ99") {
		t.Errorf("expected message to name the uid, got %q", resp.Message)
	}
}

func TestPostDataDependencyError(t *testing.T) {
	proc := &fakeProcessor{outcome: processor.Outcome{Kind: processor.DependencyError, Err: errors.New("duckdb exploded: /data/ledger.duckdb")}}
	handler := newTestRouter(proc, &fakeLedger{})

	rec := postTap(t, handler, `{"uid":"AB12","device_id":"gate-1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	resp := decodeTap(t, rec)
	if resp.Status != "error" {
		t.Errorf("expected error status, got %q", resp.Status)
	}
	// Internal detail must never reach the device.
	if strings.Contains(rec.Body.String(), "duckdb") {
		t.Errorf("response leaked internal error detail: %s", rec.Body.String())
	}
}

func TestPostDataValidation(t *testing.T) {
	cases := map[string]string{
		"malformed_json":   `{"uid": "AB12"`,
		"missing_uid":      `{"device_id":"gate-1"}`,
		"missing_device":   `{"uid":"AB12"}`,
		"empty_uid":        `{"uid":"   ","device_id":"gate-1"}`,
		"uid_too_long":     `{"uid":"` + strings.Repeat("A", 65) + `","device_id":"gate-1"}`,
		"uid_bad_charset":  `{"uid":"AB 12!","device_id":"gate-1"}`,
		"unparseable_body": `not json at all`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			proc := &fakeProcessor{}
			handler := newTestRouter(proc, &fakeLedger{})
			rec := postTap(t, handler, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			if proc.called {
				t.Error("invalid request must not reach the processor")
			}
			resp := decodeTap(t, rec)
			if resp.Status != "error" || resp.Message == "" {
				t.Errorf("expected error with message, got %+v", resp)
			}
		})
	}
}

func TestPostDataBodyLimit(t *testing.T) {
	proc := &fakeProcessor{}
	handler := newTestRouter(proc, &fakeLedger{})

	huge := `{"uid":"AB12","device_id":"` + strings.Repeat("x", 8<<10) + `"}`
	rec := postTap(t, handler, huge)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", rec.Code)
	}
	if proc.called {
		t.Error("oversized request must not reach the processor")
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		handler := newTestRouter(&fakeProcessor{}, &fakeLedger{})
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("ledger_down", func(t *testing.T) {
		handler := newTestRouter(&fakeProcessor{}, &fakeLedger{pingErr: errors.New("connection refused")})
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestAttendance(t *testing.T) {
	led := &fakeLedger{rows: []models.LedgerRow{
		{DisplayName: "Jane Doe", BadgeID: "AB12", ArrivalTime: "09:05", LeaveTime: "15:30"},
	}}
	handler := newTestRouter(&fakeProcessor{}, led)

	t.Run("lists_partition", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance?month_year=March+2025&device_id=gate-1&day=10", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if led.gotPart.MonthYear != "March 2025" || led.gotPart.DeviceID != "gate-1" || led.gotPart.Day != "10" {
			t.Errorf("unexpected partition: %+v", led.gotPart)
		}
		if !strings.Contains(rec.Body.String(), "Jane Doe") {
			t.Errorf("expected row in response, got %s", rec.Body.String())
		}
	})

	t.Run("missing_params", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance?device_id=gate-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("ledger_error", func(t *testing.T) {
		broken := &fakeLedger{rowsErr: errors.New("disk on fire")}
		handler := newTestRouter(&fakeProcessor{}, broken)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance?month_year=March+2025&device_id=gate-1&day=10", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&fakeProcessor{}, &fakeLedger{})
	req := httptest.NewRequest(http.MethodGet, "/post_data", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /post_data, got %d", rec.Code)
	}
}
