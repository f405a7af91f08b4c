// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package validation

import (
	"strings"
	"testing"
)

type tapRequest struct {
	UID      string `validate:"required,max=64,badgeid"`
	DeviceID string `validate:"required,max=64"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid_request", func(t *testing.T) {
		req := tapRequest{UID: "AB12", DeviceID: "GATE1"}
		if verr := ValidateStruct(&req); verr != nil {
			t.Errorf("expected valid request, got: %v", verr)
		}
	})

	t.Run("missing_uid", func(t *testing.T) {
		req := tapRequest{DeviceID: "GATE1"}
		verr := ValidateStruct(&req)
		if verr == nil {
			t.Fatal("expected validation error for missing UID")
		}
		if !strings.Contains(verr.Error(), "UID is required") {
			t.Errorf("expected required message, got: %v", verr)
		}
	})

	t.Run("missing_both", func(t *testing.T) {
		verr := ValidateStruct(&tapRequest{})
		if verr == nil {
			t.Fatal("expected validation error")
		}
		if len(verr.Errors()) != 2 {
			t.Errorf("expected 2 field errors, got %d", len(verr.Errors()))
		}
	})

	t.Run("uid_too_long", func(t *testing.T) {
		req := tapRequest{UID: strings.Repeat("A", 65), DeviceID: "GATE1"}
		verr := ValidateStruct(&req)
		if verr == nil {
			t.Fatal("expected validation error for long UID")
		}
		if !strings.Contains(verr.Error(), "at most 64 characters") {
			t.Errorf("expected max message, got: %v", verr)
		}
	})

	t.Run("uid_bad_charset", func(t *testing.T) {
		req := tapRequest{UID: "AB 12;drop", DeviceID: "GATE1"}
		verr := ValidateStruct(&req)
		if verr == nil {
			t.Fatal("expected validation error for badge charset")
		}
		if verr.Errors()[0].Tag() != "badgeid" {
			t.Errorf("expected badgeid tag, got %s", verr.Errors()[0].Tag())
		}
	})

	t.Run("uid_with_dash_and_underscore", func(t *testing.T) {
		req := tapRequest{UID: "AB-12_3", DeviceID: "GATE1"}
		if verr := ValidateStruct(&req); verr != nil {
			t.Errorf("dash/underscore badge ids are valid, got: %v", verr)
		}
	})
}
