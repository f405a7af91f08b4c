// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/attendsmart/internal/models"
)

func writeRegister(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "register.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write register: %v", err)
	}
	return path
}

func TestFileRegistryLookup(t *testing.T) {
	path := writeRegister(t, "uid,name,notify_url\nAB12,Jane Doe,https://ntfy.sh/jane\nCD34,John Roe,https://ntfy.sh/john\n")
	reg := NewFileRegistry(path)
	ctx := context.Background()

	t.Run("exact_match", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "AB12")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if p.DisplayName != "Jane Doe" {
			t.Errorf("expected Jane Doe, got %q", p.DisplayName)
		}
		if p.NotifyEndpoint != "https://ntfy.sh/jane" {
			t.Errorf("expected notify endpoint, got %q", p.NotifyEndpoint)
		}
	})

	t.Run("case_insensitive", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "ab12")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if p.BadgeID != "AB12" {
			t.Errorf("expected normalized badge id, got %q", p.BadgeID)
		}
	})

	t.Run("whitespace_trimmed", func(t *testing.T) {
		if _, err := reg.Lookup(ctx, "  cd34 "); err != nil {
			t.Errorf("expected trimmed lookup to succeed, got: %v", err)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "ZZ99")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("empty_badge", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "   ")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for empty badge, got: %v", err)
		}
	})
}

func TestFileRegistryLegacyHeader(t *testing.T) {
	// The original register spreadsheet used "ntfy URL" as the column name.
	path := writeRegister(t, "UID,Name,ntfy URL\nAB12,Jane Doe,https://ntfy.sh/jane\n")
	p, err := NewFileRegistry(path).Lookup(context.Background(), "AB12")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if p.NotifyEndpoint != "https://ntfy.sh/jane" {
		t.Errorf("expected legacy header to map, got %q", p.NotifyEndpoint)
	}
}

func TestFileRegistryReloadsPerLookup(t *testing.T) {
	path := writeRegister(t, "uid,name,notify_url\nAB12,Jane Doe,\n")
	reg := NewFileRegistry(path)
	ctx := context.Background()

	if _, err := reg.Lookup(ctx, "EF56"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before edit, got: %v", err)
	}

	// External edit: next lookup must see the new row without a restart.
	content := "uid,name,notify_url\nAB12,Jane Doe,\nEF56,New Student,\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("rewrite register: %v", err)
	}

	p, err := reg.Lookup(ctx, "EF56")
	if err != nil {
		t.Fatalf("expected new row to be visible, got: %v", err)
	}
	if p.DisplayName != "New Student" {
		t.Errorf("expected New Student, got %q", p.DisplayName)
	}
}

func TestFileRegistryErrors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := NewFileRegistry("/nonexistent/register.csv").Lookup(context.Background(), "AB12")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("expected dependency error for missing file, got: %v", err)
		}
	})

	t.Run("missing_columns", func(t *testing.T) {
		path := writeRegister(t, "id,label\n1,x\n")
		_, err := NewFileRegistry(path).Lookup(context.Background(), "AB12")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("expected dependency error for bad header, got: %v", err)
		}
	})

	t.Run("canceled_context", func(t *testing.T) {
		path := writeRegister(t, "uid,name,notify_url\nAB12,Jane Doe,\n")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFileRegistry(path).Lookup(ctx, "AB12")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("expected cancellation error, got: %v", err)
		}
	})
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry(models.Person{BadgeID: "ab12", DisplayName: "Jane Doe"})

	p, err := reg.Lookup(context.Background(), "AB12")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if p.DisplayName != "Jane Doe" {
		t.Errorf("expected Jane Doe, got %q", p.DisplayName)
	}

	if _, err := reg.Lookup(context.Background(), "ZZ99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestNormalizeBadgeID(t *testing.T) {
	cases := map[string]string{
		"ab12":    "AB12",
		" Ab12 ":  "AB12",
		"AB12":    "AB12",
		"":        "",
		"  ":      "",
		"ab-12_c": "AB-12_C",
	}
	for input, want := range cases {
		if got := NormalizeBadgeID(input); got != want {
			t.Errorf("NormalizeBadgeID(%q) = %q, want %q", input, got, want)
		}
	}
}
