// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
		"ERROR":    zerolog.ErrorLevel,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestInitAndLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("badge", "AB12").Msg("tap accepted")

	out := buf.String()
	if !strings.Contains(out, `"badge":"AB12"`) {
		t.Errorf("expected structured field in output, got: %s", out)
	}
	if !strings.Contains(out, "tap accepted") {
		t.Errorf("expected message in output, got: %s", out)
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected captured output, got: %s", buf.String())
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger()
	slogger.Info("supervisor event", slog.String("service", "http-server"))

	out := buf.String()
	if !strings.Contains(out, "supervisor event") {
		t.Errorf("expected slog message routed through zerolog, got: %s", out)
	}
	if !strings.Contains(out, `"service":"http-server"`) {
		t.Errorf("expected slog attr routed through zerolog, got: %s", out)
	}
}

func TestSlogAdapterGroups(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger().WithGroup("suture").With(slog.Int("restarts", 2))
	slogger.Warn("service backoff")

	out := buf.String()
	if !strings.Contains(out, `"suture.restarts":2`) {
		t.Errorf("expected group-prefixed attr, got: %s", out)
	}
}
