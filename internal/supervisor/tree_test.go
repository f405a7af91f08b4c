// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/attendsmart/internal/logging"
)

// tickService counts Serve invocations and blocks until canceled.
type tickService struct {
	started atomic.Int32
}

func (s *tickService) Serve(ctx context.Context) error {
	s.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *tickService) String() string { return "tick" }

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.FailureDecay != 30.0 {
		t.Errorf("unexpected failure defaults: %+v", cfg)
	}
	if cfg.FailureBackoff != 15*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected timing defaults: %+v", cfg)
	}
}

func TestTreeRunsServices(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	dataSvc := &tickService{}
	apiSvc := &tickService{}
	tree.AddDataService(dataSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dataSvc.started.Load() > 0 && apiSvc.started.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if dataSvc.started.Load() == 0 || apiSvc.started.Load() == 0 {
		t.Fatal("expected both services to start")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
}

func TestTreeZeroConfigGetsDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("expected defaulted threshold, got %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected defaulted shutdown timeout, got %v", tree.config.ShutdownTimeout)
	}
}
