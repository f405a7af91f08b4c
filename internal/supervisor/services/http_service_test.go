// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockServer simulates *http.Server lifecycle.
type mockServer struct {
	listenErr   error
	shutdownErr error
	stopCh      chan struct{}
	shutdowns   int
}

func newMockServer() *mockServer {
	return &mockServer{stopCh: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return nil
}

func (m *mockServer) Shutdown(context.Context) error {
	m.shutdowns++
	close(m.stopCh)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
	if srv.shutdowns != 1 {
		t.Errorf("expected one shutdown call, got %d", srv.shutdowns)
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := newMockServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("expected listen error to propagate, got: %v", err)
	}
}

func TestHTTPServerServiceString(t *testing.T) {
	if got := NewHTTPServerService(newMockServer(), 0).String(); got != "http-server" {
		t.Errorf("unexpected name: %q", got)
	}
}
