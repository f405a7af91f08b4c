// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package notifier pushes attendance notifications to per-person HTTP
// endpoints (ntfy-style topics). Delivery is best-effort and fully decoupled
// from tap processing: a slow or dead notification service must never fail,
// delay or roll back a ledger write. Failures are logged and counted, nothing
// more.
package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/attendsmart/internal/config"
	"github.com/tomtom215/attendsmart/internal/logging"
	"github.com/tomtom215/attendsmart/internal/metrics"
	"github.com/tomtom215/attendsmart/internal/models"
)

// maxMessageBytes bounds the notification body. Messages are one sentence;
// anything larger indicates a bug upstream.
const maxMessageBytes = 1024

// Notifier delivers an attendance status message for a person.
type Notifier interface {
	// Notify sends "name has arrived to/left site at HH:MM" to the person's
	// endpoint. Errors are advisory: callers log them, never propagate them
	// into request handling.
	Notify(ctx context.Context, person *models.Person, status models.Status, at time.Time) error
}

// Message renders the notification text for a status transition.
func Message(name, siteName string, status models.Status, at time.Time) string {
	verb := "arrived to"
	if status == models.StatusLeft {
		verb = "left"
	}
	return fmt.Sprintf("%s has %s %s at %s", name, verb, siteName, at.Format("15:04"))
}

// HTTP posts notifications over plain HTTP. Outbound throughput is bounded by
// a token bucket, and a circuit breaker stops hammering a dead notification
// service while taps keep flowing.
type HTTP struct {
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[any]
	siteName string
}

// NewHTTP creates an HTTP notifier from config.
func NewHTTP(cfg *config.NotifyConfig) *HTTP {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "notifier",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification circuit breaker state changed")
		},
	})

	return &HTTP{
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		breaker:  breaker,
		siteName: cfg.SiteName,
	}
}

// Notify delivers the message to the person's endpoint. A person without an
// endpoint is skipped silently; that is a configuration choice, not an error.
func (n *HTTP) Notify(ctx context.Context, person *models.Person, status models.Status, at time.Time) (err error) {
	if person == nil || person.NotifyEndpoint == "" {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.NotificationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("failure").Inc()
		} else {
			metrics.NotificationsTotal.WithLabelValues("success").Inc()
		}
	}()

	if err = n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification rate limit wait canceled: %w", err)
	}

	message := Message(person.DisplayName, n.siteName, status, at)
	if len(message) > maxMessageBytes {
		message = message[:maxMessageBytes]
	}

	_, err = n.breaker.Execute(func() (any, error) {
		return nil, n.post(ctx, person.NotifyEndpoint, message)
	})
	if err != nil {
		return fmt.Errorf("notification to %s failed: %w", redactEndpoint(person.NotifyEndpoint), err)
	}
	return nil
}

func (n *HTTP) post(ctx context.Context, endpoint, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// redactEndpoint reduces a notify URL to scheme://host for logging. Topic
// paths are per-person and should not land in logs.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "(invalid endpoint)"
	}
	return u.Scheme + "://" + u.Host
}

// Noop discards all notifications. Used when notifications are disabled and
// in tests.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, *models.Person, models.Status, time.Time) error {
	return nil
}
