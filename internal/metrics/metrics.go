// AttendSmart - Badge Attendance Ingestion and Ledger Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attendsmart

// Package metrics defines the Prometheus instrumentation for AttendSmart:
// tap processing outcomes and latency, ledger store operations, duplicate
// cache efficiency, notification delivery and API request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tap processing metrics
	TapsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taps_processed_total",
			Help: "Total number of processed tap events by outcome",
		},
		[]string{"outcome"}, // success, duplicate, not_found, dependency_error
	)

	TapProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tap_processing_duration_seconds",
			Help:    "End-to-end tap processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ledger store metrics
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // create_partition, find_row, append_row, set_field, rows
	)

	LedgerOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operation_errors_total",
			Help: "Total number of ledger store operation errors",
		},
		[]string{"operation"},
	)

	// Duplicate cache metrics
	DupCacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupcache_operations_total",
			Help: "Total number of duplicate cache operations",
		},
		[]string{"operation", "outcome"}, // operation: get, put, gc; outcome: hit, miss, success, failure
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification dispatch attempts",
		},
		[]string{"outcome"}, // success, failure, skipped
	)

	NotificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Duration of notification HTTP pushes in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)
