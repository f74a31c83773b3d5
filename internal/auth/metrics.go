// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status labels for operation metrics.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// OperationsTotal counts SessionService operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authd_operations_total",
		Help: "Total number of authentication operations by operation and status",
	},
	[]string{"operation", "status"},
)

// OperationDuration observes SessionService operation latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authd_operation_duration_seconds",
		Help:    "Authentication operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// ExpiredSwept counts expired entries removed by the sweeper, by kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var ExpiredSwept = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authd_expired_swept_total",
		Help: "Total number of expired reset tokens and sessions removed by the sweeper",
	},
	[]string{"kind"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(ExpiredSwept)
}

func observe(operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case IsRejection(err):
		return StatusRejected
	default:
		return StatusError
	}
}
