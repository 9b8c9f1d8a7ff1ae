// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for AuthOperations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	AuthOperations       *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	PasswordHashDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupomania_auth_operations_total",
				Help: "Auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupomania_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		PasswordHashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "groupomania_password_hash_duration_seconds",
			Help:    "Time spent hashing or verifying a password",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}

	reg.MustRegister(m.AuthOperations, m.HTTPRequests, m.PasswordHashDuration)
	return m
}

// RecordAuth counts one auth operation.
func (m *Metrics) RecordAuth(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHash records one password hash or verify computation. Its signature
// matches auth.WithHashObserver.
func (m *Metrics) ObserveHash(d time.Duration) {
	m.PasswordHashDuration.Observe(d.Seconds())
}
