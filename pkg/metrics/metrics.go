// Package metrics holds the Prometheus collectors shared by the auth flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ilearn"

var (
	// LoginAttempts counts login outcomes: success, invalid_credentials, error.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	// TokensIssued counts signed tokens by kind.
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Signed tokens by kind.",
	}, []string{"kind"})

	// GateDecisions counts authorization gate results: authorized, unauthorized, forbidden.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "gate_decisions_total",
		Help:      "Authorization gate decisions by result.",
	}, []string{"result"})

	HashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "password",
		Name:      "hash_duration_seconds",
		Help:      "Time spent in argon2id by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"op"})
)
