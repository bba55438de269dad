// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
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
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Actor Runtime Metrics
	ActorMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actor_messages_total",
			Help: "Total number of mailbox messages handled",
		},
		[]string{"actor", "kind"}, // kind: "cast", "call"
	)

	ActorMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actor_messages_dropped_total",
			Help: "Messages received after cancellation and dropped unhandled",
		},
		[]string{"actor"},
	)

	ActorMailboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "actor_mailbox_depth",
			Help: "Messages waiting in the mailbox when the last one was received",
		},
		[]string{"actor"},
	)

	ActorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actor_failures_total",
			Help: "Actors stopped by a fatal handler error or panic",
		},
		[]string{"actor"},
	)

	// Rule Server Metrics
	RuleReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_reloads_total",
			Help: "Reload pipeline outcomes",
		},
		[]string{"result"}, // adopted, stale, discarded, failed, rejected
	)

	RuleReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rules_reload_duration_seconds",
			Help:    "Time to read and index the rules file",
			Buckets: prometheus.DefBuckets,
		},
	)

	RuleSnapshotTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rules_snapshot_timestamp_seconds",
			Help: "Checkpoint timestamp of the adopted snapshot (unix seconds)",
		},
	)

	RuleSnapshotAntecedents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rules_snapshot_antecedents",
			Help: "Distinct antecedents in the adopted snapshot",
		},
	)

	RuleQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_queries_total",
			Help: "Recommendation queries by outcome",
		},
		[]string{"result"}, // served, deferred, failed
	)

	RuleQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rules_query_duration_seconds",
			Help:    "Time spent in the query engine",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	// File Watcher Metrics
	WatcherHintsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_hints_total",
			Help: "Change hints forwarded to the rule server",
		},
	)

	WatcherInstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_installs_total",
			Help: "Watch installation attempts by outcome",
		},
		[]string{"result"}, // success, failure
	)

	WatcherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_errors_total",
			Help: "Runtime errors reported by the OS watch",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected, excluded
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// Reload outcome labels.
const (
	ReloadAdopted   = "adopted"
	ReloadStale     = "stale"
	ReloadDiscarded = "discarded"
	ReloadFailed    = "failed"
	ReloadRejected  = "rejected"
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordActorMessage counts a handled message and samples the mailbox depth.
func RecordActorMessage(actor, kind string, depth int) {
	ActorMessagesTotal.WithLabelValues(actor, kind).Inc()
	ActorMailboxDepth.WithLabelValues(actor).Set(float64(depth))
}

// RecordActorDrop counts a message dropped because cancellation won.
func RecordActorDrop(actor string) {
	ActorMessagesDropped.WithLabelValues(actor).Inc()
}

// RecordActorFailure counts an actor stopped by a fatal error.
func RecordActorFailure(actor string) {
	ActorFailures.WithLabelValues(actor).Inc()
}

// RecordReload counts one reload pipeline outcome.
func RecordReload(result string) {
	RuleReloadsTotal.WithLabelValues(result).Inc()
}

// RecordSnapshotAdopted publishes the gauges for a newly adopted snapshot.
func RecordSnapshotAdopted(timestampNanos int64, antecedents int) {
	RuleSnapshotTimestamp.Set(float64(timestampNanos) / float64(time.Second))
	RuleSnapshotAntecedents.Set(float64(antecedents))
	RecordReload(ReloadAdopted)
}

// RecordQuery records a query outcome; duration is only observed when served.
func RecordQuery(result string, duration time.Duration) {
	RuleQueriesTotal.WithLabelValues(result).Inc()
	if result == "served" {
		RuleQueryDuration.Observe(duration.Seconds())
	}
}

// RecordWatchInstall records a watch installation attempt.
func RecordWatchInstall(err error) {
	if err != nil {
		WatcherInstallsTotal.WithLabelValues("failure").Inc()
		return
	}
	WatcherInstallsTotal.WithLabelValues("success").Inc()
}
