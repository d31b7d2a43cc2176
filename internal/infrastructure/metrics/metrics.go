// Package metrics provides Prometheus metrics for the split matching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "splitmatch"

var (
	// SuggestionsServed tracks suggestion requests by match type and outcome
	SuggestionsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestions",
			Name:      "requests_total",
			Help:      "Total number of split suggestion requests by match type and outcome",
		},
		[]string{"match_type", "outcome"},
	)

	// SuggestionsReturned tracks how many suggestions each request produced
	SuggestionsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "suggestions",
			Name:      "returned",
			Help:      "Number of suggestions returned per request",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
	)

	// MatcherDuration tracks subset enumeration time
	MatcherDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "duration_seconds",
			Help:      "Duration of subset enumeration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"candidates"},
	)

	// TransitionsTotal tracks split match lifecycle operations by outcome
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "split_matches",
			Name:      "transitions_total",
			Help:      "Total number of split match operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// ConfirmRetries tracks retried confirmation attempts
	ConfirmRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "retries_total",
			Help:      "Total number of confirmation attempts retried after a transient conflict",
		},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method"},
	)
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeEmpty    = "empty"
	OutcomeConflict = "conflict"
	OutcomeStale    = "stale"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
)

// RecordSuggestion records a suggestion request metric
func RecordSuggestion(matchType, outcome string, returned int) {
	SuggestionsServed.WithLabelValues(matchType, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeEmpty {
		SuggestionsReturned.Observe(float64(returned))
	}
}

// RecordMatcherRun records subset enumeration time bucketed by pool size
func RecordMatcherRun(candidates int, durationSeconds float64) {
	MatcherDuration.WithLabelValues(poolSizeLabel(candidates)).Observe(durationSeconds)
}

// RecordTransition records a split match operation metric
func RecordTransition(operation, outcome string) {
	TransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordConfirmRetry records a retried confirmation attempt
func RecordConfirmRetry() {
	ConfirmRetries.Inc()
}

// RecordHTTPRequest records an inbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

func poolSizeLabel(n int) string {
	switch {
	case n <= 5:
		return "0-5"
	case n <= 10:
		return "6-10"
	case n <= 15:
		return "11-15"
	default:
		return "16+"
	}
}
