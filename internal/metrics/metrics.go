// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)

	// Remote API metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Remote API call latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Remote API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// Login metrics
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Completed callback attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Discovery metrics
	CandidatesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_candidates_served_total",
			Help: "Candidates returned to clients by discovery mode",
		},
		[]string{"mode"},
	)

	// Caption metrics
	CaptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caption_generations_total",
			Help: "Caption requests by outcome (generated or fallback)",
		},
		[]string{"outcome"},
	)
)

// Outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeDenied      = "denied"
	OutcomeGenerated   = "generated"
	OutcomeFallback    = "fallback"
)
