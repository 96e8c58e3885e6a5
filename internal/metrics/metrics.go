// Package metrics provides Prometheus instrumentation for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for CompletionsTotal.
const (
	OutcomeSuccess       = "success"
	OutcomeValidation    = "validation_error"
	OutcomeConfiguration = "configuration_error"
	OutcomeUpstream      = "upstream_error"
	OutcomeNetwork       = "network_error"
	OutcomeNoResponse    = "no_response"
	OutcomeRequest       = "request_error"
)

var (
	// CompletionLatency tracks outbound completion latency in seconds.
	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_proxy_completion_latency_seconds",
			Help:    "Latency of outbound completion calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "outcome"},
	)

	// CompletionsTotal counts completion calls by classified outcome.
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_completions_total",
			Help: "Total number of completion calls by outcome.",
		},
		[]string{"outcome"},
	)

	// UpstreamStatusTotal counts upstream error responses by status code.
	UpstreamStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_upstream_errors_total",
			Help: "Total number of upstream error responses by HTTP status.",
		},
		[]string{"status"},
	)

	// TokensTotal tracks total tokens reported by the upstream.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_tokens_total",
			Help: "Total number of tokens reported by the upstream.",
		},
		[]string{"model"},
	)

	// ActiveCompletions tracks the number of in-flight outbound calls.
	ActiveCompletions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llm_proxy_active_completions",
			Help: "Number of completion calls currently in flight.",
		},
	)

	// ConfigWritesTotal counts configuration mutations by operation and result.
	ConfigWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_config_writes_total",
			Help: "Total number of configuration writes by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// HTTPRequestsTotal counts requests served by the proxy's own HTTP surface.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_http_requests_total",
			Help: "Total number of HTTP requests served, by route and status code.",
		},
		[]string{"method", "route", "code"},
	)
)
