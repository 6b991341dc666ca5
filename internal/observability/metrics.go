// Package observability centralizes the gateway's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide set of Prometheus collectors. Built once at
// startup and threaded into the components that emit against it — never a
// package-level global.
type Metrics struct {
	// MCPInvocations counts tool invocations by tool, version, status (ok|error),
	// outcome ("success", or the failed invocation's error code such as
	// VALIDATION_ERROR or RATE_LIMIT),
	// and user_type (authenticated|admin).
	MCPInvocations *prometheus.CounterVec

	// MCPInvocationDuration measures invocation latency in seconds.
	MCPInvocationDuration *prometheus.HistogramVec

	// MCPTaskLifecycle counts task transitions by tool and event
	// (created|cancelled|completed|failed).
	MCPTaskLifecycle *prometheus.CounterVec

	// MCPCacheOps counts cache hits and misses by tool and outcome.
	MCPCacheOps *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// RateLimitRejections counts requests rejected by the sliding-window limiter.
	// Labels: scope (mcp|http), key_kind (user|ip)
	RateLimitRejections *prometheus.CounterVec
}

// NewMetrics constructs and registers the gateway's collectors against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		MCPInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_mcp_invocations_total",
				Help: "Total MCP tool invocations by tool, version, status, outcome, and user type",
			},
			[]string{"tool", "version", "status", "outcome", "user_type"},
		),
		MCPInvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_mcp_invocation_duration_seconds",
				Help:    "Duration of MCP tool invocations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tool", "version"},
		),
		MCPTaskLifecycle: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_mcp_task_events_total",
				Help: "Task lifecycle events by tool and event type",
			},
			[]string{"tool", "event"},
		),
		MCPCacheOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_mcp_cache_ops_total",
				Help: "MCP result cache operations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total HTTP API requests",
			},
			[]string{"method", "path", "status_code"},
		),
		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejections_total",
				Help: "Requests rejected by the sliding-window rate limiter",
			},
			[]string{"scope", "key_kind"},
		),
	}
}
