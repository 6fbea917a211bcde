// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnDuration tracks full agent turn duration.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_turn_duration_seconds",
			Help:    "Agent turn duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	// TurnRoundTrips tracks reasoning/tool round-trips per turn.
	TurnRoundTrips = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_turn_round_trips",
			Help:    "Reasoning/tool round-trips per agent turn",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// ToolInvocationsTotal tracks tool invocations by tool and outcome.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Total tool invocations",
		},
		[]string{"tool", "status"},
	)

	// ToolDuration tracks tool invocation duration.
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_tool_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"tool"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// CheckpointWrites tracks checkpoint append duration.
	CheckpointWrites = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkpoint_write_duration_seconds",
			Help:    "Checkpoint append duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// ThreadsDeleted tracks deleted threads.
	ThreadsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoint_threads_deleted_total",
			Help: "Total threads deleted from the checkpoint store",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records metrics for a completed agent turn.
func RecordTurn(status string, duration float64) {
	TurnDuration.WithLabelValues(status).Observe(duration)
}

// RecordToolInvocation records metrics for one tool invocation.
func RecordToolInvocation(tool, status string, duration float64) {
	ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	ToolDuration.WithLabelValues(tool).Observe(duration)
}

// RecordLLMTokens records token usage for a model call.
func RecordLLMTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
