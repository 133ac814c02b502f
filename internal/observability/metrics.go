package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus registration surface, exposed at
// GET /metrics. One instance is created at startup and threaded through the
// HTTP router, the ReAct loop, the tool executor, and the drift monitor.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestCounter  *prometheus.CounterVec

	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	HITLPauses *prometheus.CounterVec

	VerifierOutcomes *prometheus.CounterVec

	DriftAlertsOpen *prometheus.GaugeVec

	ActiveChatStreams prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus collectors. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sidecar_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sidecar_llm_request_duration_seconds",
				Help:    "Duration of LLM transport calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_llm_requests_total",
				Help: "Total number of LLM transport calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_llm_tokens_total",
				Help: "Total tokens used by provider, model, and kind (input|output)",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_tool_executions_total",
				Help: "Total tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sidecar_tool_execution_duration_seconds",
				Help:    "Duration of tool executor HTTP calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		HITLPauses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_hitl_pauses_total",
				Help: "Total HITL pauses issued by hitl level",
			},
			[]string{"hitl_level"},
		),
		VerifierOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_verifier_outcomes_total",
				Help: "Total verifier outcomes by tool and outcome",
			},
			[]string{"tool_name", "outcome"},
		),
		DriftAlertsOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sidecar_drift_alerts_open",
				Help: "Open drift alerts per tool (0 or 1)",
			},
			[]string{"tool_name"},
		),
		ActiveChatStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sidecar_active_chat_streams",
				Help: "Number of chat SSE streams currently open",
			},
		),
	}
}

// RecordHTTPRequest records one HTTP request's outcome.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordLLMRequest records one transport call's outcome and token usage.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one tool executor call.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordHITLPause records a pause decision for the given hitl level.
func (m *Metrics) RecordHITLPause(hitlLevel string) {
	m.HITLPauses.WithLabelValues(hitlLevel).Inc()
}

// RecordVerifierOutcome records a single verifier's outcome for a tool.
func (m *Metrics) RecordVerifierOutcome(toolName, outcome string) {
	m.VerifierOutcomes.WithLabelValues(toolName, outcome).Inc()
}

// SetDriftAlertOpen reflects whether a tool currently has an open drift alert.
func (m *Metrics) SetDriftAlertOpen(toolName string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.DriftAlertsOpen.WithLabelValues(toolName).Set(v)
}
