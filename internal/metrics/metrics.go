// ABOUTME: Prometheus registry for gateway metrics
// ABOUTME: Token usage counters labeled by user and model, client gauge

package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics owns the gateway's Prometheus registry and collectors.
type Metrics struct {
	registry *prometheus.Registry

	inputTokens      *prometheus.CounterVec
	outputTokens     *prometheus.CounterVec
	connectedClients prometheus.Gauge

	logger *slog.Logger
}

// New creates a Metrics with its own registry (no global state, so tests
// can build as many as they want).
func New(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		inputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "input_tokens",
			Help: "Prompt tokens consumed by model invocations.",
		}, []string{"user_id", "model_name"}),
		outputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "output_tokens",
			Help: "Completion tokens produced by model invocations.",
		}, []string{"user_id", "model_name"}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connected_clients",
			Help: "Open persistent chat channels.",
		}),
		logger: logger.With("component", "metrics"),
	}

	registry.MustRegister(m.inputTokens, m.outputTokens, m.connectedClients)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUsage increments the token counters for one model invocation.
// Failures must never reach the frame-delivery path: anything wrong with
// the increment is logged and dropped.
func (m *Metrics) RecordUsage(userID, modelName string, inputTokens, outputTokens int) {
	if inputTokens < 0 || outputTokens < 0 {
		m.logger.Warn("dropping negative usage increment",
			"user_id", userID,
			"model_name", modelName,
			"input_tokens", inputTokens,
			"output_tokens", outputTokens)
		return
	}
	m.inputTokens.WithLabelValues(userID, modelName).Add(float64(inputTokens))
	m.outputTokens.WithLabelValues(userID, modelName).Add(float64(outputTokens))
}

// ClientConnected tracks a persistent channel opening.
func (m *Metrics) ClientConnected() {
	m.connectedClients.Inc()
}

// ClientDisconnected tracks a persistent channel closing.
func (m *Metrics) ClientDisconnected() {
	m.connectedClients.Dec()
}

// InputTokens returns the current counter value for a label pair. Test
// helper; production reads go through the exposition endpoint.
func (m *Metrics) InputTokens(userID, modelName string) float64 {
	return counterValue(m.inputTokens, userID, modelName)
}

// OutputTokens returns the current counter value for a label pair.
func (m *Metrics) OutputTokens(userID, modelName string) float64 {
	return counterValue(m.outputTokens, userID, modelName)
}

func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
