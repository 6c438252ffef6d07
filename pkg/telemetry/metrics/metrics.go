// Package metrics registers and serves the gateway's Prometheus metrics:
// attempt outcomes, fallback advances, credential refreshes, request
// latency, and token counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gatehouse"
	subsystem = "gateway"
)

// Metrics holds the gateway's Prometheus collectors, registered against one
// registry so tests can run isolated instances.
//
// Metrics:
//   - gatehouse_gateway_attempts_total: upstream attempts by provider and outcome
//   - gatehouse_gateway_fallback_advances_total: tier advances in the fallback chain
//   - gatehouse_gateway_credential_refreshes_total: credential refresh calls by provider
//   - gatehouse_gateway_request_duration_seconds: end-to-end request latency
//   - gatehouse_gateway_tokens_total: token usage by provider, model, and type
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal    *prometheus.CounterVec
	fallbackAdvances *prometheus.CounterVec
	refreshesTotal   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
}

// New creates and registers the gateway metrics. A nil registry creates a
// private one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "attempts_total",
				Help:      "Upstream execution attempts by provider and outcome classification",
			},
			[]string{"provider", "outcome"},
		),

		fallbackAdvances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fallback_advances_total",
				Help:      "Advances to the next model tier in a fallback chain",
			},
			[]string{"provider", "model"},
		),

		refreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "credential_refreshes_total",
				Help:      "Credential refresh calls by provider",
			},
			[]string{"provider"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
			},
			[]string{"dialect", "streamed", "status"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tokens_total",
				Help:      "Token usage by provider, model, and token type",
			},
			[]string{"provider", "model", "type"},
		),
	}

	registry.MustRegister(
		m.attemptsTotal,
		m.fallbackAdvances,
		m.refreshesTotal,
		m.requestDuration,
		m.tokensTotal,
	)

	return m
}

// RecordAttempt counts one classified upstream attempt.
func (m *Metrics) RecordAttempt(provider, outcome string) {
	m.attemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordFallbackAdvance counts one advance past a model tier.
func (m *Metrics) RecordFallbackAdvance(provider, model string) {
	m.fallbackAdvances.WithLabelValues(provider, model).Inc()
}

// RecordRefresh counts one credential refresh call.
func (m *Metrics) RecordRefresh(provider string) {
	m.refreshesTotal.WithLabelValues(provider).Inc()
}

// RecordRequest observes one completed request.
func (m *Metrics) RecordRequest(dialect string, streamed bool, status string, duration time.Duration) {
	streamedLabel := "false"
	if streamed {
		streamedLabel = "true"
	}
	m.requestDuration.WithLabelValues(dialect, streamedLabel, status).Observe(duration.Seconds())
}

// RecordTokens counts token usage for one request.
func (m *Metrics) RecordTokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		m.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}
