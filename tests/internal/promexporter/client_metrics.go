package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics holds all client-related Prometheus metrics
type ClientMetrics struct {
	// Operations
	opsTotal  *prometheus.CounterVec
	opsRate   prometheus.Gauge
	errorRate prometheus.Gauge

	// Circuit Breaker
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
	circuitRequests    *prometheus.GaugeVec
	circuitFailures    *prometheus.GaugeVec

	// Connection (one per server; no pooling — each Connection is a single
	// FIFO-queued socket, so "how many connections" collapses to dial and
	// reconnect counters rather than a pool's total/active/idle split)
	connDials      *prometheus.GaugeVec
	connReconnects *prometheus.GaugeVec
	connTimeouts   *prometheus.GaugeVec
	connFatal      *prometheus.GaugeVec
	connDialErrors *prometheus.GaugeVec
}

// NewClientMetrics creates and registers all client metrics
func NewClientMetrics(registry *prometheus.Registry) *ClientMetrics {
	m := &ClientMetrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memcache_operations_total",
				Help: "Total number of memcache operations",
			},
			[]string{"status"}, // success, failed
		),
		opsRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memcache_operations_per_second",
				Help: "Current operations per second",
			},
		),
		errorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memcache_error_rate",
				Help: "Current error rate (0.0 to 1.0)",
			},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"server"},
		),
		circuitTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memcache_circuit_breaker_transitions_total",
				Help: "Total circuit breaker state transitions",
			},
			[]string{"server", "from", "to"},
		),
		circuitRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_circuit_breaker_requests",
				Help: "Number of requests tracked by circuit breaker",
			},
			[]string{"server"},
		),
		circuitFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_circuit_breaker_failures",
				Help: "Circuit breaker failure counts",
			},
			[]string{"server", "type"}, // total, consecutive
		),
		connDials: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_connection_dials_total",
				Help: "Total successful dials (cumulative)",
			},
			[]string{"server"},
		),
		connReconnects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_connection_reconnects_total",
				Help: "Total reconnects after a broken pipe or framing loss (cumulative)",
			},
			[]string{"server"},
		),
		connTimeouts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_connection_timeouts_total",
				Help: "Total connect timeouts (cumulative)",
			},
			[]string{"server"},
		),
		connFatal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_connection_fatal_failures_total",
				Help: "Total fail-cascade events (cumulative)",
			},
			[]string{"server"},
		),
		connDialErrors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memcache_connection_dial_errors",
				Help: "Total dial failures returned as fatal: non-timeout errors and the timeout that reaches the consecutive limit (cumulative)",
			},
			[]string{"server"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.opsTotal,
		m.opsRate,
		m.errorRate,
		m.circuitState,
		m.circuitTransitions,
		m.circuitRequests,
		m.circuitFailures,
		m.connDials,
		m.connReconnects,
		m.connTimeouts,
		m.connFatal,
		m.connDialErrors,
	)

	return m
}

// RecordOperation records an operation result
func (m *ClientMetrics) RecordOperation(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.opsTotal.WithLabelValues(status).Inc()
}

// SetOperationRate sets the current ops/sec
func (m *ClientMetrics) SetOperationRate(rate float64) {
	m.opsRate.Set(rate)
}

// SetErrorRate sets the current error rate
func (m *ClientMetrics) SetErrorRate(rate float64) {
	m.errorRate.Set(rate)
}

// RecordCircuitBreakerTransition records a state change
func (m *ClientMetrics) RecordCircuitBreakerTransition(server, from, to string) {
	m.circuitTransitions.WithLabelValues(server, from, to).Inc()
}

// SetCircuitBreakerState sets the current state (0, 1, or 2)
func (m *ClientMetrics) SetCircuitBreakerState(server string, state int) {
	m.circuitState.WithLabelValues(server).Set(float64(state))
}

// SetCircuitBreakerRequests sets the number of requests tracked
func (m *ClientMetrics) SetCircuitBreakerRequests(server string, requests int) {
	m.circuitRequests.WithLabelValues(server).Set(float64(requests))
}

// SetCircuitBreakerFailures sets failure counts
func (m *ClientMetrics) SetCircuitBreakerFailures(server string, total, consecutive int) {
	m.circuitFailures.WithLabelValues(server, "total").Set(float64(total))
	m.circuitFailures.WithLabelValues(server, "consecutive").Set(float64(consecutive))
}

// SetConnectionStats updates the per-server connection counters from a
// memcache.ConnectionStats snapshot. Counters are cumulative, so this sets
// each series to the snapshot's running total rather than incrementing.
func (m *ClientMetrics) SetConnectionStats(server string, dials, reconnects, timeouts, fatal, dialErrors uint64) {
	m.connDials.WithLabelValues(server).Set(float64(dials))
	m.connReconnects.WithLabelValues(server).Set(float64(reconnects))
	m.connTimeouts.WithLabelValues(server).Set(float64(timeouts))
	m.connFatal.WithLabelValues(server).Set(float64(fatal))
	m.connDialErrors.WithLabelValues(server).Set(float64(dialErrors))
}
