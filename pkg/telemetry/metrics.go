package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the order lifecycle. All methods
// are safe on a nil or disabled receiver so callers never need to guard.
type Metrics struct {
	config MetricsConfig

	ordersByState   *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	activations     prometheus.Counter
	deactivations   prometheus.Counter
	sweeps          *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	connectorCalls  *prometheus.HistogramVec
	connectorErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
// When disabled, the returned instance is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		ordersByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "orders",
				Help:      "Current number of active orders per lifecycle state",
			},
			[]string{"state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Total number of order state transitions",
			},
			[]string{"from", "to"},
		),
		activations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_activations_total",
				Help:      "Total number of orders activated",
			},
		),
		deactivations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_deactivations_total",
				Help:      "Total number of orders deactivated",
			},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processor_sweeps_total",
				Help:      "Total number of completed processor sweeps per state",
			},
			[]string{"state"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "federation_notifications_total",
				Help:      "Total number of federation notifications by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		connectorCalls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connector_call_duration_seconds",
				Help:      "Duration of cloud connector calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "dispatch"},
		),
		connectorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connector_errors_total",
				Help:      "Total number of cloud connector errors by kind",
			},
			[]string{"operation", "kind"},
		),
	}

	registry.MustRegister(
		m.ordersByState,
		m.transitions,
		m.activations,
		m.deactivations,
		m.sweeps,
		m.notifications,
		m.connectorCalls,
		m.connectorErrors,
	)

	return m
}

// enabled reports whether the receiver records anything.
func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Handler returns the HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrderActivated records an activation into the given state.
func (m *Metrics) OrderActivated(state string) {
	if !m.enabled() {
		return
	}
	m.activations.Inc()
	m.ordersByState.WithLabelValues(state).Inc()
}

// OrderDeactivated records a deactivation out of the given state.
func (m *Metrics) OrderDeactivated(state string) {
	if !m.enabled() {
		return
	}
	m.deactivations.Inc()
	m.ordersByState.WithLabelValues(state).Dec()
}

// TransitionRecorded records a completed state transition.
func (m *Metrics) TransitionRecorded(from, to string) {
	if !m.enabled() {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.ordersByState.WithLabelValues(from).Dec()
	m.ordersByState.WithLabelValues(to).Inc()
}

// SweepCompleted records one exhausted sweep of a processor's state list.
func (m *Metrics) SweepCompleted(state string) {
	if !m.enabled() {
		return
	}
	m.sweeps.WithLabelValues(state).Inc()
}

// NotificationRecorded records an attempted federation notification.
func (m *Metrics) NotificationRecorded(event string, success bool) {
	if !m.enabled() {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

// ConnectorCall records one cloud connector call.
func (m *Metrics) ConnectorCall(operation, dispatch string, d time.Duration) {
	if !m.enabled() {
		return
	}
	m.connectorCalls.WithLabelValues(operation, dispatch).Observe(d.Seconds())
}

// ConnectorError records a failed cloud connector call by error kind.
func (m *Metrics) ConnectorError(operation, kind string) {
	if !m.enabled() {
		return
	}
	m.connectorErrors.WithLabelValues(operation, kind).Inc()
}
