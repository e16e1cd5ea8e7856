package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// All Record* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal     *prometheus.CounterVec
	solanaRPCCallDuration   *prometheus.HistogramVec
	solanaRPCRateLimitWaits *prometheus.HistogramVec

	// Lifecycle Metrics
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	signatureRequests  *prometheus.CounterVec
	confirmationWaits  *prometheus.HistogramVec
	operationsInFlight prometheus.Gauge

	// Session Metrics
	balanceRefreshesTotal *prometheus.CounterVec
	sessionsConnected     prometheus.Gauge

	// Notification Metrics
	notificationsTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitWaits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the client-side RPC rate limiter",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint"},
		),

		// Lifecycle Metrics
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_operations_total",
				Help: "Total number of token operations by kind and outcome code",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "token_operation_duration_seconds",
				Help:    "Duration of token operations from submit to terminal state",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation", "outcome"},
		),
		signatureRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_signature_requests_total",
				Help: "Total number of signature requests sent to the wallet by result",
			},
			[]string{"operation", "result"},
		),
		confirmationWaits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_confirmation_wait_seconds",
				Help:    "Time spent waiting for submitted transactions to reach the requested commitment",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"operation", "status"},
		),
		operationsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "token_operations_in_flight",
				Help: "Number of token operations currently between submit and a terminal state",
			},
		),

		// Session Metrics
		balanceRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_balance_refreshes_total",
				Help: "Total number of native balance refreshes by status",
			},
			[]string{"status"},
		),
		sessionsConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "session_connected",
				Help: "1 when a wallet session is connected, 0 otherwise",
			},
		),

		// Notification Metrics
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of notifications emitted by kind and operation",
			},
			[]string{"kind", "operation"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitWait records time spent blocked on the client-side limiter.
func (m *Metrics) RecordRateLimitWait(endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitWaits.WithLabelValues(endpoint).Observe(duration)
}

// Lifecycle metric helpers

// RecordOperation records a token operation reaching a terminal state.
// Outcome is "succeeded" or the lowercase error code.
func (m *Metrics) RecordOperation(operation, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation, outcome).Observe(duration)
}

// RecordSignatureRequest records a wallet signature request result ("signed", "rejected", "error").
func (m *Metrics) RecordSignatureRequest(operation, result string) {
	if m == nil {
		return
	}
	m.signatureRequests.WithLabelValues(operation, result).Inc()
}

// RecordConfirmationWait records how long a confirmation wait took.
func (m *Metrics) RecordConfirmationWait(operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.confirmationWaits.WithLabelValues(operation, status).Observe(duration)
}

// OperationStarted increments the in-flight gauge.
func (m *Metrics) OperationStarted() {
	if m == nil {
		return
	}
	m.operationsInFlight.Inc()
}

// OperationFinished decrements the in-flight gauge.
func (m *Metrics) OperationFinished() {
	if m == nil {
		return
	}
	m.operationsInFlight.Dec()
}

// Session metric helpers

// RecordBalanceRefresh records a native balance refresh attempt.
func (m *Metrics) RecordBalanceRefresh(status string) {
	if m == nil {
		return
	}
	m.balanceRefreshesTotal.WithLabelValues(status).Inc()
}

// SetSessionConnected records whether a session is attached.
func (m *Metrics) SetSessionConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.sessionsConnected.Set(1)
		return
	}
	m.sessionsConnected.Set(0)
}

// RecordNotification records an emitted notification.
func (m *Metrics) RecordNotification(kind, operation string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, operation).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
