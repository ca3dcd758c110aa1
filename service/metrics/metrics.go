package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// The struct is passed explicitly to every component that records metrics.
// All Record helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Aggregator Metrics
	ultraCallsTotal   *prometheus.CounterVec
	ultraCallDuration *prometheus.HistogramVec

	// Swap Metrics
	swapsTotal   *prometheus.CounterVec
	swapDuration *prometheus.HistogramVec

	// Dispatcher Metrics
	dispatchActiveTasks *prometheus.GaugeVec
	dispatchTasksTotal  *prometheus.CounterVec

	// Balance polling Metrics
	balancePollsTotal       *prometheus.CounterVec
	balanceActivityDuration *prometheus.HistogramVec

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

		ultraCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultra_api_calls_total",
				Help: "Total number of aggregator API calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		ultraCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultra_api_call_duration_seconds",
				Help:    "Duration of aggregator API calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		swapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swaps_total",
				Help: "Total number of swaps by outcome (success, failed, unavailable, error)",
			},
			[]string{"outcome"},
		),
		swapDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_duration_seconds",
				Help:    "End to end swap duration from order to execute result",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		dispatchActiveTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatch_active_tasks",
				Help: "Number of dispatched tasks currently holding a pool slot",
			},
			[]string{"kind"},
		),
		dispatchTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_tasks_total",
				Help: "Total number of dispatch decisions by kind and result (started, rejected, replaced)",
			},
			[]string{"kind", "result"},
		),

		balancePollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_polls_total",
				Help: "Total number of scheduled balance polls",
			},
			[]string{"status"},
		),
		balanceActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balance_activity_duration_seconds",
				Help:    "Duration of balance polling activities in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"activity"},
		),

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
				Help: "Number of active console stream connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of console events sent over SSE",
			},
			[]string{"event_type"},
		),

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

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordUltraCall records an aggregator API call.
func (m *Metrics) RecordUltraCall(endpoint, status string, duration float64) {
	if m == nil {
		return
	}
	m.ultraCallsTotal.WithLabelValues(endpoint, status).Inc()
	m.ultraCallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordSwap records the outcome of one swap workflow run.
func (m *Metrics) RecordSwap(outcome string, duration float64) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(outcome).Inc()
	m.swapDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordDispatch records a dispatcher decision for a task of the given kind.
func (m *Metrics) RecordDispatch(kind, result string) {
	if m == nil {
		return
	}
	m.dispatchTasksTotal.WithLabelValues(kind, result).Inc()
}

// RecordActiveTask adjusts the number of running tasks of a kind.
func (m *Metrics) RecordActiveTask(kind string, delta float64) {
	if m == nil {
		return
	}
	m.dispatchActiveTasks.WithLabelValues(kind).Add(delta)
}

// RecordBalancePoll records a scheduled balance poll.
func (m *Metrics) RecordBalancePoll(status string) {
	if m == nil {
		return
	}
	m.balancePollsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	if m == nil {
		return
	}
	m.balanceActivityDuration.WithLabelValues(activity).Observe(duration)
}

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

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
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
