package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "trellis").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the dispatch-duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "trellis",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the client runtime.
type metrics struct {
	messagesTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	protocolErrors   *prometheus.CounterVec
	renderNodes      prometheus.Histogram
	activeSessions   prometheus.Gauge
	transportErrors  *prometheus.CounterVec
	reconnectsTotal  prometheus.Counter
}

// globalMetrics is the singleton metrics instance, created on the first
// call to Prometheus(). Later calls reuse it regardless of their options,
// so the same metric families are never registered twice.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics registers the metric families with the configured registry.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_total",
			Help:        "Total inbound session messages dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Message dispatch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "protocol_errors_total",
			Help:        "Total protocol violations by message kind and reason",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "reason"}),

		renderNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "render_nodes",
			Help:        "Elements per rendered tree",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 10, 100, 1000, 10000},
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of open client sessions",
			ConstLabels: config.ConstLabels,
		}),

		transportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transport_errors_total",
			Help:        "Total transport failures by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total replacement sessions established after a failure",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus creates middleware that collects Prometheus metrics for every
// dispatched session message.
//
// Metrics collected:
//   - trellis_messages_total: Counter of dispatched messages by kind and status
//   - trellis_dispatch_duration_seconds: Histogram of dispatch duration by kind
//   - trellis_protocol_errors_total: Counter of protocol violations by kind and reason
//   - trellis_render_nodes: Histogram of elements per rendered tree
//   - trellis_active_sessions: Gauge of open sessions (via RecordSessionOpen/Close)
//   - trellis_transport_errors_total: Counter of transport failures (via RecordTransportError)
//   - trellis_reconnects_total: Counter of replacement sessions (via RecordReconnect)
//
// Example:
//
//	c := client.NewClient(tr,
//	    client.WithMiddleware(
//	        middleware.Prometheus(
//	            middleware.WithNamespace("myapp"),
//	        ),
//	    ),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) client.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Initialize metrics once
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next client.DispatchFunc) client.DispatchFunc {
		return func(msg protocol.Message) error {
			kind := messageKind(msg)

			start := time.Now()
			err := next(msg)
			duration := time.Since(start).Seconds()
			m.dispatchDuration.WithLabelValues(kind).Observe(duration)

			status := "success"
			if err != nil {
				status = "error"
				m.protocolErrors.WithLabelValues(kind, categorizeError(err)).Inc()
			}
			m.messagesTotal.WithLabelValues(kind, status).Inc()

			if r, ok := msg.(*protocol.Render); ok && err == nil && r.Tree != nil {
				m.renderNodes.Observe(float64(countNodes(r.Tree)))
			}

			return err
		}
	}
}

// messageKind returns the label value for a message, tolerating nil so a
// violating dispatch still gets counted.
func messageKind(msg protocol.Message) string {
	if msg == nil {
		return "unknown"
	}
	return string(msg.MessageKind())
}

// countNodes returns the number of elements in a tree.
func countNodes(tree *protocol.Element) int {
	n := 0
	tree.Walk(func(*protocol.Element) bool {
		n++
		return true
	})
	return n
}

// categorizeError returns a bounded label value for a dispatch error.
// This prevents high-cardinality labels from error messages.
func categorizeError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "handshake"):
		return "handshake"
	case strings.Contains(msg, "helloResponse in state"):
		return "handshake"
	case strings.Contains(msg, "unexpected inbound"):
		return "unexpected_kind"
	case strings.Contains(msg, "unknown message kind"):
		return "unknown_kind"
	case strings.Contains(msg, "malformed"):
		return "malformed"
	case strings.Contains(msg, "nil message"):
		return "nil_message"
	default:
		return "protocol"
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSessionOpen records a session being established. Call it from the
// embedding host when Connect succeeds.
func RecordSessionOpen() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Inc()
	}
}

// RecordSessionClose records a session ending, whether by Disconnect or by
// failure.
func RecordSessionClose() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
	}
}

// RecordTransportError records a transport failure by type, for example
// "dial", "decode" or "closed".
func RecordTransportError(errorType string) {
	if globalMetrics != nil {
		globalMetrics.transportErrors.WithLabelValues(errorType).Inc()
	}
}

// RecordReconnect records a replacement session being established after a
// failed one. Call it from the host's reconnect loop.
func RecordReconnect() {
	if globalMetrics != nil {
		globalMetrics.reconnectsTotal.Inc()
	}
}
