// Package middleware provides observability middleware for Trellis clients.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware
//
// Middleware wraps the client's dispatch path, so it observes every inbound
// session message after decoding and before the store is read back: renders,
// handshake completions, application errors and protocol violations. Decode
// failures never reach the chain; count those from the host via
// RecordTransportError.
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware traces every dispatched message. Spans are
// named after the message kind and carry the session id, tree size and
// navigation path where those apply.
//
//	c := client.NewClient(tr,
//	    client.WithMiddleware(
//	        middleware.OpenTelemetry(),
//	    ),
//	)
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithIncludePath(false),
//	    middleware.WithMessageFilter(func(msg protocol.Message) bool {
//	        return msg.MessageKind() == protocol.KindRender
//	    }),
//	)
//
// # Prometheus Metrics
//
// The Prometheus middleware collects metrics about the session:
//   - trellis_messages_total: Dispatched messages by kind and status
//   - trellis_dispatch_duration_seconds: Dispatch duration histogram
//   - trellis_protocol_errors_total: Protocol violations by kind and reason
//   - trellis_render_nodes: Elements per rendered tree
//
//	c := client.NewClient(tr,
//	    client.WithMiddleware(
//	        middleware.Prometheus(),
//	    ),
//	)
//
// Then expose metrics on a separate port:
//
//	http.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", nil)
//
// Both middlewares observe and never mutate: the message that reaches the
// dispatcher is the message the transport delivered.
package middleware
