package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Default tracer name for Trellis clients.
const defaultTracerName = "trellis"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "trellis").
	TracerName string

	// IncludePath includes server-driven navigation paths in traces.
	// Paths may encode user activity - enabled by default, disable for
	// privacy-sensitive deployments.
	IncludePath bool

	// Filter determines which messages to trace.
	// Return true to trace the message, false to skip.
	// If nil, all messages are traced.
	Filter func(msg protocol.Message) bool

	// AttributeExtractor extracts custom attributes from the message.
	// Called for each traced message.
	AttributeExtractor func(msg protocol.Message) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludePath enables/disables including navigation paths in traces.
func WithIncludePath(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePath = include
	}
}

// WithMessageFilter sets a filter function for messages.
func WithMessageFilter(filter func(msg protocol.Message) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(msg protocol.Message) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:  defaultTracerName,
		IncludePath: true,
		Filter:      nil,
	}
}

// OpenTelemetry creates middleware that traces every dispatched session
// message.
//
// The middleware:
//   - Creates a span per message, named after the message kind
//   - Records the tree size and root type for renders
//   - Records protocol violations as span errors and sets span status
//
// Messages arrive over a transport that carries no trace propagation, so
// each span starts a new trace.
//
// Example:
//
//	c := client.NewClient(tr,
//	    client.WithMiddleware(
//	        middleware.OpenTelemetry(
//	            middleware.WithTracerName("my-app"),
//	        ),
//	    ),
//	)
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in your main() before connecting:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	    sdktrace.WithResource(resource.NewWithAttributes(
//	        semconv.SchemaURL,
//	        semconv.ServiceName("my-app"),
//	    )),
//	)
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) client.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	return func(next client.DispatchFunc) client.DispatchFunc {
		return func(msg protocol.Message) error {
			// Apply filter if configured
			if config.Filter != nil && !config.Filter(msg) {
				return next(msg)
			}

			attrs := []attribute.KeyValue{
				attribute.String("trellis.kind", messageKind(msg)),
			}

			switch m := msg.(type) {
			case *protocol.HelloResponse:
				attrs = append(attrs,
					attribute.String("trellis.session_id", m.SessionID),
					attribute.String("trellis.server_version", m.ServerVersion),
				)
			case *protocol.Render:
				if m.Tree != nil {
					attrs = append(attrs,
						attribute.Int("trellis.tree_nodes", countNodes(m.Tree)),
						attribute.String("trellis.tree_root", m.Tree.Type),
					)
					if config.IncludePath {
						if path, ok := m.Tree.Props[protocol.NavigateProp].(string); ok && path != "" {
							attrs = append(attrs, attribute.String("trellis.path", path))
						}
					}
				}
			case *protocol.ErrorMessage:
				attrs = append(attrs, attribute.String("trellis.error_message", m.Message))
			}

			// Add custom attributes
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(msg)...)
			}

			_, span := config.tracer.Start(
				context.Background(),
				formatSpanName(msg),
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(attrs...),
				trace.WithTimestamp(time.Now()),
			)
			defer span.End()

			err := next(msg)

			// Record result
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}

			return err
		}
	}
}

// formatSpanName creates a span name from the message kind.
func formatSpanName(msg protocol.Message) string {
	return "trellis." + messageKind(msg)
}
