package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("speak-app")
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		// Fallback to default tracer if not initialized
		globalTracer = otel.Tracer("speak-app")
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceGatewayFunction starts a new span for a generative gateway function.
func TraceGatewayFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "gateway", functionName, attributes...)
}

// TraceAuthFunction starts a new span for an auth service function.
func TraceAuthFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "auth", functionName, attributes...)
}

// TraceProblemFunction starts a new span for a problem service function.
func TraceProblemFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "problem", functionName, attributes...)
}

// TraceScoringFunction starts a new span for a scoring service function.
func TraceScoringFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "scoring", functionName, attributes...)
}

// TraceSpeechFunction starts a new span for a speech service function.
func TraceSpeechFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "speech", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TracePhraseFunction starts a new span for a phrase service function.
func TracePhraseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "phrase", functionName, attributes...)
}

// TraceCleanupFunction starts a new span for a cleanup service function.
func TraceCleanupFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "cleanup", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id string) attribute.KeyValue {
	return attribute.String("user.id", id)
}

// AttributeProblemID returns a tracing attribute for a problem ID.
func AttributeProblemID(id string) attribute.KeyValue {
	return attribute.String("problem.id", id)
}

// AttributeService returns a tracing attribute for an upstream service name.
func AttributeService(service string) attribute.KeyValue {
	return attribute.String("upstream.service", service)
}

// AttributeAttempt returns a tracing attribute for a retry attempt number.
func AttributeAttempt(attempt int) attribute.KeyValue {
	return attribute.Int("retry.attempt", attempt)
}

// AttributeLimit returns a tracing attribute for a pagination limit.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}

// AttributeOffset returns a tracing attribute for a pagination offset.
func AttributeOffset(offset int) attribute.KeyValue {
	return attribute.Int("offset", offset)
}
