package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// InstanceID identifies this process in traces and logs.
var InstanceID = uuid.NewString()

// InitTracer configures a simple stdout tracer suitable for local development.
// The returned function flushes and shuts the provider down.
func InitTracer(ctx context.Context, serviceName string, logger *zap.Logger) func(context.Context) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		logger.Warn("telemetry exporter init failed", zap.Error(err))
		return func(context.Context) error { return nil }
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			attribute.String("service.instance.id", InstanceID),
		)),
	)

	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled", zap.String("service", serviceName), zap.String("instance", InstanceID))

	return provider.Shutdown
}
