package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"verifier/internal/logsink"
)

const serviceName = "verifier"

// setupTelemetry wires OTLP log and trace export when an endpoint is
// configured, and otherwise leaves plain stderr logging in place. The
// returned function flushes and shuts the providers down.
func setupTelemetry(ctx context.Context) func() {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func() {}
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		slog.Error("failed to build telemetry resource", "error", err)
		return func() {}
	}

	logExporter, err := otlploghttp.New(ctx)
	if err != nil {
		slog.Error("failed to create otlp log exporter", "error", err)
		return func() {}
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	traceExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		slog.Error("failed to create otlp trace exporter", "error", err)
		return func() {}
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tracerProvider)

	// Keep stderr output and ship the same records over OTLP.
	stderr := slog.Default().Handler()
	bridge := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(loggerProvider))
	slog.SetDefault(slog.New(logsink.NewMulti(stderr, bridge)))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("logger provider shutdown error", "error", err)
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer provider shutdown error", "error", err)
		}
	}
}
