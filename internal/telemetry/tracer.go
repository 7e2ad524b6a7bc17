package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Trace exporters accepted by InitTracer.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// InitTracer installs a global tracer provider for serviceName and returns
// its shutdown function. ExporterNone leaves the default no-op provider in place.
func InitTracer(serviceName, exporterName string, logger *slog.Logger) (func(context.Context) error, error) {
	return initTracer(serviceName, exporterName, os.Stdout, logger)
}

func initTracer(serviceName, exporterName string, w io.Writer, logger *slog.Logger) (func(context.Context) error, error) {
	switch exporterName {
	case "", ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporterName)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", serviceName), slog.String("exporter", exporterName))
	return tp.Shutdown, nil
}
