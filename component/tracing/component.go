// Package tracing wires OpenTelemetry tracing and log export for the
// whole process: a tracer provider exporting spans via OTLP/HTTP, and a
// slog handler that mirrors log records to an OTLP log exporter. It also
// exposes WrapTransport/NewHTTPClient so outbound calls to the upstream
// FHIR server carry spans.
package tracing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the tracing component. If Endpoint is empty, the
// component is a no-op: it leaves the global slog default handler alone
// and tracer/meter providers unset, so local runs don't need a collector.
type Config struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port, no scheme).
	Endpoint string `koanf:"endpoint"`
	// Insecure disables TLS when talking to Endpoint.
	Insecure bool `koanf:"insecure"`
	// ServiceName identifies this process in exported telemetry.
	ServiceName string `koanf:"servicename"`
	// ServiceVersion is set by cmd.Start from the build version, not
	// read from configuration files.
	ServiceVersion string `koanf:"-"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		ServiceName: "fhir-access-gateway",
	}
}

// Component starts and stops the global tracer/log providers.
type Component struct {
	config Config

	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	previousLogger *slog.Logger
}

// New creates a tracing component from config. It does not start exporting
// until Start is called.
func New(config Config) *Component {
	return &Component{config: config}
}

func (c *Component) RegisterHttpHandlers(_, _ *http.ServeMux) {
	// Tracing has no HTTP surface of its own.
}

// Start configures the global OTel tracer provider and slog default
// handler. It is a no-op if Config.Endpoint is empty.
func (c *Component) Start() error {
	if c.config.Endpoint == "" {
		return nil
	}
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(c.config.ServiceName),
			semconv.ServiceVersion(c.config.ServiceVersion),
		),
	)
	if err != nil {
		return errors.Wrap(err, "failed to build OTel resource")
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.config.Endpoint)}
	logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(c.config.Endpoint)}
	if c.config.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return errors.Wrap(err, "failed to create OTLP trace exporter")
	}
	c.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(c.tracerProvider)

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		return errors.Wrap(err, "failed to create OTLP log exporter")
	}
	c.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	c.previousLogger = slog.Default()
	bridge := otelslog.NewLogger(c.config.ServiceName, otelslog.WithLoggerProvider(c.loggerProvider))
	slog.SetDefault(bridge)

	return nil
}

// Stop flushes and shuts down the tracer and log providers.
func (c *Component) Stop(ctx context.Context) error {
	if c.previousLogger != nil {
		slog.SetDefault(c.previousLogger)
	}
	var firstErr error
	if c.tracerProvider != nil {
		if err := c.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = errors.Wrap(err, "failed to shut down tracer provider")
		}
	}
	if c.loggerProvider != nil {
		if err := c.loggerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to shut down logger provider")
		}
	}
	return firstErr
}

// WrapTransport wraps base (http.DefaultTransport if nil) with an OTel
// span-producing transport, for outbound calls to the upstream FHIR server.
func WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// NewHTTPClient returns an http.Client whose transport produces spans for
// every outbound request.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: WrapTransport(nil)}
}

// WrapHandler wraps an inbound handler so incoming requests produce spans.
func WrapHandler(operation string, h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
