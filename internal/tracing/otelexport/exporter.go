package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/walletbridge/internal/tracing"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "walletbridge")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts request spans to OTel spans and exports them via OTLP.
// It implements tracing.SpanExporter.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "walletbridge"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("walletbridge"),
	}, nil
}

// ExportSpans converts request spans to OTel spans. Called by the Collector on flush.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.RequestSpan) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.RequestSpan) {
	_, span := e.tracer.Start(ctx, spanName(s),
		trace.WithTimestamp(s.Start),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(spanAttributes(s)...),
	)

	if s.Outcome == "success" {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, s.Outcome)
		if s.Error != "" {
			span.RecordError(fmt.Errorf("%s", s.Error))
		}
	}

	end := s.End
	if end.IsZero() {
		end = s.Start
	}
	span.End(trace.WithTimestamp(end))
}

func spanName(s tracing.RequestSpan) string {
	if s.Method == "" {
		return "session_request"
	}
	return "session_request " + s.Method
}

func spanAttributes(s tracing.RequestSpan) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("walletbridge.span_id", s.ID.String()),
		attribute.String("walletbridge.topic", s.Topic),
		attribute.Int64("rpc.jsonrpc.request_id", s.RequestID),
		attribute.String("walletbridge.outcome", s.Outcome),
	}
	if s.Method != "" {
		attrs = append(attrs, attribute.String("rpc.method", s.Method))
	}
	if s.Attempts > 0 {
		attrs = append(attrs, attribute.Int("walletbridge.attempts", s.Attempts))
	}
	if d := s.Duration(); d > 0 {
		attrs = append(attrs, attribute.Int64("walletbridge.duration_ms", d.Milliseconds()))
	}
	return attrs
}

// Shutdown gracefully shuts down the OTel exporter, flushing remaining spans.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
