package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OtlpConnConfig describes where one signal is exported to. When both
// endpoints are empty the signal is not exported at all.
type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (c OtlpConnConfig) enabled() bool {
	return c.GrpcEndpoint != "" || c.HttpEndpoint != ""
}

func (c OtlpConnConfig) protocol() string {
	if c.GrpcEndpoint != "" {
		return "grpc"
	}
	return "http"
}

func (c OtlpConnConfig) logInit(signal string) {
	endpoint := c.HttpEndpoint
	if c.GrpcEndpoint != "" {
		endpoint = c.GrpcEndpoint
	}
	slog.Info(
		"otlp exporter initialized",
		"signal", signal,
		"type", c.protocol(),
		"endpoint", endpoint,
		"headers", len(c.Headers) > 0,
	)
}

type OtlpConfig struct {
	Traces  OtlpConnConfig `json:"traces"`
	Metrics OtlpConnConfig `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
	// MetricInterval is how often metrics are pushed, in seconds (default 15)
	MetricInterval int `json:"metric_interval"`
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, config Config) (*trace.TracerProvider, error) {
	opts := []trace.TracerProviderOption{trace.WithResource(r)}

	conn := config.Otlp.Traces
	if conn.enabled() {
		exportCtx, cancel := context.WithTimeout(ctx, time.Second*3)
		defer cancel()

		var exporter trace.SpanExporter
		var err error
		switch conn.protocol() {
		case "grpc":
			exporter, err = otlptracegrpc.New(
				exportCtx,
				otlptracegrpc.WithEndpointURL(conn.GrpcEndpoint),
				otlptracegrpc.WithHeaders(conn.Headers),
			)
		default:
			exporter, err = otlptracehttp.New(
				exportCtx,
				otlptracehttp.WithEndpointURL(conn.HttpEndpoint),
				otlptracehttp.WithHeaders(conn.Headers),
			)
		}
		if err != nil {
			return nil, err
		}
		conn.logInit("traces")
		opts = append(opts, trace.WithBatcher(exporter))
	}

	return trace.NewTracerProvider(opts...), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, config Config) (*metric.MeterProvider, error) {
	opts := []metric.Option{metric.WithResource(r)}

	conn := config.Otlp.Metrics
	if conn.enabled() {
		exportCtx, cancel := context.WithTimeout(ctx, time.Second*3)
		defer cancel()

		var exporter metric.Exporter
		var err error
		switch conn.protocol() {
		case "grpc":
			exporter, err = otlpmetricgrpc.New(
				exportCtx,
				otlpmetricgrpc.WithEndpointURL(conn.GrpcEndpoint),
				otlpmetricgrpc.WithHeaders(conn.Headers),
			)
		default:
			exporter, err = otlpmetrichttp.New(
				exportCtx,
				otlpmetrichttp.WithEndpointURL(conn.HttpEndpoint),
				otlpmetrichttp.WithHeaders(conn.Headers),
			)
		}
		if err != nil {
			return nil, err
		}
		conn.logInit("metrics")

		interval := time.Duration(config.MetricInterval) * time.Second
		if interval <= 0 {
			interval = 15 * time.Second
		}
		opts = append(opts, metric.WithReader(
			metric.NewPeriodicReader(exporter, metric.WithInterval(interval)),
		))
	}

	return metric.NewMeterProvider(opts...), nil
}
