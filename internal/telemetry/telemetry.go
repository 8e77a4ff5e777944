package telemetry

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	setupTimeout      = 5 * time.Second
	exportTimeout     = 3 * time.Second
	defaultSampleRate = 0.1
)

// Init wires the global tracer provider against the collector named by
// OTEL_EXPORTER_OTLP_ENDPOINT. The collector is optional: when the variable
// is unset, or the exporter cannot be built, playback comes up untraced and
// the returned shutdown is a no-op.
//
// OTEL_TRACE_SAMPLE_RATE picks the head sampling ratio and DEPLOY_ENV tags
// every span with the deployment environment.
func Init(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	endpoint := normalizeEndpoint(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return noop, nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	exporter, err := otlptracehttp.New(setupCtx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	)
	if err != nil {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(deployEnv()),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate()))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

// normalizeEndpoint strips the scheme; the OTLP HTTP exporter wants a bare
// host:port.
func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return endpoint
}

func deployEnv() string {
	if env := strings.TrimSpace(os.Getenv("DEPLOY_ENV")); env != "" {
		return env
	}
	return "development"
}

// sampleRate reads OTEL_TRACE_SAMPLE_RATE as a ratio in [0,1]. Anything
// unset or out of range falls back to the default.
func sampleRate() float64 {
	raw := strings.TrimSpace(os.Getenv("OTEL_TRACE_SAMPLE_RATE"))
	if raw == "" {
		return defaultSampleRate
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return defaultSampleRate
	}
	return ratio
}
