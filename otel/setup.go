package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/botflow/config"
)

// Providers holds the SDK providers installed by Setup.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup builds tracer and meter providers and installs them globally. Spans
// are exported over OTLP/HTTP when an endpoint is configured; otherwise they
// stay in-process.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Providers, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "botflow"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, exporterOptions(endpoint, cfg.Insecure)...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(traceOpts...),
		Meter:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)),
	}
	otelapi.SetTracerProvider(p.Tracer)
	otelapi.SetMeterProvider(p.Meter)
	return p, nil
}

func exporterOptions(endpoint string, insecure bool) []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// Observer returns an Observer bound to the installed providers.
func (p *Providers) Observer() (*Observer, error) {
	return NewObserver(p.Meter.Meter("botflow/normalize"), p.Tracer.Tracer("botflow/normalize"))
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}
