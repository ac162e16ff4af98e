// Package otel records normalization runs as OpenTelemetry metrics and spans.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/botflow/graph"
	"github.com/petal-labs/botflow/normalize"
)

// Observer records one measurement set per normalization.
type Observer struct {
	tracer trace.Tracer

	runs     metric.Int64Counter
	repairs  metric.Int64Counter
	nodes    metric.Int64Histogram
	duration metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter and tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	runs, err := meter.Int64Counter(
		"botflow.normalize.runs",
		metric.WithDescription("Number of normalization runs"),
	)
	if err != nil {
		return nil, err
	}
	repairs, err := meter.Int64Counter(
		"botflow.normalize.repairs",
		metric.WithDescription("Number of diagnostics raised, by code"),
	)
	if err != nil {
		return nil, err
	}
	nodes, err := meter.Int64Histogram(
		"botflow.normalize.nodes",
		metric.WithDescription("Node count of normalized flows"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"botflow.normalize.duration",
		metric.WithDescription("Normalization latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:   tracer,
		runs:     runs,
		repairs:  repairs,
		nodes:    nodes,
		duration: duration,
	}, nil
}

// Normalize runs fn inside a "normalize" span and records its outcome.
// source names the caller, e.g. "normalize" or "generate". A nil Observer
// just calls fn.
func (o *Observer) Normalize(ctx context.Context, source string, fn func(context.Context) (*normalize.Result, error)) (*normalize.Result, error) {
	if o == nil {
		return fn(ctx)
	}

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "normalize", trace.WithAttributes(
			attribute.String("botflow.source", source),
		))
		defer span.End()
	}

	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		o.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", "failed"),
		))
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	o.record(ctx, source, res, elapsed)
	if span != nil {
		span.SetAttributes(
			attribute.Int("botflow.nodes", len(res.Flow.Nodes)),
			attribute.Int("botflow.connections", len(res.Flow.Connections)),
			attribute.Int("botflow.warnings", len(res.Validation.Warnings)),
			attribute.Int("botflow.errors", len(res.Validation.Errors)),
		)
		if res.OK() {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, "flow failed structural validation")
		}
	}
	return res, nil
}

func (o *Observer) record(ctx context.Context, source string, res *normalize.Result, elapsed time.Duration) {
	outcome := "valid"
	if !res.OK() {
		outcome = "invalid"
	}
	sourceAttr := attribute.String("source", source)

	o.runs.Add(ctx, 1, metric.WithAttributes(sourceAttr, attribute.String("outcome", outcome)))
	o.nodes.Record(ctx, int64(len(res.Flow.Nodes)), metric.WithAttributes(sourceAttr))
	o.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(sourceAttr))

	for _, d := range res.Diagnostics {
		if d.Severity == graph.SeverityInfo {
			continue
		}
		o.repairs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", d.Code),
			attribute.String("severity", d.Severity),
		))
	}
}
