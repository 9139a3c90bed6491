package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/pollen/core"
)

// ObservedAdapter decorates a core.Adapter with OpenTelemetry instrumentation.
// Schema conversions are counted; tool executions additionally get a span and
// a latency histogram. The decorator satisfies the adapter protocol itself,
// so it can stand in anywhere the wrapped adapter is used.
type ObservedAdapter struct {
	inner  core.Adapter
	tracer trace.Tracer

	conversions metric.Int64Counter
	executions  metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewObservedAdapter wraps inner with instruments created from the given
// meter and spans from the given tracer. A nil tracer disables spans but
// keeps metrics.
func NewObservedAdapter(inner core.Adapter, meter metric.Meter, tracer trace.Tracer) (*ObservedAdapter, error) {
	conversions, err := meter.Int64Counter("pollen.adapter.conversions",
		metric.WithDescription("Number of tool schema conversions"),
	)
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter("pollen.adapter.executions",
		metric.WithDescription("Number of tool executions through the adapter"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("pollen.adapter.failures",
		metric.WithDescription("Number of failed tool executions through the adapter"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("pollen.adapter.latency",
		metric.WithDescription("Tool execution latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ObservedAdapter{
		inner:       inner,
		tracer:      tracer,
		conversions: conversions,
		executions:  executions,
		failures:    failures,
		latency:     latency,
	}, nil
}

// ConvertTool converts a single tool and counts the conversion.
func (o *ObservedAdapter) ConvertTool(t *core.Tool) (map[string]any, error) {
	schema, err := o.inner.ConvertTool(t)
	o.conversions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", "convert_tool"),
		attribute.Bool("success", err == nil),
	))
	return schema, err
}

// ConvertTools converts a tool collection and counts the conversion.
func (o *ObservedAdapter) ConvertTools(tools []*core.Tool) ([]map[string]any, error) {
	schemas, err := o.inner.ConvertTools(tools)
	o.conversions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", "convert_tools"),
		attribute.Bool("success", err == nil),
	))
	return schemas, err
}

// ExecuteTool runs the named tool through the wrapped adapter, recording a
// span, execution counters, and latency.
func (o *ObservedAdapter) ExecuteTool(ctx context.Context, name string, input map[string]any, tools *core.Toolset) (any, error) {
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "adapter.execute_tool",
			trace.WithAttributes(attribute.String("pollen.tool", name)),
		)
	}

	start := time.Now()
	out, err := o.inner.ExecuteTool(ctx, name, input, tools)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(
		attribute.String("tool", name),
		attribute.Bool("success", err == nil),
	)
	if err != nil {
		o.failures.Add(ctx, 1, attrs)
	} else {
		o.executions.Add(ctx, 1, attrs)
	}
	o.latency.Record(ctx, elapsed.Seconds(), attrs)

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	return out, err
}

// Unwrap returns the wrapped adapter.
func (o *ObservedAdapter) Unwrap() core.Adapter {
	return o.inner
}

var _ core.Adapter = (*ObservedAdapter)(nil)
