package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/pollen/core"
)

// MetricsHandler translates orchestration events into OpenTelemetry metrics.
// It records counters and histograms for tool executions, model calls, and
// run durations.
type MetricsHandler struct {
	toolExecutions metric.Int64Counter
	toolFailures   metric.Int64Counter
	toolDuration   metric.Float64Histogram
	modelCalls     metric.Int64Counter
	modelDuration  metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording orchestration metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	toolExec, err := meter.Int64Counter("pollen.tool.executions",
		metric.WithDescription("Number of completed tool executions"),
	)
	if err != nil {
		return nil, err
	}

	toolFail, err := meter.Int64Counter("pollen.tool.failures",
		metric.WithDescription("Number of failed tool executions"),
	)
	if err != nil {
		return nil, err
	}

	toolDur, err := meter.Float64Histogram("pollen.tool.duration",
		metric.WithDescription("Duration of tool execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	modelCalls, err := meter.Int64Counter("pollen.model.calls",
		metric.WithDescription("Number of model completion calls"),
	)
	if err != nil {
		return nil, err
	}

	modelDur, err := meter.Float64Histogram("pollen.model.duration",
		metric.WithDescription("Duration of model completion calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("pollen.run.duration",
		metric.WithDescription("Duration of orchestration runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		toolExecutions: toolExec,
		toolFailures:   toolFail,
		toolDuration:   toolDur,
		modelCalls:     modelCalls,
		modelDuration:  modelDur,
		runDuration:    runDur,
	}, nil
}

// Handle processes an orchestration event and records the appropriate
// metrics. It implements core.EventHandler semantics.
func (h *MetricsHandler) Handle(e core.Event) {
	switch e.Kind {
	case core.EventModelResponse:
		h.handleModelResponse(e)
	case core.EventToolResult:
		h.handleToolResult(e)
	case core.EventToolFailed:
		h.handleToolFailed(e)
	case core.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleModelResponse increments the call counter and records duration.
func (h *MetricsHandler) handleModelResponse(e core.Event) {
	ctx := context.Background()
	hasToolCalls, _ := e.Payload["has_tool_calls"].(bool)
	attrs := metric.WithAttributes(
		attribute.Bool("has_tool_calls", hasToolCalls),
	)
	h.modelCalls.Add(ctx, 1, attrs)
	h.modelDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

// handleToolResult increments the execution counter and records duration.
func (h *MetricsHandler) handleToolResult(e core.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("tool", e.Tool),
	)
	h.toolExecutions.Add(ctx, 1, attrs)
	h.toolDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

// handleToolFailed increments the failure counter.
func (h *MetricsHandler) handleToolFailed(e core.Event) {
	h.toolFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", e.Tool),
	))
}

// handleRunFinished records the run duration.
func (h *MetricsHandler) handleRunFinished(e core.Event) {
	status, _ := e.Payload["status"].(string)
	h.runDuration.Record(context.Background(), e.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("run_id", e.RunID),
		attribute.String("status", status),
	))
}
