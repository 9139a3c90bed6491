// Package otel provides OpenTelemetry integration for orchestration events.
package otel

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/pollen/core"
)

// TracingHandler translates orchestration events into OpenTelemetry spans.
// Each run gets a root span; each serviced tool call becomes a child span.
// Model calls are recorded as span events on the run span.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	toolSpans map[string]trace.Span      // runID:iteration -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from orchestration events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		toolSpans: make(map[string]trace.Span),
	}
}

// Handle processes an orchestration event and creates or ends spans
// accordingly. It implements core.EventHandler semantics.
func (h *TracingHandler) Handle(e core.Event) {
	switch e.Kind {
	case core.EventRunStarted:
		h.handleRunStarted(e)
	case core.EventModelCall, core.EventModelResponse:
		h.handleModelEvent(e)
	case core.EventToolCall:
		h.handleToolCall(e)
	case core.EventToolResult:
		h.handleToolResult(e)
	case core.EventToolFailed:
		h.handleToolFailed(e)
	case core.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleRunStarted creates a root span for the run.
func (h *TracingHandler) handleRunStarted(e core.Event) {
	ctx, span := h.tracer.Start(context.Background(), "run:"+e.RunID,
		trace.WithAttributes(
			attribute.String("pollen.run_id", e.RunID),
		),
		trace.WithTimestamp(e.Time),
	)

	if model, ok := e.Payload["model"].(string); ok && model != "" {
		span.SetAttributes(attribute.String("pollen.model", model))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

// handleModelEvent adds a span event on the run span for model.call and
// model.response events.
func (h *TracingHandler) handleModelEvent(e core.Event) {
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("pollen.iteration", e.Iteration),
	}
	if tokens, found := e.Payload["input_tokens"].(int); found {
		attrs = append(attrs, attribute.Int("pollen.input_tokens", tokens))
	}
	if tokens, found := e.Payload["output_tokens"].(int); found {
		attrs = append(attrs, attribute.Int("pollen.output_tokens", tokens))
	}

	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// handleToolCall creates a child span under the run span. One tool call is
// serviced per iteration, so runID:iteration identifies the span.
func (h *TracingHandler) handleToolCall(e core.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "tool:"+e.Tool,
		trace.WithAttributes(
			attribute.String("pollen.run_id", e.RunID),
			attribute.String("pollen.tool", e.Tool),
			attribute.Int("pollen.iteration", e.Iteration),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.toolSpans[toolSpanKey(e.RunID, e.Iteration)] = span
	h.mu.Unlock()
}

// handleToolResult ends the tool span with success status.
func (h *TracingHandler) handleToolResult(e core.Event) {
	key := toolSpanKey(e.RunID, e.Iteration)

	h.mu.Lock()
	span, ok := h.toolSpans[key]
	if ok {
		delete(h.toolSpans, key)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("pollen.duration", e.Elapsed.String()),
		)
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleToolFailed ends the tool span with error status.
func (h *TracingHandler) handleToolFailed(e core.Event) {
	key := toolSpanKey(e.RunID, e.Iteration)

	h.mu.Lock()
	span, ok := h.toolSpans[key]
	if ok {
		delete(h.toolSpans, key)
	}
	h.mu.Unlock()

	if ok {
		errMsg := "unknown error"
		if msg, found := e.Payload["error"].(string); found {
			errMsg = msg
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(
			spanError(errMsg),
			trace.WithTimestamp(e.Time),
		)
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleRunFinished ends the root run span.
func (h *TracingHandler) handleRunFinished(e core.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if ok {
		status, _ := e.Payload["status"].(string)

		span.SetAttributes(
			attribute.String("pollen.duration", e.Elapsed.String()),
			attribute.String("pollen.status", status),
			attribute.Int("pollen.iterations", e.Iteration),
		)

		if status == "failed" {
			errMsg := "run failed"
			if msg, found := e.Payload["error"].(string); found {
				errMsg = msg
			}
			span.SetStatus(codes.Error, errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.End(trace.WithTimestamp(e.Time))
	}
}

// ActiveToolSpanContext returns the SpanContext for the active tool span
// identified by runID and iteration. Returns an empty SpanContext if not
// found.
func (h *TracingHandler) ActiveToolSpanContext(runID string, iteration int) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.toolSpans[toolSpanKey(runID, iteration)]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

func toolSpanKey(runID string, iteration int) string {
	return runID + ":" + strconv.Itoa(iteration)
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }
