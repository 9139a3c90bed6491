package otel_test

import (
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petal-labs/pollen/core"
	pollenotel "github.com/petal-labs/pollen/otel"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func hasAttribute(stub tracetest.SpanStub, key, value string) bool {
	for _, attr := range stub.Attributes {
		if string(attr.Key) == key && attr.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestTracingHandler_RunStartedCreatesRootSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	h.Handle(core.Event{
		Kind:  core.EventRunStarted,
		RunID: "run-1",
		Time:  now,
		Payload: map[string]any{
			"model": "gpt-4o",
			"tools": 2,
		},
	})

	// Verify active run span context is valid.
	sc := h.ActiveRunSpanContext("run-1")
	if !sc.IsValid() {
		t.Fatal("expected valid run span context after run.started")
	}

	// End the run to flush the span.
	h.Handle(core.Event{
		Kind:    core.EventRunFinished,
		RunID:   "run-1",
		Time:    now.Add(100 * time.Millisecond),
		Elapsed: 100 * time.Millisecond,
		Payload: map[string]any{"status": "completed", "state": "DONE"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	runSpan := spans[0]
	if runSpan.Name != "run:run-1" {
		t.Errorf("expected span name 'run:run-1', got %q", runSpan.Name)
	}
	if !hasAttribute(runSpan, "pollen.run_id", "run-1") {
		t.Error("expected pollen.run_id attribute on run span")
	}
	if !hasAttribute(runSpan, "pollen.model", "gpt-4o") {
		t.Error("expected pollen.model attribute on run span")
	}
	if runSpan.Status.Code != otelcodes.Ok {
		t.Errorf("expected Ok status, got %v", runSpan.Status.Code)
	}
}

func TestTracingHandler_ToolCallCreatesChildSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	h.Handle(core.Event{
		Kind:    core.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"model": "gpt-4o"},
	})
	h.Handle(core.Event{
		Kind:      core.EventToolCall,
		RunID:     "run-1",
		Tool:      "search",
		Iteration: 1,
		Time:      now.Add(10 * time.Millisecond),
	})

	runSC := h.ActiveRunSpanContext("run-1")
	toolSC := h.ActiveToolSpanContext("run-1", 1)
	if !toolSC.IsValid() {
		t.Fatal("expected valid tool span context after tool.call")
	}
	if toolSC.SpanID() == runSC.SpanID() {
		t.Error("tool span should differ from run span")
	}

	h.Handle(core.Event{
		Kind:      core.EventToolResult,
		RunID:     "run-1",
		Tool:      "search",
		Iteration: 1,
		Time:      now.Add(50 * time.Millisecond),
		Elapsed:   40 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}

	toolSpan := spans[0]
	if toolSpan.Name != "tool:search" {
		t.Errorf("expected span name 'tool:search', got %q", toolSpan.Name)
	}
	if toolSpan.Parent.SpanID() != runSC.SpanID() {
		t.Error("tool span should be a child of the run span")
	}
	if toolSpan.SpanContext.TraceID() != runSC.TraceID() {
		t.Error("tool span should share the run trace")
	}
	if !hasAttribute(toolSpan, "pollen.tool", "search") {
		t.Error("expected pollen.tool attribute on tool span")
	}
	if toolSpan.Status.Code != otelcodes.Ok {
		t.Errorf("expected Ok status, got %v", toolSpan.Status.Code)
	}

	// The tool span is no longer active after tool.result.
	if h.ActiveToolSpanContext("run-1", 1).IsValid() {
		t.Error("tool span context should be cleared after tool.result")
	}
}

func TestTracingHandler_ToolFailedSetsErrorStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	h.Handle(core.Event{
		Kind:    core.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{},
	})
	h.Handle(core.Event{
		Kind:      core.EventToolCall,
		RunID:     "run-1",
		Tool:      "search",
		Iteration: 1,
		Time:      now.Add(10 * time.Millisecond),
	})
	h.Handle(core.Event{
		Kind:      core.EventToolFailed,
		RunID:     "run-1",
		Tool:      "search",
		Iteration: 1,
		Time:      now.Add(20 * time.Millisecond),
		Elapsed:   10 * time.Millisecond,
		Payload:   map[string]any{"error": "tool not found"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}

	toolSpan := spans[0]
	if toolSpan.Status.Code != otelcodes.Error {
		t.Errorf("expected Error status, got %v", toolSpan.Status.Code)
	}
	if toolSpan.Status.Description != "tool not found" {
		t.Errorf("expected error description, got %q", toolSpan.Status.Description)
	}

	// RecordError attaches an exception event.
	foundException := false
	for _, ev := range toolSpan.Events {
		if ev.Name == "exception" {
			foundException = true
		}
	}
	if !foundException {
		t.Error("expected exception event on failed tool span")
	}
}

func TestTracingHandler_ModelEventsRecordedOnRunSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	h.Handle(core.Event{
		Kind:    core.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"model": "gpt-4o"},
	})
	h.Handle(core.Event{
		Kind:      core.EventModelCall,
		RunID:     "run-1",
		Iteration: 1,
		Time:      now.Add(1 * time.Millisecond),
		Payload:   map[string]any{"messages": 1},
	})
	h.Handle(core.Event{
		Kind:      core.EventModelResponse,
		RunID:     "run-1",
		Iteration: 1,
		Time:      now.Add(80 * time.Millisecond),
		Elapsed:   79 * time.Millisecond,
		Payload:   map[string]any{"has_tool_calls": false, "input_tokens": 12, "output_tokens": 4},
	})
	h.Handle(core.Event{
		Kind:    core.EventRunFinished,
		RunID:   "run-1",
		Time:    now.Add(100 * time.Millisecond),
		Elapsed: 100 * time.Millisecond,
		Payload: map[string]any{"status": "completed", "state": "DONE"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	runSpan := spans[0]
	if len(runSpan.Events) != 2 {
		t.Fatalf("expected 2 span events, got %d", len(runSpan.Events))
	}
	if runSpan.Events[0].Name != "model.call" {
		t.Errorf("first event = %q, want model.call", runSpan.Events[0].Name)
	}
	if runSpan.Events[1].Name != "model.response" {
		t.Errorf("second event = %q, want model.response", runSpan.Events[1].Name)
	}

	tokensFound := false
	for _, attr := range runSpan.Events[1].Attributes {
		if string(attr.Key) == "pollen.input_tokens" && attr.Value.AsInt64() == 12 {
			tokensFound = true
		}
	}
	if !tokensFound {
		t.Error("expected pollen.input_tokens attribute on model.response event")
	}
}

func TestTracingHandler_RunFinishedFailedStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	h.Handle(core.Event{
		Kind:    core.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{},
	})
	h.Handle(core.Event{
		Kind:      core.EventRunFinished,
		RunID:     "run-1",
		Iteration: 1,
		Time:      now.Add(30 * time.Millisecond),
		Elapsed:   30 * time.Millisecond,
		Payload: map[string]any{
			"status": "failed",
			"state":  "SENDING",
			"error":  "model call: connection refused",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("expected Error status, got %v", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "model call: connection refused" {
		t.Errorf("unexpected error description %q", spans[0].Status.Description)
	}
	if !hasAttribute(spans[0], "pollen.status", "failed") {
		t.Error("expected pollen.status attribute")
	}
}

func TestTracingHandler_ToolCallWithoutRunSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	h := pollenotel.NewTracingHandler(tracer)

	now := time.Now()

	// No run.started; the tool span starts its own trace.
	h.Handle(core.Event{
		Kind:      core.EventToolCall,
		RunID:     "run-x",
		Tool:      "echo",
		Iteration: 1,
		Time:      now,
	})
	if !h.ActiveToolSpanContext("run-x", 1).IsValid() {
		t.Fatal("expected valid tool span context")
	}

	h.Handle(core.Event{
		Kind:      core.EventToolResult,
		RunID:     "run-x",
		Tool:      "echo",
		Iteration: 1,
		Time:      now.Add(5 * time.Millisecond),
		Elapsed:   5 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent.IsValid() {
		t.Error("expected root span when no run span exists")
	}
}

func TestTracingHandler_UnknownSpanContexts(t *testing.T) {
	_, tp := newTestTracer()
	h := pollenotel.NewTracingHandler(tp.Tracer("test"))

	if h.ActiveRunSpanContext("nope").IsValid() {
		t.Error("expected invalid context for unknown run")
	}
	if h.ActiveToolSpanContext("nope", 1).IsValid() {
		t.Error("expected invalid context for unknown tool span")
	}
}
