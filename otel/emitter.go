package otel

import (
	"github.com/petal-labs/pollen/core"
)

// EnrichEmitter wraps an EventEmitter with OpenTelemetry trace context.
// When events are emitted, it looks up the active span from the
// TracingHandler and populates the TraceID and SpanID fields on the event.
//
// For tool-level events (where Tool is set), the tool span is checked first.
// If no tool span is found, it falls back to the run-level span. When no
// span is active, the event passes through unchanged.
func EnrichEmitter(emit core.EventEmitter, tracing *TracingHandler) core.EventEmitter {
	return func(e core.Event) {
		if e.Tool != "" {
			sc := tracing.ActiveToolSpanContext(e.RunID, e.Iteration)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		if e.TraceID == "" && e.RunID != "" {
			sc := tracing.ActiveRunSpanContext(e.RunID)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		emit(e)
	}
}
