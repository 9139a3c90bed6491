package core

import "time"

// EventKind identifies the type of event emitted during an orchestration run.
type EventKind string

const (
	// EventRunStarted is emitted when an orchestration run begins.
	EventRunStarted EventKind = "run.started"

	// EventModelCall is emitted before each model completion request.
	EventModelCall EventKind = "model.call"

	// EventModelResponse is emitted when a model completion returns.
	EventModelResponse EventKind = "model.response"

	// EventToolCall is emitted when a requested tool invocation begins.
	EventToolCall EventKind = "tool.call"

	// EventToolResult is emitted when a tool invocation completes.
	EventToolResult EventKind = "tool.result"

	// EventToolFailed is emitted when a tool invocation returns an error.
	EventToolFailed EventKind = "tool.failed"

	// EventRunFinished is emitted when a run reaches a terminal state.
	EventRunFinished EventKind = "run.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during a run.
// Events should be kept small; large data belongs in tool results, not
// payloads.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Tool is the tool involved (empty for run- and model-level events).
	Tool string

	// Iteration is the orchestration iteration (1-indexed, 0 for run-level events).
	Iteration int

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithTool sets the tool name on the event.
func (e Event) WithTool(tool string) Event {
	e.Tool = tool
	return e
}

// WithIteration sets the iteration number on the event.
func (e Event) WithIteration(iteration int) Event {
	e.Iteration = iteration
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventEmitter is a function type for emitting events.
type EventEmitter func(Event)

// EventEmitterDecorator wraps an emitter to add cross-cutting behavior,
// such as enriching events with trace metadata.
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventPublisher can publish events to external subscribers. The interface
// is satisfied by bus.EventBus, so the orchestrator can distribute events
// without importing the bus package directly.
type EventPublisher interface {
	Publish(event Event)
}

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// The channel should have sufficient buffer to avoid blocking.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
