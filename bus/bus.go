// Package bus provides an event distribution system for orchestration runs.
// Components publish and subscribe to run events, enabling decoupled
// communication between the tool-calling loop and observers such as loggers,
// CLIs, and monitoring systems.
package bus

import "github.com/petal-labs/pollen/core"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event core.Event)

	// Subscribe registers a subscriber for a specific run.
	// Returns a Subscription that must be closed when done.
	Subscribe(runID string) Subscription

	// SubscribeAll registers a subscriber that receives events from all runs.
	// Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan core.Event

	// Close unsubscribes and releases resources.
	Close() error
}
