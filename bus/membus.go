package bus

import (
	"slices"
	"sync"

	"github.com/petal-labs/pollen/core"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus implementation. Closing a subscription
// unregisters it, so a bus serving many runs over its lifetime does not
// accumulate dead subscribers.
type MemBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub // runID -> subscribers
	globalSubs []*memSub            // subscribers for all runs
	bufSize    int
	closed     bool
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish sends an event to all matching subscribers. Run-specific
// subscribers receive events matching their run ID, and global subscribers
// receive all events. If the bus is closed, the event is silently dropped.
func (b *MemBus) Publish(event core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[event.RunID] {
		sub.send(event)
	}
	for _, sub := range b.globalSubs {
		sub.send(event)
	}
}

// Subscribe registers a subscriber for a specific run.
// Returns a Subscription that must be closed when done.
func (b *MemBus) Subscribe(runID string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b, runID, false)
	b.subs[runID] = append(b.subs[runID], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives events from all runs.
// Returns a Subscription that must be closed when done.
func (b *MemBus) SubscribeAll() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b, "", true)
	b.globalSubs = append(b.globalSubs, sub)
	return sub
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range b.globalSubs {
		sub.close()
	}

	b.subs = make(map[string][]*memSub)
	b.globalSubs = nil
	return nil
}

// remove unregisters a subscription so the bus stops tracking it.
func (b *MemBus) remove(sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.global {
		b.globalSubs = slices.DeleteFunc(b.globalSubs, func(s *memSub) bool { return s == sub })
		return
	}
	remaining := slices.DeleteFunc(b.subs[sub.runID], func(s *memSub) bool { return s == sub })
	if len(remaining) == 0 {
		delete(b.subs, sub.runID)
		return
	}
	b.subs[sub.runID] = remaining
}

// memSub is an in-memory subscription.
type memSub struct {
	bus    *MemBus
	runID  string
	global bool

	ch     chan core.Event
	mu     sync.Mutex
	closed bool
}

func newMemSub(b *MemBus, runID string, global bool) *memSub {
	return &memSub{
		bus:    b,
		runID:  runID,
		global: global,
		ch:     make(chan core.Event, b.bufSize),
	}
}

// Events returns a channel of events for this subscription.
func (s *memSub) Events() <-chan core.Event {
	return s.ch
}

// Close unregisters the subscription from its bus and releases resources.
func (s *memSub) Close() error {
	s.bus.remove(s)
	s.close()
	return nil
}

// close performs the actual channel close, guarded against double-close.
func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers an event to the subscription's channel. If the channel is
// full or the subscription is closed, the event is dropped.
func (s *memSub) send(event core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- event:
	default:
		// Drop if channel full.
	}
}

// Compile-time interface checks.
var _ EventBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
var _ core.EventPublisher = (*MemBus)(nil)
