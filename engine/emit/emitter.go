package emit

import "context"

// Emitter receives observability events from the Wave Scheduler and Routing
// Engine. Implementations should be non-blocking, thread-safe (events for
// concurrent checks in the same wave arrive from different goroutines), and
// resilient: a failing emitter must never fail a run.
type Emitter interface {
	// Emit sends a single event to the backend. Must not block the caller
	// for long and must not panic.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered, or ctx expires.
	// Must be idempotent.
	Flush(ctx context.Context) error
}
