// Package emit provides pluggable observability for the check engine: the
// scheduler surfaces batch starts, per-check commits, and checkpoint
// persistence failures as Events through an Emitter backend.
package emit

// Event is an observability event emitted during a run.
type Event struct {
	// SessionID identifies the run that emitted this event.
	SessionID string

	// Wave is the wave number the event belongs to.
	Wave int

	// CheckID identifies which check emitted this event. Empty for
	// wave-level events.
	CheckID string

	// Msg is a human-readable event name: "wave_batch_start",
	// "check_commit", "checkpoint_save_error", "checkpoint_entry_error".
	Msg string

	// Meta carries event-specific structured detail: size, scope, success,
	// error, and similar.
	Meta map[string]any
}
