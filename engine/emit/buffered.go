package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, organized by SessionID, for
// testing and post-run analysis.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// HistoryFilter narrows GetHistoryWithFilter results. Zero-value fields
// impose no constraint; multiple set fields combine with AND.
type HistoryFilter struct {
	CheckID string
	Msg     string
	MinWave *int
	MaxWave *int
}

// Emit appends event under its SessionID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// EmitBatch appends every event in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

// Flush is a no-op: BufferedEmitter holds events directly in memory.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// GetHistory returns a copy of every event recorded for sessionID.
func (b *BufferedEmitter) GetHistory(sessionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.events[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// GetHistoryWithFilter returns events for sessionID matching filter.
func (b *BufferedEmitter) GetHistoryWithFilter(sessionID string, filter HistoryFilter) []Event {
	all := b.GetHistory(sessionID)
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if filter.CheckID != "" && e.CheckID != filter.CheckID {
			continue
		}
		if filter.Msg != "" && e.Msg != filter.Msg {
			continue
		}
		if filter.MinWave != nil && e.Wave < *filter.MinWave {
			continue
		}
		if filter.MaxWave != nil && e.Wave > *filter.MaxWave {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear discards events for sessionID, or every session when sessionID is "".
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sessionID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, sessionID)
}
