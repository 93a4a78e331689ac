package engine

// ContextView is the scope-aware read API over the Journal. It is the single
// source of truth for what templates, routing expressions and downstream
// providers see under outputs[id] / outputs_raw[id] / outputs_history[id].
type ContextView struct {
	journal   *Journal
	sessionID string
	cutoff    uint64
	scope     ScopePath
	event     string
}

// NewContextView builds a view frozen at cutoff, scoped to scope, optionally
// filtered to a single event name (empty means no event filter).
func NewContextView(j *Journal, sessionID string, cutoff uint64, scope ScopePath, event string) *ContextView {
	return &ContextView{journal: j, sessionID: sessionID, cutoff: cutoff, scope: scope, event: event}
}

// WithScope returns a copy of the view rescoped to a child scope, used when
// entering a forEach item.
func (c *ContextView) WithScope(scope ScopePath) *ContextView {
	cp := *c
	cp.scope = scope
	return &cp
}

// visible applies the event filter with the goto_event policy: entries
// whose scope is a strict ancestor of the current scope remain visible
// across events; only leaf-scope/latest-fallback entries are filtered by
// event name.
func (c *ContextView) visible(checkID string) []*JournalEntry {
	all := c.journal.EntriesFor(checkID, c.cutoff)
	if c.event == "" {
		return all
	}
	out := make([]*JournalEntry, 0, len(all))
	for _, e := range all {
		if e.Scope.IsStrictPrefixOf(c.scope) || e.Event == c.event {
			out = append(out, e)
		}
	}
	return out
}

// Get resolves outputs[checkID]: exact-scope override, else longest strict
// ancestor prefix, else latest visible entry, else (nil, false).
func (c *ContextView) Get(checkID string) (any, bool) {
	entries := c.visible(checkID)
	if len(entries) == 0 {
		return nil, false
	}

	// Rule 1: exact scope match.
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Scope.Equal(c.scope) {
			return entries[i].Result.Output, true
		}
	}

	// Rule 2: longest strict-prefix ancestor match.
	var best *JournalEntry
	for _, e := range entries {
		if !e.Scope.IsStrictPrefixOf(c.scope) {
			continue
		}
		if best == nil || len(e.Scope) > len(best.Scope) {
			best = e
		}
	}
	if best != nil {
		return itemAt(best, c.scope), true
	}

	// Rule 3: latest visible entry, default visibility.
	latest := entries[len(entries)-1]
	return latest.Result.Output, true
}

// itemAt projects an ancestor forEach-producer entry down to the element
// addressed by scope, implementing ForEach aggregate-vs-item resolution:
// under scope [{p,i},...], outputs[p] is the i-th item of p's output.
func itemAt(producer *JournalEntry, scope ScopePath) any {
	if !producer.Result.IsForEach || len(producer.Result.ForEachItems) == 0 {
		return producer.Result.Output
	}
	idx := len(producer.Scope) // the entry in scope immediately below producer's own scope
	if idx >= len(scope) {
		return producer.Result.Output
	}
	i := scope[idx].Index
	if i < 0 || i >= len(producer.Result.ForEachItems) {
		return producer.Result.Output
	}
	return producer.Result.ForEachItems[i]
}

// GetRaw returns the shallowest-scope visible entry's Output: the aggregate
// parent value (e.g. the full array from a forEach producer), ignoring any
// per-item override.
func (c *ContextView) GetRaw(checkID string) (any, bool) {
	entries := c.visible(checkID)
	if len(entries) == 0 {
		return nil, false
	}
	shallow := entries[0]
	for _, e := range entries[1:] {
		if len(e.Scope) < len(shallow.Scope) {
			shallow = e
		}
	}
	return shallow.Result.Output, true
}

// GetHistory returns all visible entries for checkID, in commit order.
func (c *ContextView) GetHistory(checkID string) []*JournalEntry {
	return c.visible(checkID)
}

// Scope returns the view's current scope path.
func (c *ContextView) Scope() ScopePath { return c.scope }

// Cutoff returns the view's snapshot cutoff commit id.
func (c *ContextView) Cutoff() uint64 { return c.cutoff }

// Event returns the view's active event name filter.
func (c *ContextView) Event() string { return c.event }
