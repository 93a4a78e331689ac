package engine

// sandboxOutputs builds the outputs map exposed to expressions: one entry
// per declared check, resolved through ContextView.Get under the view's
// current scope.
func sandboxOutputs(r *Resolver, view *ContextView) map[string]any {
	out := make(map[string]any, len(r.IDs()))
	for _, id := range r.IDs() {
		if v, ok := view.Get(id); ok {
			out[id] = v
		}
	}
	return out
}

// sandboxOutputsRaw builds the outputs_raw map: the shallowest-scope
// (aggregate) value per check, ignoring per-item overrides.
func sandboxOutputsRaw(r *Resolver, view *ContextView) map[string]any {
	out := make(map[string]any, len(r.IDs()))
	for _, id := range r.IDs() {
		if v, ok := view.GetRaw(id); ok {
			out[id] = v
		}
	}
	return out
}

// sandboxOutputsHistory builds the outputs_history map: every visible entry
// per check, in commit order, projected to its Output value.
func sandboxOutputsHistory(r *Resolver, view *ContextView) map[string][]any {
	out := make(map[string][]any, len(r.IDs()))
	for _, id := range r.IDs() {
		hist := view.GetHistory(id)
		if len(hist) == 0 {
			continue
		}
		vals := make([]any, 0, len(hist))
		for _, e := range hist {
			vals = append(vals, e.Result.Output)
		}
		out[id] = vals
	}
	return out
}
