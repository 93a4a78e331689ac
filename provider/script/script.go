// Package script adapts the embedded expression sandbox into engine.Provider,
// so a check's own output can be computed by an expr-lang expression over
// prior outputs/memory instead of an external collaborator.
package script

import (
	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/sandbox"
)

// memoryAccessor narrows engine.MemoryHandle down to the sandbox's read-only
// MemoryAccessor, matching the sandbox's side-effect-free evaluation model.
type memoryAccessor struct {
	h engine.MemoryHandle
}

func (m memoryAccessor) Get(key string) (any, bool) { return m.h.Get(key) }
func (m memoryAccessor) Has(key string) bool        { return m.h.Has(key) }
func (m memoryAccessor) List() map[string]any       { return m.h.List() }

// contextView is the narrow slice of engine.ContextView this provider needs;
// Invoke obtains it from CheckContext.Outputs.
type contextView interface {
	Get(checkID string) (any, bool)
	GetRaw(checkID string) (any, bool)
	GetHistory(checkID string) []*engine.JournalEntry
}

// Provider evaluates an expr-lang expression as a check's output. The
// check's Config payload supplies "expr" (string, required). The expression
// sees the same step/output/outputs/outputs_raw/outputs_history/event/memory
// bindings as if/fail_if/run_js/goto_js, resolved over knownChecks the same
// way the engine's routing sandbox does.
type Provider struct {
	eval        *sandbox.Evaluator
	knownChecks []string
}

// New returns a script Provider sharing eval with the engine's routing
// sandbox (so compiled programs are cached once per expression text) and
// knowing the full check id set so it can resolve outputs/outputs_raw/
// outputs_history the same way the engine's internal sandbox adapter does.
func New(eval *sandbox.Evaluator, knownChecks []string) *Provider {
	return &Provider{eval: eval, knownChecks: knownChecks}
}

// Invoke implements engine.Provider.
func (p *Provider) Invoke(cctx *engine.CheckContext) (engine.CheckResult, error) {
	src, _ := cctx.Config["expr"].(string)
	if src == "" {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindProvider, Message: "script: config must set \"expr\"",
		}}, nil
	}

	var outputs, outputsRaw map[string]any
	var outputsHistory map[string][]any
	if view, ok := any(cctx.Outputs).(contextView); ok && view != nil {
		outputs, outputsRaw, outputsHistory = p.resolveMaps(view)
	}

	var mem sandbox.MemoryAccessor
	if cctx.Memory != nil {
		mem = memoryAccessor{h: cctx.Memory}
	}

	scope := sandbox.Scope{
		Step:           sandbox.StepInfo{ID: cctx.CheckID},
		Outputs:        outputs,
		OutputsRaw:     outputsRaw,
		OutputsHistory: outputsHistory,
		Memory:         mem,
		Event:          sandbox.EventInfo{Name: cctx.Event.Name, Payload: cctx.Event.Payload},
	}

	out, err := p.eval.Eval(src, scope)
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindExpression, Message: err.Error(),
		}}, nil
	}
	return engine.CheckResult{Output: out}, nil
}

func (p *Provider) resolveMaps(view contextView) (outputs, outputsRaw map[string]any, outputsHistory map[string][]any) {
	outputs = make(map[string]any, len(p.knownChecks))
	outputsRaw = make(map[string]any, len(p.knownChecks))
	outputsHistory = make(map[string][]any, len(p.knownChecks))
	for _, id := range p.knownChecks {
		if v, ok := view.Get(id); ok {
			outputs[id] = v
		}
		if v, ok := view.GetRaw(id); ok {
			outputsRaw[id] = v
		}
		if hist := view.GetHistory(id); len(hist) > 0 {
			vals := make([]any, 0, len(hist))
			for _, e := range hist {
				vals = append(vals, e.Result.Output)
			}
			outputsHistory[id] = vals
		}
	}
	return outputs, outputsRaw, outputsHistory
}
