// Package sandbox implements the embedded expression evaluator used for
// if/fail_if/run_js/goto_js directives: a restricted AST evaluator over a
// read-only scope, with no host I/O and no access to Go globals.
package sandbox

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// StepInfo surfaces the current check's identity to expressions as step.*.
type StepInfo struct {
	ID    string
	Tags  []string
	Group string
}

// EventInfo surfaces the active event envelope to expressions as event.*.
type EventInfo struct {
	Name    string
	Payload any
}

// MemoryAccessor is the read view of the Memory Store exposed to
// expressions as memory.*. Expressions are side-effect free, so only
// accessors are exposed, never mutators.
type MemoryAccessor interface {
	Get(key string) (any, bool)
	Has(key string) bool
	List() map[string]any
}

// Scope is the read-only environment expressions evaluate against.
type Scope struct {
	Step           StepInfo
	Output         any
	Outputs        map[string]any
	OutputsRaw     map[string]any
	OutputsHistory map[string][]any
	Memory         MemoryAccessor
	Event          EventInfo
}

// env projects a Scope into the plain map expr.Eval expects, with memory.*
// bound as callables rather than a live interface (expr's env resolution
// works over maps/structs, not arbitrary interfaces with pointer receivers).
func (s Scope) env() map[string]any {
	var memGet func(string) any
	var memHas func(string) bool
	var memList func() map[string]any
	if s.Memory != nil {
		memGet = func(k string) any { v, _ := s.Memory.Get(k); return v }
		memHas = s.Memory.Has
		memList = s.Memory.List
	} else {
		memGet = func(string) any { return nil }
		memHas = func(string) bool { return false }
		memList = func() map[string]any { return map[string]any{} }
	}
	return map[string]any{
		"step": map[string]any{
			"id":    s.Step.ID,
			"tags":  s.Step.Tags,
			"group": s.Step.Group,
		},
		"output":          s.Output,
		"outputs":         s.Outputs,
		"outputs_raw":     s.OutputsRaw,
		"outputs_history": s.OutputsHistory,
		"event": map[string]any{
			"name":    s.Event.Name,
			"payload": s.Event.Payload,
		},
		"memory": map[string]any{
			"get":  memGet,
			"has":  memHas,
			"list": memList,
		},
	}
}

// Evaluator compiles and caches expr programs keyed by source text, since
// the same if/fail_if/run_js/goto_js strings are evaluated repeatedly
// across waves and forEach items.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewEvaluator returns an Evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

func (e *Evaluator) compile(src string, env map[string]any) (*vm.Program, error) {
	e.mu.Lock()
	if p, ok := e.cache[src]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	program, err := expr.Compile(src, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[src] = program
	e.mu.Unlock()
	return program, nil
}

// Eval compiles (or reuses) and runs src against scope, returning the raw
// result. Any compile or runtime error is an ExpressionError: the caller is
// expected to map it to a context-appropriate default (false/[]/null).
func (e *Evaluator) Eval(src string, scope Scope) (any, error) {
	env := scope.env()
	program, err := e.compile(src, env)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("sandbox: eval %q: %w", src, err)
	}
	return out, nil
}

// EvalBool evaluates src and coerces the result to bool, used for if/fail_if.
// Non-boolean, nil, or error results are treated as false.
func (e *Evaluator) EvalBool(src string, scope Scope) (bool, error) {
	out, err := e.Eval(src, scope)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, nil
	}
	return b, nil
}

// EvalIDs evaluates src and coerces the result to a list of strings, used
// for run_js. A non-list result is treated as an empty list.
func (e *Evaluator) EvalIDs(src string, scope Scope) ([]string, error) {
	out, err := e.Eval(src, scope)
	if err != nil {
		return nil, err
	}
	list, ok := out.([]any)
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// EvalID evaluates src and coerces the result to a single string, used for
// goto_js. A non-string result is treated as "".
func (e *Evaluator) EvalID(src string, scope Scope) (string, error) {
	out, err := e.Eval(src, scope)
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}
