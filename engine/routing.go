package engine

import (
	"fmt"

	"github.com/dshills/checkrun/sandbox"
)

// ForwardRun is a routing decision: run target under scope, optionally under
// a new active event (goto_event), optionally as a goto (meaning: only one
// such request is honored per routing invocation per origin).
type ForwardRun struct {
	Target    string
	Scope     ScopePath
	Event     string // empty means "keep current event"
	IsGoto    bool
}

// RoutingResult is what the Routing Engine hands back to the scheduler after
// processing one commit.
type RoutingResult struct {
	ForwardRuns []ForwardRun
	WaveRetry   bool
}

// RoutingEngine evaluates fail_if and the on_success/on_fail/on_finish
// blocks after every commit, producing forward-run requests and enforcing
// the loop budget.
type RoutingEngine struct {
	resolver *Resolver
	eval     *sandbox.Evaluator
	state    *RunState
	defaults RoutingDefaults
}

// RoutingDefaults mirrors routing.defaults in the workflow config: blocks
// merged into every check's on_fail/on_success/on_finish unless the check
// overrides the corresponding directive.
type RoutingDefaults struct {
	OnSuccess *RoutingBlock
	OnFail    *RoutingBlock
	OnFinish  *RoutingBlock
	GlobalFailIf string
}

// NewRoutingEngine constructs a RoutingEngine bound to one run.
func NewRoutingEngine(resolver *Resolver, eval *sandbox.Evaluator, state *RunState, defaults RoutingDefaults) *RoutingEngine {
	return &RoutingEngine{resolver: resolver, eval: eval, state: state, defaults: defaults}
}

// Process is invoked once per committed check, from the worker goroutine
// that ran it (see Engine.runOne), so calls for checks of the same batch can
// overlap; RunState methods take its own mutex.
func (re *RoutingEngine) Process(entry *JournalEntry, view *ContextView) RoutingResult {
	check, ok := re.resolver.Check(entry.CheckID)
	if !ok {
		return RoutingResult{}
	}

	success := entry.Result.Success()
	re.applyFailIf(check, entry, view, &success)

	block := re.effectiveBlock(check, success)
	finish := re.effectiveFinish(check)

	var forwards []ForwardRun
	if block != nil {
		forwards = append(forwards, re.expand(check, entry, view, block)...)
	}
	if finish != nil && re.finishEligible(check) {
		forwards = append(forwards, re.expand(check, entry, view, finish)...)
	}

	if !success {
		re.state.RecordFailure(entry.CheckID)
	}

	if len(forwards) == 0 {
		return RoutingResult{}
	}
	if !re.state.GuardForwardRun(entry.CheckID, entry.Scope, re.state.Wave) {
		return RoutingResult{}
	}
	return RoutingResult{ForwardRuns: forwards, WaveRetry: true}
}

// applyFailIf evaluates the check-level and global fail_if expressions and
// overrides success in place, appending a synthetic issue when triggered.
// fail_if is skipped for a Timeout result; every other result, including
// other error kinds, is evaluated.
func (re *RoutingEngine) applyFailIf(check *Check, entry *JournalEntry, view *ContextView, success *bool) {
	if entry.Result.Error != nil && entry.Result.Error.Kind == ErrorKindTimeout {
		return
	}
	scope := sandbox.Scope{
		Step:           sandbox.StepInfo{ID: check.ID, Tags: check.Tags, Group: check.Group},
		Output:         entry.Result.Output,
		Outputs:        sandboxOutputs(re.resolver, view),
		OutputsRaw:     sandboxOutputsRaw(re.resolver, view),
		OutputsHistory: sandboxOutputsHistory(re.resolver, view),
	}

	if check.FailIf != "" {
		if triggered, err := re.eval.EvalBool(check.FailIf, scope); err == nil && triggered {
			*success = false
			entry.Result.Issues = append(entry.Result.Issues, Issue{
				RuleID:   entry.CheckID + "_fail_if",
				Severity: SeverityHigh,
				Message:  "fail_if condition triggered",
			})
		}
	}
	if re.defaults.GlobalFailIf != "" {
		if triggered, err := re.eval.EvalBool(re.defaults.GlobalFailIf, scope); err == nil && triggered {
			*success = false
			entry.Result.Issues = append(entry.Result.Issues, Issue{
				RuleID:   "global_fail_if",
				Severity: SeverityHigh,
				Message:  "global fail_if condition triggered",
			})
		}
	}
}

func (re *RoutingEngine) effectiveBlock(check *Check, success bool) *RoutingBlock {
	var own, def *RoutingBlock
	if success {
		own, def = check.OnSuccess, re.defaults.OnSuccess
	} else {
		own, def = check.OnFail, re.defaults.OnFail
	}
	return mergeBlock(own, def)
}

func (re *RoutingEngine) effectiveFinish(check *Check) *RoutingBlock {
	return mergeBlock(check.OnFinish, re.defaults.OnFinish)
}

// mergeBlock layers own over def: own's directives win per-field, falling
// back to def's when own is nil or a field is empty.
func mergeBlock(own, def *RoutingBlock) *RoutingBlock {
	if own == nil {
		return def
	}
	if def == nil {
		return own
	}
	merged := *own
	if len(merged.Run) == 0 {
		merged.Run = def.Run
	}
	if merged.RunJS == "" {
		merged.RunJS = def.RunJS
	}
	if merged.Goto == "" {
		merged.Goto = def.Goto
	}
	if merged.GotoJS == "" {
		merged.GotoJS = def.GotoJS
	}
	if merged.GotoEvent == "" {
		merged.GotoEvent = def.GotoEvent
	}
	return &merged
}

// finishEligible implements "on_finish runs unless the check is forEach and
// has forEach-kind dependents": a fanned-out producer defers its finish
// block to the per-item runs it spawned.
func (re *RoutingEngine) finishEligible(check *Check) bool {
	if !check.ForEach {
		return true
	}
	for _, id := range re.resolver.IDs() {
		dep, _ := re.resolver.Check(id)
		if dep == nil || dep.EffectiveFanout() != FanoutMap {
			continue
		}
		for _, group := range dep.DependencyGroups() {
			for _, d := range group {
				if d == check.ID {
					return false
				}
			}
		}
	}
	return true
}

// expand turns a RoutingBlock into concrete ForwardRun requests, honoring
// static run lists, dynamic run_js, and goto/goto_js — each emission
// consuming one unit of loop budget.
func (re *RoutingEngine) expand(check *Check, entry *JournalEntry, view *ContextView, block *RoutingBlock) []ForwardRun {
	var forwards []ForwardRun

	emit := func(target string, scope ScopePath, event string, isGoto bool) {
		if !re.state.TryEmit() {
			entry.Result.Issues = append(entry.Result.Issues, Issue{
				RuleID:   entry.CheckID + "/routing/loop_budget_exceeded",
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("routing loop budget (%d) exceeded", re.state.MaxLoops),
			})
			return
		}
		forwards = append(forwards, ForwardRun{Target: target, Scope: scope, Event: event, IsGoto: isGoto})
	}

	// Static run list first, then dynamic run_js; both count against the
	// same loop budget.
	for _, target := range block.Run {
		target := target
		dep, ok := re.resolver.Check(target)
		if ok && dep.EffectiveFanout() == FanoutMap && entry.Result.IsForEach {
			for i := range entry.Result.ForEachItems {
				emit(target, entry.Scope.Child(entry.CheckID, i), "", false)
			}
		} else {
			emit(target, entry.Scope, "", false)
		}
	}

	if block.RunJS != "" {
		scope := sandbox.Scope{
			Step:           sandbox.StepInfo{ID: check.ID, Tags: check.Tags, Group: check.Group},
			Output:         entry.Result.Output,
			Outputs:        sandboxOutputs(re.resolver, view),
			OutputsRaw:     sandboxOutputsRaw(re.resolver, view),
			OutputsHistory: sandboxOutputsHistory(re.resolver, view),
		}
		ids, err := re.eval.EvalIDs(block.RunJS, scope)
		if err == nil {
			for _, target := range ids {
				emit(target, entry.Scope, "", false)
			}
		}
	}

	if block.Goto != "" {
		emit(block.Goto, entry.Scope, block.GotoEvent, true)
	} else if block.GotoJS != "" {
		scope := sandbox.Scope{
			Step:           sandbox.StepInfo{ID: check.ID, Tags: check.Tags, Group: check.Group},
			Output:         entry.Result.Output,
			Outputs:        sandboxOutputs(re.resolver, view),
			OutputsRaw:     sandboxOutputsRaw(re.resolver, view),
			OutputsHistory: sandboxOutputsHistory(re.resolver, view),
		}
		target, err := re.eval.EvalID(block.GotoJS, scope)
		if err == nil && target != "" {
			emit(target, entry.Scope, block.GotoEvent, true)
		}
	}

	return forwards
}
