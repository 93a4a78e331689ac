package sandbox

import "testing"

func TestEvalBoolBasic(t *testing.T) {
	e := NewEvaluator()
	scope := Scope{Output: map[string]any{"critical_count": 3}}
	ok, err := e.EvalBool("output.critical_count > 0", scope)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Error("expected true")
	}
}

func TestEvalBoolNonBooleanResultIsFalse(t *testing.T) {
	e := NewEvaluator()
	ok, err := e.EvalBool(`"not a bool"`, Scope{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if ok {
		t.Error("expected a non-boolean result to coerce to false")
	}
}

func TestEvalIDsFiltersNonStrings(t *testing.T) {
	e := NewEvaluator()
	ids, err := e.EvalIDs(`["a", "b"]`, Scope{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestEvalIDNonStringResultIsEmpty(t *testing.T) {
	e := NewEvaluator()
	id, err := e.EvalID("42", Scope{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty string for a non-string result, got %q", id)
	}
}

func TestEvalUsesOutputsAndStepScope(t *testing.T) {
	e := NewEvaluator()
	scope := Scope{
		Step:    StepInfo{ID: "deploy", Tags: []string{"prod"}},
		Outputs: map[string]any{"build": "success"},
	}
	ok, err := e.EvalBool(`outputs.build == "success" && step.id == "deploy"`, scope)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Error("expected expression referencing outputs and step to evaluate true")
	}
}

func TestEvalMemoryAccessor(t *testing.T) {
	e := NewEvaluator()
	scope := Scope{Memory: fakeAccessor{data: map[string]any{"attempts": int64(2)}}}
	ok, err := e.EvalBool(`memory.has("attempts") && memory.get("attempts") >= 2`, scope)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Error("expected memory accessor lookups to work from an expression")
	}
}

func TestEvalCompileErrorIsReported(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Eval("output.(((", Scope{})
	if err == nil {
		t.Fatal("expected a compile error for malformed syntax")
	}
}

func TestEvalProgramCacheReusesCompiledProgram(t *testing.T) {
	e := NewEvaluator()
	src := "1 + 1"
	if _, err := e.Eval(src, Scope{}); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected the program cache to hold 1 entry, got %d", len(e.cache))
	}
	if _, err := e.Eval(src, Scope{}); err != nil {
		t.Fatalf("second eval: %v", err)
	}
	if len(e.cache) != 1 {
		t.Errorf("expected re-evaluating the same source to reuse the cached program, cache has %d entries", len(e.cache))
	}
}

type fakeAccessor struct {
	data map[string]any
}

func (f fakeAccessor) Get(key string) (any, bool) { v, ok := f.data[key]; return v, ok }
func (f fakeAccessor) Has(key string) bool        { _, ok := f.data[key]; return ok }
func (f fakeAccessor) List() map[string]any       { return f.data }
