package engine

import (
	"reflect"
	"testing"
)

func TestContextViewGetLatestVisible(t *testing.T) {
	j := NewJournal()
	j.Commit("sess", nil, "a", "", CheckResult{Output: "first"})
	j.Commit("sess", nil, "a", "", CheckResult{Output: "second"})
	cutoff := j.BeginSnapshot()

	view := NewContextView(j, "sess", cutoff, nil, "")
	got, ok := view.Get("a")
	if !ok || got != "second" {
		t.Errorf("expected latest commit %q, got %v (ok=%v)", "second", got, ok)
	}
}

func TestContextViewForEachAggregateVsItem(t *testing.T) {
	j := NewJournal()
	j.Commit("sess", nil, "list_files", "", CheckResult{
		Output:       []any{"a.go", "b.go"},
		IsForEach:    true,
		ForEachItems: []any{"a.go", "b.go"},
	})
	cutoff := j.BeginSnapshot()

	rootView := NewContextView(j, "sess", cutoff, nil, "")
	raw, ok := rootView.Get("list_files")
	if !ok {
		t.Fatal("expected root scope to resolve list_files")
	}
	if _, isSlice := raw.([]any); !isSlice {
		t.Errorf("expected root scope to see the full aggregate, got %T: %v", raw, raw)
	}

	itemScope := ScopePath{{Check: "list_files", Index: 1}}
	itemView := NewContextView(j, "sess", cutoff, itemScope, "")
	item, ok := itemView.Get("list_files")
	if !ok || item != "b.go" {
		t.Errorf("expected item scope 1 to resolve %q, got %v (ok=%v)", "b.go", item, ok)
	}
}

func TestContextViewGetRawIgnoresItemOverride(t *testing.T) {
	j := NewJournal()
	j.Commit("sess", nil, "list_files", "", CheckResult{
		Output:       []any{"a.go", "b.go"},
		IsForEach:    true,
		ForEachItems: []any{"a.go", "b.go"},
	})
	itemScope := ScopePath{{Check: "list_files", Index: 0}}
	j.Commit("sess", itemScope, "lint", "", CheckResult{Output: "ok-0"})
	cutoff := j.BeginSnapshot()

	view := NewContextView(j, "sess", cutoff, itemScope, "")
	raw, ok := view.GetRaw("list_files")
	if !ok {
		t.Fatal("expected GetRaw to resolve list_files")
	}
	if !reflect.DeepEqual(raw, []any{"a.go", "b.go"}) {
		t.Errorf("expected the full aggregate array, got %v", raw)
	}
}

func TestContextViewGetHistoryReturnsCommitOrder(t *testing.T) {
	j := NewJournal()
	j.Commit("sess", nil, "retry_me", "", CheckResult{Output: 1})
	j.Commit("sess", nil, "retry_me", "", CheckResult{Output: 2})
	j.Commit("sess", nil, "retry_me", "", CheckResult{Output: 3})
	cutoff := j.BeginSnapshot()

	view := NewContextView(j, "sess", cutoff, nil, "")
	hist := view.GetHistory("retry_me")
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
	for i, want := range []int{1, 2, 3} {
		if hist[i].Result.Output != want {
			t.Errorf("history[%d]: expected %d, got %v", i, want, hist[i].Result.Output)
		}
	}
}

func TestContextViewDoesNotSeeEntriesAfterCutoff(t *testing.T) {
	j := NewJournal()
	j.Commit("sess", nil, "a", "", CheckResult{Output: "before"})
	cutoff := j.BeginSnapshot()
	j.Commit("sess", nil, "a", "", CheckResult{Output: "after"})

	view := NewContextView(j, "sess", cutoff, nil, "")
	got, ok := view.Get("a")
	if !ok || got != "before" {
		t.Errorf("expected snapshot isolation to hide the post-cutoff commit, got %v (ok=%v)", got, ok)
	}
}
