package engine

import (
	"strings"
	"testing"
	"time"
)

func TestAggregateIncludesDeclaredChecksThatNeverRan(t *testing.T) {
	checks := []*Check{{ID: "a"}, {ID: "b"}}
	r, err := NewResolver(checks)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	j := NewJournal()
	j.Commit("sess", nil, "a", "", CheckResult{Output: "ran"})
	state := NewRunState(10)

	report := aggregate("sess", time.Now(), j, r, state, 1)
	if _, ok := report.Outcomes["b"]; !ok {
		t.Fatal("expected a declared-but-unrun check to still appear in the report")
	}
	if report.Outcomes["b"].Output != nil {
		t.Errorf("expected an unrun check to have a nil output, got %v", report.Outcomes["b"].Output)
	}
	if report.Outcomes["a"].Output != "ran" {
		t.Errorf("expected a's output to be %q, got %v", "ran", report.Outcomes["a"].Output)
	}
}

func TestRunReportHasCritical(t *testing.T) {
	report := &RunReport{Issues: []Issue{{Severity: SeverityLow}, {Severity: SeverityCritical}}}
	if !report.HasCritical() {
		t.Error("expected HasCritical to find the critical issue")
	}

	clean := &RunReport{Issues: []Issue{{Severity: SeverityLow}}}
	if clean.HasCritical() {
		t.Error("expected HasCritical to be false with no critical issues")
	}
}

func TestAggregateCollectsMultipleScopedExecutions(t *testing.T) {
	checks := []*Check{{ID: "lint_file", Fanout: FanoutMap}}
	r, err := NewResolver(checks)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	j := NewJournal()
	scope0 := ScopePath{{Check: "list_files", Index: 0}}
	scope1 := ScopePath{{Check: "list_files", Index: 1}}
	j.Commit("sess", scope0, "lint_file", "", CheckResult{Output: "ok-0"})
	j.Commit("sess", scope1, "lint_file", "", CheckResult{Output: "ok-1"})
	state := NewRunState(10)

	report := aggregate("sess", time.Now(), j, r, state, 1)
	outcome := report.Outcomes["lint_file"]
	if len(outcome.Executions) != 2 {
		t.Fatalf("expected 2 scoped executions, got %d", len(outcome.Executions))
	}
	if outcome.Output != "ok-1" {
		t.Errorf("expected the aggregate output to reflect the latest commit, got %v", outcome.Output)
	}
}

func TestRunReportRenderMarkdown(t *testing.T) {
	report := &RunReport{
		SessionID:     "sess-md",
		WavesExecuted: 2,
		Outcomes: map[string]*CheckOutcome{
			"lint": {
				CheckID:    "lint",
				Executions: []ScopedExecution{{CommitID: 1}},
				Stats:      RunStats{Executions: 1},
				Issues:     []Issue{{RuleID: "lint_fail_if", Severity: SeverityHigh, Message: "bad"}},
			},
			"skipped": {CheckID: "skipped"},
			"broken": {
				CheckID: "broken",
				Error:   &ErrorInfo{Kind: ErrorKindTimeout, Message: "deadline"},
			},
		},
	}

	md := report.RenderMarkdown()
	for _, want := range []string{
		"# Run report `sess-md`",
		"## lint",
		"- `lint_fail_if` (high): bad",
		"_not executed_",
		"**timeout**: deadline",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
