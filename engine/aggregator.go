package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CheckOutcome is one check's flattened, report-facing result: its
// aggregate output plus every scoped execution (relevant for forEach
// producers/consumers) and accumulated counters.
type CheckOutcome struct {
	CheckID    string
	Output     any
	Content    string
	Issues     []Issue
	Error      *ErrorInfo
	Executions []ScopedExecution
	Stats      RunStats
}

// ScopedExecution is a single committed entry for a check, surfaced with its
// scope so a report can render per-item forEach results.
type ScopedExecution struct {
	Scope    ScopePath
	CommitID uint64
	Output   any
	Issues   []Issue
	Error    *ErrorInfo
}

// RunReport is the orchestrator-facing summary produced by ExecuteChecks: it
// groups per-check outcomes, the aggregate issue list (for fail-fast /
// severity gating), timings, and whether the run stopped early.
type RunReport struct {
	SessionID string
	StartedAt time.Time
	Duration  time.Duration

	Outcomes map[string]*CheckOutcome
	Issues   []Issue // every issue, grouped by check in declaration order; within a check, in commit order

	WavesExecuted int
	StoppedEarly  bool
	StopReason    string
}

// HasCritical reports whether any aggregated issue is critical severity.
func (r *RunReport) HasCritical() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// RenderMarkdown renders the report as Markdown grouped by check, issues
// listed under each, for CLI and CI consumption.
func (r *RunReport) RenderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run report `%s`\n\n", r.SessionID)
	fmt.Fprintf(&b, "- waves: %d\n- duration: %s\n- issues: %d\n", r.WavesExecuted, r.Duration.Round(time.Millisecond), len(r.Issues))
	if r.StoppedEarly {
		fmt.Fprintf(&b, "- stopped early: %s\n", r.StopReason)
	}
	b.WriteString("\n")

	ids := make([]string, 0, len(r.Outcomes))
	for id := range r.Outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		outcome := r.Outcomes[id]
		fmt.Fprintf(&b, "## %s\n\n", id)
		switch {
		case outcome.Error != nil:
			fmt.Fprintf(&b, "**%s**: %s\n\n", outcome.Error.Kind, outcome.Error.Message)
		case len(outcome.Executions) == 0:
			b.WriteString("_not executed_\n\n")
		default:
			fmt.Fprintf(&b, "executions: %d, retries: %d\n\n", outcome.Stats.Executions, outcome.Stats.Retries)
		}
		for _, iss := range outcome.Issues {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", iss.RuleID, iss.Severity, iss.Message)
		}
		if len(outcome.Issues) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// aggregate builds a RunReport from a drained journal and the resolver's
// declared check ids, so every declared check appears even if it never ran.
func aggregate(sessionID string, started time.Time, j *Journal, resolver *Resolver, state *RunState, wavesExecuted int) *RunReport {
	report := &RunReport{
		SessionID:     sessionID,
		StartedAt:     started,
		Duration:      time.Since(started),
		Outcomes:      make(map[string]*CheckOutcome, len(resolver.IDs())),
		WavesExecuted: wavesExecuted,
	}

	stats := state.Stats()
	cutoff := j.BeginSnapshot()

	for _, id := range resolver.IDs() {
		entries := j.EntriesFor(id, cutoff)
		outcome := &CheckOutcome{CheckID: id, Stats: stats[id]}
		for _, e := range entries {
			outcome.Executions = append(outcome.Executions, ScopedExecution{
				Scope: e.Scope, CommitID: e.CommitID, Output: e.Result.Output,
				Issues: e.Result.Issues, Error: e.Result.Error,
			})
			report.Issues = append(report.Issues, e.Result.Issues...)
		}
		if len(entries) > 0 {
			last := entries[len(entries)-1]
			outcome.Output = last.Result.Output
			outcome.Content = last.Result.Content
			outcome.Issues = last.Result.Issues
			outcome.Error = last.Result.Error
		}
		report.Outcomes[id] = outcome
	}

	return report
}
