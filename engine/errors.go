package engine

import "errors"

// ErrorKind enumerates the error taxonomy from the failure design: errors are
// values attached to a CheckResult or returned pre-run, never exceptions that
// unwind the scheduler mid-run (ConfigError and an optional fail-fast
// escalation are the only exceptions to that rule).
type ErrorKind string

const (
	// ErrorKindProvider marks a result produced by a provider that returned
	// an error or threw.
	ErrorKindProvider ErrorKind = "provider_error"
	// ErrorKindTimeout marks a scheduler-induced timeout.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCancelled marks a scheduler-induced cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindLoopBudget marks routing that stopped emitting forward runs
	// after exceeding max_loops.
	ErrorKindLoopBudget ErrorKind = "loop_budget_exceeded"
	// ErrorKindFailIf marks a result overridden to failure by fail_if.
	ErrorKindFailIf ErrorKind = "fail_if_triggered"
	// ErrorKindExpression marks a sandbox evaluation failure.
	ErrorKindExpression ErrorKind = "expression_error"
	// ErrorKindMemory marks a non-fatal memory store persistence failure.
	ErrorKindMemory ErrorKind = "memory_error"
)

// ErrorInfo is the structured error attached to a CheckResult.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// ConfigError is the only error kind fatal to a run: it aborts before any
// check executes.
type ConfigError struct {
	Code    string
	Message string
	Path    []string // cycle path or dependency chain, when applicable
}

func (e *ConfigError) Error() string {
	if e.Code != "" {
		return "config: " + e.Code + ": " + e.Message
	}
	return "config: " + e.Message
}

// Sentinel ConfigError codes, checked with errors.As via a code comparison
// helper (IsConfigCode) since ConfigError carries per-instance detail.
const (
	CodeCycle           = "CYCLE"
	CodeUnknownDep      = "UNKNOWN_DEP"
	CodeInvalidWorkflow = "INVALID_WORKFLOW"
)

// IsConfigCode reports whether err is a *ConfigError with the given code.
func IsConfigCode(err error, code string) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// ErrFailFastStop is returned by ExecuteChecks when FailFast is enabled and a
// critical issue or error was committed, ending the run early. The RunReport
// produced up to that point is still returned alongside this error.
var ErrFailFastStop = errors.New("run stopped: fail_fast triggered on critical issue")
