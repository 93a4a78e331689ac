// Package memoryop adapts direct Memory Store mutation into engine.Provider,
// so a check can get/set/increment/append/has a memory key as its whole
// purpose (e.g. a loop counter or an accumulator check feeding fail_if
// elsewhere).
package memoryop

import (
	"fmt"

	"github.com/dshills/checkrun/engine"
)

// Op names understood by the "op" config field.
const (
	OpGet       = "get"
	OpSet       = "set"
	OpIncrement = "increment"
	OpAppend    = "append"
	OpHas       = "has"
)

// Provider performs one Memory Store operation per invocation. The check's
// Config payload supplies "op" (one of the Op constants, required), "key"
// (string, required), "value" (any, required for set/append), and "delta"
// (int64, optional, default 1, used by increment).
type Provider struct{}

// New returns a memoryop Provider.
func New() *Provider { return &Provider{} }

// Invoke implements engine.Provider.
func (p *Provider) Invoke(cctx *engine.CheckContext) (engine.CheckResult, error) {
	op, _ := cctx.Config["op"].(string)
	key, _ := cctx.Config["key"].(string)
	if op == "" || key == "" {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindMemory, Message: "memoryop: config must set \"op\" and \"key\"",
		}}, nil
	}
	if cctx.Memory == nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindMemory, Message: "memoryop: no memory store configured",
		}}, nil
	}

	switch op {
	case OpGet:
		v, ok := cctx.Memory.Get(key)
		return engine.CheckResult{Output: v, Issues: missingIssue(ok, key)}, nil

	case OpHas:
		return engine.CheckResult{Output: cctx.Memory.Has(key)}, nil

	case OpSet:
		cctx.Memory.Set(key, cctx.Config["value"])
		return engine.CheckResult{Output: cctx.Config["value"]}, nil

	case OpIncrement:
		delta := int64(1)
		if d, ok := toInt64(cctx.Config["delta"]); ok {
			delta = d
		}
		return engine.CheckResult{Output: cctx.Memory.Increment(key, delta)}, nil

	case OpAppend:
		cctx.Memory.Append(key, cctx.Config["value"])
		v, _ := cctx.Memory.Get(key)
		return engine.CheckResult{Output: v}, nil

	default:
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindMemory, Message: fmt.Sprintf("memoryop: unknown op %q", op),
		}}, nil
	}
}

func missingIssue(found bool, key string) []engine.Issue {
	if found {
		return nil
	}
	return []engine.Issue{{RuleID: "memory_key_missing", Severity: engine.SeverityInfo, Message: fmt.Sprintf("key %q not set", key)}}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
