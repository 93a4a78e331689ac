package engine

import (
	"strings"
	"time"
)

// FanoutMode controls how a dependent of a forEach producer is scheduled.
type FanoutMode string

const (
	// FanoutReduce is the default: the dependent runs once and sees the
	// producer's entire output array via the shallowest-scope resolution.
	FanoutReduce FanoutMode = "reduce"
	// FanoutMap runs the dependent once per item of the producer's output,
	// each invocation scoped to that item.
	FanoutMap FanoutMode = "map"
)

// RetryPolicy is the provider-facing retry configuration on a Check, distinct
// from the routing-level on_fail loop (which is a scheduling decision, not a
// retry policy).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RoutingBlock is evaluated after a check's result is committed. Run/RunJS
// schedule additional forward runs; Goto/GotoJS resolve to a single target.
type RoutingBlock struct {
	Run       []string
	RunJS     string
	Goto      string
	GotoJS    string
	GotoEvent string
}

// Empty reports whether the block has no directives configured.
func (b *RoutingBlock) Empty() bool {
	return b == nil || (len(b.Run) == 0 && b.RunJS == "" && b.Goto == "" && b.GotoJS == "")
}

// Check is a compile-time node in the workflow graph.
type Check struct {
	ID        string
	Provider  string
	DependsOn []string // entries may use "a|b" pipe-alternative syntax

	ForEach bool
	Fanout  FanoutMode

	If     string
	FailIf string

	OnSuccess *RoutingBlock
	OnFail    *RoutingBlock
	OnFinish  *RoutingBlock

	Schema  string
	Tags    []string
	Group   string
	Timeout time.Duration
	Retry   *RetryPolicy

	// Payload is the opaque provider-specific configuration (prompt, command,
	// url, body template, ...). The engine never interprets it.
	Payload map[string]any
}

// EffectiveFanout returns the check's configured fanout, defaulting to reduce.
func (c *Check) EffectiveFanout() FanoutMode {
	if c.Fanout == "" {
		return FanoutReduce
	}
	return c.Fanout
}

// DependencyGroups splits DependsOn into alternative groups: an entry like
// "a|b" becomes one group {"a","b"}, satisfied when any member has committed.
func (c *Check) DependencyGroups() [][]string {
	groups := make([][]string, 0, len(c.DependsOn))
	for _, dep := range c.DependsOn {
		groups = append(groups, strings.Split(dep, "|"))
	}
	return groups
}
