package config

import (
	"time"

	"github.com/dshills/checkrun/engine"
)

// ToChecks converts the parsed workflow's check list into engine.Check
// values, resolving every duration field and fanout mode.
func (c *Config) ToChecks() []*engine.Check {
	checks := make([]*engine.Check, 0, len(c.Checks))
	for _, cc := range c.Checks {
		checks = append(checks, cc.toEngineCheck())
	}
	return checks
}

func (cc *CheckConfig) toEngineCheck() *engine.Check {
	check := &engine.Check{
		ID:        cc.ID,
		Provider:  cc.Provider,
		DependsOn: splitPipeDeps(cc.DependsOn),
		ForEach:   cc.ForEach,
		Fanout:    engine.FanoutMode(cc.Fanout),
		If:        cc.If,
		FailIf:    cc.FailIf,
		OnSuccess: cc.OnSuccess.toEngineBlock(),
		OnFail:    cc.OnFail.toEngineBlock(),
		OnFinish:  cc.OnFinish.toEngineBlock(),
		Schema:    cc.Schema,
		Tags:      cc.Tags,
		Group:     cc.Group,
		Timeout:   parseDurationOr(cc.Timeout, 0),
		Payload:   cc.With,
	}
	if cc.Retry != nil {
		check.Retry = &engine.RetryPolicy{
			MaxAttempts: cc.Retry.MaxAttempts,
			BaseDelay:   parseDurationOr(cc.Retry.BaseDelay, 0),
			MaxDelay:    parseDurationOr(cc.Retry.MaxDelay, 0),
		}
	}
	return check
}

func (b *RoutingBlockConfig) toEngineBlock() *engine.RoutingBlock {
	if b == nil {
		return nil
	}
	return &engine.RoutingBlock{
		Run:       b.Run,
		RunJS:     b.RunJS,
		Goto:      b.Goto,
		GotoJS:    b.GotoJS,
		GotoEvent: b.GotoEvent,
	}
}

// ToRoutingDefaults converts routing.defaults into engine.RoutingDefaults.
func (c *Config) ToRoutingDefaults() engine.RoutingDefaults {
	return engine.RoutingDefaults{
		OnSuccess:    c.Routing.OnSuccess.toEngineBlock(),
		OnFail:       c.Routing.OnFail.toEngineBlock(),
		OnFinish:     c.Routing.OnFinish.toEngineBlock(),
		GlobalFailIf: c.Routing.GlobalFailIf,
	}
}

// ToEngineOptions converts the engine: and routing: sections into the
// engine.Option slice NewEngine expects.
func (c *Config) ToEngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithMaxParallelism(c.Engine.MaxParallelism),
		engine.WithDefaultCheckTimeout(parseDurationOr(c.Engine.DefaultTimeout, 30*time.Second)),
		engine.WithRunBudget(parseDurationOr(c.Engine.RunBudget, 10*time.Minute)),
		engine.WithMaxLoops(c.Engine.MaxLoops),
		engine.WithRoutingDefaults(c.ToRoutingDefaults()),
	}
	if c.Engine.FailFast {
		opts = append(opts, engine.WithFailFast(true))
	}
	if c.Routing.GlobalFailIf != "" {
		opts = append(opts, engine.WithGlobalFailIf(c.Routing.GlobalFailIf))
	}
	return opts
}

// CheckIDs returns every declared check id, in declaration order — used to
// wire provider/script's outputs/outputs_raw/outputs_history resolution.
func (c *Config) CheckIDs() []string {
	ids := make([]string, 0, len(c.Checks))
	for _, cc := range c.Checks {
		ids = append(ids, cc.ID)
	}
	return ids
}
