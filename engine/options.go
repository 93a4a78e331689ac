package engine

import "time"

// Option configures an Engine at construction time. Functional options keep
// New's signature stable as configuration surface grows: chainable, self
// documenting, and each one optional.
type Option func(*engineConfig)

type engineConfig struct {
	maxParallelism int
	defaultTimeout time.Duration
	runBudget      time.Duration
	failFast       bool
	maxLoops       int
	metrics        *Metrics
	costTracker    *CostTracker
	routing        RoutingDefaults
	globalFailIf   string
	checkpoints    CheckpointStore
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		maxParallelism: 8,
		defaultTimeout: 30 * time.Second,
		runBudget:      10 * time.Minute,
		maxLoops:       10,
	}
}

// WithMaxParallelism bounds the number of checks executing concurrently
// within a wave. Default: 8.
func WithMaxParallelism(n int) Option {
	return func(cfg *engineConfig) { cfg.maxParallelism = n }
}

// WithDefaultCheckTimeout sets the per-check timeout applied when a check
// does not configure its own. Default: 30s.
func WithDefaultCheckTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) { cfg.defaultTimeout = d }
}

// WithRunBudget sets the wall-clock budget for the entire run. Default: 10m.
// Set to 0 to disable.
func WithRunBudget(d time.Duration) Option {
	return func(cfg *engineConfig) { cfg.runBudget = d }
}

// WithFailFast terminates the run after the first committed entry carrying
// a critical issue or a non-recoverable error, cancelling in-flight checks.
func WithFailFast(enabled bool) Option {
	return func(cfg *engineConfig) { cfg.failFast = enabled }
}

// WithMaxLoops bounds the total routing emissions per run. Default: 10.
func WithMaxLoops(n int) Option {
	return func(cfg *engineConfig) { cfg.maxLoops = n }
}

// WithMetrics enables Prometheus metrics collection for wave and routing
// activity.
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) { cfg.metrics = m }
}

// WithCostTracker attaches a run-level cost tracker to every CheckContext,
// so providers that bill tokens (e.g. the llm provider) record usage into
// it without per-provider wiring.
func WithCostTracker(t *CostTracker) Option {
	return func(cfg *engineConfig) { cfg.costTracker = t }
}

// WithRoutingDefaults sets routing.defaults.{on_success,on_fail,on_finish}
// merged beneath every check's own routing blocks.
func WithRoutingDefaults(d RoutingDefaults) Option {
	return func(cfg *engineConfig) { cfg.routing = d }
}

// WithCheckpointStore persists every committed entry and a per-wave
// RunCheckpoint to the given store, enabling Engine.Resume after a crash.
// Persistence failures are logged through the emitter and never fail the run.
func WithCheckpointStore(s CheckpointStore) Option {
	return func(cfg *engineConfig) { cfg.checkpoints = s }
}

// WithGlobalFailIf sets the workflow-level fail_if expression evaluated
// alongside every check's own fail_if.
func WithGlobalFailIf(expr string) Option {
	return func(cfg *engineConfig) { cfg.globalFailIf = expr }
}
