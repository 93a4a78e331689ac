// Package config loads and validates the YAML workflow definition: the set
// of checks, their providers and dependencies, routing defaults, and engine
// tuning knobs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RoutingBlockConfig mirrors engine.RoutingBlock in YAML form.
type RoutingBlockConfig struct {
	Run       []string `yaml:"run"`
	RunJS     string   `yaml:"run_js"`
	Goto      string   `yaml:"goto"`
	GotoJS    string   `yaml:"goto_js"`
	GotoEvent string   `yaml:"goto_event"`
}

// RetryConfig mirrors engine.RetryPolicy in YAML form, with durations
// expressed as Go duration strings (e.g. "500ms", "2s").
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
}

// CheckConfig is one check's YAML definition.
type CheckConfig struct {
	ID        string `yaml:"id"`
	Provider  string `yaml:"provider"`
	DependsOn []string `yaml:"depends_on"`

	ForEach bool   `yaml:"for_each"`
	Fanout  string `yaml:"fanout"`

	If     string `yaml:"if"`
	FailIf string `yaml:"fail_if"`

	OnSuccess *RoutingBlockConfig `yaml:"on_success"`
	OnFail    *RoutingBlockConfig `yaml:"on_fail"`
	OnFinish  *RoutingBlockConfig `yaml:"on_finish"`

	Schema  string       `yaml:"schema"`
	Tags    []string     `yaml:"tags"`
	Group   string       `yaml:"group"`
	Timeout string       `yaml:"timeout"`
	Retry   *RetryConfig `yaml:"retry"`

	With map[string]any `yaml:"with"`
}

// RoutingDefaultsConfig mirrors engine.RoutingDefaults in YAML form.
type RoutingDefaultsConfig struct {
	OnSuccess    *RoutingBlockConfig `yaml:"on_success"`
	OnFail       *RoutingBlockConfig `yaml:"on_fail"`
	OnFinish     *RoutingBlockConfig `yaml:"on_finish"`
	GlobalFailIf string              `yaml:"global_fail_if"`
}

// EngineConfig captures the scheduler tuning knobs exposed as engine.Options.
type EngineConfig struct {
	MaxParallelism int    `yaml:"max_parallelism"`
	DefaultTimeout string `yaml:"default_timeout"`
	RunBudget      string `yaml:"run_budget"`
	FailFast       bool   `yaml:"fail_fast"`
	MaxLoops       int    `yaml:"max_loops"`
}

// MemoryConfig configures the optional file-backed Memory Store.
type MemoryConfig struct {
	Namespace string `yaml:"namespace"`
	Persist   bool   `yaml:"persist"`
	File      string `yaml:"file"`
	Format    string `yaml:"format"`
}

// Config is the top-level workflow definition.
type Config struct {
	Engine  EngineConfig          `yaml:"engine"`
	Routing RoutingDefaultsConfig `yaml:"routing"`
	Memory  MemoryConfig          `yaml:"memory"`
	Checks  []CheckConfig         `yaml:"checks"`
}

// DefaultEngineConfig mirrors engine.defaultEngineConfig's values so a
// workflow file that omits the engine: section behaves identically.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxParallelism: 8,
		DefaultTimeout: "30s",
		RunBudget:      "10m",
		FailFast:       false,
		MaxLoops:       10,
	}
}

// Load reads and parses a workflow YAML file, filling engine defaults for an
// omitted engine: section, then validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses workflow YAML from an in-memory buffer.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Engine: DefaultEngineConfig()}

	var raw struct {
		Engine *EngineConfig `yaml:"engine"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if raw.Engine == nil {
		cfg.Engine = DefaultEngineConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants a malformed workflow file might
// violate, ahead of the engine's own cycle/unknown-dependency validation.
func (c *Config) Validate() error {
	if len(c.Checks) == 0 {
		return fmt.Errorf("config: workflow must declare at least one check")
	}

	seen := make(map[string]bool, len(c.Checks))
	for i, check := range c.Checks {
		if check.ID == "" {
			return fmt.Errorf("config: checks[%d] missing id", i)
		}
		if seen[check.ID] {
			return fmt.Errorf("config: duplicate check id %q", check.ID)
		}
		seen[check.ID] = true

		if check.Provider == "" {
			return fmt.Errorf("config: check %q missing provider", check.ID)
		}
		if check.Fanout != "" && check.Fanout != "map" && check.Fanout != "reduce" {
			return fmt.Errorf("config: check %q has invalid fanout %q, must be \"map\" or \"reduce\"", check.ID, check.Fanout)
		}
		if check.Timeout != "" {
			if _, err := time.ParseDuration(check.Timeout); err != nil {
				return fmt.Errorf("config: check %q has invalid timeout %q: %w", check.ID, check.Timeout, err)
			}
		}
		if check.Retry != nil {
			if check.Retry.BaseDelay != "" {
				if _, err := time.ParseDuration(check.Retry.BaseDelay); err != nil {
					return fmt.Errorf("config: check %q retry.base_delay invalid: %w", check.ID, err)
				}
			}
			if check.Retry.MaxDelay != "" {
				if _, err := time.ParseDuration(check.Retry.MaxDelay); err != nil {
					return fmt.Errorf("config: check %q retry.max_delay invalid: %w", check.ID, err)
				}
			}
		}
	}

	if c.Engine.MaxParallelism < 0 {
		return fmt.Errorf("config: engine.max_parallelism must be >= 0, got %d", c.Engine.MaxParallelism)
	}
	if c.Engine.MaxLoops < 0 {
		return fmt.Errorf("config: engine.max_loops must be >= 0, got %d", c.Engine.MaxLoops)
	}
	if c.Memory.Persist && c.Memory.File == "" {
		return fmt.Errorf("config: memory.file must be set when memory.persist is true")
	}
	if c.Memory.Format != "" && c.Memory.Format != "json" && c.Memory.Format != "csv" {
		return fmt.Errorf("config: memory.format must be \"json\" or \"csv\", got %q", c.Memory.Format)
	}

	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitPipeDeps(deps []string) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, strings.TrimSpace(d))
	}
	return out
}
