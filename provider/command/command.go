// Package command adapts shell command execution into engine.Provider:
// an external process with captured stdout/stderr, run under a context
// deadline.
package command

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dshills/checkrun/engine"
)

// Provider runs a shell command per invocation. The check's Config payload
// supplies "command" (string, required), "args" ([]any of string, optional),
// "shell" (bool, optional: when true, or when no args are given, the command
// is passed to sh -c), and
// "env" (map[string]any, optional, appended to the inherited environment).
type Provider struct {
	shellPath string
}

// New returns a command Provider. shellPath defaults to "/bin/sh" when empty.
func New(shellPath string) *Provider {
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	return &Provider{shellPath: shellPath}
}

// Invoke implements engine.Provider.
func (p *Provider) Invoke(cctx *engine.CheckContext) (engine.CheckResult, error) {
	commandStr, _ := cctx.Config["command"].(string)
	if commandStr == "" {
		return engine.CheckResult{Error: &engine.ErrorInfo{
			Kind: engine.ErrorKindProvider, Message: "command: config must set \"command\"",
		}}, nil
	}

	useShell, _ := cctx.Config["shell"].(bool)
	args := stringSlice(cctx.Config["args"])

	var cmd *exec.Cmd
	if useShell || len(args) == 0 {
		cmd = exec.CommandContext(cctx.Context, p.shellPath, "-c", commandStr)
	} else {
		cmd = exec.CommandContext(cctx.Context, commandStr, args...)
	}

	if env, ok := cctx.Config["env"].(map[string]any); ok {
		cmd.Env = append(cmd.Environ(), envPairs(env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimRight(stdout.String(), "\n")

	if err != nil {
		msg := err.Error()
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(stderr.String()))
		}
		return engine.CheckResult{
			Content: output,
			Error:   &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: msg},
		}, nil
	}

	return engine.CheckResult{Output: output, Content: output}, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func envPairs(env map[string]any) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%v", k, v))
	}
	return out
}
