// Package cli implements the checkrun command-line interface: the Cobra
// commands that load a workflow file, wire its providers onto a Gateway, and
// drive the engine.
package cli

import (
	"os"

	"github.com/dshills/checkrun/config"
	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/memory"
	"github.com/dshills/checkrun/provider/command"
	"github.com/dshills/checkrun/provider/http"
	"github.com/dshills/checkrun/provider/llm"
	"github.com/dshills/checkrun/provider/memoryop"
	"github.com/dshills/checkrun/provider/script"
	"github.com/dshills/checkrun/sandbox"
)

// buildGateway registers one provider per built-in tag. "llm" picks its
// vendor from the ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY
// environment variables, in that order, so a workflow file never has to
// name a vendor explicitly.
func buildGateway(cfg *config.Config, cost *engine.CostTracker) *engine.Gateway {
	gw := engine.NewGateway()

	if model, vendor, ok := detectChatModel(); ok {
		gw.Register("llm", llm.New(model, vendor, cost))
	}

	gw.Register("command", command.New(""))
	gw.Register("http", http.New(3))
	gw.Register("memory", memoryop.New())
	gw.Register("script", script.New(sandbox.NewEvaluator(), cfg.CheckIDs()))

	return gw
}

func detectChatModel() (llm.ChatModel, string, bool) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return llm.NewAnthropicModel(key, "claude-3-5-sonnet-20241022"), "anthropic", true
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return llm.NewOpenAIModel(key, "gpt-4o"), "openai", true
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return llm.NewGoogleModel(key, "gemini-1.5-pro"), "google", true
	}
	return nil, "", false
}

// buildMemoryStore constructs the Memory Store from the workflow's memory:
// section, defaulting to an ephemeral in-process store when unconfigured.
// *memory.Store implements engine.MemoryHandle directly via its
// default-namespace methods.
func buildMemoryStore(cfg *config.Config) (*memory.Store, error) {
	return memory.New(memory.Options{
		Namespace: cfg.Memory.Namespace,
		Persist:   cfg.Memory.Persist,
		File:      cfg.Memory.File,
		Format:    memory.Format(cfg.Memory.Format),
	})
}
