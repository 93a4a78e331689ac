// Package llm adapts chat-completion SDKs (Anthropic, OpenAI, Google) into
// engine.Provider, so a check can be backed by a live LLM call behind one
// vendor-neutral ChatModel interface.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/checkrun/engine"
)

// Message is a single turn in a chat-style prompt.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Role constants mirror the common chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is a chat completion's structured output.
type ChatOut struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ChatModel is the narrow interface every vendor adapter in this package
// implements, modeled on the single-method chat abstraction the rest of the
// ecosystem converges on.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []Message) (ChatOut, error)
}

// Provider adapts a ChatModel into engine.Provider. The check's Config
// payload supplies "model" (string), "system" (string, optional), and
// "prompt" (string) or "messages" ([]any of {role, content} maps). On
// success Content carries the chat text; Output is the decoded first fenced
// ```json block when the reply contains one, otherwise the text itself. A
// cost tracker, when set, records token usage under the check's id.
type Provider struct {
	model   ChatModel
	cost    *engine.CostTracker
	vendor  string
	dfltTag string
}

// New returns a Provider wrapping model. vendor names the chat vendor (e.g.
// "anthropic", "openai", "google"); cost-tracker entries are keyed by model
// name. When cost is nil, Invoke records usage into CheckContext.Cost
// instead, if that is set.
func New(model ChatModel, vendor string, cost *engine.CostTracker) *Provider {
	return &Provider{model: model, vendor: vendor, cost: cost}
}

// Invoke implements engine.Provider.
func (p *Provider) Invoke(cctx *engine.CheckContext) (engine.CheckResult, error) {
	messages, err := buildMessages(cctx.Config)
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}

	modelName, _ := cctx.Config["model"].(string)

	out, err := p.model.Chat(cctx.Context, modelName, messages)
	if err != nil {
		return engine.CheckResult{Error: &engine.ErrorInfo{Kind: engine.ErrorKindProvider, Message: err.Error()}}, nil
	}

	tracker := p.cost
	if tracker == nil {
		tracker = cctx.Cost // run-level tracker from engine.WithCostTracker
	}
	if tracker != nil && modelName != "" {
		tracker.RecordLLMCall(modelName, out.InputTokens, out.OutputTokens, cctx.CheckID)
	}

	result := engine.CheckResult{Output: out.Text, Content: out.Text}
	if structured, ok := extractStructured(out.Text); ok {
		result.Output = structured
	}
	return result, nil
}

func buildMessages(cfg map[string]any) ([]Message, error) {
	if raw, ok := cfg["messages"].([]any); ok {
		messages := make([]Message, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, errors.New("llm: messages entries must be role/content maps")
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			messages = append(messages, Message{Role: role, Content: content})
		}
		return messages, nil
	}

	prompt, _ := cfg["prompt"].(string)
	if prompt == "" {
		return nil, errors.New("llm: config must set \"prompt\" or \"messages\"")
	}

	var messages []Message
	if system, _ := cfg["system"].(string); system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	return messages, nil
}

// ErrNotConfigured is returned by the vendor ChatModels' Chat methods when a
// required credential is missing.
var ErrNotConfigured = fmt.Errorf("llm: provider not configured")
