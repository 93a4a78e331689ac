package llm

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel implements ChatModel for OpenAI's chat completions API.
type OpenAIModel struct {
	apiKey       string
	defaultModel string
}

// NewOpenAIModel returns an OpenAIModel. defaultModel is used when a call
// omits "model"; empty falls back to gpt-4o.
func NewOpenAIModel(apiKey, defaultModel string) *OpenAIModel {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIModel{apiKey: apiKey, defaultModel: defaultModel}
}

// Chat implements ChatModel.
func (m *OpenAIModel) Chat(ctx context.Context, modelName string, messages []Message) (ChatOut, error) {
	if m.apiKey == "" {
		return ChatOut{}, ErrNotConfigured
	}
	if modelName == "" {
		modelName = m.defaultModel
	}

	client := openaisdk.NewClient(option.WithAPIKey(m.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: convertOpenAIMessages(messages),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatOut{}, nil
	}

	return ChatOut{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func convertOpenAIMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}
