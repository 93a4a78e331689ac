package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel implements ChatModel for Google's Gemini API.
type GoogleModel struct {
	apiKey       string
	defaultModel string
}

// NewGoogleModel returns a GoogleModel. defaultModel is used when a call
// omits "model"; empty falls back to gemini-2.5-flash.
func NewGoogleModel(apiKey, defaultModel string) *GoogleModel {
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &GoogleModel{apiKey: apiKey, defaultModel: defaultModel}
}

// Chat implements ChatModel. Gemini has no distinct system-role message, so
// system content is passed as the model's SystemInstruction.
func (m *GoogleModel) Chat(ctx context.Context, modelName string, messages []Message) (ChatOut, error) {
	if m.apiKey == "" {
		return ChatOut{}, ErrNotConfigured
	}
	if modelName == "" {
		modelName = m.defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return ChatOut{}, fmt.Errorf("google: create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(modelName)

	var parts []genai.Part
	system, rest := extractSystem(messages)
	if system != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	for _, msg := range rest {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return ChatOut{}, fmt.Errorf("google: %w", err)
	}

	var text string
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					if text != "" {
						text += "\n"
					}
					text += string(t)
				}
			}
		}
	}

	var inputTokens, outputTokens int
	if resp != nil && resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return ChatOut{Text: text, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
}
