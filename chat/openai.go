package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/becomeliminal/nim-memory/core"
)

// OpenAI completes contexts with the Chat Completions API.
// Memory turns become the system message.
type OpenAI struct {
	client    openai.Client
	maxTokens int64
	system    string
}

var _ Backend = (*OpenAI)(nil)

// NewOpenAI creates a GPT backend. maxTokens <= 0 uses 1024.
func NewOpenAI(apiKey string, maxTokens int, opts ...option.RequestOption) *OpenAI {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{
		client:    openai.NewClient(opts...),
		maxTokens: int64(maxTokens),
		system:    DefaultSystemPrompt,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Complete sends one chat completion request and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, model string, c core.Context) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt(o.system, c)),
	}
	for _, t := range dialogue(c) {
		if t.Role == core.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  messages,
		MaxTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
