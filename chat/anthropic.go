package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-memory/core"
)

// Anthropic completes contexts with the Claude Messages API.
// Memory turns are folded into the system prompt.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
	system    string
}

var _ Backend = (*Anthropic)(nil)

// NewAnthropic creates a Claude backend. maxTokens <= 0 uses 1024.
func NewAnthropic(apiKey string, maxTokens int, opts ...option.RequestOption) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
		system:    DefaultSystemPrompt,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete sends one Messages request and returns the concatenated text blocks.
func (a *Anthropic) Complete(ctx context.Context, model string, c core.Context) (string, error) {
	var messages []anthropic.MessageParam
	for _, t := range dialogue(c) {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("context has no user turn")
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		Messages:  messages,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(a.system, c)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}
