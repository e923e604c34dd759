// Package chat runs memory-backed conversation turns against a language
// model backend chosen by model name.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
)

// ErrUnsupportedModel is returned when no backend serves a model name.
var ErrUnsupportedModel = errors.New("unsupported model")

// DefaultSystemPrompt frames recalled memories for chat-style backends.
const DefaultSystemPrompt = `You are a helpful assistant in a long-running conversation.

Lines under "Memories" are compressed notes of earlier exchanges in this
conversation (lowercased and stemmed). Use them when they are relevant to the
user's message and ignore them otherwise. Never quote them verbatim.`

// Backend completes a model context into a reply.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Complete returns the model's reply to c, whose last turn is the user query.
	Complete(ctx context.Context, model string, c core.Context) (string, error)
}

// systemPrompt appends the memory turns of c to base.
func systemPrompt(base string, c core.Context) string {
	memories := c.Memories()
	if len(memories) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nMemories:\n")
	for _, m := range memories {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(m.Content, "\n", " / "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// dialogue returns the user and assistant turns of c in order.
func dialogue(c core.Context) []core.Turn {
	var out []core.Turn
	for _, t := range c {
		if t.Role == core.RoleUser || t.Role == core.RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}

// flatten renders c as a plain prompt: memory lines verbatim, live turns
// prefixed with "User: " or "Assistant: ".
func flatten(c core.Context) string {
	lines := make([]string, 0, len(c))
	for _, t := range c {
		switch t.Role {
		case core.RoleMemory:
			lines = append(lines, t.Content)
		case core.RoleUser:
			lines = append(lines, "User: "+t.Content)
		case core.RoleAssistant:
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	return strings.Join(lines, "\n")
}
