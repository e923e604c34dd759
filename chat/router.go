package chat

import (
	"fmt"
	"strings"
)

// Router picks a backend by model name:
// "gpt-*" → OpenAI, "claude*" → Anthropic, "mistral" and "local" → Ollama.
type Router struct {
	openai    Backend
	anthropic Backend
	ollama    Backend
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithOpenAI serves gpt-* models.
func WithOpenAI(b Backend) RouterOption {
	return func(r *Router) { r.openai = b }
}

// WithAnthropic serves claude* models.
func WithAnthropic(b Backend) RouterOption {
	return func(r *Router) { r.anthropic = b }
}

// WithOllama serves mistral and local models.
func WithOllama(b Backend) RouterOption {
	return func(r *Router) { r.ollama = b }
}

// NewRouter creates a Router. Unset backends leave their models unsupported.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the backend for model, or an error wrapping ErrUnsupportedModel.
func (r *Router) Route(model string) (Backend, error) {
	var b Backend
	switch {
	case strings.HasPrefix(model, "gpt-"):
		b = r.openai
	case strings.HasPrefix(model, "claude"):
		b = r.anthropic
	case model == "mistral" || model == "local":
		b = r.ollama
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %q (backend not configured)", ErrUnsupportedModel, model)
	}
	return b, nil
}

// Models lists the model names the configured backends can serve.
func (r *Router) Models() []string {
	var models []string
	if r.openai != nil {
		models = append(models, "gpt-3.5-turbo", "gpt-4")
	}
	if r.anthropic != nil {
		models = append(models, "claude-3-opus-20240229")
	}
	if r.ollama != nil {
		models = append(models, "mistral")
	}
	return models
}
