package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/nim-memory/core"
)

// Ollama completes contexts with a local Ollama server (/api/generate).
// The context is flattened into a single prompt.
type Ollama struct {
	client       *http.Client
	endpoint     string
	defaultModel string
}

var _ Backend = (*Ollama)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewOllama creates a local backend. The model name "local" resolves to
// defaultModel. A nil client uses http.DefaultClient.
func NewOllama(baseURL, defaultModel string, client *http.Client) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{
		client:       client,
		endpoint:     strings.TrimRight(baseURL, "/") + "/api/generate",
		defaultModel: defaultModel,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Complete posts a non-streaming generate request.
func (o *Ollama) Complete(ctx context.Context, model string, c core.Context) (string, error) {
	if model == "local" || model == "" {
		model = o.defaultModel
	}
	body, err := json.Marshal(generateRequest{Model: model, Prompt: flatten(c), Stream: false})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}
