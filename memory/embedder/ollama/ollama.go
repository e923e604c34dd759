// Package ollama embeds text with a local Ollama server (/api/embeddings).
package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/nim-memory/memory"
)

// Config configures the Ollama embedder.
type Config struct {
	// BaseURL of the Ollama server. Default: http://localhost:11434
	BaseURL string

	// Model used for embeddings. Default: mistral
	Model string

	// Dimensions is the expected vector size; 0 accepts any size.
	Dimensions int

	// Timeout for each request. Default: 30s
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Embedder calls Ollama's embeddings endpoint.
type Embedder struct {
	client     *http.Client
	endpoint   string
	model      string
	dimensions int
}

var _ memory.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// New creates an Ollama embedder.
func New(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Embedder{
		client:     client,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/api/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed converts text to an embedding vector.
// Every failure is a *memory.EmbeddingError.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, &memory.EmbeddingError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &memory.EmbeddingError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &memory.EmbeddingError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &memory.EmbeddingError{
			Op:  "response",
			Err: fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &memory.EmbeddingError{Op: "decode", Err: err}
	}
	if len(out.Embedding) == 0 {
		return nil, &memory.EmbeddingError{Op: "decode", Err: errors.New("response has no embedding")}
	}
	if e.dimensions > 0 && len(out.Embedding) != e.dimensions {
		return nil, &memory.EmbeddingError{
			Op:  "decode",
			Err: fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(out.Embedding), e.dimensions),
		}
	}
	return out.Embedding, nil
}

// Dimensions returns the configured embedding size (0 when unchecked).
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
