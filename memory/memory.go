package memory

import (
	"context"
	"time"
)

// KV is the key-value backend behind the recency buffer.
// Implementations: kv/redis (default), kv/postgres, kv/inmem, kv/cached (wrapper).
type KV interface {
	// Get returns the value stored at key, or nil with no error when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key without expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// SemanticIndex is the similarity index behind semantic recall.
// Implementations: index/flat (disk-backed squared-L2), index/chromem (chromem-go).
//
// Record positions inside the index are never exposed. Add must be safe to call
// from concurrent conversations.
type SemanticIndex interface {
	// Add appends a record and persists the index before returning.
	Add(ctx context.Context, text string, embedding []float32, meta Metadata) error

	// Search returns up to k records of conversationID nearest to embedding,
	// closest first. Callers may receive fewer than k records even when more
	// exist: candidates are over-fetched by 2x and then filtered by conversation.
	Search(ctx context.Context, embedding []float32, k int, conversationID string) ([]Record, error)

	// Len returns the number of vectors held by the index.
	Len() int

	// Dump returns every known record in insertion order. Diagnostic only.
	Dump() []Record

	// Close releases resources.
	Close() error
}

// Embedder converts text to embedding vectors.
// Implementations: embedder/ollama, embedder/onnx, embedder/mock.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Summarizer compresses a user/assistant exchange into one fact.
// Summarize must be deterministic and must not fail; on unusable input it
// returns a degraded (possibly empty) compression.
type Summarizer interface {
	Summarize(userText, assistantText string) string
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(userText, assistantText string) string

// Summarize calls f.
func (f SummarizerFunc) Summarize(userText, assistantText string) string {
	return f(userText, assistantText)
}

// MetricsSink receives Manager events. A nil sink disables reporting.
type MetricsSink interface {
	RecordIndexed(source string)
	VectorError(stage string)
	StoreError(op string)
	ContextBuilt(vectorItems, kvItems int, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordIndexed(string)                 {}
func (noopMetrics) VectorError(string)                   {}
func (noopMetrics) StoreError(string)                    {}
func (noopMetrics) ContextBuilt(int, int, time.Duration) {}
