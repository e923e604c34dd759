package memory

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// Manager records conversation turns into both memory tiers and assembles
// the context handed to the model on each turn.
//
// The Manager is the single logging boundary for the vector path: embedding
// and indexing failures are logged and counted here and never returned.
type Manager struct {
	recency  *RecencyStore
	index    SemanticIndex // nil disables semantic recall
	embedder Embedder      // nil disables semantic recall
	config   *Config
	metrics  MetricsSink
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics reports Manager events to sink.
func WithMetrics(sink MetricsSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.metrics = sink
		}
	}
}

// NewManager creates a Manager over the given tiers.
// index and embedder may be nil, in which case only the recency tier is used.
func NewManager(recency *RecencyStore, index SemanticIndex, embedder Embedder, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	m := &Manager{
		recency:  recency,
		index:    index,
		embedder: embedder,
		config:   config,
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordUser appends a user message to the conversation log and archives the
// raw text in the semantic index.
// Only a key-value failure is returned; the vector write is attempted either way.
func (m *Manager) RecordUser(ctx context.Context, conversationID string, text string) error {
	_, _, err := m.recency.Append(ctx, conversationID, core.NewUserTurn(text))
	if err != nil {
		m.metrics.StoreError("append")
		log.Printf("[MEMORY] Failed to append user turn (conversation=%s): %v", conversationID, err)
	}

	m.archive(ctx, conversationID, text, SourceUser)
	return err
}

// RecordAssistant appends the assistant reply. When it answers a pending user
// turn, the pair is compressed into a memory turn whose summary is archived in
// the semantic index.
func (m *Manager) RecordAssistant(ctx context.Context, conversationID string, text string) error {
	summary, compressed, err := m.recency.Append(ctx, conversationID, core.NewAssistantTurn(text))
	if err != nil {
		m.metrics.StoreError("append")
		log.Printf("[MEMORY] Failed to append assistant turn (conversation=%s): %v", conversationID, err)
	}

	if compressed {
		m.archive(ctx, conversationID, summary, SourceMemory)
	}
	return err
}

// BuildContext assembles the model context for query:
// semantically recalled memories, then the recency buffer's memories, then
// the query itself as a user turn.
//
// k bounds semantic recall; k <= 0 uses Config.TopK. Recall failures degrade to
// an empty recall; only a key-value failure is returned.
func (m *Manager) BuildContext(ctx context.Context, conversationID string, query string, k int) (core.Context, error) {
	start := time.Now()

	history, err := m.recency.Load(ctx, conversationID)
	if err != nil {
		m.metrics.StoreError("load")
		return nil, err
	}
	kvMemory := core.Context(history).Memories()

	if k <= 0 {
		k = m.config.TopK
	}
	vectorMemory := m.recall(ctx, conversationID, query, k)

	out := make(core.Context, 0, len(vectorMemory)+len(kvMemory)+1)
	out = append(out, vectorMemory...)
	out = append(out, kvMemory...)
	out = append(out, core.NewUserTurn(query))

	log.Printf("[MEMORY] Built context for conversation=%s: %d recalled, %d recent, query=%q",
		conversationID, len(vectorMemory), len(kvMemory), truncateLog(query, 50))
	m.metrics.ContextBuilt(len(vectorMemory), len(kvMemory), time.Since(start))

	return out, nil
}

// Conversations lists stored conversation ids.
func (m *Manager) Conversations(ctx context.Context) ([]string, error) {
	ids, err := m.recency.Conversations(ctx)
	if err != nil {
		m.metrics.StoreError("keys")
		return nil, err
	}
	return ids, nil
}

// DeleteConversation removes the conversation log.
// Archived vectors of the conversation are kept: the index is append-only.
func (m *Manager) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := m.recency.Delete(ctx, conversationID); err != nil {
		m.metrics.StoreError("delete")
		return err
	}
	log.Printf("[MEMORY] Deleted conversation %s (archived vectors retained)", conversationID)
	return nil
}

// Recap returns the memory turns currently in the recency buffer.
func (m *Manager) Recap(ctx context.Context, conversationID string) ([]core.Turn, error) {
	history, err := m.recency.Load(ctx, conversationID)
	if err != nil {
		m.metrics.StoreError("load")
		return nil, err
	}
	return core.Context(history).Memories(), nil
}

// DebugDump returns the contents of the semantic index in insertion order.
func (m *Manager) DebugDump() []Record {
	if m.index == nil {
		return nil
	}
	return m.index.Dump()
}

func (m *Manager) semanticEnabled() bool {
	return m.index != nil && m.embedder != nil
}

// archive embeds text and adds it to the semantic index, logging any failure.
func (m *Manager) archive(ctx context.Context, conversationID string, text string, source Source) {
	if !m.semanticEnabled() {
		return
	}

	err := m.addVector(ctx, conversationID, text, source)
	if err != nil {
		m.metrics.VectorError(vectorStage(err))
		log.Printf("[MEMORY] Vector write skipped (conversation=%s, source=%s): %v", conversationID, source, err)
		return
	}

	m.metrics.RecordIndexed(string(source))
	log.Printf("[MEMORY] Archived %s text for conversation=%s: %q", source, conversationID, truncateLog(text, 50))
}

func (m *Manager) addVector(ctx context.Context, conversationID string, text string, source Source) error {
	embedding, err := m.embed(ctx, text)
	if err != nil {
		return err
	}
	return m.index.Add(ctx, text, embedding, Metadata{
		ConversationID: conversationID,
		Source:         source,
	})
}

// recall returns the semantically recalled memory turns for query, minus
// any hit that merely echoes the query.
func (m *Manager) recall(ctx context.Context, conversationID string, query string, k int) []core.Turn {
	if !m.semanticEnabled() {
		return nil
	}

	embedding, err := m.embed(ctx, query)
	if err != nil {
		m.metrics.VectorError("embed")
		log.Printf("[MEMORY] Recall skipped, query embedding failed: %v", err)
		return nil
	}

	hits, err := m.index.Search(ctx, embedding, k, conversationID)
	if err != nil {
		m.metrics.VectorError("search")
		log.Printf("[MEMORY] Recall skipped, search failed: %v", err)
		return nil
	}

	needle := echoKey(query)
	var turns []core.Turn
	for _, hit := range hits {
		if echoKey(hit.Text) == needle {
			continue
		}
		turns = append(turns, core.NewMemoryTurn(hit.Text))
	}
	return turns
}

// embed runs the embedder under Config.EmbedTimeout and normalizes failures
// to *EmbeddingError.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if m.config.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.EmbedTimeout)
		defer cancel()
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		var embedErr *EmbeddingError
		if errors.As(err, &embedErr) {
			return nil, err
		}
		return nil, &EmbeddingError{Op: "embed", Err: err}
	}
	if len(embedding) == 0 {
		return nil, &EmbeddingError{Op: "embed", Err: errors.New("empty embedding")}
	}
	return embedding, nil
}

// Config holds Manager configuration.
type Config struct {
	// TopK is the default number of semantically recalled memories.
	// Default: 4
	TopK int

	// EmbedTimeout bounds each embedder call. On timeout the vector step is
	// skipped. Zero means no timeout beyond the caller's context.
	// Default: 10s
	EmbedTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	TopK:         4,
	EmbedTimeout: 10 * time.Second,
}
