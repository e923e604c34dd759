package memory

import (
	"context"
	"log"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/nim-memory/core"
)

// KeyPrefix namespaces conversation logs in the key-value store.
const KeyPrefix = "convo:"

// DefaultHistoryCap is the default bound on a conversation log.
const DefaultHistoryCap = 5

// ConversationKey returns the key-value key holding a conversation log.
func ConversationKey(conversationID string) string {
	return KeyPrefix + conversationID
}

// RecencyStore keeps a bounded log of turns per conversation.
//
// A completed user/assistant pair is compressed into a single memory turn and
// the log is truncated to the last historyCap entries. Truncation is the only
// eviction policy: plain FIFO over memory turns.
type RecencyStore struct {
	kv         KV
	summarizer Summarizer
	historyCap int
}

// NewRecencyStore creates a RecencyStore. A historyCap <= 0 uses DefaultHistoryCap.
func NewRecencyStore(kv KV, summarizer Summarizer, historyCap int) *RecencyStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &RecencyStore{
		kv:         kv,
		summarizer: summarizer,
		historyCap: historyCap,
	}
}

// HistoryCap returns the log bound.
func (s *RecencyStore) HistoryCap() int {
	return s.historyCap
}

// Load returns the conversation log, or an empty log when none exists.
func (s *RecencyStore) Load(ctx context.Context, conversationID string) ([]core.Turn, error) {
	key := ConversationKey(conversationID)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, &StoreError{Op: "get", Key: key, Err: err}
	}
	if len(raw) == 0 {
		return []core.Turn{}, nil
	}

	var turns []core.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, &StoreError{Op: "decode", Key: key, Err: err}
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	return turns, nil
}

// Append adds turn to the conversation log.
//
// When turn is an assistant reply to a pending user turn, the pair is replaced
// by a memory turn holding their summary, which is returned with compressed set.
// The summary is returned even if saving the log fails, so the caller can still
// archive it. An assistant turn with no pending user turn is discarded.
func (s *RecencyStore) Append(ctx context.Context, conversationID string, turn core.Turn) (summary string, compressed bool, err error) {
	history, err := s.Load(ctx, conversationID)
	if err != nil {
		return "", false, err
	}

	switch turn.Role {
	case core.RoleAssistant:
		n := len(history)
		if n == 0 || history[n-1].Role != core.RoleUser {
			log.Printf("[RECENCY] Dropping assistant turn without pending user turn (conversation=%s)", conversationID)
			break
		}
		summary = s.summarizer.Summarize(history[n-1].Content, turn.Content)
		history = append(history, core.NewMemoryTurn(summary))
		history = memoriesOnly(history)
		compressed = true
	default:
		history = append(history, turn)
	}

	history = lastN(history, s.historyCap)
	if err := s.save(ctx, conversationID, history); err != nil {
		return summary, compressed, err
	}
	return summary, compressed, nil
}

// Delete removes the conversation log.
func (s *RecencyStore) Delete(ctx context.Context, conversationID string) error {
	key := ConversationKey(conversationID)
	if err := s.kv.Delete(ctx, key); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Conversations lists the ids of every stored conversation, sorted and
// without duplicates. A key-value scan may report a key more than once.
func (s *RecencyStore) Conversations(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, &StoreError{Op: "keys", Key: KeyPrefix + "*", Err: err}
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, KeyPrefix))
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (s *RecencyStore) save(ctx context.Context, conversationID string, history []core.Turn) error {
	key := ConversationKey(conversationID)
	raw, err := json.Marshal(history)
	if err != nil {
		return &StoreError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func memoriesOnly(turns []core.Turn) []core.Turn {
	out := turns[:0]
	for _, t := range turns {
		if t.Role == core.RoleMemory {
			out = append(out, t)
		}
	}
	return out
}

func lastN(turns []core.Turn, n int) []core.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
