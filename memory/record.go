package memory

import (
	"strings"

	"github.com/google/uuid"
)

// Source records which write path produced a vector record.
type Source string

const (
	// SourceUser marks a raw user message.
	SourceUser Source = "user"

	// SourceMemory marks the summary of a completed exchange.
	SourceMemory Source = "memory"
)

// Metadata is stored next to every vector record.
type Metadata struct {
	ConversationID string `json:"conversation_id"`
	Source         Source `json:"source,omitempty"`
}

// Record is a vector record without its embedding: the sidecar entry persisted
// alongside an index and the unit returned by Search.
type Record struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// NewConversationID returns a fresh random conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// echoKey normalizes text for the anti-echo comparison.
func echoKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
