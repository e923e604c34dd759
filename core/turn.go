package core

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser is a live utterance from the person chatting.
	RoleUser Role = "user"

	// RoleAssistant is a live reply from the language model.
	RoleAssistant Role = "assistant"

	// RoleMemory is a compressed fact derived from a completed exchange.
	// It is never a live utterance.
	RoleMemory Role = "memory"
)

// Turn is a single entry of a conversation as stored and as handed to a model.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the ordered turn sequence assembled for one model call.
// It is built fresh per query and never persisted.
type Context []Turn

// NewUserTurn returns a user turn with the given content.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn returns an assistant turn with the given content.
func NewAssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// NewMemoryTurn returns a memory turn with the given content.
func NewMemoryTurn(content string) Turn {
	return Turn{Role: RoleMemory, Content: content}
}

// Memories returns the memory turns of c in order.
func (c Context) Memories() []Turn {
	var out []Turn
	for _, t := range c {
		if t.Role == RoleMemory {
			out = append(out, t)
		}
	}
	return out
}
