package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles used throughout the prompt pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source describes one library item surfaced as grounding for an answer.
// Immutable once constructed; Year falls back to the sentinel "n.d." and
// ItemType to "unknown" when the service omits them.
type Source struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Authors  string `json:"authors"` // "Last, First; Last, First" or a bare name
	Year     string `json:"year"`    // 4-digit string or "n.d."
	ItemType string `json:"itemType"`
	Abstract string `json:"abstract,omitempty"`
}

// ChatMessage is one turn of the conversation. The orchestrator only reads
// history; it never mutates it. An assistant turn may carry the sources that
// grounded it, which later turns reuse as carry-forward context.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // RoleUser or RoleAssistant
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage builds a turn with a fresh id and the current time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Attachment is a free-form note the user pinned to a single query. Its
// content reaches the model prompt only, never the search query.
type Attachment struct {
	Name    string
	Content string
}

// LatestSourcedTurn walks history backward and returns the sources of the
// most recent assistant turn that carries any, or nil.
func LatestSourcedTurn(history []ChatMessage) []Source {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && len(history[i].Sources) > 0 {
			return history[i].Sources
		}
	}
	return nil
}
