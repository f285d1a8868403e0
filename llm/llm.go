// Package llm defines the provider-agnostic chat contract used by the
// orchestrator and the concrete backend variants behind it. The variant set
// is closed and fixed at build time: Ollama and OpenRouter (both speaking the
// OpenAI chat-completions wire format) and Anthropic. New maps a
// configuration tag to an instance.
package llm

import "context"

// Message is one role-tagged prompt element.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Response is the text produced by a backend for one chat exchange.
type Response struct {
	Content string `json:"content"`
}

// Provider is the capability set every backend variant implements. Wire
// formats are the variant's own business; callers see text in, text out.
type Provider interface {
	// Chat sends the ordered message list and returns the generated text.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// TestConnection reports whether the backend is reachable with the
	// configured credentials. It never returns an error; failures are false.
	TestConnection(ctx context.Context) bool

	// ModelName returns the configured model identifier.
	ModelName() string
}
