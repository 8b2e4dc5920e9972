// Package llm defines the provider-agnostic chat interface used by the RAG
// executor, the metrics analyzer, and the comment pipeline. Only a single
// composed-prompt Chat call is needed: the pipeline never streams, never
// issues tool calls, and never threads multi-turn state through a provider.
package llm

import "context"

// Message is one turn in a chat-style exchange.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Provider is a chat-completion backend. Implementations wrap a single
// vendor SDK (OpenAI, Anthropic) behind this narrow surface so callers never
// depend on vendor types.
type Provider interface {
	// Chat sends msgs to model at the given temperature and returns the
	// assistant's reply. Callers that expect JSON are responsible for
	// stripping ```json code-fence wrappers before parsing the result.
	Chat(ctx context.Context, msgs []Message, model string, temperature float64) (Message, error)
}
