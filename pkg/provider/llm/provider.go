// Package llm defines the Provider interface for chat model backends.
//
// A provider wraps a remote or local chat API (DeepSeek, OpenAI, Ollama, a
// llama.cpp server) behind a uniform interface with two entry points: a
// token-streaming completion that feeds incremental speech synthesis, and a
// blocking completion used for session summaries.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Roles used in conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically user-role and drives the response.
	Messages []Message

	// SystemPrompt is injected before the history using the backend's native
	// system mechanism.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps generated tokens. Zero means provider default.
	MaxTokens int
}

// Message is a single entry in the conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the text of the message.
	Content string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental content. May be empty on the final chunk.
	Text string

	// FinishReason is set on the last chunk: "stop" (natural end), "length"
	// (MaxTokens reached), or "error". Empty for mid-stream chunks. When it
	// is "error", Text carries the error message.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat backend.
//
// Implementations must propagate context cancellation promptly: when ctx is
// cancelled the method must return, or close its channel, as quickly as
// possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// emitting Chunk values as they arrive. The channel is closed when
	// generation finishes or ctx is cancelled. Callers must drain it.
	//
	// Errors occurring after the stream opens arrive as a Chunk with
	// FinishReason "error"; the error return is non-nil only when the stream
	// cannot start at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
