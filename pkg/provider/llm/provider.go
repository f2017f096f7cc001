// Package llm defines the boundary to large language model backends used by
// the assistant to answer transcribed commands.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is sent ahead of the conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history; the last entry is the
	// user's command.
	Messages []Message

	// Temperature in [0.0, 2.0]. Zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the backend default.
	MaxTokens int
}

// Chunk is one fragment of a streaming completion.
type Chunk struct {
	Text string

	// FinishReason is set on the final chunk ("stop", "length") or to
	// FinishError when the stream failed after it started; Text then carries
	// the error message.
	FinishReason string
}

// FinishError marks a chunk reporting a mid-stream failure.
const FinishError = "error"

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req and returns a channel of reply fragments. The
	// initial error is non-nil only when the stream could not start.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains a completion stream into a single string. A chunk with
// [FinishError] ends collection with an error.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var out []byte
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return string(out), nil
			}
			if c.FinishReason == FinishError {
				return string(out), &StreamError{Message: c.Text}
			}
			out = append(out, c.Text...)
		case <-ctx.Done():
			return string(out), ctx.Err()
		}
	}
}

// StreamError reports a failure that happened after a stream started.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "llm: stream failed: " + e.Message }
