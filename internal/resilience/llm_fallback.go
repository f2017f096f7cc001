package resilience

import (
	"context"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across chat backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback prefers primary and tries fallbacks in the order added.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

func (f *LLMFallback) States() []BackendState { return f.group.States() }

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion returns the stream of the first backend whose opening
// chunk is not an error. Failures after the first chunk reach the caller.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		ch, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		return firstChunk(ctx, ch)
	})
}

// firstChunk waits for the opening chunk of ch and turns an immediate
// FinishError into an error. The returned channel replays that chunk.
func firstChunk(ctx context.Context, ch <-chan llm.Chunk) (<-chan llm.Chunk, error) {
	var (
		head llm.Chunk
		ok   bool
	)
	select {
	case head, ok = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if ok && head.FinishReason == llm.FinishError {
		return nil, &llm.StreamError{Message: head.Text}
	}

	out := make(chan llm.Chunk, cap(ch)+1)
	if !ok {
		close(out)
		return out, nil
	}
	out <- head
	go func() {
		defer close(out)
		for c := range ch {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
