// Package mock provides a scripted llm.Provider for tests.
//
// Replies are consumed in order by both Complete and StreamCompletion; once
// exhausted, the last reply repeats. Every request is recorded so tests can
// assert on the conversation history the assistant sent.
//
//	p := &mock.Provider{Replies: []string{"It is noon."}}
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	// Replies are returned in order.
	Replies []string

	// Err, if non-nil, fails every call.
	Err error

	// StreamErr, if non-nil, lets StreamCompletion start and then fail with
	// a single FinishError chunk, the way SDK streams report a refused
	// connection.
	StreamErr error

	mu       sync.Mutex
	next     int
	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) take(req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req.Messages = slices.Clone(req.Messages)
	p.requests = append(p.requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Replies) == 0 {
		return "", nil
	}
	i := min(p.next, len(p.Replies)-1)
	p.next++
	return p.Replies[i], nil
}

// Complete records req and returns the next reply.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	reply, err := p.take(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// StreamCompletion records req and emits the next reply word by word.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	reply, err := p.take(req)
	if err != nil {
		return nil, err
	}
	if p.StreamErr != nil {
		ch := make(chan llm.Chunk, 1)
		ch <- llm.Chunk{Text: p.StreamErr.Error(), FinishReason: llm.FinishError}
		close(ch)
		return ch, nil
	}
	words := strings.SplitAfter(reply, " ")
	ch := make(chan llm.Chunk, len(words)+1)
	go func() {
		defer close(ch)
		for _, w := range words {
			select {
			case ch <- llm.Chunk{Text: w}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- llm.Chunk{FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}
