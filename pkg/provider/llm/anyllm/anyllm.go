// Package anyllm answers assistant commands through
// github.com/mozilla-ai/any-llm-go, which fronts hosted and local chat
// backends behind one API.
//
//	p, err := anyllm.New(anyllm.Config{Backend: "ollama", Model: "gemma3:4b"})
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	"github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps config names to SDK constructors. Hosted backends read their
// API key from the environment (e.g. OPENAI_API_KEY) when none is given.
var backends = map[string]constructor{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return openai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// keyless backends run locally and take no API key.
var keyless = map[string]bool{"ollama": true}

// Backends returns the supported backend names, sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Config selects a backend and model.
type Config struct {
	Backend string
	Model   string

	// APIKey overrides the backend's environment variable. Ignored for
	// local backends.
	APIKey string

	// BaseURL points at a non-default endpoint, e.g. a remote ollama.
	BaseURL string
}

func (c Config) options() []anyllmlib.Option {
	var opts []anyllmlib.Option
	if c.APIKey != "" && !keyless[c.Backend] {
		opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(c.BaseURL))
	}
	return opts
}

// Provider implements llm.Provider on top of one any-llm-go backend.
type Provider struct {
	backend string
	model   string
	client  anyllmlib.Provider
}

var _ llm.Provider = (*Provider)(nil)

var errNoMessages = errors.New("anyllm: request has no messages")

// New connects nothing yet; the SDK client dials on first use.
func New(cfg Config) (*Provider, error) {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Model == "" {
		return nil, errors.New("anyllm: model is required")
	}
	mk, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
	client, err := mk(cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", cfg.Backend, err)
	}
	return &Provider{backend: cfg.Backend, model: cfg.Model, client: client}, nil
}

// Name returns the backend name, e.g. "openai".
func (p *Provider) Name() string { return p.backend }

func (p *Provider) Model() string { return p.model }

// StreamCompletion forwards the SDK stream as llm chunks. A backend failure
// after the stream started arrives as a final [llm.FinishError] chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if len(req.Messages) == 0 {
		return nil, errNoMessages
	}
	deltas, errs := p.client.CompletionStream(ctx, p.params(req))

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for d := range deltas {
			if len(d.Choices) == 0 {
				continue
			}
			c := d.Choices[0]
			if !send(llm.Chunk{Text: c.Delta.Content, FinishReason: c.FinishReason}) {
				return
			}
		}
		// errs only yields once deltas is closed.
		if err := <-errs; err != nil {
			send(llm.Chunk{Text: err.Error(), FinishReason: llm.FinishError})
		}
	}()
	return out, nil
}

// Complete waits for the whole reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errNoMessages
	}
	resp, err := p.client.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.backend, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.backend)
	}

	out := &llm.CompletionResponse{Content: strings.TrimSpace(resp.Choices[0].Message.ContentString())}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// params prepends the system prompt and leaves zero tuning knobs unset.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
