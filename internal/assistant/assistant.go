// Package assistant runs the voice assistant loop: spot the wake phrase, cue
// the user, listen for a command and answer it through a chat backend.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/hearken/internal/listen"
	"github.com/MrWong99/hearken/internal/listen/segment"
	"github.com/MrWong99/hearken/internal/listen/wakeword"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// User-facing phrases.
const (
	MsgNothingHeard = "I didn't hear anything. Please try again."
	MsgFarewell     = "Goodbye!"
	MsgNoReply      = "Sorry, I couldn't generate a response."
	MsgFailure      = "Sorry, an error occurred. Please try again."
)

// DefaultExitPhrases end a conversation when they appear anywhere in a
// command.
var DefaultExitPhrases = []string{
	"goodbye", "bye", "exit", "quit", "stop",
	"end session", "that's all", "thank you bye",
}

// Listener is the part of [listen.Listener] the assistant drives.
type Listener interface {
	ListenForWake(ctx context.Context, opts ...listen.EpisodeOption) (listen.Episode, error)
	ListenForCommand(ctx context.Context, opts ...listen.EpisodeOption) (listen.Episode, error)
}

// Config holds the conversation settings. Zero fields take defaults.
type Config struct {
	// ExitPhrases end the conversation. Default: [DefaultExitPhrases].
	ExitPhrases []string

	// MaxHistory caps the messages sent as context. Default: 10.
	MaxHistory int

	// SessionTimeout is the idle time after which history is forgotten.
	// Default: 5 minutes.
	SessionTimeout time.Duration

	// SystemPrompt is sent ahead of the history.
	SystemPrompt string

	// ProviderName labels LLM metrics.
	ProviderName string

	// RetryDelay is the pause after a failed wake episode. Default: 1 s.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExitPhrases == nil {
		c.ExitPhrases = DefaultExitPhrases
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 10
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 5 * time.Minute
	}
	if c.ProviderName == "" {
		c.ProviderName = "llm"
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithHistory replaces the conversation history, e.g. to inject a clock in
// tests.
func WithHistory(h *History) Option {
	return func(a *Assistant) { a.history = h }
}

// Assistant is the wake → command → reply loop.
type Assistant struct {
	listener  Listener
	llm       llm.Provider
	responder Responder
	cfg       Config
	exits     []string
	history   *History
	metrics   *observe.Metrics
}

// New returns an Assistant.
func New(l Listener, p llm.Provider, r Responder, cfg Config, opts ...Option) *Assistant {
	cfg = cfg.withDefaults()
	a := &Assistant{
		listener:  l,
		llm:       p,
		responder: r,
		cfg:       cfg,
	}
	for _, phrase := range cfg.ExitPhrases {
		if p := wakeword.Normalize(phrase); p != "" {
			a.exits = append(a.exits, p)
		}
	}
	for _, o := range opts {
		o(a)
	}
	if a.history == nil {
		a.history = NewHistory(cfg.MaxHistory, cfg.SessionTimeout)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// History returns the conversation history.
func (a *Assistant) History() *History { return a.history }

// Run spots the wake phrase and handles one interaction per detection until
// ctx is cancelled. Failed episodes are logged and the loop continues.
func (a *Assistant) Run(ctx context.Context) error {
	slog.Info("assistant: listening for wake phrase")
	for {
		ep, err := a.listener.ListenForWake(ctx)
		if ctx.Err() != nil {
			slog.Info("assistant: stopped")
			return nil
		}
		if err != nil {
			if errors.Is(err, listen.ErrNoMatcher) {
				return fmt.Errorf("assistant: %w", err)
			}
			slog.Warn("assistant: wake episode failed, retrying", "err", err, "retry_in", a.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.cfg.RetryDelay):
			}
			continue
		}
		if !ep.Detected {
			continue
		}
		if _, err := a.Interact(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("assistant: interaction failed", "err", err)
		}
	}
}

// Interaction is the outcome of one [Assistant.Interact] call.
type Interaction struct {
	// Command is the recognized utterance, empty if nothing was heard.
	Command string

	// Reply is what the assistant said.
	Reply string

	// Exit is set when the command ended the conversation.
	Exit bool
}

// Interact cues the user, listens for one command and answers it. User-facing
// failures are turned into spoken apologies; the returned error is for logs.
func (a *Assistant) Interact(ctx context.Context) (Interaction, error) {
	if err := a.responder.Cue(ctx); err != nil {
		slog.Warn("assistant: cue failed", "err", err)
	}

	ep, err := a.listener.ListenForCommand(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Interaction{}, ctx.Err()
		}
		return a.reply(ctx, Interaction{}, MsgFailure, fmt.Errorf("assistant: listen: %w", err))
	}
	if !ep.Heard() {
		if ep.State == segment.TimedOut && ep.Text != "" {
			slog.Info("assistant: command timed out before silence", "episode_id", ep.ID, "text", ep.Text)
		}
		return a.reply(ctx, Interaction{}, MsgNothingHeard, nil)
	}

	in := Interaction{Command: ep.Text}
	slog.Info("assistant: command", "episode_id", ep.ID, "text", ep.Text)
	if a.IsExit(ep.Text) {
		a.history.Clear()
		in.Exit = true
		return a.reply(ctx, in, MsgFarewell, nil)
	}

	answer, err := a.Chat(ctx, ep.Text)
	switch {
	case err != nil:
		return a.reply(ctx, in, MsgFailure, err)
	case answer == "":
		return a.reply(ctx, in, MsgNoReply, nil)
	}
	return a.reply(ctx, in, answer, nil)
}

func (a *Assistant) reply(ctx context.Context, in Interaction, text string, cause error) (Interaction, error) {
	in.Reply = text
	if err := a.responder.Say(ctx, text); err != nil {
		return in, errors.Join(cause, fmt.Errorf("assistant: say: %w", err))
	}
	return in, cause
}

// IsExit reports whether text contains one of the exit phrases.
func (a *Assistant) IsExit(text string) bool {
	text = wakeword.Normalize(text)
	for _, p := range a.exits {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Chat sends command with the bounded history and returns the trimmed reply.
// The exchange is added to the history only when the backend answered.
func (a *Assistant) Chat(ctx context.Context, command string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "llm.chat")
	defer span.End()

	msgs := append(a.history.Messages(), llm.UserMessage(command))
	if len(msgs) > a.cfg.MaxHistory {
		msgs = msgs[len(msgs)-a.cfg.MaxHistory:]
	}
	req := llm.CompletionRequest{SystemPrompt: a.cfg.SystemPrompt, Messages: msgs}
	span.SetAttributes(attribute.Int("llm.messages", len(msgs)))

	start := time.Now()
	text, err := a.complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.metrics.RecordLLM(ctx, a.cfg.ProviderName, status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("assistant: chat: %w", err)
	}

	text = strings.TrimSpace(text)
	if text != "" {
		a.history.Append(llm.UserMessage(command), llm.AssistantMessage(text))
	}
	return text, nil
}

func (a *Assistant) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := a.llm.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Collect(ctx, ch)
}
