// Package app wires the hearken subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New connects the listener, journal
// and conversation loop, Run executes the wake → command → reply loop, and
// Shutdown tears everything down in order.
//
// Components are built by the caller (usually through the config registry)
// and passed in; nil journal and responder slots get in-memory and console
// defaults so tests only need to supply the source, engine and LLM.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/MrWong99/hearken/internal/assistant"
	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/health"
	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/listen"
	"github.com/MrWong99/hearken/internal/listen/wakeword"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// Components holds one value per runtime slot. Source, Engine and LLM are
// required; Journal and Responder fall back to defaults when nil.
type Components struct {
	Source    capture.Source
	Engine    stt.Engine
	LLM       llm.Provider
	Journal   journal.Store
	Responder assistant.Responder
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	comps   Components
	metrics *observe.Metrics

	matcher   *wakeword.Matcher
	listener  *listen.Listener
	assistant *assistant.Assistant

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCloser registers a teardown step run after the journal is closed. The
// engine and source are owned by the caller, which registers their release
// here (e.g. closing a Discord session or unloading a native model).
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App by wiring comps together according to cfg.
func New(cfg *config.Config, comps Components, opts ...Option) (*App, error) {
	if comps.Source == nil || comps.Engine == nil || comps.LLM == nil {
		return nil, errors.New("app: source, engine and llm are required")
	}
	a := &App{cfg: cfg, comps: comps}
	for _, o := range opts {
		o(a)
	}
	extra := a.closers
	a.closers = nil
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Wake phrase matcher ───────────────────────────────────────────
	matcher, err := NewMatcher(cfg.Wake)
	if err != nil {
		return nil, fmt.Errorf("app: wake phrase: %w", err)
	}
	a.matcher = matcher

	// ── 2. Journal ───────────────────────────────────────────────────────
	if a.comps.Journal == nil {
		a.comps.Journal = journal.NewMemory(cfg.Journal.Capacity)
	}
	a.closers = append(a.closers, a.comps.Journal.Close)

	// ── 3. Listener ──────────────────────────────────────────────────────
	a.listener = listen.New(comps.Source, comps.Engine, matcher, ListenConfig(cfg),
		listen.WithJournal(a.comps.Journal),
		listen.WithMetrics(a.metrics),
	)

	// ── 4. Conversation loop ─────────────────────────────────────────────
	if a.comps.Responder == nil {
		a.comps.Responder = assistant.NewConsole(os.Stdout, nil, Beep(cfg))
	}
	a.assistant = assistant.New(a.listener, comps.LLM, a.comps.Responder, AssistantConfig(cfg),
		assistant.WithMetrics(a.metrics),
	)

	a.closers = append(a.closers, extra...)
	return a, nil
}

// NewMatcher builds the wake phrase matcher described by cfg.
func NewMatcher(cfg config.WakeConfig) (*wakeword.Matcher, error) {
	distance := wakeword.DefaultMaxDistance
	if cfg.MaxDistance != nil {
		distance = *cfg.MaxDistance
	}
	phrase, err := wakeword.NewPhrase(cfg.Phrase, distance)
	if err != nil {
		return nil, err
	}
	opts := []wakeword.Option{wakeword.WithPhonetic(cfg.Phonetic)}
	if cfg.AllTokens != nil {
		opts = append(opts, wakeword.WithAllTokens(*cfg.AllTokens))
	}
	if cfg.PhoneticThreshold > 0 {
		opts = append(opts, wakeword.WithPhoneticThreshold(cfg.PhoneticThreshold))
	}
	return wakeword.NewMatcher(phrase, opts...), nil
}

// ListenConfig maps the configuration onto listener timings.
func ListenConfig(cfg *config.Config) listen.Config {
	return listen.Config{
		CommandTimeout: cfg.Listen.CommandTimeout,
		Silence:        cfg.Listen.Silence,
		CommandChunk:   cfg.Audio.Chunk,
		WakeTimeout:    cfg.Listen.WakeTimeout,
		WakeChunk:      cfg.Wake.Chunk,
		QueueSize:      cfg.Listen.QueueSize,
		Language:       cfg.Recognizer.Language,
	}
}

// AssistantConfig maps the configuration onto conversation settings.
func AssistantConfig(cfg *config.Config) assistant.Config {
	return assistant.Config{
		ExitPhrases:    cfg.Assistant.ExitPhrases,
		MaxHistory:     cfg.Assistant.MaxHistory,
		SessionTimeout: cfg.Assistant.SessionTimeout,
		SystemPrompt:   cfg.LLM.SystemPrompt,
		ProviderName:   cfg.LLM.Name,
	}
}

// Beep returns the configured listening cue.
func Beep(cfg *config.Config) assistant.Beep {
	return assistant.Beep{
		Frequency:  cfg.Assistant.Beep.Frequency,
		Duration:   cfg.Assistant.Beep.Duration,
		SampleRate: cfg.Audio.SampleRate,
	}
}

// Listener returns the episode listener.
func (a *App) Listener() *listen.Listener { return a.listener }

// Assistant returns the conversation loop.
func (a *App) Assistant() *assistant.Assistant { return a.assistant }

// Journal returns the episode journal.
func (a *App) Journal() journal.Store { return a.comps.Journal }

// Checkers returns readiness probes for the journal and, when it can be
// pinged, the recognition engine.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{{Name: "journal", Check: a.comps.Journal.Ping}}
	if p, ok := a.comps.Engine.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Checker{Name: "recognizer", Check: p.Ping})
	}
	return checks
}

// Run starts the wake → command → reply loop and blocks until ctx is
// cancelled. It returns nil on cancellation.
func (a *App) Run(ctx context.Context) error {
	slog.Info("listening for wake phrase",
		"phrase", a.matcher.Phrase().String(),
		"source", a.cfg.Audio.Source,
		"recognizer", a.cfg.Recognizer.Name,
		"llm", a.cfg.LLM.Name,
	)
	return a.assistant.Run(ctx)
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
