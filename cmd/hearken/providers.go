package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/afero"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/journal/postgres"
	"github.com/MrWong99/hearken/internal/journal/sqlite"
	"github.com/MrWong99/hearken/internal/resilience"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/audio/capture/discord"
	"github.com/MrWong99/hearken/pkg/audio/capture/file"
	"github.com/MrWong99/hearken/pkg/audio/capture/mic"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/llm/anyllm"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/stt/deepgram"
	"github.com/MrWong99/hearken/pkg/provider/stt/vosk"
	"github.com/MrWong99/hearken/pkg/provider/stt/whisper"
	"github.com/MrWong99/hearken/pkg/provider/stt/whisper/native"
	"github.com/MrWong99/hearken/pkg/provider/vad"
	"github.com/MrWong99/hearken/pkg/provider/vad/energy"
	"github.com/MrWong99/hearken/pkg/provider/vad/webrtc"
)

// storeOpenTimeout bounds connecting to a journal database.
const storeOpenTimeout = 10 * time.Second

// ── Registry wiring ───────────────────────────────────────────────────────────

// registerBuiltins wires every built-in component factory into reg. fs backs
// the file capture source.
func registerBuiltins(reg *config.Registry, fs afero.Fs) {
	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("vosk", func(e config.RecognizerEntry) (stt.Engine, error) {
		return vosk.New(e.URL)
	})

	reg.RegisterRecognizer("whisper", func(e config.RecognizerEntry) (stt.Engine, error) {
		opts, err := whisperOptions(reg, e)
		if err != nil {
			return nil, err
		}
		return whisper.NewServer(e.URL, opts...)
	})

	reg.RegisterRecognizer("whisper-native", func(e config.RecognizerEntry) (stt.Engine, error) {
		opts, err := whisperOptions(reg, e)
		if err != nil {
			return nil, err
		}
		return native.New(e.ModelPath, opts...)
	})

	reg.RegisterRecognizer("deepgram", func(e config.RecognizerEntry) (stt.Engine, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, deepgram.WithLanguage(e.Language))
		}
		if e.URL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.URL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.RecognizerEntry) (vad.Engine, error) {
		return energy.New(0), nil
	})
	reg.RegisterVAD("webrtc", func(config.RecognizerEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	// ── Capture sources ───────────────────────────────────────────────────────

	reg.RegisterSource("mic", func(cfg *config.Config) (capture.Source, error) {
		return mic.New(cfg.Audio.Device, cfg.Audio.SampleRate), nil
	})

	reg.RegisterSource("file", func(cfg *config.Config) (capture.Source, error) {
		return file.New(fs, cfg.Audio.File, cfg.Audio.SampleRate, file.WithRealtime(true)), nil
	})

	reg.RegisterSource("discord", func(cfg *config.Config) (capture.Source, error) {
		session, err := discord.OpenSession(cfg.Discord.Token)
		if err != nil {
			return nil, err
		}
		opts := []discord.Option{discord.WithSampleRate(cfg.Audio.SampleRate)}
		if cfg.Discord.UserID != "" {
			opts = append(opts, discord.WithUser(cfg.Discord.UserID))
		}
		slog.Info("discord session open", "guild_id", cfg.Discord.GuildID, "channel_id", cfg.Discord.ChannelID)
		return &discordSource{
			Source:  discord.New(session, cfg.Discord.GuildID, cfg.Discord.ChannelID, opts...),
			session: session,
		}, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, name := range anyllm.Backends() {
		reg.RegisterLLM(name, func(e config.LLMConfig) (llm.Provider, error) {
			return anyllm.New(anyllm.Config{Backend: name, Model: e.Model, APIKey: e.APIKey, BaseURL: e.BaseURL})
		})
	}

	// ── Journal ───────────────────────────────────────────────────────────────

	reg.RegisterJournal("memory", func(e config.JournalConfig) (journal.Store, error) {
		return journal.NewMemory(e.Capacity), nil
	})
	reg.RegisterJournal("sqlite", func(e config.JournalConfig) (journal.Store, error) {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
		defer cancel()
		return sqlite.Open(ctx, e.DSN)
	})
	reg.RegisterJournal("postgres", func(e config.JournalConfig) (journal.Store, error) {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
		defer cancel()
		return postgres.Open(ctx, e.DSN)
	})

	for _, kind := range []string{"recognizer", "vad", "source", "llm", "journal"} {
		slog.Debug("registered components", "kind", kind, "names", reg.Names(kind))
	}
}

// whisperOptions maps an entry onto the gating options shared by both
// whisper backends.
func whisperOptions(reg *config.Registry, e config.RecognizerEntry) ([]whisper.Option, error) {
	detector, err := reg.CreateVAD(e)
	if err != nil {
		return nil, fmt.Errorf("whisper vad: %w", err)
	}
	opts := []whisper.Option{whisper.WithVAD(detector), whisper.WithVADMode(e.VADMode)}
	if e.Language != "" {
		opts = append(opts, whisper.WithLanguage(e.Language))
	}
	if e.Model != "" {
		opts = append(opts, whisper.WithModel(e.Model))
	}
	return opts, nil
}

// discordSource owns the bot session behind a Discord capture source.
type discordSource struct {
	*discord.Source
	session *discordgo.Session
}

func (s *discordSource) Close() error { return s.session.Close() }

// ── Component construction ────────────────────────────────────────────────────

// buildEngine creates the primary recognizer and wraps it with the configured
// fallbacks. The returned closers release engines holding native resources.
func buildEngine(cfg *config.Config, reg *config.Registry) (stt.Engine, []func() error, error) {
	var closers []func() error
	create := func(e config.RecognizerEntry) (stt.Engine, error) {
		eng, err := reg.CreateRecognizer(e)
		if err != nil {
			return nil, fmt.Errorf("create recognizer %q: %w", e.Name, err)
		}
		if c, ok := eng.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
		slog.Info("component created", "kind", "recognizer", "name", e.Name)
		return eng, nil
	}

	primary, err := create(cfg.Recognizer.RecognizerEntry)
	if err != nil {
		return nil, closers, err
	}
	if len(cfg.Recognizer.Fallback) == 0 {
		return primary, closers, nil
	}
	fb := resilience.NewFallbackEngine(primary, cfg.Recognizer.Name, resilience.FallbackConfig{})
	for _, e := range cfg.Recognizer.Fallback {
		eng, err := create(e)
		if err != nil {
			return nil, closers, err
		}
		fb.AddFallback(e.Name, eng)
	}
	return fb, closers, nil
}

// buildLLM creates the primary LLM provider and wraps it with the configured
// fallbacks.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	create := func(e config.LLMConfig) (llm.Provider, error) {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm %q: %w", e.Name, err)
		}
		slog.Info("component created", "kind", "llm", "name", e.Name, "model", e.Model)
		return p, nil
	}

	primary, err := create(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if len(cfg.LLM.Fallback) == 0 {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, cfg.LLM.Name, resilience.FallbackConfig{})
	for _, e := range cfg.LLM.Fallback {
		p, err := create(e)
		if err != nil {
			return nil, err
		}
		fb.AddFallback(e.Name, p)
	}
	return fb, nil
}

// closeAll runs closers, joining their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
