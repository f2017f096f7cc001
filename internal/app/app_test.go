package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hearken/internal/app"
	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/listen/wakeword"
	audiomock "github.com/MrWong99/hearken/pkg/audio/mock"
	llmmock "github.com/MrWong99/hearken/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/hearken/pkg/provider/stt/mock"
)

// sayRecorder is a responder that records what it was asked to say.
type sayRecorder struct {
	mu    sync.Mutex
	cues  int
	said  []string
	spoke chan string
}

func (r *sayRecorder) Cue(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues++
	return nil
}

func (r *sayRecorder) Say(_ context.Context, text string) error {
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
	r.spoke <- text
	return nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Listen.Silence = 500 * time.Millisecond
	return cfg
}

func TestNew_RequiresComponents(t *testing.T) {
	t.Parallel()
	_, err := app.New(testConfig(), app.Components{Source: &audiomock.Source{}})
	if err == nil {
		t.Fatal("expected error for missing engine and llm")
	}
}

func TestNew_BadWakePhrase(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Wake.Phrase = "  "
	_, err := app.New(cfg, app.Components{
		Source: &audiomock.Source{},
		Engine: &sttmock.Engine{},
		LLM:    &llmmock.Provider{},
	})
	if !errors.Is(err, wakeword.ErrEmptyPhrase) {
		t.Errorf("err = %v, want ErrEmptyPhrase", err)
	}
}

func TestApp_WakeCommandReply(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Endless: true, Interval: time.Millisecond}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{
		{sttmock.Partial("okay"), sttmock.Final("okay computer")},
		{sttmock.Partial("what time"), sttmock.Final("what time is it")},
	}}
	provider := &llmmock.Provider{Replies: []string{"It is noon."}}
	store := journal.NewMemory(10)
	resp := &sayRecorder{spoke: make(chan string, 1)}

	a, err := app.New(testConfig(), app.Components{
		Source:    src,
		Engine:    eng,
		LLM:       provider,
		Journal:   store,
		Responder: resp,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case got := <-resp.spoke:
		if got != "It is noon." {
			t.Errorf("said %q, want %q", got, "It is noon.")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("assistant never replied")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("llm saw %d requests, want 1", len(reqs))
	}
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	if last.Content != "what time is it" {
		t.Errorf("llm prompt = %q", last.Content)
	}

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var wakes, commands int
	for _, e := range entries {
		switch e.Mode {
		case "wake":
			if e.Outcome == "detected" {
				wakes++
			}
		case "command":
			if e.Text == "what time is it" {
				commands++
			}
		}
	}
	if wakes != 1 || commands != 1 {
		t.Errorf("journal has %d detected wakes and %d heard commands, want 1 and 1: %+v", wakes, commands, entries)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestApp_CheckersAndClosers(t *testing.T) {
	t.Parallel()
	var closed int
	a, err := app.New(testConfig(), app.Components{
		Source: &audiomock.Source{},
		Engine: &sttmock.Engine{},
		LLM:    &llmmock.Provider{},
	}, app.WithCloser(func() error { closed++; return nil }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	checks := a.Checkers()
	if len(checks) != 1 || checks[0].Name != "journal" {
		t.Fatalf("checkers = %+v, want only journal", checks)
	}
	if err := checks[0].Check(context.Background()); err != nil {
		t.Errorf("journal check: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if closed != 1 {
		t.Errorf("extra closer ran %d times, want 1", closed)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()
	a, err := app.New(testConfig(), app.Components{
		Source: &audiomock.Source{},
		Engine: &sttmock.Engine{},
		LLM:    &llmmock.Provider{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
}

func TestMappings(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Audio.Chunk = 100 * time.Millisecond
	cfg.Recognizer.Language = "de"
	cfg.LLM.SystemPrompt = "Be brief."

	lc := app.ListenConfig(cfg)
	if lc.CommandChunk != 100*time.Millisecond || lc.WakeChunk != 500*time.Millisecond || lc.Language != "de" {
		t.Errorf("ListenConfig = %+v", lc)
	}
	ac := app.AssistantConfig(cfg)
	if ac.SystemPrompt != "Be brief." || ac.ProviderName != "ollama" || ac.MaxHistory != 10 {
		t.Errorf("AssistantConfig = %+v", ac)
	}
	if b := app.Beep(cfg); b.Frequency != 1000 || b.Duration != 200*time.Millisecond || b.SampleRate != 16000 {
		t.Errorf("Beep = %+v", b)
	}

	m, err := app.NewMatcher(cfg.Wake)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if !m.Matches("computr") {
		t.Error("matcher should accept a one-edit misspelling")
	}
}
