package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	audiomock "github.com/MrWong99/hearken/pkg/audio/mock"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	llmmock "github.com/MrWong99/hearken/pkg/provider/llm/mock"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	sttmock "github.com/MrWong99/hearken/pkg/provider/stt/mock"
	"github.com/MrWong99/hearken/pkg/provider/vad"
	"github.com/MrWong99/hearken/pkg/provider/vad/energy"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.RecognizerEntry
	eng := &sttmock.Engine{}
	reg.RegisterRecognizer("vosk", func(e config.RecognizerEntry) (stt.Engine, error) {
		gotEntry = e
		return eng, nil
	})
	reg.RegisterVAD("energy", func(config.RecognizerEntry) (vad.Engine, error) { return energy.New(0), nil })
	reg.RegisterSource("file", func(*config.Config) (capture.Source, error) { return &audiomock.Source{}, nil })
	reg.RegisterLLM("ollama", func(config.LLMConfig) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterJournal("memory", func(c config.JournalConfig) (journal.Store, error) {
		return journal.NewMemory(c.Capacity), nil
	})

	cfg := config.Defaults()
	cfg.Audio.Source = "file"

	got, err := reg.CreateRecognizer(cfg.Recognizer.RecognizerEntry)
	if err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
	if got != eng || gotEntry.URL != "ws://localhost:2700" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if _, err := reg.CreateVAD(cfg.Recognizer.RecognizerEntry); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateSource(cfg); err != nil {
		t.Errorf("CreateSource: %v", err)
	}
	if _, err := reg.CreateLLM(cfg.LLM); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateJournal(cfg.Journal); err != nil {
		t.Errorf("CreateJournal: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	cfg := config.Defaults()

	errs := []error{}
	_, err := reg.CreateRecognizer(cfg.Recognizer.RecognizerEntry)
	errs = append(errs, err)
	_, err = reg.CreateSource(cfg)
	errs = append(errs, err)
	_, err = reg.CreateLLM(cfg.LLM)
	errs = append(errs, err)
	_, err = reg.CreateJournal(cfg.Journal)
	errs = append(errs, err)
	_, err = reg.CreateVAD(cfg.Recognizer.RecognizerEntry)
	errs = append(errs, err)

	for i, err := range errs {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("create %d: err = %v, want ErrProviderNotRegistered", i, err)
		}
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	factory := func(config.LLMConfig) (llm.Provider, error) { return &llmmock.Provider{}, nil }
	reg.RegisterLLM("openai", factory)
	reg.RegisterLLM("anthropic", factory)
	reg.RegisterLLM("openai", factory)

	if got, want := reg.Names("llm"), []string{"anthropic", "openai"}; !slices.Equal(got, want) {
		t.Errorf("Names(llm) = %v, want %v", got, want)
	}
	if got := reg.Names("source"); len(got) != 0 {
		t.Errorf("Names(source) = %v, want empty", got)
	}
}
