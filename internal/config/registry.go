package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one kind's name → constructor table.
type factories[E, T any] map[string]func(E) (T, error)

// Registry maps component names to their constructor functions for each
// component kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers factories[RecognizerEntry, stt.Engine]
	vad         factories[RecognizerEntry, vad.Engine]
	sources     factories[*Config, capture.Source]
	llm         factories[LLMConfig, llm.Provider]
	journals    factories[JournalConfig, journal.Store]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(factories[RecognizerEntry, stt.Engine]),
		vad:         make(factories[RecognizerEntry, vad.Engine]),
		sources:     make(factories[*Config, capture.Source]),
		llm:         make(factories[LLMConfig, llm.Provider]),
		journals:    make(factories[JournalConfig, journal.Store]),
	}
}

// RegisterRecognizer registers a speech recognition engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(RecognizerEntry) (stt.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// RegisterVAD registers a voice activity detector factory under name. Whisper
// engines look theirs up by [RecognizerEntry.VAD].
func (r *Registry) RegisterVAD(name string, factory func(RecognizerEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSource registers a capture source factory under name.
func (r *Registry) RegisterSource(name string, factory func(*Config) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(LLMConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterJournal registers an episode journal factory under name.
func (r *Registry) RegisterJournal(name string, factory func(JournalConfig) (journal.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journals[name] = factory
}

// CreateRecognizer instantiates the engine registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateRecognizer(entry RecognizerEntry) (stt.Engine, error) {
	return create(r, r.recognizers, "recognizer", entry.Name, entry)
}

// CreateVAD instantiates the detector registered under entry.VAD.
func (r *Registry) CreateVAD(entry RecognizerEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry.VAD, entry)
}

// CreateSource instantiates the capture source registered under cfg.Audio.Source.
func (r *Registry) CreateSource(cfg *Config) (capture.Source, error) {
	return create(r, r.sources, "source", cfg.Audio.Source, cfg)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry LLMConfig) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry.Name, entry)
}

// CreateJournal instantiates the journal registered under entry.Backend.
func (r *Registry) CreateJournal(entry JournalConfig) (journal.Store, error) {
	return create(r, r.journals, "journal", entry.Backend, entry)
}

// Names returns the sorted names registered for kind ("recognizer", "vad",
// "source", "llm" or "journal").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "recognizer":
		names = keys(r.recognizers)
	case "vad":
		names = keys(r.vad)
	case "source":
		names = keys(r.sources)
	case "llm":
		names = keys(r.llm)
	case "journal":
		names = keys(r.journals)
	}
	slices.Sort(names)
	return names
}

func create[E, T any](r *Registry, table factories[E, T], kind, name string, entry E) (T, error) {
	r.mu.RLock()
	factory, ok := table[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return factory(entry)
}

func keys[E, T any](table factories[E, T]) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return names
}
