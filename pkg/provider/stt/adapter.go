package stt

import (
	"context"
	"fmt"
	"log/slog"
)

// AdapterOption configures an [Adapter].
type AdapterOption func(*Adapter)

// WithMalformedHook registers fn to be called for every payload that could
// not be parsed. It is used to count bad payloads in metrics.
func WithMalformedHook(fn func(ResultKind)) AdapterOption {
	return func(a *Adapter) { a.onMalformed = fn }
}

// WithLogger sets the logger used for fail-soft payload warnings.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.log = l }
}

// Adapter owns one recognizer for one listening episode and turns its raw
// payloads into [Result] values. Malformed payloads become empty results so a
// single bad chunk never ends an episode.
//
// An Adapter is not safe for concurrent use and must not be reused across
// episodes; create a new one with [NewAdapter] for every episode.
type Adapter struct {
	rec         Recognizer
	log         *slog.Logger
	onMalformed func(ResultKind)
	closed      bool
}

// NewAdapter opens a fresh recognizer on eng for one episode.
func NewAdapter(ctx context.Context, eng Engine, cfg RecognizerConfig, opts ...AdapterOption) (*Adapter, error) {
	rec, err := eng.NewRecognizer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("stt: new recognizer: %w", err)
	}
	a := &Adapter{rec: rec, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Feed passes one chunk of PCM bytes to the recognizer and returns either the
// final or the partial result, never both. An error means the recognizer
// transport failed; the caller should abort the episode.
func (a *Adapter) Feed(pcm []byte) (Result, error) {
	if a.closed {
		return Result{}, ErrClosed
	}
	final, err := a.rec.AcceptWaveform(pcm)
	if err != nil {
		return Result{}, fmt.Errorf("stt: accept waveform: %w", err)
	}
	if final {
		return a.parse(ResultFinal, a.rec.Result()), nil
	}
	return a.parse(ResultPartial, a.rec.PartialResult()), nil
}

// Flush asks the recognizer for its last final result, committing any audio it
// still buffers.
func (a *Adapter) Flush() (Result, error) {
	if a.closed {
		return Result{}, ErrClosed
	}
	return a.parse(ResultFinal, a.rec.FinalResult()), nil
}

// Close releases the recognizer. Calling Close more than once is safe.
func (a *Adapter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.rec.Close(); err != nil {
		return fmt.Errorf("stt: close recognizer: %w", err)
	}
	return nil
}

func (a *Adapter) parse(kind ResultKind, payload []byte) Result {
	r, ok := ParseResult(kind, payload)
	if !ok {
		a.log.Warn("stt: malformed recognizer payload, treating as empty",
			"kind", kind.String(),
			"bytes", len(payload),
		)
		if a.onMalformed != nil {
			a.onMalformed(kind)
		}
	}
	return r
}
