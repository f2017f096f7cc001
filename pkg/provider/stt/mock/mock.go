// Package mock provides test doubles for the stt package interfaces.
//
// A [Recognizer] replays a script of [Step] values, one per AcceptWaveform
// call, and records the audio it was fed. An [Engine] hands out a new scripted
// Recognizer on every NewRecognizer call so tests can assert that each episode
// got a fresh handle.
//
// Example:
//
//	eng := &mock.Engine{Scripts: [][]mock.Step{{
//	    mock.Partial("hel"),
//	    mock.Final("hello"),
//	}}}
//	a, _ := stt.NewAdapter(ctx, eng, stt.RecognizerConfig{SampleRate: 16000})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// Step is the scripted outcome of one AcceptWaveform call.
type Step struct {
	// Final reports a committed result when true.
	Final bool

	// Text is rendered into a well-formed payload unless Raw is set.
	Text string

	// Raw, if non-nil, is returned verbatim as the payload.
	Raw []byte

	// Err, if non-nil, is returned from AcceptWaveform.
	Err error
}

// Partial returns a step that yields a tentative result.
func Partial(text string) Step { return Step{Text: text} }

// Final returns a step that yields a committed result.
func Final(text string) Step { return Step{Final: true, Text: text} }

// Silence returns a step that yields an empty partial.
func Silence() Step { return Step{} }

// Malformed returns a step whose payload is not valid JSON.
func Malformed(final bool) Step { return Step{Final: final, Raw: []byte(`{"text": "unterminated`)} }

// Fail returns a step whose AcceptWaveform call fails with err.
func Fail(err error) Step { return Step{Err: err} }

func (s Step) payload(kind stt.ResultKind) []byte {
	if s.Raw != nil {
		return s.Raw
	}
	return stt.Payload(kind, s.Text)
}

// Recognizer is a mock implementation of stt.Recognizer. Once the script is
// exhausted every call yields an empty partial.
type Recognizer struct {
	mu sync.Mutex

	// Steps is the script replayed by AcceptWaveform.
	Steps []Step

	// FinalText is returned by FinalResult.
	FinalText string

	// CloseErr, if non-nil, is returned from Close.
	CloseErr error

	// Accepted records a copy of every chunk passed to AcceptWaveform.
	Accepted [][]byte

	// ResultCalls, PartialCalls and FinalCalls count payload fetches.
	ResultCalls, PartialCalls, FinalCalls int

	// Closed reports whether Close was called.
	Closed bool

	current Step
	pos     int
}

var _ stt.Recognizer = (*Recognizer)(nil)

// AcceptWaveform records the chunk and advances the script.
func (r *Recognizer) AcceptWaveform(pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return false, stt.ErrClosed
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Accepted = append(r.Accepted, cp)

	r.current = Step{}
	if r.pos < len(r.Steps) {
		r.current = r.Steps[r.pos]
		r.pos++
	}
	if r.current.Err != nil {
		return false, r.current.Err
	}
	return r.current.Final, nil
}

// Result returns the current step's final payload.
func (r *Recognizer) Result() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResultCalls++
	return r.current.payload(stt.ResultFinal)
}

// PartialResult returns the current step's partial payload.
func (r *Recognizer) PartialResult() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PartialCalls++
	return r.current.payload(stt.ResultPartial)
}

// FinalResult returns FinalText as a final payload.
func (r *Recognizer) FinalResult() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinalCalls++
	return stt.Payload(stt.ResultFinal, r.FinalText)
}

// Close marks the recognizer closed and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return r.CloseErr
}

// AcceptedCount returns the number of chunks fed so far. Thread-safe.
func (r *Recognizer) AcceptedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Accepted)
}

// IsClosed reports whether Close was called. Thread-safe.
func (r *Recognizer) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Closed
}

// NewRecognizerCall records a single invocation of Engine.NewRecognizer.
type NewRecognizerCall struct {
	// Ctx is the context passed to NewRecognizer.
	Ctx context.Context
	// Cfg is the RecognizerConfig passed to NewRecognizer.
	Cfg stt.RecognizerConfig
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Scripts holds one script per recognizer, consumed in order. Once all
	// scripts are used, recognizers get an empty script.
	Scripts [][]Step

	// FinalTexts holds FinalResult text per recognizer, consumed in order.
	FinalTexts []string

	// NewErr, if non-nil, is returned from NewRecognizer.
	NewErr error

	// Calls records every call to NewRecognizer.
	Calls []NewRecognizerCall

	// Recognizers holds every recognizer handed out, in order.
	Recognizers []*Recognizer
}

var _ stt.Engine = (*Engine)(nil)

// NewRecognizer records the call and returns a fresh scripted Recognizer.
func (e *Engine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, NewRecognizerCall{Ctx: ctx, Cfg: cfg})
	if e.NewErr != nil {
		return nil, e.NewErr
	}
	n := len(e.Recognizers)
	rec := &Recognizer{}
	if n < len(e.Scripts) {
		rec.Steps = e.Scripts[n]
	}
	if n < len(e.FinalTexts) {
		rec.FinalText = e.FinalTexts[n]
	}
	e.Recognizers = append(e.Recognizers, rec)
	return rec, nil
}

// CallCount returns the number of NewRecognizer calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Recognizer returns the i-th recognizer handed out, or nil. Thread-safe.
func (e *Engine) Recognizer(i int) *Recognizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.Recognizers) {
		return nil
	}
	return e.Recognizers[i]
}
