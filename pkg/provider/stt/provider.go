// Package stt defines the boundary to speech recognition engines.
//
// An engine is treated as a black box with a Vosk-style contract: a
// [Recognizer] accepts little-endian 16-bit mono PCM and, per call, reports
// whether a committed (final) result is ready. The caller then fetches exactly
// one of [Recognizer.Result] or [Recognizer.PartialResult]. Results are JSON
// payloads carrying a "text" (final) or "partial" field.
//
// A Recognizer belongs to exactly one listening episode. [Adapter] enforces
// this by creating a fresh recognizer on construction and parsing payloads
// fail-soft into [Result] values.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned when a recognizer is used after Close.
var ErrClosed = errors.New("stt: recognizer is closed")

// RecognizerConfig describes the audio format and recognition hints for a new
// recognizer.
type RecognizerConfig struct {
	// SampleRate is the PCM sample rate in Hz. Most engines expect 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the engine use its default.
	Language string
}

// Recognizer is one per-utterance recognition handle.
//
// Implementations need not be safe for concurrent use; a recognizer is owned by
// a single episode and driven from a single goroutine.
type Recognizer interface {
	// AcceptWaveform feeds PCM bytes and reports whether a final result is
	// ready. An error means the engine transport failed and the handle is no
	// longer usable.
	AcceptWaveform(pcm []byte) (bool, error)

	// Result returns the final payload ({"text": "..."}) after AcceptWaveform
	// reported true.
	Result() []byte

	// PartialResult returns the tentative payload ({"partial": "..."}) after
	// AcceptWaveform reported false.
	PartialResult() []byte

	// FinalResult flushes any buffered audio and returns the last final
	// payload. It is used at the end of a one-shot transcription.
	FinalResult() []byte

	// Close releases the handle. Calling Close more than once is safe.
	Close() error
}

// Engine creates recognizers. Implementations must be safe for concurrent use.
type Engine interface {
	// NewRecognizer opens a fresh recognizer for one episode. The context
	// bounds connection setup and, for network engines, the recognizer's
	// lifetime.
	NewRecognizer(ctx context.Context, cfg RecognizerConfig) (Recognizer, error)
}
