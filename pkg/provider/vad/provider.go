// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, an energy
// threshold) and surfaces it as a stateful, per-stream session. Each session
// keeps its own hysteresis state so that multiple audio streams can be
// processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, which makes it suitable for gating audio before it reaches
// a batch recognizer.
package vad

import (
	"errors"
	"fmt"
)

// ErrFrameSize is returned when a frame does not match the configured size.
var ErrFrameSize = errors.New("vad: frame size does not match config")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. WebRTC
	// VAD accepts 10, 20 or 30 ms.
	FrameSizeMs int

	// Mode is the detector aggressiveness, 0 (least) to 3 (most). Engines
	// without a notion of aggressiveness ignore it.
	Mode int

	// SpeechFrames is the number of consecutive voiced frames that start a
	// speech segment. Default: 1.
	SpeechFrames int

	// SilenceFrames is the number of consecutive unvoiced frames that end a
	// speech segment. Default: 1.
	SilenceFrames int
}

// FrameBytes returns the size in bytes of one 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate checks the fields every engine relies on.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSizeMs <= 0 {
		return fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs)
	}
	if c.Mode < 0 || c.Mode > 3 {
		return fmt.Errorf("vad: mode must be between 0 and 3, got %d", c.Mode)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream.
// A SessionHandle should not be shared between goroutines.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame must be little-endian 16-bit mono PCM of exactly
	// Config.FrameBytes bytes.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears the hysteresis state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent use.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
