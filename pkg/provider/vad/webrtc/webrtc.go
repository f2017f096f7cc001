// Package webrtc provides a vad.Engine backed by the WebRTC voice activity
// detector (libfvad via cgo).
package webrtc

import (
	"fmt"
	"slices"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/hearken/pkg/provider/vad"
)

var (
	validRates  = []int{8000, 16000, 32000, 48000}
	validFrames = []int{10, 20, 30}
)

// Engine creates WebRTC VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg against what WebRTC VAD supports and creates a
// detector with the configured aggressiveness.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(validRates, cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc vad: invalid sample rate %d, must be one of %v", cfg.SampleRate, validRates)
	}
	if !slices.Contains(validFrames, cfg.FrameSizeMs) {
		return nil, fmt.Errorf("webrtc vad: invalid frame size %d ms, must be one of %v", cfg.FrameSizeMs, validFrames)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode: %w", err)
	}
	return &session{
		det:        det,
		sampleRate: cfg.SampleRate,
		frameBytes: cfg.FrameBytes(),
		tracker:    vad.NewTracker(cfg),
	}, nil
}

type session struct {
	det        *webrtcvad.VAD
	sampleRate int
	frameBytes int
	tracker    *vad.Tracker
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	active, err := s.det.Process(s.sampleRate, frame)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: process: %w", err)
	}
	prob := 0.0
	if active {
		prob = 1.0
	}
	return s.tracker.Observe(active, prob), nil
}

func (s *session) Reset() { s.tracker.Reset() }

func (s *session) Close() error {
	s.closed = true
	return nil
}
