// Package mock provides a scripted vad.Engine for driving speech gates in
// tests without analysing real audio.
//
//	sess := &mock.Session{Script: slices.Repeat([]bool{true}, 12)}
//	eng := &mock.Engine{Session: sess}
//
// The session above reports twelve speech frames followed by silence.
package mock

import (
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// Engine hands out Session (or a fresh silent one) and remembers every
// config it was asked for.
type Engine struct {
	Session *Session
	Err     error

	mu      sync.Mutex
	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns the configs passed to NewSession, oldest first.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session classifies frame i as Script[i] (true meaning speech) and every
// frame past the script as After. Transitions are reported as
// VADSpeechStart and VADSpeechEnd.
type Session struct {
	Script   []bool
	After    bool
	Err      error
	CloseErr error

	mu       sync.Mutex
	frames   int
	bytes    int
	inSpeech bool
	resets   int
	closes   int
}

var _ vad.SessionHandle = (*Session)(nil)

func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return vad.VADEvent{}, s.Err
	}

	speech := s.After
	if s.frames < len(s.Script) {
		speech = s.Script[s.frames]
	}
	s.frames++
	s.bytes += len(frame)

	var typ vad.VADEventType
	switch {
	case speech && s.inSpeech:
		typ = vad.VADSpeechContinue
	case speech:
		typ = vad.VADSpeechStart
	case s.inSpeech:
		typ = vad.VADSpeechEnd
	default:
		typ = vad.VADSilence
	}
	s.inSpeech = speech

	ev := vad.VADEvent{Type: typ}
	if speech {
		ev.Probability = 1
	}
	return ev, nil
}

// Reset forgets whether speech was in progress. The script position is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.resets++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseErr
}

// Frames returns how many frames were classified and their total size.
func (s *Session) Frames() (n, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.bytes
}

func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
