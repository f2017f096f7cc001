// Package segment decides when a listening episode ends.
//
// A [Segmenter] consumes one recognition result per audio chunk and advances a
// session clock by the chunk's nominal duration. It never reads the wall
// clock, so a scripted sequence of results always produces the same outcome.
//
// Silence ends an episode only after something was recognized; an episode
// that hears nothing can only time out.
package segment

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// State is the position of a [Segmenter] in its lifecycle.
type State int

const (
	// Listening means the episode is still running.
	Listening State = iota

	// Finished means speech was followed by enough silence. The utterance is
	// available from [Segmenter.Text].
	Finished

	// TimedOut means the overall timeout elapsed, with or without speech.
	TimedOut

	// Aborted means the episode was cancelled from outside.
	Aborted
)

// String returns a lowercase name for s, used as a log and metric label.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Finished:
		return "finished"
	case TimedOut:
		return "timed_out"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends the episode.
func (s State) Terminal() bool { return s != Listening }

// Config holds the two episode durations.
type Config struct {
	// Timeout caps the whole episode.
	Timeout time.Duration

	// Silence is the trailing quiet, measured from the last recognized
	// speech, that finishes an utterance.
	Silence time.Duration
}

// Validate reports non-positive durations.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("segment: timeout must be positive"))
	}
	if c.Silence <= 0 {
		errs = append(errs, errors.New("segment: silence must be positive"))
	}
	return errors.Join(errs...)
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithLogger sets the logger used to report clock invariant violations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.log = l }
}

// Segmenter is the per-episode state machine. It is not safe for concurrent
// use; each episode owns its own Segmenter.
type Segmenter struct {
	cfg Config
	log *slog.Logger

	state      State
	elapsed    time.Duration
	lastSpeech time.Duration
	texts      []string
	heard      bool
}

// New returns a Segmenter in the [Listening] state.
func New(cfg Config, opts ...Option) *Segmenter {
	s := &Segmenter{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Step applies the result recognized for one chunk of duration d and returns
// the resulting state. Once a terminal state is reached, further steps are
// no-ops.
func (s *Segmenter) Step(res stt.Result, d time.Duration) State {
	if s.state.Terminal() {
		return s.state
	}
	if d < 0 {
		s.log.Error("segment: negative chunk duration, treating as zero", "duration", d)
		d = 0
	}

	if res.Text != "" {
		s.heard = true
		if res.IsFinal() {
			s.texts = append(s.texts, res.Text)
		}
		s.lastSpeech = s.elapsed
	}

	s.elapsed += d

	if s.lastSpeech > s.elapsed {
		s.log.Error("segment: last speech time ahead of session clock, clamping",
			"last_speech", s.lastSpeech,
			"elapsed", s.elapsed,
		)
		s.lastSpeech = s.elapsed
	}

	switch {
	case s.elapsed >= s.cfg.Timeout:
		s.state = TimedOut
	case len(s.texts) > 0 && s.elapsed-s.lastSpeech >= s.cfg.Silence:
		s.state = Finished
	}
	return s.state
}

// Abort ends a listening episode and discards accumulated text. Aborting a
// finished or timed-out episode has no effect.
func (s *Segmenter) Abort() {
	if s.state.Terminal() {
		return
	}
	s.state = Aborted
	s.texts = nil
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Text returns the committed finals joined by single spaces.
func (s *Segmenter) Text() string { return strings.Join(s.texts, " ") }

// Texts returns a copy of the committed finals in order.
func (s *Segmenter) Texts() []string { return append([]string(nil), s.texts...) }

// Elapsed returns the session clock.
func (s *Segmenter) Elapsed() time.Duration { return s.elapsed }

// LastSpeech returns the session time of the most recent non-empty result.
func (s *Segmenter) LastSpeech() time.Duration { return s.lastSpeech }

// HeardSpeech reports whether any non-empty partial or final was seen. A
// timed-out episode with HeardSpeech true points at a recognizer that never
// committed a final.
func (s *Segmenter) HeardSpeech() bool { return s.heard }
