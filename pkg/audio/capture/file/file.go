// Package file streams a WAV file as if it were a live capture device.
//
// The clip is decoded once, conditioned to mono at the target rate and
// delivered in chunks of the requested duration. Pacing is optional: by
// default chunks are delivered as fast as the consumer accepts them.
package file

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/audio/wavfile"
)

const defaultRate = 16000

// Option configures a [Source].
type Option func(*Source)

// WithRealtime paces delivery at one chunk per chunk duration.
func WithRealtime(enabled bool) Option {
	return func(s *Source) { s.realtime = enabled }
}

// WithConditioner replaces the default conditioner (AGC enabled).
func WithConditioner(c *audio.Conditioner) Option {
	return func(s *Source) { s.cond = c }
}

// Source replays one WAV file.
type Source struct {
	fs       afero.Fs
	path     string
	rate     int
	realtime bool
	cond     *audio.Conditioner
}

var _ capture.Source = (*Source)(nil)

// New returns a Source reading path from fs and delivering mono audio at
// rate Hz (16000 when zero).
func New(fs afero.Fs, path string, rate int, opts ...Option) *Source {
	if rate <= 0 {
		rate = defaultRate
	}
	s := &Source{fs: fs, path: path, rate: rate}
	for _, o := range opts {
		o(s)
	}
	if s.cond == nil {
		s.cond = audio.NewConditioner()
	}
	return s
}

func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.rate, Channels: 1}
}

// Load decodes and conditions the whole clip.
func (s *Source) Load() ([]int16, error) {
	clip, err := wavfile.Read(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	return s.cond.Condition(clip.Samples, clip.Format.Channels, clip.Format.SampleRate, s.rate), nil
}

// Stream delivers the clip and returns [capture.ErrEndOfStream] after the
// last, possibly short, chunk.
func (s *Source) Stream(ctx context.Context, chunk time.Duration, fn func(audio.Chunk) bool) error {
	samples, err := s.Load()
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	if s.realtime && chunk > 0 {
		t := time.NewTicker(chunk)
		defer t.Stop()
		tick = t.C
	}

	var ctxErr error
	emit := func(c audio.Chunk) bool {
		if tick != nil {
			select {
			case <-ctx.Done():
				ctxErr = ctx.Err()
				return false
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			ctxErr = err
			return false
		}
		return fn(c)
	}

	ch := capture.NewChunker(s.rate, chunk)
	if !ch.Push(samples, emit) || !ch.Flush(emit) {
		return ctxErr
	}
	return capture.ErrEndOfStream
}
