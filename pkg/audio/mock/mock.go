// Package mock provides a scripted [capture.Source] for unit tests.
//
// A [Source] replays its Chunks on every Stream call and then either ends
// the stream, fails with Err, or keeps producing silence until the consumer
// stops it. It records every call so tests can assert on chunk sizes and
// delivery counts.
//
// Example:
//
//	src := &mock.Source{Chunks: mock.Silent(4, 250*time.Millisecond, 16000)}
//	err := src.Stream(ctx, 250*time.Millisecond, fn)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
)

const defaultRate = 16000

// Source is a mock implementation of [capture.Source]. Set the exported
// fields before use; read the recorded fields through the accessor methods.
type Source struct {
	// Rate is reported by Format. Default: 16000.
	Rate int

	// Chunks are delivered in order at the start of every Stream call.
	Chunks []audio.Chunk

	// Endless keeps delivering silent chunks of the requested duration after
	// Chunks are exhausted, until the callback or context stops the stream.
	Endless bool

	// Interval paces delivery. Zero delivers as fast as the callback returns.
	Interval time.Duration

	// Err is returned once Chunks are exhausted when Endless is false.
	// Default: [capture.ErrEndOfStream].
	Err error

	mu        sync.Mutex
	calls     int
	delivered int
	requested []time.Duration
}

var _ capture.Source = (*Source)(nil)

// Format reports mono audio at Rate.
func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.rate(), Channels: 1}
}

func (s *Source) rate() int {
	if s.Rate <= 0 {
		return defaultRate
	}
	return s.Rate
}

// Stream delivers the scripted chunks to fn.
func (s *Source) Stream(ctx context.Context, chunk time.Duration, fn func(audio.Chunk) bool) error {
	s.mu.Lock()
	s.calls++
	s.requested = append(s.requested, chunk)
	s.mu.Unlock()

	var tick <-chan time.Time
	if s.Interval > 0 {
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		tick = t.C
	}

	deliver := func(c audio.Chunk) (bool, error) {
		if tick != nil {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return false, err
		}
		s.mu.Lock()
		s.delivered++
		s.mu.Unlock()
		return fn(c), nil
	}

	for _, c := range s.Chunks {
		more, err := deliver(c)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}

	if !s.Endless {
		if s.Err != nil {
			return s.Err
		}
		return capture.ErrEndOfStream
	}
	silence := audio.SamplesFor(chunk, s.rate())
	for {
		more, err := deliver(audio.NewChunk(make([]int16, silence), s.rate()))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Calls returns the number of Stream calls.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Delivered returns the number of chunks handed to callbacks so far.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Requested returns the chunk durations passed to Stream, in call order.
func (s *Source) Requested() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.requested...)
}

// Silent returns n silent chunks of duration d at rate.
func Silent(n int, d time.Duration, rate int) []audio.Chunk {
	out := make([]audio.Chunk, n)
	for i := range out {
		out[i] = audio.NewChunk(make([]int16, audio.SamplesFor(d, rate)), rate)
	}
	return out
}

// Tone returns n chunks of a 440 Hz tone of duration d at rate.
func Tone(n int, d time.Duration, rate int) []audio.Chunk {
	out := make([]audio.Chunk, n)
	for i := range out {
		out[i] = audio.NewChunk(audio.Tone(440, d, rate, 0.5), rate)
	}
	return out
}
