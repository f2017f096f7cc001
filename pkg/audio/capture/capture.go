// Package capture defines where audio comes from.
//
// A [Source] pushes fixed-cadence mono chunks to a callback on its own
// goroutine until the callback returns false, the context is cancelled or
// the underlying stream fails. Sources never apply backpressure: a callback
// that blocks stalls the device.
//
// Implementations live in sub-packages: mic (PortAudio), file (WAV on an
// afero filesystem) and discord (a Discord voice channel).
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/wavfile"
)

// ErrDeviceNotFound is returned when a named capture device does not exist.
var ErrDeviceNotFound = errors.New("capture: device not found")

// ErrEndOfStream is returned by finite sources once all audio was delivered.
var ErrEndOfStream = errors.New("capture: end of stream")

// Source produces mono audio chunks.
type Source interface {
	// Format reports the format of delivered chunks. Channels is always 1.
	Format() audio.Format

	// Stream calls fn with consecutive chunks of the given duration. It
	// returns nil once fn returns false, ctx.Err() when ctx is cancelled and
	// ErrEndOfStream when a finite source runs dry.
	Stream(ctx context.Context, chunk time.Duration, fn func(audio.Chunk) bool) error
}

// Device describes a capture device.
type Device struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// IsDefaultDevice reports whether name selects the system default device.
func IsDefaultDevice(name string) bool {
	return name == "" || name == "default"
}

// Chunker regroups mono samples of arbitrary frame sizes into chunks of a
// fixed sample count. It is not safe for concurrent use.
type Chunker struct {
	rate int
	size int
	buf  []int16
}

// NewChunker returns a Chunker emitting chunks that cover d at rate. A
// duration shorter than one sample yields one-sample chunks.
func NewChunker(rate int, d time.Duration) *Chunker {
	return &Chunker{rate: rate, size: max(audio.SamplesFor(d, rate), 1)}
}

// Push buffers samples and calls fn for every complete chunk. It returns
// false as soon as fn does; samples after that point are discarded.
func (c *Chunker) Push(samples []int16, fn func(audio.Chunk) bool) bool {
	c.buf = append(c.buf, samples...)
	for len(c.buf) >= c.size {
		out := make([]int16, c.size)
		copy(out, c.buf)
		c.buf = c.buf[c.size:]
		if !fn(audio.NewChunk(out, c.rate)) {
			c.buf = nil
			return false
		}
	}
	return true
}

// Flush delivers any buffered remainder as a short chunk.
func (c *Chunker) Flush(fn func(audio.Chunk) bool) bool {
	if len(c.buf) == 0 {
		return true
	}
	out := c.buf
	c.buf = nil
	return fn(audio.NewChunk(out, c.rate))
}

// Record captures d of audio from src, read in chunks of the given size,
// and returns exactly the samples covering d. A finite source that ends
// early yields what it had.
func Record(ctx context.Context, src Source, d, chunk time.Duration) ([]int16, error) {
	rate := src.Format().SampleRate
	want := audio.SamplesFor(d, rate)
	if want <= 0 {
		return nil, fmt.Errorf("capture: record duration %s too short", d)
	}

	samples := make([]int16, 0, want)
	err := src.Stream(ctx, chunk, func(c audio.Chunk) bool {
		samples = append(samples, c.Samples...)
		return len(samples) < want
	})
	if err != nil && !errors.Is(err, ErrEndOfStream) {
		return nil, fmt.Errorf("capture: record: %w", err)
	}
	if len(samples) > want {
		samples = samples[:want]
	}
	return samples, nil
}

// RecordToFile records d of audio from src and writes it as a mono WAV file
// at path on fs.
func RecordToFile(ctx context.Context, src Source, fs afero.Fs, path string, d, chunk time.Duration) error {
	samples, err := Record(ctx, src, d, chunk)
	if err != nil {
		return err
	}
	f := audio.Format{SampleRate: src.Format().SampleRate, Channels: 1}
	if err := wavfile.Write(fs, path, samples, f); err != nil {
		return fmt.Errorf("capture: save recording: %w", err)
	}
	return nil
}
