// Package audio defines the PCM chunk type that flows from capture sources to
// recognizers, plus the conversion and conditioning helpers that bring captured
// audio into the format a recognizer expects.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a compact representation such as "16000Hz/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Chunk is one fixed-cadence slice of mono signed 16-bit audio. Capture sources
// produce chunks and hand them off by value; a consumer must not retain a chunk
// after it has been processed.
type Chunk struct {
	// Samples holds mono PCM samples.
	Samples []int16

	// SampleRate in Hz (16000 for most recognizers).
	SampleRate int

	// Duration is the nominal duration of the chunk. Segmentation advances its
	// clock by this value rather than by wall-clock time.
	Duration time.Duration
}

// NewChunk builds a chunk from mono samples, deriving the nominal duration
// from the sample count and rate.
func NewChunk(samples []int16, sampleRate int) Chunk {
	return Chunk{
		Samples:    samples,
		SampleRate: sampleRate,
		Duration:   SamplesDuration(len(samples), sampleRate),
	}
}

// Bytes returns the chunk as little-endian 16-bit PCM.
func (c Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// SamplesDuration returns the playback duration of n mono samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// SamplesFor returns the number of mono samples that cover d at rate.
func SamplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
