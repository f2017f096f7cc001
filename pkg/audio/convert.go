package audio

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Downmix averages interleaved frames of the given channel count into mono.
// Averaging is done in int32 so the amplitude scale is preserved without
// overflow. A channel count of one or less returns the input unchanged.
// Trailing samples that do not form a complete frame are dropped.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		out[i] = clip16(float64(sum) / float64(channels))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// ResampleLinear resamples mono samples from srcRate to dstRate using linear
// interpolation. It is cheap enough for per-frame use on a live stream where
// [Resample] would add a whole-buffer FFT per frame. If the rates match or are
// invalid the input is returned unchanged.
func ResampleLinear(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// StreamConverter brings frames of an arbitrary format down to mono at a target
// rate, frame by frame. It logs once on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type StreamConverter struct {
	Target int

	warnedMismatch sync.Once
}

// Convert downmixes and linearly resamples one frame of interleaved samples.
func (c *StreamConverter) Convert(samples []int16, f Format) Chunk {
	if f.Channels == 1 && f.SampleRate == c.Target {
		return NewChunk(samples, c.Target)
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio stream converter: format mismatch, converting",
			"from", f.String(),
			"to", Format{SampleRate: c.Target, Channels: 1}.String(),
		)
	})
	mono := Downmix(samples, f.Channels)
	return NewChunk(ResampleLinear(mono, f.SampleRate, c.Target), c.Target)
}

// Tone returns a sine wave of the given frequency and duration at rate, with a
// peak of amplitude (0..1 of full scale). It is used for the wake cue beep.
func Tone(freq float64, d time.Duration, rate int, amplitude float64) []int16 {
	n := SamplesFor(d, rate)
	out := make([]int16, n)
	for i := range n {
		v := amplitude * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		out[i] = clip16(v)
	}
	return out
}

// clip16 rounds v to the nearest integer and clamps it to the int16 range.
func clip16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
