package audio

import (
	"log/slog"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

const (
	fullScale = math.MaxInt16

	defaultWeakThreshold = 0.10
	defaultTargetPeak    = 0.30
	defaultMaxGain       = 10.0
)

// Conditioner normalizes captured audio into the mono, fixed-rate, reasonably
// loud format recognizers expect. It holds only immutable settings and is safe
// for concurrent use.
type Conditioner struct {
	agc           bool
	weakThreshold float64
	targetPeak    float64
	maxGain       float64
}

// ConditionerOption configures a [Conditioner].
type ConditionerOption func(*Conditioner)

// WithAGC enables or disables automatic gain control. Default: enabled.
func WithAGC(enabled bool) ConditionerOption {
	return func(c *Conditioner) { c.agc = enabled }
}

// WithWeakThreshold sets the peak level, as a fraction of full scale, below
// which gain is applied. Default: 0.10.
func WithWeakThreshold(frac float64) ConditionerOption {
	return func(c *Conditioner) { c.weakThreshold = frac }
}

// WithTargetPeak sets the peak level, as a fraction of full scale, that gain
// aims for. Default: 0.30.
func WithTargetPeak(frac float64) ConditionerOption {
	return func(c *Conditioner) { c.targetPeak = frac }
}

// WithMaxGain caps the multiplicative gain. Default: 10.
func WithMaxGain(g float64) ConditionerOption {
	return func(c *Conditioner) { c.maxGain = g }
}

// NewConditioner returns a [Conditioner] with the given options applied.
func NewConditioner(opts ...ConditionerOption) *Conditioner {
	c := &Conditioner{
		agc:           true,
		weakThreshold: defaultWeakThreshold,
		targetPeak:    defaultTargetPeak,
		maxGain:       defaultMaxGain,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Condition downmixes interleaved samples with the given channel count to
// mono, resamples from srcRate to dstRate and applies gain control. The input
// is never modified.
func (c *Conditioner) Condition(samples []int16, channels, srcRate, dstRate int) []int16 {
	out := Downmix(samples, channels)
	if srcRate != dstRate {
		out = Resample(out, srcRate, dstRate)
	}
	if c.agc {
		out = c.ApplyAGC(out)
	}
	return out
}

// ApplyAGC boosts a weak signal toward the target peak. Signals whose peak is
// zero or already at or above the weak threshold are returned unchanged, which
// makes repeated application idempotent once the level is in band.
func (c *Conditioner) ApplyAGC(samples []int16) []int16 {
	peak := Peak(samples)
	if peak == 0 || float64(peak) >= c.weakThreshold*fullScale {
		return samples
	}
	gain := min(c.targetPeak*fullScale/float64(peak), c.maxGain)
	slog.Debug("audio conditioner: boosting weak signal", "peak", peak, "gain", gain)

	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clip16(float64(s) * gain)
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int32 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// ResampledLen returns the exact output length [Resample] produces for n
// input samples: round(n * dstRate / srcRate).
func ResampledLen(n, srcRate, dstRate int) int {
	if srcRate <= 0 || dstRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

// Resample performs band-limited resampling by truncating or zero-padding the
// signal's spectrum. The result has exactly [ResampledLen] samples. Degenerate
// input (no samples, invalid rates, zero-length target) yields an empty slice.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	n := len(samples)
	m := ResampledLen(n, srcRate, dstRate)
	if n == 0 || m == 0 {
		return []int16{}
	}
	if n == m {
		out := make([]int16, n)
		copy(out, samples)
		return out
	}

	x := make([]float64, n)
	for i, s := range samples {
		x[i] = float64(s)
	}
	X := fft.FFTReal(x)

	Y := make([]complex128, m)
	N := min(n, m)
	nyq := N/2 + 1
	copy(Y[:nyq], X[:nyq])
	if k := N - nyq; k > 0 {
		copy(Y[m-k:], X[n-k:])
	}
	// The Nyquist bin of an even-length spectrum straddles both halves.
	if N%2 == 0 {
		if m < n {
			Y[N/2] += X[n-N/2]
		} else {
			Y[N/2] *= 0.5
			Y[m-N/2] = Y[N/2]
		}
	}

	y := fft.IFFT(Y)
	scale := float64(m) / float64(n)
	out := make([]int16, m)
	for i := range out {
		out[i] = clip16(real(y[i]) * scale)
	}
	return out
}
