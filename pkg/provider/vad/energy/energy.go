// Package energy provides a dependency-free vad.Engine that classifies frames
// by their root-mean-square energy. It is the fallback when the WebRTC
// detector is unavailable.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// DefaultThreshold is the RMS level (in 16-bit PCM units) above which a frame
// counts as speech. 300 of a possible 32767 is just above room noise.
const DefaultThreshold = 300.0

// Engine creates energy-threshold VAD sessions.
type Engine struct {
	threshold float64
}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy engine. A non-positive threshold selects
// [DefaultThreshold].
func New(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{threshold: threshold}
}

// NewSession validates cfg and returns a new session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		threshold:  e.threshold,
		frameBytes: cfg.FrameBytes(),
		tracker:    vad.NewTracker(cfg),
	}, nil
}

type session struct {
	threshold  float64
	frameBytes int
	tracker    *vad.Tracker
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	rms := RMS(frame)
	prob := math.Min(rms/(2*s.threshold), 1)
	return s.tracker.Observe(rms >= s.threshold, prob), nil
}

func (s *session) Reset() { s.tracker.Reset() }

func (s *session) Close() error { return nil }

// RMS returns the root-mean-square energy of little-endian 16-bit PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
