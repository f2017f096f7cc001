// Package mic captures audio from a local input device through PortAudio.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
)

const defaultRate = 16000

// PortAudio keeps process-wide state; Initialize and Terminate calls are
// reference counted by the library, but concurrent calls are not safe.
var paMu sync.Mutex

func initialize() error {
	paMu.Lock()
	defer paMu.Unlock()
	return portaudio.Initialize()
}

func terminate() {
	paMu.Lock()
	defer paMu.Unlock()
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("mic: terminate portaudio", "err", err)
	}
}

// Source streams mono 16-bit audio from one input device.
type Source struct {
	device string
	rate   int
	pa     opener
}

var _ capture.Source = (*Source)(nil)

// New returns a Source for the named device ("" or "default" for the system
// default) at rate Hz. A rate of zero selects 16000.
func New(device string, rate int) *Source {
	if rate <= 0 {
		rate = defaultRate
	}
	return &Source{device: device, rate: rate, pa: portAudio{}}
}

func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.rate, Channels: 1}
}

// Stream opens the device and delivers chunks until fn returns false or ctx
// is cancelled. If the named device is missing or cannot be opened, the
// default device is used instead and a warning is logged.
func (s *Source) Stream(ctx context.Context, chunk time.Duration, fn func(audio.Chunk) bool) error {
	if err := initialize(); err != nil {
		return fmt.Errorf("mic: initialize portaudio: %w", err)
	}
	defer terminate()

	buf := make([]int16, max(audio.SamplesFor(chunk, s.rate), 1))
	stream, err := s.open(buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("mic: start stream: %w", err)
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			slog.Warn("mic: stop stream", "err", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Warn("mic: input overflowed, samples lost", "device", s.device)
			} else {
				return fmt.Errorf("mic: read: %w", err)
			}
		}
		out := make([]int16, len(buf))
		copy(out, buf)
		if !fn(audio.NewChunk(out, s.rate)) {
			return nil
		}
	}
}

// open prefers the configured device and falls back to the default one on
// any failure to find or open it.
func (s *Source) open(buf []int16) (*portaudio.Stream, error) {
	if !capture.IsDefaultDevice(s.device) {
		stream, err := s.openNamed(buf)
		if err == nil {
			return stream, nil
		}
		slog.Warn("mic: input device unavailable, using default", "device", s.device, "err", err)
	}
	stream, err := s.pa.openDefault(s.rate, buf)
	if err != nil {
		return nil, fmt.Errorf("mic: open default device: %w", err)
	}
	return stream, nil
}

func (s *Source) openNamed(buf []int16) (*portaudio.Stream, error) {
	dev, err := s.pa.find(s.device)
	if err != nil {
		return nil, err
	}
	stream, err := s.pa.open(dev, s.rate, buf)
	if err != nil {
		return nil, fmt.Errorf("mic: open device %q: %w", s.device, err)
	}
	return stream, nil
}

// opener is the part of PortAudio that device selection uses.
type opener interface {
	find(name string) (*portaudio.DeviceInfo, error)
	open(dev *portaudio.DeviceInfo, rate int, buf []int16) (*portaudio.Stream, error)
	openDefault(rate int, buf []int16) (*portaudio.Stream, error)
}

type portAudio struct{}

func (portAudio) find(name string) (*portaudio.DeviceInfo, error) { return findDevice(name) }

func (portAudio) open(dev *portaudio.DeviceInfo, rate int, buf []int16) (*portaudio.Stream, error) {
	p := portaudio.LowLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = len(buf)
	return portaudio.OpenStream(p, buf)
}

func (portAudio) openDefault(rate int, buf []int16) (*portaudio.Stream, error) {
	return portaudio.OpenDefaultStream(1, 0, float64(rate), len(buf), buf)
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("mic: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", capture.ErrDeviceNotFound, name)
}

// Devices lists input-capable devices, marking the system default.
func Devices() ([]capture.Device, error) {
	if err := initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialize portaudio: %w", err)
	}
	defer terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("mic: list devices: %w", err)
	}
	var defName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defName = def.Name
	}

	var out []capture.Device
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, capture.Device{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defName,
		})
	}
	return out, nil
}
