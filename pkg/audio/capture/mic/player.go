package mic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

const playFrames = 512

// Player plays mono 16-bit PCM on the default output device. It is used for
// short cues such as the wake beep.
type Player struct{}

// Play blocks until samples have been written or ctx is cancelled.
func (Player) Play(ctx context.Context, samples []int16, rate int) error {
	if len(samples) == 0 {
		return nil
	}
	if err := initialize(); err != nil {
		return fmt.Errorf("mic: initialize portaudio: %w", err)
	}
	defer terminate()

	buf := make([]int16, playFrames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("mic: open default output: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("mic: start output: %w", err)
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			slog.Warn("mic: stop output", "err", err)
		}
	}()

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("mic: write: %w", err)
		}
	}
	return nil
}
