package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
)

// Responder delivers the assistant's side of the conversation. Speech
// synthesis lives behind this interface.
type Responder interface {
	// Cue signals that the assistant is listening for a command.
	Cue(ctx context.Context) error

	// Say delivers text to the user.
	Say(ctx context.Context, text string) error
}

// Player plays mono PCM samples.
type Player interface {
	Play(ctx context.Context, samples []int16, rate int) error
}

// Beep describes the listening cue.
type Beep struct {
	Frequency  float64
	Duration   time.Duration
	SampleRate int
}

// DefaultBeep is a 200 ms 1 kHz tone at 16 kHz.
var DefaultBeep = Beep{Frequency: 1000, Duration: 200 * time.Millisecond, SampleRate: 16000}

// Samples renders the beep at 30 % of full scale.
func (b Beep) Samples() []int16 {
	return audio.Tone(b.Frequency, b.Duration, b.SampleRate, 0.3)
}

// Console prints replies to a writer and plays the beep through an optional
// Player.
type Console struct {
	out    io.Writer
	player Player
	beep   Beep

	mu sync.Mutex
}

var _ Responder = (*Console)(nil)

// NewConsole returns a Console writing to out. player may be nil, in which
// case the cue is printed instead of played.
func NewConsole(out io.Writer, player Player, beep Beep) *Console {
	return &Console{out: out, player: player, beep: beep}
}

func (c *Console) Cue(ctx context.Context) error {
	if c.player == nil {
		c.print("*beep*")
		return nil
	}
	if err := c.player.Play(ctx, c.beep.Samples(), c.beep.SampleRate); err != nil {
		return fmt.Errorf("assistant: play beep: %w", err)
	}
	return nil
}

func (c *Console) Say(_ context.Context, text string) error {
	slog.Info("assistant: reply", "text", text)
	c.print("assistant: " + text)
	return nil
}

func (c *Console) print(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}
