package listen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// Transcribe recognizes a whole clip of conditioned mono samples. The clip is
// fed in chunk-sized slices and the recognizer is flushed at the end; every
// final result is joined with single spaces. An empty string means nothing
// was recognized.
func Transcribe(ctx context.Context, eng stt.Engine, samples []int16, rate int, chunk time.Duration, opts ...stt.AdapterOption) (string, error) {
	if rate <= 0 {
		return "", fmt.Errorf("listen: transcribe: invalid sample rate %d", rate)
	}
	if chunk <= 0 {
		chunk = DefaultConfig().CommandChunk
	}

	ctx, obs := observe.StartEpisode(ctx, string(ModeTranscribe), uuid.NewString())
	text, err := transcribe(ctx, eng, samples, rate, chunk, obs.Log, opts)
	outcome := "heard"
	switch {
	case err != nil:
		outcome = "error"
	case text == "":
		outcome = "nothing"
	}
	obs.End(outcome, err)
	if err != nil {
		return "", fmt.Errorf("listen: transcribe: %w", err)
	}
	return text, nil
}

func transcribe(ctx context.Context, eng stt.Engine, samples []int16, rate int, chunk time.Duration, log *slog.Logger, opts []stt.AdapterOption) (string, error) {
	opts = append([]stt.AdapterOption{stt.WithLogger(log)}, opts...)
	a, err := stt.NewAdapter(ctx, eng, stt.RecognizerConfig{SampleRate: rate}, opts...)
	if err != nil {
		return "", err
	}
	defer a.Close()

	var texts []string
	step := max(audio.SamplesFor(chunk, rate), 1)
	for off := 0; off < len(samples); off += step {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := min(off+step, len(samples))
		res, err := a.Feed(audio.SamplesToBytes(samples[off:end]))
		if err != nil {
			return "", err
		}
		if res.IsFinal() && res.HasSpeech() {
			texts = append(texts, res.Text)
		}
	}
	res, err := a.Flush()
	if err != nil {
		return "", err
	}
	if res.HasSpeech() {
		texts = append(texts, res.Text)
	}

	text := strings.Join(texts, " ")
	log.Debug("listen: transcription done", "samples", len(samples), "text", text)
	return text, nil
}
