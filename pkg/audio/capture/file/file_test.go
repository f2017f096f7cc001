package file_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/audio/capture/file"
	"github.com/MrWong99/hearken/pkg/audio/wavfile"
)

func writeClip(t *testing.T, fs afero.Fs, path string, d time.Duration, f audio.Format) {
	t.Helper()
	mono := audio.Tone(300, d, f.SampleRate, 0.5)
	samples := mono
	if f.Channels == 2 {
		samples = audio.MonoToStereo(mono)
	}
	if err := wavfile.Write(fs, path, samples, f); err != nil {
		t.Fatalf("write clip: %v", err)
	}
}

func TestStream_ChunksAndEnds(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeClip(t, fs, "clip.wav", 1100*time.Millisecond, audio.Format{SampleRate: 16000, Channels: 1})

	src := file.New(fs, "clip.wav", 16000)
	var sizes []int
	err := src.Stream(context.Background(), 250*time.Millisecond, func(c audio.Chunk) bool {
		sizes = append(sizes, len(c.Samples))
		return true
	})
	if !errors.Is(err, capture.ErrEndOfStream) {
		t.Fatalf("err = %v, want ErrEndOfStream", err)
	}
	want := []int{4000, 4000, 4000, 4000, 1600}
	if len(sizes) != len(want) {
		t.Fatalf("chunk sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d = %d samples, want %d", i, sizes[i], want[i])
		}
	}
}

func TestStream_ConvertsStereo48k(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeClip(t, fs, "stereo.wav", time.Second, audio.Format{SampleRate: 48000, Channels: 2})

	samples, err := file.New(fs, "stereo.wav", 16000).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 16000 {
		t.Errorf("got %d samples, want 16000", len(samples))
	}
}

func TestStream_StopEarly(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeClip(t, fs, "clip.wav", time.Second, audio.Format{SampleRate: 16000, Channels: 1})

	calls := 0
	err := file.New(fs, "clip.wav", 16000).Stream(context.Background(), 250*time.Millisecond, func(audio.Chunk) bool {
		calls++
		return calls < 2
	})
	if err != nil {
		t.Errorf("err = %v, want nil after consumer stop", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestStream_Cancelled(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeClip(t, fs, "clip.wav", time.Second, audio.Format{SampleRate: 16000, Channels: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := file.New(fs, "clip.wav", 16000, file.WithRealtime(true)).Stream(ctx, 250*time.Millisecond, func(audio.Chunk) bool {
		t.Error("chunk delivered after cancel")
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStream_MissingFile(t *testing.T) {
	t.Parallel()
	err := file.New(afero.NewMemMapFs(), "nope.wav", 16000).Stream(context.Background(), time.Second, func(audio.Chunk) bool { return true })
	if err == nil || errors.Is(err, capture.ErrEndOfStream) {
		t.Errorf("err = %v, want read error", err)
	}
}
