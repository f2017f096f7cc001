// Package native transcribes with whisper.cpp through its cgo bindings. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/stt/whisper"
)

// modelSampleRate is the only input rate whisper.cpp models are trained on.
const modelSampleRate = 16000

// Engine implements stt.Engine with a locally loaded whisper.cpp model. The
// model is loaded once; every transcription gets its own context.
type Engine struct {
	model whisperlib.Model
	opts  whisper.Options

	// whisper.cpp contexts are heavy; serialise inference on one model.
	mu sync.Mutex
}

var (
	_ stt.Engine          = (*Engine)(nil)
	_ whisper.Transcriber = (*Engine)(nil)
)

// New loads the model at modelPath. The caller must call Close when the
// engine is no longer needed.
func New(modelPath string, opts ...whisper.Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	e := &Engine{model: model, opts: whisper.DefaultOptions()}
	for _, o := range opts {
		o(&e.opts)
	}
	return e, nil
}

// NewRecognizer returns a VAD-gated recognizer backed by the local model.
func (e *Engine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return whisper.NewGatedRecognizer(ctx, e, e.opts, cfg)
}

// Transcribe runs whisper.cpp over samples. whisper.cpp expects 16 kHz input;
// other rates are transcribed as-is and will degrade accuracy.
func (e *Engine) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sampleRate != modelSampleRate {
		slog.Warn("whisper: unexpected sample rate", "got", sampleRate, "want", modelSampleRate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
		}
	}
	if err := wctx.Process(whisper.SamplesToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (e *Engine) Close() error {
	if e.model == nil {
		return nil
	}
	return e.model.Close()
}
