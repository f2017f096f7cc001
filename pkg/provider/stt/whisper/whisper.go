// Package whisper adapts whisper.cpp to the stt.Recognizer contract.
//
// whisper.cpp transcribes whole clips rather than streams, so the recognizer
// here gates incoming PCM through a VAD session and buffers speech. When the
// speaker pauses (or the buffer reaches its cap) the buffered clip is
// transcribed and reported as a final result. While speech continues, the
// buffer is optionally re-transcribed at a fixed interval and reported as a
// partial, which keeps downstream silence detection from cutting a long
// utterance short.
//
// Two transcription backends are provided: [ServerEngine] talks to a
// whisper-server HTTP endpoint, and the native sub-package binds whisper.cpp
// through cgo.
//
// Usage:
//
//	eng, err := whisper.NewServer("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilence(500*time.Millisecond),
//	)
//	a, err := stt.NewAdapter(ctx, eng, stt.RecognizerConfig{SampleRate: 16000})
package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/vad"
	"github.com/MrWong99/hearken/pkg/provider/vad/energy"
)

const (
	defaultLanguage        = "en"
	defaultSampleRate      = 16000
	defaultSilence         = 500 * time.Millisecond
	defaultMaxBuffer       = 10 * time.Second
	defaultPartialInterval = time.Second

	// vadFrameMs is accepted by every VAD engine, including WebRTC.
	vadFrameMs = 20
)

// Transcriber turns one buffered clip of mono speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (string, error)
}

// Option is a functional option shared by the whisper engines.
type Option func(*Options)

// Options holds the gating parameters shared by the whisper engines.
type Options struct {
	Language        string
	Model           string
	Silence         time.Duration
	MaxBuffer       time.Duration
	PartialInterval time.Duration
	VAD             vad.Engine
	VADMode         int
}

// DefaultOptions returns the gating defaults: English, 500 ms trailing
// silence, a 10 s buffer cap, 1 s partial interval and an energy VAD.
func DefaultOptions() Options {
	return Options{
		Language:        defaultLanguage,
		Silence:         defaultSilence,
		MaxBuffer:       defaultMaxBuffer,
		PartialInterval: defaultPartialInterval,
		VAD:             energy.New(0),
	}
}

// WithLanguage sets the language code passed to whisper (e.g., "en", "de").
func WithLanguage(lang string) Option {
	return func(o *Options) { o.Language = lang }
}

// WithModel sets the model identifier forwarded to whisper-server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithSilence sets the trailing silence that commits the buffered speech as a
// final result. Default: 500 ms.
func WithSilence(d time.Duration) Option {
	return func(o *Options) { o.Silence = d }
}

// WithMaxBuffer sets the buffered speech duration that forces a final result
// during uninterrupted speech. Default: 10 s.
func WithMaxBuffer(d time.Duration) Option {
	return func(o *Options) { o.MaxBuffer = d }
}

// WithPartialInterval sets how much new speech triggers an interim
// transcription reported as a partial. Zero disables partials. Default: 1 s.
func WithPartialInterval(d time.Duration) Option {
	return func(o *Options) { o.PartialInterval = d }
}

// WithVAD sets the VAD engine used to gate audio. Default: energy threshold.
func WithVAD(e vad.Engine) Option {
	return func(o *Options) { o.VAD = e }
}

// WithVADMode sets the VAD aggressiveness (0-3).
func WithVADMode(mode int) Option {
	return func(o *Options) { o.VADMode = mode }
}

// NewGatedRecognizer returns a recognizer that buffers speech detected by the
// configured VAD and transcribes it with t.
func NewGatedRecognizer(ctx context.Context, t Transcriber, o Options, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	lang := cfg.Language
	if lang == "" {
		lang = o.Language
	}
	if o.VAD == nil {
		o.VAD = energy.New(0)
	}
	vcfg := vad.Config{SampleRate: rate, FrameSizeMs: vadFrameMs, Mode: o.VADMode}
	sess, err := o.VAD.NewSession(vcfg)
	if err != nil {
		return nil, fmt.Errorf("whisper: vad session: %w", err)
	}
	return &recognizer{
		ctx:             ctx,
		t:               t,
		vad:             sess,
		sampleRate:      rate,
		language:        lang,
		frameBytes:      vcfg.FrameBytes(),
		frameDur:        vadFrameMs * time.Millisecond,
		silence:         o.Silence,
		maxBuffer:       o.MaxBuffer,
		partialInterval: o.PartialInterval,
		last:            stt.Payload(stt.ResultPartial, ""),
	}, nil
}

// recognizer implements stt.Recognizer on top of a batch Transcriber. All
// state is confined to the single goroutine driving the episode.
type recognizer struct {
	ctx context.Context
	t   Transcriber
	vad vad.SessionHandle

	sampleRate      int
	language        string
	frameBytes      int
	frameDur        time.Duration
	silence         time.Duration
	maxBuffer       time.Duration
	partialInterval time.Duration

	pending      []byte
	speech       []int16
	hadSpeech    bool
	silent       time.Duration
	sinceInterim time.Duration
	interim      string

	last   []byte
	closed bool
}

func (r *recognizer) AcceptWaveform(pcm []byte) (bool, error) {
	if r.closed {
		return false, stt.ErrClosed
	}

	data := append(r.pending, pcm...)
	for len(data) >= r.frameBytes {
		frame := data[:r.frameBytes]
		data = data[r.frameBytes:]

		ev, err := r.vad.ProcessFrame(frame)
		if err != nil {
			return false, fmt.Errorf("whisper: vad: %w", err)
		}
		switch {
		case ev.IsSpeech():
			r.hadSpeech = true
			r.silent = 0
			r.sinceInterim += r.frameDur
			r.speech = append(r.speech, audio.BytesToSamples(frame)...)
		case r.hadSpeech:
			// Keep trailing context so word endings are not clipped.
			r.silent += r.frameDur
			r.speech = append(r.speech, audio.BytesToSamples(frame)...)
		}
	}
	r.pending = slices.Clone(data)

	buffered := audio.SamplesDuration(len(r.speech), r.sampleRate)
	if r.hadSpeech && (r.silent >= r.silence || buffered >= r.maxBuffer) {
		text, err := r.commit()
		if err != nil {
			return false, err
		}
		r.last = stt.Payload(stt.ResultFinal, text)
		return true, nil
	}

	if r.hadSpeech && r.partialInterval > 0 && r.sinceInterim >= r.partialInterval {
		r.sinceInterim = 0
		text, err := r.t.Transcribe(r.ctx, r.speech, r.sampleRate, r.language)
		if err != nil {
			slog.Warn("whisper: interim transcription failed", "err", err)
		} else {
			r.interim = text
		}
	}
	r.last = stt.Payload(stt.ResultPartial, r.interim)
	return false, nil
}

// commit transcribes the buffered speech and resets the buffer.
func (r *recognizer) commit() (string, error) {
	speech := r.speech
	r.speech = nil
	r.hadSpeech = false
	r.silent = 0
	r.sinceInterim = 0
	r.interim = ""
	r.vad.Reset()

	text, err := r.t.Transcribe(r.ctx, speech, r.sampleRate, r.language)
	if err != nil {
		return "", fmt.Errorf("whisper: transcribe: %w", err)
	}
	return text, nil
}

func (r *recognizer) Result() []byte        { return r.last }
func (r *recognizer) PartialResult() []byte { return r.last }

// FinalResult commits whatever speech is buffered, ignoring the silence rule.
func (r *recognizer) FinalResult() []byte {
	if r.closed || !r.hadSpeech {
		return stt.Payload(stt.ResultFinal, "")
	}
	r.speech = append(r.speech, audio.BytesToSamples(r.pending)...)
	r.pending = nil
	text, err := r.commit()
	if err != nil {
		slog.Warn("whisper: final transcription failed", "err", err)
		return stt.Payload(stt.ResultFinal, "")
	}
	return stt.Payload(stt.ResultFinal, text)
}

func (r *recognizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.vad.Close()
}
