// Package listen runs listening episodes: it bridges a push-based capture
// source to the recognizer, the utterance segmenter and the wake phrase
// matcher.
//
// The capture callback never blocks. Chunks are handed to the episode
// goroutine through a bounded queue; when the queue is full the chunk is
// dropped and counted. The episode goroutine signals the end of an episode
// once, by closing a stop channel, and the callback returns false on its next
// invocation.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/listen/segment"
	"github.com/MrWong99/hearken/internal/listen/wakeword"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// ErrNoMatcher is returned by [Listener.ListenForWake] when the listener was
// built without a wake phrase matcher.
var ErrNoMatcher = errors.New("listen: no wake phrase matcher configured")

// Mode names the kind of episode. It is used as a log, metric and journal
// label.
type Mode string

const (
	ModeWake       Mode = "wake"
	ModeCommand    Mode = "command"
	ModeTranscribe Mode = "transcribe"
)

// OutcomeDetected is the outcome of a wake episode that heard the phrase.
const OutcomeDetected = "detected"

// Config holds the episode timings. Zero fields take the defaults from
// [DefaultConfig].
type Config struct {
	// CommandTimeout caps a command episode.
	CommandTimeout time.Duration

	// Silence is the trailing quiet after recognized speech that ends an
	// utterance.
	Silence time.Duration

	// CommandChunk is the capture chunk duration while listening for a
	// command.
	CommandChunk time.Duration

	// WakeTimeout caps a wake episode. A wake episode that runs out restarts
	// with a fresh recognizer in the caller's loop.
	WakeTimeout time.Duration

	// WakeChunk is the capture chunk duration while wake-spotting.
	WakeChunk time.Duration

	// QueueSize bounds the chunk queue between capture and recognition.
	QueueSize int

	// Language is passed to the recognizer.
	Language string
}

// DefaultConfig returns 10 s command timeout, 2 s silence, 250 ms command
// chunks, 30 s wake timeout, 500 ms wake chunks and a queue of 8.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 10 * time.Second,
		Silence:        2 * time.Second,
		CommandChunk:   250 * time.Millisecond,
		WakeTimeout:    30 * time.Second,
		WakeChunk:      500 * time.Millisecond,
		QueueSize:      8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.Silence <= 0 {
		c.Silence = d.Silence
	}
	if c.CommandChunk <= 0 {
		c.CommandChunk = d.CommandChunk
	}
	if c.WakeTimeout <= 0 {
		c.WakeTimeout = d.WakeTimeout
	}
	if c.WakeChunk <= 0 {
		c.WakeChunk = d.WakeChunk
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Episode is the result of one listening episode.
type Episode struct {
	ID    string
	Mode  Mode
	State segment.State

	// Detected is set when a wake episode heard the phrase. Rule names the
	// matching rule and Text holds the candidate that matched.
	Detected bool
	Rule     wakeword.Rule

	// Text is the committed transcript. It is kept for timed-out episodes
	// for diagnostics and empty for aborted ones.
	Text string

	// Elapsed is the session clock at the end of the episode.
	Elapsed time.Duration

	// Dropped counts chunks lost to a full queue.
	Dropped int

	StartedAt time.Time
}

// Outcome returns the journal and metric label for e.
func (e Episode) Outcome() string {
	if e.Detected {
		return OutcomeDetected
	}
	return e.State.String()
}

// Heard reports whether the episode produced a usable utterance.
func (e Episode) Heard() bool {
	return e.State == segment.Finished && e.Text != ""
}

// Option configures a [Listener].
type Option func(*Listener)

// WithJournal records every episode in j.
func WithJournal(j journal.Store) Option {
	return func(l *Listener) { l.journal = j }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// EpisodeOption overrides the configured timings for a single episode.
type EpisodeOption func(*episodeConfig)

// WithTimeout overrides the episode timeout.
func WithTimeout(d time.Duration) EpisodeOption {
	return func(c *episodeConfig) { c.timeout = d }
}

// WithSilence overrides the trailing silence.
func WithSilence(d time.Duration) EpisodeOption {
	return func(c *episodeConfig) { c.silence = d }
}

// WithChunk overrides the capture chunk duration.
func WithChunk(d time.Duration) EpisodeOption {
	return func(c *episodeConfig) { c.chunk = d }
}

type episodeConfig struct {
	timeout time.Duration
	silence time.Duration
	chunk   time.Duration
}

// Listener runs one episode at a time against a capture source.
type Listener struct {
	src     capture.Source
	engine  stt.Engine
	matcher *wakeword.Matcher
	cfg     Config
	journal journal.Store
	metrics *observe.Metrics

	// mu serializes episodes; there is only one source to listen to.
	mu sync.Mutex
}

// New returns a Listener. matcher may be nil when only command episodes are
// needed.
func New(src capture.Source, engine stt.Engine, matcher *wakeword.Matcher, cfg Config, opts ...Option) *Listener {
	l := &Listener{
		src:     src,
		engine:  engine,
		matcher: matcher,
		cfg:     cfg.withDefaults(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Config returns the effective configuration.
func (l *Listener) Config() Config { return l.cfg }

// ListenForWake runs a wake-spotting episode. It returns once the phrase is
// detected in a partial or final result, or when the episode ends without it.
// Cancelling ctx aborts the episode and returns ctx.Err().
func (l *Listener) ListenForWake(ctx context.Context, opts ...EpisodeOption) (Episode, error) {
	if l.matcher == nil {
		return Episode{Mode: ModeWake, State: segment.Aborted}, ErrNoMatcher
	}
	ec := episodeConfig{timeout: l.cfg.WakeTimeout, silence: l.cfg.Silence, chunk: l.cfg.WakeChunk}
	return l.run(ctx, ModeWake, ec, opts)
}

// ListenForCommand runs a command episode. The utterance is complete when
// recognized speech is followed by the configured silence.
func (l *Listener) ListenForCommand(ctx context.Context, opts ...EpisodeOption) (Episode, error) {
	ec := episodeConfig{timeout: l.cfg.CommandTimeout, silence: l.cfg.Silence, chunk: l.cfg.CommandChunk}
	return l.run(ctx, ModeCommand, ec, opts)
}

func (l *Listener) run(ctx context.Context, mode Mode, ec episodeConfig, opts []EpisodeOption) (Episode, error) {
	for _, o := range opts {
		o(&ec)
	}
	ep := Episode{ID: uuid.NewString(), Mode: mode, StartedAt: time.Now()}
	segCfg := segment.Config{Timeout: ec.timeout, Silence: ec.silence}
	if err := segCfg.Validate(); err != nil {
		ep.State = segment.Aborted
		return ep, fmt.Errorf("listen: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, obs := observe.StartEpisode(ctx, string(mode), ep.ID)
	log := obs.Log
	l.metrics.EpisodeStarted(ctx, string(mode))

	e := &episode{
		l:       l,
		mode:    mode,
		log:     log,
		seg:     segment.New(segCfg, segment.WithLogger(log)),
		silence: ec.silence,
		stop:    make(chan struct{}),
		queue:   make(chan audio.Chunk, l.cfg.QueueSize),
	}
	err := e.run(ctx, ec.chunk)
	if err == nil && !e.detected && !e.seg.State().Terminal() {
		// The source gave up without an error; only cancellation does that.
		err = ctx.Err()
	}

	ep.State = e.seg.State()
	ep.Text = e.seg.Text()
	ep.Elapsed = e.seg.Elapsed()
	ep.Dropped = int(e.dropped.Load())
	ep.Detected = e.detected
	ep.Rule = e.rule
	if e.detected {
		ep.Text = e.candidate
		err = nil
	}
	if err != nil {
		e.seg.Abort()
		ep.State = segment.Aborted
		ep.Text = ""
	}

	l.finish(ctx, ep, err, log)
	obs.End(ep.Outcome(), err)
	return ep, err
}

// finish logs, counts and journals a completed episode.
func (l *Listener) finish(ctx context.Context, ep Episode, err error, log *slog.Logger) {
	outcome := ep.Outcome()
	l.metrics.RecordEpisode(ctx, string(ep.Mode), outcome, ep.Elapsed)
	if ep.Detected {
		l.metrics.RecordWake(ctx, ep.Rule.String())
	}

	attrs := []any{
		"outcome", outcome,
		"elapsed", ep.Elapsed,
		"dropped", ep.Dropped,
	}
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		log.Warn("listen: episode failed", append(attrs, "err", err)...)
	case ep.State == segment.TimedOut && ep.Text != "":
		// The recognizer produced text but never enough silence to commit it.
		log.Info("listen: episode timed out with speech", append(attrs, "text", ep.Text)...)
	default:
		log.Debug("listen: episode ended", attrs...)
	}

	if l.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:        ep.ID,
		Mode:      string(ep.Mode),
		Outcome:   outcome,
		Text:      ep.Text,
		Elapsed:   ep.Elapsed,
		Dropped:   ep.Dropped,
		StartedAt: ep.StartedAt,
	}
	if ep.Detected {
		entry.WakeRule = ep.Rule.String()
	}
	if err := l.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("listen: failed to journal episode", "err", err)
	}
}

// episode is the per-episode state shared by the capture and recognition
// goroutines. Only dropped and stop are touched by both.
type episode struct {
	l       *Listener
	mode    Mode
	log     *slog.Logger
	seg     *segment.Segmenter
	silence time.Duration

	queue    chan audio.Chunk
	stop     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64

	detected  bool
	rule      wakeword.Rule
	candidate string
}

func (e *episode) halt() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *episode) run(ctx context.Context, chunk time.Duration) error {
	adapter, err := stt.NewAdapter(ctx, e.l.engine,
		stt.RecognizerConfig{SampleRate: e.l.src.Format().SampleRate, Language: e.l.cfg.Language},
		stt.WithLogger(e.log),
		stt.WithMalformedHook(func(k stt.ResultKind) {
			e.l.metrics.RecordMalformed(ctx, k.String())
		}),
	)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			e.log.Warn("listen: failed to close recognizer", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.capture(gctx, chunk) })
	g.Go(func() error { return e.recognize(gctx, adapter) })
	return g.Wait()
}

// capture streams chunks into the queue until the stop channel is closed.
// The queue is closed only when the stream ends cleanly, so a failed stream
// never reaches the end-of-source handling.
func (e *episode) capture(ctx context.Context, chunk time.Duration) error {
	err := e.l.src.Stream(ctx, chunk, func(c audio.Chunk) bool { return e.push(ctx, c) })
	switch {
	case err == nil, errors.Is(err, capture.ErrEndOfStream):
		close(e.queue)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("listen: capture: %w", err)
	}
}

// push is the capture callback. It must not block and must not let a panic
// escape into the capture layer.
func (e *episode) push(ctx context.Context, c audio.Chunk) (more bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("listen: capture callback panicked, stopping stream", "panic", r)
			e.halt()
			more = false
		}
	}()
	select {
	case <-e.stop:
		return false
	default:
	}
	select {
	case e.queue <- c:
	default:
		n := e.dropped.Add(1)
		e.l.metrics.RecordDrop(ctx, string(e.mode))
		e.log.Warn("listen: chunk queue full, dropping chunk", "dropped", n)
	}
	return true
}

// recognize feeds queued chunks to the recognizer and steps the segmenter
// until the episode reaches a terminal state.
func (e *episode) recognize(ctx context.Context, adapter *stt.Adapter) error {
	defer e.halt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-e.queue:
			if !ok {
				return e.drain(adapter)
			}
			start := time.Now()
			res, err := adapter.Feed(c.Bytes())
			e.l.metrics.RecordChunk(ctx, string(e.mode), time.Since(start))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			if e.step(res, c.Duration) {
				return nil
			}
		}
	}
}

// step applies one result and reports whether the episode is over.
func (e *episode) step(res stt.Result, d time.Duration) bool {
	state := e.seg.Step(res, d)
	if e.mode == ModeWake && res.HasSpeech() {
		candidate := wakeword.Normalize(res.Text)
		if rule, ok := e.l.matcher.Match(candidate); ok {
			e.detected, e.rule, e.candidate = true, rule, candidate
			e.log.Info("listen: wake phrase detected", "rule", rule.String(), "text", candidate)
			return true
		}
	}
	return state.Terminal()
}

// drain handles the end of a finite source: buffered audio is committed and
// the remainder of the episode is treated as silence.
func (e *episode) drain(adapter *stt.Adapter) error {
	res, err := adapter.Flush()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	done := e.step(res, 0)
	for !done {
		done = e.step(stt.Partial(""), e.silence)
	}
	return nil
}
