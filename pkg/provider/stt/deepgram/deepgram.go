// Package deepgram provides a Deepgram-backed stt.Engine using the Deepgram
// streaming WebSocket API.
//
// Deepgram is asynchronous: transcripts arrive on their own schedule rather
// than in reply to each audio message. A background reader collects them and
// AcceptWaveform drains whatever has arrived without blocking. Segments
// flagged is_final are accumulated; the utterance is committed as a final
// result when Deepgram flags speech_final.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

const (
	deepgramEndpoint    = "wss://api.deepgram.com/v1/listen"
	defaultModel        = "nova-3"
	defaultLanguage     = "en"
	defaultSampleRate   = 16000
	defaultFlushTimeout = 3 * time.Second
)

// Keyword is a recognition hint with an intensifier (e.g., "computer:2").
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(e *Engine) { e.language = language }
}

// WithKeywords boosts recognition of the given words, typically the wake
// phrase.
func WithKeywords(kws ...Keyword) Option {
	return func(e *Engine) { e.keywords = append(e.keywords, kws...) }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(e *Engine) { e.endpoint = endpoint }
}

// WithFlushTimeout bounds how long FinalResult waits for Deepgram to deliver
// the last transcripts after the stream is closed. Default: 3 s.
func WithFlushTimeout(d time.Duration) Option {
	return func(e *Engine) { e.flushTimeout = d }
}

// Engine implements stt.Engine backed by the Deepgram streaming API.
type Engine struct {
	apiKey       string
	endpoint     string
	model        string
	language     string
	keywords     []Keyword
	flushTimeout time.Duration
}

var _ stt.Engine = (*Engine)(nil)

// New creates a new Deepgram Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:       apiKey,
		endpoint:     deepgramEndpoint,
		model:        defaultModel,
		language:     defaultLanguage,
		flushTimeout: defaultFlushTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewRecognizer opens a streaming connection to Deepgram for one episode.
// The connection lives until Close or until ctx is cancelled.
func (e *Engine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	wsURL, err := e.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &recognizer{
		ctx:          rctx,
		cancel:       cancel,
		conn:         conn,
		flushTimeout: e.flushTimeout,
		segments:     make(chan segment, 64),
		done:         make(chan struct{}),
		last:         stt.Payload(stt.ResultPartial, ""),
	}
	go r.readLoop()
	return r, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (e *Engine) buildURL(cfg stt.RecognizerConfig) (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")

	for _, kw := range e.keywords {
		// Deepgram keyword format: word:boost (e.g., "computer:2")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// segment is one transcript message from Deepgram.
type segment struct {
	text        string
	isFinal     bool
	speechFinal bool
}

// parseSegment extracts a transcript from a raw Deepgram message. Messages
// other than "Results", or without alternatives, are ignored.
func parseSegment(data []byte) (segment, bool) {
	if !gjson.ValidBytes(data) {
		return segment{}, false
	}
	res := gjson.ParseBytes(data)
	if res.Get("type").String() != "Results" {
		return segment{}, false
	}
	alt := res.Get("channel.alternatives.0")
	if !alt.Exists() {
		return segment{}, false
	}
	return segment{
		text:        strings.TrimSpace(alt.Get("transcript").String()),
		isFinal:     res.Get("is_final").Bool(),
		speechFinal: res.Get("speech_final").Bool(),
	}, true
}

// recognizer is a live Deepgram stream. AcceptWaveform, FinalResult and Close
// are driven from the episode goroutine; readLoop runs alongside.
type recognizer struct {
	ctx          context.Context
	cancel       context.CancelFunc
	conn         *websocket.Conn
	flushTimeout time.Duration

	segments chan segment
	done     chan struct{}
	readErr  error // written by readLoop before done is closed

	committed []string
	interim   string
	last      []byte
	ended     bool
	closeOnce sync.Once
}

func (r *recognizer) readLoop() {
	defer close(r.done)
	defer close(r.segments)
	for {
		_, msg, err := r.conn.Read(r.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && r.ctx.Err() == nil {
				r.readErr = err
			}
			return
		}
		seg, ok := parseSegment(msg)
		if !ok {
			continue
		}
		select {
		case r.segments <- seg:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *recognizer) AcceptWaveform(pcm []byte) (bool, error) {
	if r.ended {
		return false, errors.New("deepgram: stream already finished")
	}
	if len(pcm) > 0 {
		if err := r.conn.Write(r.ctx, websocket.MessageBinary, pcm); err != nil {
			return false, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}

	for {
		select {
		case seg, ok := <-r.segments:
			if !ok {
				if r.readErr != nil {
					return false, fmt.Errorf("deepgram: connection lost: %w", r.readErr)
				}
				return false, errors.New("deepgram: stream closed by server")
			}
			if r.apply(seg) {
				r.last = stt.Payload(stt.ResultFinal, r.takeCommitted())
				return true, nil
			}
		default:
			r.last = stt.Payload(stt.ResultPartial, r.current())
			return false, nil
		}
	}
}

// apply folds seg into the utterance state and reports whether the utterance
// is complete.
func (r *recognizer) apply(seg segment) bool {
	if !seg.isFinal {
		r.interim = seg.text
		return false
	}
	r.interim = ""
	if seg.text != "" {
		r.committed = append(r.committed, seg.text)
	}
	return seg.speechFinal
}

func (r *recognizer) current() string {
	parts := r.committed
	if r.interim != "" {
		parts = append(parts[:len(parts):len(parts)], r.interim)
	}
	return strings.Join(parts, " ")
}

func (r *recognizer) takeCommitted() string {
	text := strings.Join(r.committed, " ")
	r.committed = nil
	r.interim = ""
	return text
}

func (r *recognizer) Result() []byte        { return r.last }
func (r *recognizer) PartialResult() []byte { return r.last }

// FinalResult closes the audio stream and waits up to the flush timeout for
// Deepgram's last transcripts.
func (r *recognizer) FinalResult() []byte {
	if r.ended {
		return stt.Payload(stt.ResultFinal, "")
	}
	r.ended = true
	_ = r.conn.Write(r.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))

	timeout := time.NewTimer(r.flushTimeout)
	defer timeout.Stop()
	for {
		select {
		case seg, ok := <-r.segments:
			if !ok {
				return stt.Payload(stt.ResultFinal, r.takeCommitted())
			}
			r.apply(seg)
		case <-timeout.C:
			return stt.Payload(stt.ResultFinal, r.takeCommitted())
		}
	}
}

func (r *recognizer) Close() error {
	r.closeOnce.Do(func() {
		r.ended = true
		r.cancel()
		_ = r.conn.CloseNow()
		<-r.done
	})
	return nil
}
