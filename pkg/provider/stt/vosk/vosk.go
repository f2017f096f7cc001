// Package vosk provides an stt.Engine backed by a vosk-server websocket
// endpoint. Each recognizer is one websocket connection: the client sends a
// config message, then one binary PCM message per chunk, and the server answers
// every message with exactly one JSON result.
package vosk

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

const (
	defaultURL        = "ws://localhost:2700"
	defaultTimeout    = 5 * time.Second
	defaultSampleRate = 16000
)

var eofMessage = []byte(`{"eof" : 1}`)

// Option is a functional option for configuring the Vosk Engine.
type Option func(*Engine)

// WithTimeout bounds each request/response round trip. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithWords asks the server to include per-word results in final payloads.
func WithWords(enabled bool) Option {
	return func(e *Engine) { e.words = enabled }
}

// Engine implements stt.Engine against a vosk-server instance.
type Engine struct {
	url     string
	timeout time.Duration
	words   bool
}

var _ stt.Engine = (*Engine)(nil)

// New creates a Vosk Engine for the server at rawURL (ws://, wss://, http://
// or https://). An empty rawURL selects ws://localhost:2700.
func New(rawURL string, opts ...Option) (*Engine, error) {
	if rawURL == "" {
		rawURL = defaultURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("vosk: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("vosk: unsupported url scheme %q", u.Scheme)
	}
	e := &Engine{url: rawURL, timeout: defaultTimeout}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewRecognizer dials the server and sends the recognizer configuration. The
// returned recognizer stays bound to ctx.
func (e *Engine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, e.url, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial: %w", err)
	}

	msg, _ := sjson.SetBytes([]byte(`{}`), "config.sample_rate", rate)
	if e.words {
		msg, _ = sjson.SetBytes(msg, "config.words", true)
	}
	if err := conn.Write(dialCtx, websocket.MessageText, msg); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("vosk: send config: %w", err)
	}

	return &recognizer{ctx: ctx, conn: conn, timeout: e.timeout}, nil
}

// Ping checks that the server accepts websocket connections.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.url, nil)
	if err != nil {
		return fmt.Errorf("vosk: ping: %w", err)
	}
	return conn.Close(websocket.StatusNormalClosure, "ping")
}

// recognizer is a live vosk-server connection. It implements stt.Recognizer.
type recognizer struct {
	ctx     context.Context
	conn    *websocket.Conn
	timeout time.Duration

	last    []byte
	eofSent bool
	closed  bool
}

func (r *recognizer) roundTrip(typ websocket.MessageType, msg []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	if err := r.conn.Write(ctx, typ, msg); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	_, resp, err := r.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return resp, nil
}

// AcceptWaveform sends one chunk and waits for the server's answer. The server
// marks a committed result by a "text" field.
func (r *recognizer) AcceptWaveform(pcm []byte) (bool, error) {
	if r.closed || r.eofSent {
		return false, stt.ErrClosed
	}
	resp, err := r.roundTrip(websocket.MessageBinary, pcm)
	if err != nil {
		return false, fmt.Errorf("vosk: %w", err)
	}
	r.last = resp
	return gjson.GetBytes(resp, "text").Exists(), nil
}

func (r *recognizer) Result() []byte        { return r.last }
func (r *recognizer) PartialResult() []byte { return r.last }

// FinalResult sends end-of-stream and returns the server's last result. The
// server closes the connection afterwards.
func (r *recognizer) FinalResult() []byte {
	if r.closed || r.eofSent {
		return stt.Payload(stt.ResultFinal, "")
	}
	r.eofSent = true
	resp, err := r.roundTrip(websocket.MessageText, eofMessage)
	if err != nil {
		slog.Warn("vosk: final result failed", "err", err)
		return stt.Payload(stt.ResultFinal, "")
	}
	return resp
}

// Close closes the connection. Errors are ignored because the server may
// already have closed it after end-of-stream.
func (r *recognizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.eofSent {
		_ = r.conn.CloseNow()
		return nil
	}
	_ = r.conn.Close(websocket.StatusNormalClosure, "recognizer closed")
	return nil
}
