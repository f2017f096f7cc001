package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/wavfile"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// ServerEngine implements stt.Engine backed by a whisper-server HTTP endpoint
// (POST /inference with a multipart WAV upload).
type ServerEngine struct {
	serverURL  string
	opts       Options
	httpClient *http.Client
}

var (
	_ stt.Engine  = (*ServerEngine)(nil)
	_ Transcriber = (*ServerEngine)(nil)
)

// NewServer creates a ServerEngine for the server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...Option) (*ServerEngine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	e := &ServerEngine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		opts:       DefaultOptions(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(&e.opts)
	}
	return e, nil
}

// NewRecognizer returns a VAD-gated recognizer that transcribes through the
// server.
func (e *ServerEngine) NewRecognizer(ctx context.Context, cfg stt.RecognizerConfig) (stt.Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return NewGatedRecognizer(ctx, e, e.opts, cfg)
}

// Ping checks that the server answers HTTP requests.
func (e *ServerEngine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: ping: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Transcribe uploads samples as a WAV clip and returns the recognized text.
func (e *ServerEngine) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (string, error) {
	wav, err := wavfile.EncodeBytes(samples, audio.Format{SampleRate: sampleRate, Channels: 1})
	if err != nil {
		return "", fmt.Errorf("whisper: encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if e.opts.Model != "" {
		if err := mw.WriteField("model", e.opts.Model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", errors.New("whisper: response is not valid JSON")
	}
	return strings.TrimSpace(gjson.GetBytes(data, "text").String()), nil
}
