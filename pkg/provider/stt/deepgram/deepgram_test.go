package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	e, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.RecognizerConfig{SampleRate: 16000, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	e, err := New("key", WithModel("base"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.RecognizerConfig{SampleRate: 48000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	e, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.RecognizerConfig{Language: "fr-FR"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
	assertEqual(t, "sample_rate", "16000", u.Query().Get("sample_rate"))
}

func TestBuildURL_Keywords(t *testing.T) {
	e, err := New("key", WithKeywords(Keyword{Word: "computer", Boost: 5}, Keyword{Word: "jarvis", Boost: 3.5}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.RecognizerConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["computer:5"] || !found["jarvis:3.5"] {
		t.Errorf("unexpected keywords %v", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseSegment(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   segment
		wantOK bool
	}{
		{
			name:   "final with endpoint",
			raw:    `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":" Hello world ","confidence":0.95}]}}`,
			want:   segment{text: "Hello world", isFinal: true, speechFinal: true},
			wantOK: true,
		},
		{
			name:   "interim",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello"}]}}`,
			want:   segment{text: "Hello"},
			wantOK: true,
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSegment([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	e, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, e.model)
	assertEqual(t, "language", defaultLanguage, e.language)
	assertEqual(t, "endpoint", deepgramEndpoint, e.endpoint)
	if e.flushTimeout != defaultFlushTimeout {
		t.Errorf("flushTimeout = %v, want %v", e.flushTimeout, defaultFlushTimeout)
	}
}

// ---- streaming tests ----

// fakeDeepgram replies to the n-th audio message with replies[n] and to
// CloseStream with closing, then closes the connection.
type fakeDeepgram struct {
	replies []string
	closing []string

	mu   sync.Mutex
	auth string
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	n := 0
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText && strings.Contains(string(msg), "CloseStream") {
			for _, c := range f.closing {
				_ = conn.Write(ctx, websocket.MessageText, []byte(c))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if n < len(f.replies) {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f.replies[n])); err != nil {
				return
			}
		}
		n++
	}
}

func results(isFinal, speechFinal bool, text string) string {
	return `{"type":"Results","is_final":` + boolStr(isFinal) + `,"speech_final":` + boolStr(speechFinal) +
		`,"channel":{"alternatives":[{"transcript":"` + text + `"}]}}`
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// pollUntil drains the recognizer without sending audio until want arrives.
func pollUntil(t *testing.T, a *stt.Adapter, want stt.Result) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got stt.Result
	for time.Now().Before(deadline) {
		var err error
		got, err = a.Feed(nil)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("last result %+v, want %+v", got, want)
}

func TestRecognizer_Stream(t *testing.T) {
	fake := &fakeDeepgram{
		replies: []string{
			`{"type":"Metadata"}`,
			results(false, false, "hel"),
			results(true, false, "hello"),
			results(true, true, "world"),
		},
		closing: []string{results(true, true, "again")},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")), WithFlushTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := stt.NewAdapter(context.Background(), e, stt.RecognizerConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	defer a.Close()

	pcm := make([]byte, 640)
	for _, want := range []stt.Result{
		stt.Partial(""),
		stt.Partial("hel"),
		stt.Partial("hello"),
		stt.Final("hello world"),
	} {
		if _, err := a.Feed(pcm); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		pollUntil(t, a, want)
	}

	got, err := a.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got != stt.Final("again") {
		t.Errorf("Flush = %+v, want final again", got)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assertEqual(t, "auth", "Token secret", fake.auth)
}

func TestRecognizer_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e, err := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NewRecognizer(context.Background(), stt.RecognizerConfig{}); err == nil {
		t.Error("expected dial error against a non-websocket endpoint")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
