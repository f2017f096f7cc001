package listen_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/listen"
	"github.com/MrWong99/hearken/internal/listen/segment"
	"github.com/MrWong99/hearken/internal/listen/wakeword"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/audio/mock"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	sttmock "github.com/MrWong99/hearken/pkg/provider/stt/mock"
)

const (
	rate  = 16000
	chunk = 250 * time.Millisecond
)

// testConfig has a queue large enough that scripted sources never drop.
var testConfig = listen.Config{
	CommandTimeout: 10 * time.Second,
	Silence:        2 * time.Second,
	CommandChunk:   chunk,
	WakeTimeout:    10 * time.Second,
	WakeChunk:      500 * time.Millisecond,
	QueueSize:      64,
}

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				if want.Len() == 0 || dp.Attributes.Equals(&want) {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func matcher(t *testing.T, phrase string) *wakeword.Matcher {
	t.Helper()
	p, err := wakeword.NewPhrase(phrase, wakeword.DefaultMaxDistance)
	if err != nil {
		t.Fatalf("NewPhrase: %v", err)
	}
	return wakeword.NewMatcher(p)
}

func TestListenForCommand_Finished(t *testing.T) {
	t.Parallel()
	m, reader := newMetrics(t)
	j := journal.NewMemory(0)
	src := &mock.Source{Chunks: mock.Silent(12, chunk, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{
		sttmock.Partial("turn"),
		sttmock.Final("turn on the lights"),
	}}}
	l := listen.New(src, eng, nil, testConfig, listen.WithJournal(j), listen.WithMetrics(m))

	ep, err := l.ListenForCommand(context.Background())
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.State != segment.Finished || ep.Text != "turn on the lights" {
		t.Fatalf("episode = %v %q, want finished with text", ep.State, ep.Text)
	}
	if !ep.Heard() {
		t.Error("Heard() = false")
	}
	// Speech last seen at 250 ms; 2 s of silence brings the clock to 2.25 s.
	if ep.Elapsed != 2250*time.Millisecond {
		t.Errorf("Elapsed = %v, want 2.25s", ep.Elapsed)
	}
	if ep.ID == "" {
		t.Error("episode has no ID")
	}

	if eng.CallCount() != 1 {
		t.Fatalf("NewRecognizer called %d times, want 1", eng.CallCount())
	}
	if cfg := eng.Calls[0].Cfg; cfg.SampleRate != rate {
		t.Errorf("recognizer sample rate = %d, want %d", cfg.SampleRate, rate)
	}
	if !eng.Recognizer(0).IsClosed() {
		t.Error("recognizer not closed after episode")
	}
	if got := src.Requested(); len(got) != 1 || got[0] != chunk {
		t.Errorf("requested chunk durations = %v, want [%v]", got, chunk)
	}

	got, err := j.Get(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if got.Outcome != "finished" || got.Mode != "command" || got.Text != ep.Text {
		t.Errorf("journal entry = %+v", got)
	}

	if n := counter(t, reader, "hearken.episodes",
		attribute.String("mode", "command"), attribute.String("outcome", "finished")); n != 1 {
		t.Errorf("episodes counter = %d, want 1", n)
	}
	if n := counter(t, reader, "hearken.chunks.processed"); n != 9 {
		t.Errorf("chunks processed = %d, want 9", n)
	}
}

func TestListenForCommand_SilenceTimesOut(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(12, chunk, rate)}
	eng := &sttmock.Engine{}
	l := listen.New(src, eng, nil, testConfig, listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForCommand(context.Background(), listen.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.State != segment.TimedOut {
		t.Errorf("State = %v, want timed_out", ep.State)
	}
	if ep.Text != "" || ep.Heard() {
		t.Errorf("Text = %q, want empty", ep.Text)
	}
	if ep.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", ep.Elapsed)
	}
}

func TestListenForCommand_SourceEndIsSilence(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(3, chunk, rate)}
	eng := &sttmock.Engine{
		Scripts:    [][]sttmock.Step{{sttmock.Final("hello")}},
		FinalTexts: []string{"there"},
	}
	l := listen.New(src, eng, nil, testConfig, listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForCommand(context.Background())
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.State != segment.Finished || ep.Text != "hello there" {
		t.Errorf("episode = %v %q, want finished \"hello there\"", ep.State, ep.Text)
	}
	if rec := eng.Recognizer(0); rec.FinalCalls != 1 {
		t.Errorf("FinalResult called %d times, want 1", rec.FinalCalls)
	}
}

func TestListenForCommand_OverridesChunk(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(2, 100*time.Millisecond, rate)}
	l := listen.New(src, &sttmock.Engine{}, nil, testConfig, listen.WithMetrics(testMetrics(t)))

	if _, err := l.ListenForCommand(context.Background(), listen.WithChunk(100*time.Millisecond)); err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if got := src.Requested(); len(got) != 1 || got[0] != 100*time.Millisecond {
		t.Errorf("requested = %v, want [100ms]", got)
	}
}

func TestListenForCommand_InvalidOverride(t *testing.T) {
	t.Parallel()
	l := listen.New(&mock.Source{}, &sttmock.Engine{}, nil, testConfig, listen.WithMetrics(testMetrics(t)))
	ep, err := l.ListenForCommand(context.Background(), listen.WithSilence(0))
	if err == nil {
		t.Fatal("expected validation error for zero silence")
	}
	if ep.State != segment.Aborted {
		t.Errorf("State = %v, want aborted", ep.State)
	}
}

func TestListenForCommand_RecognizerErrorAborts(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("socket closed")
	src := &mock.Source{Chunks: mock.Silent(4, chunk, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{
		sttmock.Final("half a"),
		sttmock.Fail(errBoom),
	}}}
	j := journal.NewMemory(0)
	l := listen.New(src, eng, nil, testConfig, listen.WithJournal(j), listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForCommand(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if ep.State != segment.Aborted || ep.Text != "" {
		t.Errorf("episode = %v %q, want aborted without text", ep.State, ep.Text)
	}
	if entries, _ := j.Recent(context.Background(), 1); len(entries) != 1 || entries[0].Outcome != "aborted" {
		t.Errorf("journal = %+v, want one aborted entry", entries)
	}
}

func TestListenForCommand_EngineErrorAborts(t *testing.T) {
	t.Parallel()
	errDown := errors.New("engine down")
	l := listen.New(&mock.Source{}, &sttmock.Engine{NewErr: errDown}, nil, testConfig, listen.WithMetrics(testMetrics(t)))
	ep, err := l.ListenForCommand(context.Background())
	if !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want %v", err, errDown)
	}
	if ep.State != segment.Aborted {
		t.Errorf("State = %v, want aborted", ep.State)
	}
}

func TestListenForCommand_CaptureErrorAborts(t *testing.T) {
	t.Parallel()
	errDevice := errors.New("device unplugged")
	src := &mock.Source{Chunks: mock.Silent(2, chunk, rate), Err: errDevice}
	l := listen.New(src, &sttmock.Engine{}, nil, testConfig, listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForCommand(context.Background())
	if !errors.Is(err, errDevice) {
		t.Fatalf("err = %v, want %v", err, errDevice)
	}
	if ep.State != segment.Aborted {
		t.Errorf("State = %v, want aborted", ep.State)
	}
}

func TestListenForCommand_ContextCancelAborts(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Endless: true, Interval: 20 * time.Millisecond}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{sttmock.Final("never finished")}}}
	l := listen.New(src, eng, nil, testConfig, listen.WithMetrics(testMetrics(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ep, err := l.ListenForCommand(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if ep.State != segment.Aborted || ep.Text != "" {
		t.Errorf("episode = %v %q, want aborted without text", ep.State, ep.Text)
	}
}

func TestListenForWake_DetectsPhraseInPartials(t *testing.T) {
	t.Parallel()
	m, reader := newMetrics(t)
	j := journal.NewMemory(0)
	src := &mock.Source{Chunks: mock.Silent(10, 500*time.Millisecond, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{
		sttmock.Partial("hel"),
		sttmock.Partial("Hello  comp"),
		sttmock.Partial("hello computer now"),
	}}}
	l := listen.New(src, eng, matcher(t, "hello computer"), testConfig,
		listen.WithJournal(j), listen.WithMetrics(m))

	ep, err := l.ListenForWake(context.Background())
	if err != nil {
		t.Fatalf("ListenForWake: %v", err)
	}
	if !ep.Detected || ep.Rule != wakeword.RuleSubstring {
		t.Fatalf("episode = %+v, want detection by substring", ep)
	}
	if ep.Outcome() != listen.OutcomeDetected || ep.Text != "hello computer now" {
		t.Errorf("outcome %q text %q", ep.Outcome(), ep.Text)
	}
	if rec := eng.Recognizer(0); rec.AcceptedCount() != 3 {
		t.Errorf("recognizer saw %d chunks, want 3", rec.AcceptedCount())
	}
	if got := src.Requested(); len(got) != 1 || got[0] != 500*time.Millisecond {
		t.Errorf("requested = %v, want [500ms]", got)
	}

	got, err := j.Get(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if got.WakeRule != "substring" || got.Outcome != listen.OutcomeDetected {
		t.Errorf("journal entry = %+v", got)
	}
	if n := counter(t, reader, "hearken.wake.detections", attribute.String("rule", "substring")); n != 1 {
		t.Errorf("wake detections = %d, want 1", n)
	}
}

func TestListenForWake_FuzzyFinal(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(4, 500*time.Millisecond, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{
		sttmock.Silence(),
		sttmock.Final("okay computr"),
	}}}
	l := listen.New(src, eng, matcher(t, "computer"), testConfig, listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForWake(context.Background())
	if err != nil {
		t.Fatalf("ListenForWake: %v", err)
	}
	if !ep.Detected || ep.Rule != wakeword.RuleFuzzyWindow {
		t.Errorf("episode = %+v, want fuzzy detection", ep)
	}
}

func TestListenForWake_OtherSpeechEndsEpisode(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(20, 500*time.Millisecond, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{sttmock.Final("banana")}}}
	l := listen.New(src, eng, matcher(t, "computer"), testConfig, listen.WithMetrics(testMetrics(t)))

	ep, err := l.ListenForWake(context.Background())
	if err != nil {
		t.Fatalf("ListenForWake: %v", err)
	}
	if ep.Detected {
		t.Fatal("detected wake phrase in unrelated speech")
	}
	if ep.State != segment.Finished || ep.Outcome() != "finished" {
		t.Errorf("State = %v, want finished", ep.State)
	}
}

func TestListenForWake_NoMatcher(t *testing.T) {
	t.Parallel()
	l := listen.New(&mock.Source{}, &sttmock.Engine{}, nil, testConfig, listen.WithMetrics(testMetrics(t)))
	if _, err := l.ListenForWake(context.Background()); !errors.Is(err, listen.ErrNoMatcher) {
		t.Errorf("err = %v, want ErrNoMatcher", err)
	}
}

func TestListen_FreshRecognizerPerEpisode(t *testing.T) {
	t.Parallel()
	src := &mock.Source{Chunks: mock.Silent(8, chunk, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{
		{sttmock.Final("computer")},
		{sttmock.Final("what time is it")},
	}}
	l := listen.New(src, eng, matcher(t, "computer"), testConfig, listen.WithMetrics(testMetrics(t)))

	wake, err := l.ListenForWake(context.Background())
	if err != nil || !wake.Detected || wake.Rule != wakeword.RuleExact {
		t.Fatalf("wake = %+v, err %v", wake, err)
	}
	cmd, err := l.ListenForCommand(context.Background())
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if cmd.Text != "what time is it" {
		t.Errorf("command text = %q", cmd.Text)
	}
	if eng.CallCount() != 2 {
		t.Errorf("NewRecognizer called %d times, want 2", eng.CallCount())
	}
	if wake.ID == cmd.ID {
		t.Error("episodes share an ID")
	}
}

// gateEngine hands out recognizers that block in AcceptWaveform until release
// is closed.
type gateEngine struct {
	release chan struct{}

	mu       sync.Mutex
	accepted int
}

func (g *gateEngine) NewRecognizer(context.Context, stt.RecognizerConfig) (stt.Recognizer, error) {
	return &gateRecognizer{g: g}, nil
}

func (g *gateEngine) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accepted
}

type gateRecognizer struct{ g *gateEngine }

func (r *gateRecognizer) AcceptWaveform([]byte) (bool, error) {
	<-r.g.release
	r.g.mu.Lock()
	r.g.accepted++
	r.g.mu.Unlock()
	return false, nil
}

func (r *gateRecognizer) Result() []byte        { return stt.Payload(stt.ResultFinal, "") }
func (r *gateRecognizer) PartialResult() []byte { return stt.Payload(stt.ResultPartial, "") }
func (r *gateRecognizer) FinalResult() []byte   { return stt.Payload(stt.ResultFinal, "") }
func (r *gateRecognizer) Close() error          { return nil }

func TestListen_FullQueueDropsChunks(t *testing.T) {
	t.Parallel()
	const total = 10
	m, reader := newMetrics(t)
	src := &mock.Source{Chunks: mock.Silent(total, chunk, rate)}
	eng := &gateEngine{release: make(chan struct{})}
	cfg := testConfig
	cfg.QueueSize = 1
	l := listen.New(src, eng, nil, cfg, listen.WithMetrics(m))

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for src.Delivered() < total && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		close(eng.release)
	}()

	ep, err := l.ListenForCommand(context.Background())
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.Dropped == 0 {
		t.Fatal("expected dropped chunks with a queue of one")
	}
	if got := ep.Dropped + eng.count(); got != total {
		t.Errorf("dropped %d + accepted %d = %d, want %d", ep.Dropped, eng.count(), got, total)
	}
	if n := counter(t, reader, "hearken.chunks.dropped"); n != int64(ep.Dropped) {
		t.Errorf("dropped counter = %d, want %d", n, ep.Dropped)
	}
}

// dropPanicProvider is a no-op meter provider whose dropped-chunk counter
// runs onDrop and then panics.
type dropPanicProvider struct {
	noop.MeterProvider
	onDrop func()
}

func (p dropPanicProvider) Meter(string, ...metric.MeterOption) metric.Meter {
	return dropPanicMeter{onDrop: p.onDrop}
}

type dropPanicMeter struct {
	noop.Meter
	onDrop func()
}

func (m dropPanicMeter) Int64Counter(name string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if name == "hearken.chunks.dropped" {
		return dropPanicCounter{onDrop: m.onDrop}, nil
	}
	return m.Meter.Int64Counter(name, opts...)
}

type dropPanicCounter struct {
	noop.Int64Counter
	onDrop func()
}

func (c dropPanicCounter) Add(context.Context, int64, ...metric.AddOption) {
	c.onDrop()
	panic("dropped counter failed")
}

func TestListen_CallbackPanicStopsStream(t *testing.T) {
	t.Parallel()
	const total = 10
	src := &mock.Source{Chunks: mock.Silent(total, chunk, rate)}
	eng := &gateEngine{release: make(chan struct{})}
	var once sync.Once
	m, err := observe.NewMetrics(dropPanicProvider{onDrop: func() { once.Do(func() { close(eng.release) }) }})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg := testConfig
	cfg.QueueSize = 1
	l := listen.New(src, eng, nil, cfg, listen.WithMetrics(m))

	done := make(chan struct{})
	var ep listen.Episode
	go func() {
		defer close(done)
		ep, err = l.ListenForCommand(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("episode did not return after the capture callback panicked")
	}

	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", ep.Dropped)
	}
	delivered := src.Delivered()
	if delivered >= total {
		t.Errorf("source delivered all %d chunks, want the stream stopped at the panic", delivered)
	}
	if got := eng.count(); got != delivered-1 {
		t.Errorf("recognizer accepted %d chunks, want %d delivered minus the dropped one", got, delivered)
	}
	if ep.State != segment.TimedOut {
		t.Errorf("State = %v, want TimedOut after the stream ended without speech", ep.State)
	}
}

func TestListen_MalformedPayloadIsCounted(t *testing.T) {
	t.Parallel()
	m, reader := newMetrics(t)
	src := &mock.Source{Chunks: mock.Silent(12, chunk, rate)}
	eng := &sttmock.Engine{Scripts: [][]sttmock.Step{{
		sttmock.Malformed(false),
		sttmock.Final("still here"),
	}}}
	l := listen.New(src, eng, nil, testConfig, listen.WithMetrics(m))

	ep, err := l.ListenForCommand(context.Background())
	if err != nil {
		t.Fatalf("ListenForCommand: %v", err)
	}
	if ep.Text != "still here" {
		t.Errorf("Text = %q", ep.Text)
	}
	if n := counter(t, reader, "hearken.recognizer.malformed", attribute.String("kind", "partial")); n != 1 {
		t.Errorf("malformed counter = %d, want 1", n)
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, _ := newMetrics(t)
	return m
}
