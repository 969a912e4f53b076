package app

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/cadewatson/overhear/internal/archive"
	"github.com/cadewatson/overhear/internal/config"
	"github.com/cadewatson/overhear/internal/control"
	"github.com/cadewatson/overhear/internal/session"
	"github.com/cadewatson/overhear/pkg/provider/llm"
	llmmock "github.com/cadewatson/overhear/pkg/provider/llm/mock"
	"github.com/cadewatson/overhear/pkg/vad"
)

// recordingArchiver captures inserted turns for assertion.
type recordingArchiver struct {
	mu    sync.Mutex
	turns []archive.Turn
}

func (r *recordingArchiver) InsertTurn(_ context.Context, turn archive.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
	return nil
}

func (r *recordingArchiver) RecentTurns(context.Context, int) ([]archive.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]archive.Turn(nil), r.turns...), nil
}

func (r *recordingArchiver) Ping(context.Context) error { return nil }
func (r *recordingArchiver) Close()                     {}

func (r *recordingArchiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// newTestApp wires an App around a mock provider and a recording archiver.
// Optional mutators adjust the config before wiring.
func newTestApp(t *testing.T, provider *llmmock.Provider, mutate ...func(*config.Config)) (*App, *recordingArchiver) {
	t.Helper()
	cfg := config.Default()
	cfg.Backends.GeminiAPIKey = "test-key"
	cfg.Backends.GroqAPIKey = "test-key"
	for _, m := range mutate {
		m(cfg)
	}

	rec := &recordingArchiver{}
	factory := func(_ context.Context, kind llm.Kind, _, _ string) (llm.Provider, error) {
		provider.ProviderKind = kind
		return provider, nil
	}

	a, err := New(context.Background(), cfg,
		WithArchiver(rec),
		WithProviderFactory(factory),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a, rec
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitializeAndSend(t *testing.T) {
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "A mutex "},
			{Text: "is a lock.", FinishReason: "stop"},
		},
		Caps: llm.Capabilities{Images: true, MaxOutputTokens: 8192},
	}
	a, rec := newTestApp(t, provider)

	if err := a.Initialize(context.Background(), control.InitParams{
		Profile: "interview",
		Model:   "gemini-2.5-flash",
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	a.send(context.Background(), session.Input{Text: "what is a mutex?"})

	sess := a.manager.Current()
	if sess == nil {
		t.Fatal("no session after initialize")
	}
	if sess.Turns() != 1 {
		t.Errorf("history turns = %d, want 1", sess.Turns())
	}
	if calls := provider.Calls(); len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}

	// The archive insert runs in a background goroutine.
	waitFor(t, func() bool { return rec.count() == 1 }, "archived turn")
	got, _ := rec.RecentTurns(context.Background(), 10)
	if got[0].Question != "what is a mutex?" || got[0].Answer != "A mutex is a lock." {
		t.Errorf("archived turn = %+v", got[0])
	}
	if got[0].Backend != "gemini" || got[0].Model != "gemini-2.5-flash" {
		t.Errorf("archived identity = %q/%q", got[0].Backend, got[0].Model)
	}
}

func TestInitialize_DefaultModel(t *testing.T) {
	provider := &llmmock.Provider{}
	a, _ := newTestApp(t, provider)

	if err := a.Initialize(context.Background(), control.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess := a.manager.Current()
	if sess == nil {
		t.Fatal("no session")
	}
	if got := sess.Settings().Model; got != "gemini-2.5-flash" {
		t.Errorf("model = %q, want configured default", got)
	}
}

func TestInitialize_UnknownModel(t *testing.T) {
	a, _ := newTestApp(t, &llmmock.Provider{})

	err := a.Initialize(context.Background(), control.InitParams{Model: "claude-sonnet"})
	if err == nil {
		t.Fatal("Initialize accepted an unroutable model")
	}
}

func TestSend_NoSession(t *testing.T) {
	a, rec := newTestApp(t, &llmmock.Provider{})

	// Must not panic and must not archive anything.
	a.send(context.Background(), session.Input{Text: "hello?"})
	if rec.count() != 0 {
		t.Errorf("archived turns = %d, want 0", rec.count())
	}
}

func TestSendUtterance_FeedsSession(t *testing.T) {
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "answer", FinishReason: "stop"}},
	}
	a, _ := newTestApp(t, provider)

	if err := a.Initialize(context.Background(), control.InitParams{Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.sendUtterance(context.Background(), "what is a heap?"); err != nil {
		t.Fatalf("sendUtterance: %v", err)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if got := calls[0].Req.Turn[0].Text; got != "what is a heap?" {
		t.Errorf("turn text = %q", got)
	}
}

func TestHandleUtterance_SendsAudio(t *testing.T) {
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "heard you", FinishReason: "stop"}},
		Caps:         llm.Capabilities{Audio: true},
	}
	a, _ := newTestApp(t, provider)

	if err := a.Initialize(context.Background(), control.InitParams{Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	a.handleUtterance(&vad.Utterance{
		Seq:        0,
		PCM:        make([]byte, 4800),
		SampleRate: 24_000,
		Frames:     1,
	})

	waitFor(t, func() bool { return len(provider.Calls()) == 1 }, "audio turn")
	req := provider.Calls()[0].Req
	if len(req.Turn) != 1 || req.Turn[0].Blob == nil {
		t.Fatalf("turn parts = %+v, want one blob part", req.Turn)
	}
	if got := req.Turn[0].Blob.MIMEType; got != "audio/pcm;rate=24000" {
		t.Errorf("mime type = %q", got)
	}
}

func TestCapturePipeline_SilenceProducesNoUtterances(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test subprocess uses /bin/sh")
	}
	provider := &llmmock.Provider{Caps: llm.Capabilities{Audio: true}}
	a, _ := newTestApp(t, provider, func(cfg *config.Config) {
		// One second of stereo silence at the default 24 kHz.
		cfg.Audio.CaptureCommand = []string{"/bin/sh", "-c", "head -c 96000 /dev/zero"}
	})

	if err := a.StartCapture(true, "automatic"); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	waitFor(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return !a.capturing
	}, "pipeline wind-down")

	if calls := provider.Calls(); len(calls) != 0 {
		t.Errorf("provider calls = %d, want 0 (silence only)", len(calls))
	}
}

func TestStartCapture_NoCommand(t *testing.T) {
	a, _ := newTestApp(t, &llmmock.Provider{})

	if err := a.StartCapture(true, ""); err == nil {
		t.Fatal("StartCapture succeeded without a capture command")
	}
}

func TestCloseSession_Idempotent(t *testing.T) {
	a, _ := newTestApp(t, &llmmock.Provider{})

	if err := a.Initialize(context.Background(), control.InitParams{Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a.CloseSession()
	if a.manager.Current() != nil {
		t.Error("session still active after CloseSession")
	}
	a.CloseSession() // second close is a no-op

	// Sends after close are dropped silently.
	a.send(context.Background(), session.Input{Text: "anyone there?"})
}

func TestClassify_RecordsDecision(t *testing.T) {
	a, _ := newTestApp(t, &llmmock.Provider{})

	if !a.classify("what is a binary tree?") {
		t.Error("question rejected")
	}
	if a.classify("ok thanks") {
		t.Error("filler accepted")
	}
}
