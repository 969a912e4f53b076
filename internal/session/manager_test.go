package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cadewatson/overhear/internal/resilience"
	"github.com/cadewatson/overhear/pkg/provider/llm"
	llmmock "github.com/cadewatson/overhear/pkg/provider/llm/mock"
)

func fakeFactory(built *[]llm.Kind) ProviderFactory {
	return func(ctx context.Context, kind llm.Kind, apiKey, model string) (llm.Provider, error) {
		if built != nil {
			*built = append(*built, kind)
		}
		return &llmmock.Provider{
			ProviderKind: kind,
			Caps:         llm.Capabilities{Images: true, MaxOutputTokens: 8_192},
			StreamChunks: []llm.Chunk{{Text: "hi"}},
		}, nil
	}
}

func TestInitializeResolvesBackend(t *testing.T) {
	var built []llm.Kind
	m := NewManager(ManagerConfig{
		GeminiAPIKey: "g-key",
		GroqAPIKey:   "q-key",
		Factory:      fakeFactory(&built),
	})

	sess, err := m.Initialize(context.Background(), InitParams{
		Model:   "gemini-2.5-flash",
		Profile: ProfileInterview,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if sess.Kind() != llm.KindGemini {
		t.Errorf("session kind = %v, want gemini", sess.Kind())
	}
	if m.Current() != sess {
		t.Error("Current() does not return the initialized session")
	}

	if _, err := m.Initialize(context.Background(), InitParams{Model: "llama-3.3-70b-versatile"}); err != nil {
		t.Fatalf("Initialize(groq) error = %v", err)
	}
	if len(built) != 2 || built[1] != llm.KindGroq {
		t.Errorf("built kinds = %v, want [gemini groq]", built)
	}
}

func TestInitializeUnknownModel(t *testing.T) {
	m := NewManager(ManagerConfig{GeminiAPIKey: "k", Factory: fakeFactory(nil)})
	_, err := m.Initialize(context.Background(), InitParams{Model: "gpt-4o"})
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("Initialize error = %v, want ErrUnsupportedModel", err)
	}
	if m.Current() != nil {
		t.Error("failed Initialize installed a session")
	}
}

func TestInitializeMissingCredential(t *testing.T) {
	m := NewManager(ManagerConfig{GeminiAPIKey: "g", Factory: fakeFactory(nil)})
	_, err := m.Initialize(context.Background(), InitParams{Model: "llama-3.3-70b-versatile"})
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("Initialize error = %v, want ErrNoCredential", err)
	}

	// An explicit key overrides the missing configured one.
	if _, err := m.Initialize(context.Background(), InitParams{
		Model:  "llama-3.3-70b-versatile",
		APIKey: "provided-at-init",
	}); err != nil {
		t.Errorf("Initialize with explicit key error = %v", err)
	}
}

func TestInitializeClosesPreviousAndCancelsRecovery(t *testing.T) {
	rec, err := resilience.NewController(resilience.ControllerConfig{
		Publish:      func(string) {},
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	m := NewManager(ManagerConfig{
		GeminiAPIKey: "k",
		Recovery:     rec,
		Factory:      fakeFactory(nil),
	})

	first, err := m.Initialize(context.Background(), InitParams{Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	rec.Trip(resilience.ClassRateLimit, 30*time.Second)
	if !rec.Active() {
		t.Fatal("countdown not active after Trip")
	}

	second, err := m.Initialize(context.Background(), InitParams{Model: "gemini-2.5-pro"})
	if err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if !first.Closed() {
		t.Error("previous session left open after re-initialize")
	}
	if second.Closed() {
		t.Error("new session closed")
	}
	if rec.Active() {
		t.Error("recovery countdown survived re-initialize")
	}
}

func TestCloseSession(t *testing.T) {
	m := NewManager(ManagerConfig{GeminiAPIKey: "k", Factory: fakeFactory(nil)})
	sess, err := m.Initialize(context.Background(), InitParams{Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	m.CloseSession()
	m.CloseSession() // no-op
	if !sess.Closed() {
		t.Error("CloseSession left the session open")
	}
	if m.Current() != nil {
		t.Error("Current() non-nil after CloseSession")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt(ProfileSales, "Focus on enterprise plans.", "German")
	if p == "" {
		t.Fatal("empty prompt")
	}
	for _, want := range []string{"sales", "Focus on enterprise plans.", "Always reply in German."} {
		if !strings.Contains(strings.ToLower(p), strings.ToLower(want)) {
			t.Errorf("prompt missing %q: %q", want, p)
		}
	}

	// Unknown profile falls back to the interview template.
	if got := BuildSystemPrompt("bogus", "", ""); got != BuildSystemPrompt(ProfileInterview, "", "") {
		t.Error("unknown profile did not fall back to interview")
	}
	if !KnownProfile("Interview") || KnownProfile("bogus") {
		t.Error("KnownProfile misclassifies")
	}
}
