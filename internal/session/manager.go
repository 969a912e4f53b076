package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cadewatson/overhear/internal/resilience"
	"github.com/cadewatson/overhear/pkg/provider/llm"
	"github.com/cadewatson/overhear/pkg/provider/llm/gemini"
	"github.com/cadewatson/overhear/pkg/provider/llm/groq"
)

// Sentinel errors surfaced by Initialize. The control surface converts them
// to failure results; they never escape as process failures.
var (
	// ErrUnsupportedModel means the model id matched no backend family.
	ErrUnsupportedModel = errors.New("session: model matches no known backend")

	// ErrNoCredential means no API key is configured for the selected
	// backend family.
	ErrNoCredential = errors.New("session: no credential configured for backend")
)

// InitParams carries the initialize operation's arguments. APIKey overrides
// the configured key for the resolved backend when non-empty.
type InitParams struct {
	APIKey       string
	CustomPrompt string
	Profile      string
	Language     string
	Mode         string
	Model        string
}

// ProviderFactory builds a provider for the resolved backend family. Tests
// inject a fake; the default builds the real Gemini and Groq clients.
type ProviderFactory func(ctx context.Context, kind llm.Kind, apiKey, model string) (llm.Provider, error)

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// GeminiAPIKey and GroqAPIKey are the configured credentials, either of
	// which may be empty when that backend is unused.
	GeminiAPIKey string
	GroqAPIKey   string

	// KindRules overrides the model-prefix routing table; nil uses defaults.
	KindRules []llm.KindRule

	// Session defaults, passed through to each new session.
	MaxTurns         int
	MaxImageTurns    int
	Generation       llm.GenerationConfig
	CapRules         CapTable
	EnableSearch     bool
	SnapshotInterval time.Duration

	OnAnswer  func(text string, final bool)
	OnStatus  func(status string)
	OnTurn    func(user, model llm.Message)
	OnFailure func(backend llm.Kind, class resilience.Class)

	// Recovery is shared across sessions; initializing cancels its countdown.
	Recovery *resilience.Controller

	// Factory builds providers; nil uses the real SDK clients.
	Factory ProviderFactory
}

// Manager owns at most one active [Session] process-wide. All callers reach
// the current session through the manager instead of ambient globals. Safe
// for concurrent use.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	current *Session
}

// NewManager returns a Manager with no active session.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Factory == nil {
		cfg.Factory = defaultFactory
	}
	return &Manager{cfg: cfg}
}

func defaultFactory(ctx context.Context, kind llm.Kind, apiKey, model string) (llm.Provider, error) {
	switch kind {
	case llm.KindGemini:
		return gemini.New(ctx, apiKey, model)
	case llm.KindGroq:
		return groq.New(apiKey, model)
	default:
		return nil, fmt.Errorf("session: no provider for kind %s", kind)
	}
}

// Initialize resolves the backend for p.Model, closes any previous session,
// cancels a running recovery countdown, and installs a fresh session with
// empty history. It fails with [ErrUnsupportedModel] or [ErrNoCredential]
// before touching the previous session.
func (m *Manager) Initialize(ctx context.Context, p InitParams) (*Session, error) {
	kind := llm.ResolveKind(p.Model, m.cfg.KindRules)
	if kind == llm.KindUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, p.Model)
	}

	apiKey := strings.TrimSpace(p.APIKey)
	if apiKey == "" {
		switch kind {
		case llm.KindGemini:
			apiKey = m.cfg.GeminiAPIKey
		case llm.KindGroq:
			apiKey = m.cfg.GroqAPIKey
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, kind)
	}

	provider, err := m.cfg.Factory(ctx, kind, apiKey, p.Model)
	if err != nil {
		return nil, fmt.Errorf("session: build %s provider: %w", kind, err)
	}

	mode := p.Mode
	if mode == "" {
		mode = ModeStandard
	}
	settings := Settings{
		Profile:      p.Profile,
		CustomPrompt: p.CustomPrompt,
		Language:     p.Language,
		Mode:         mode,
		Model:        p.Model,
	}

	sess, err := New(Config{
		Provider:         provider,
		Settings:         settings,
		SystemPrompt:     BuildSystemPrompt(p.Profile, p.CustomPrompt, p.Language),
		MaxTurns:         m.cfg.MaxTurns,
		MaxImageTurns:    m.cfg.MaxImageTurns,
		Generation:       m.cfg.Generation,
		CapRules:         m.cfg.CapRules,
		EnableSearch:     m.cfg.EnableSearch,
		SnapshotInterval: m.cfg.SnapshotInterval,
		OnAnswer:         m.cfg.OnAnswer,
		OnStatus:         m.cfg.OnStatus,
		OnTurn:           m.cfg.OnTurn,
		OnFailure:        m.cfg.OnFailure,
		Recovery:         m.cfg.Recovery,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.current
	m.current = sess
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	if m.cfg.Recovery != nil {
		m.cfg.Recovery.Cancel()
	}

	slog.Info("session: initialized",
		"backend", kind.String(),
		"model", p.Model,
		"profile", settings.Profile,
		"mode", settings.Mode,
	)
	return sess, nil
}

// Current returns the active session, or nil when none is initialized.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CloseSession closes and detaches the active session. A no-op when none is
// active.
func (m *Manager) CloseSession() {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}
