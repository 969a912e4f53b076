package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cadewatson/overhear/internal/resilience"
	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// Input is one sendRealtimeInput payload: text, inline media, or both.
type Input struct {
	Text  string
	Media *llm.Blob
}

// Config configures a [Session].
type Config struct {
	// Provider is the resolved backend. Required.
	Provider llm.Provider

	// Settings is the per-session configuration chosen at initialize time.
	Settings Settings

	// SystemPrompt is the fully assembled system prompt.
	SystemPrompt string

	// MaxTurns and MaxImageTurns bound the history (see [NewHistory]).
	MaxTurns      int
	MaxImageTurns int

	// Generation holds the user's sampling preferences. MaxOutputTokens acts
	// as a preference that overrides the cap table but never the model max.
	Generation llm.GenerationConfig

	// CapRules selects per-request output caps; nil uses [DefaultCapRules].
	CapRules CapTable

	// EnableSearch attaches the search tool on backends that support it.
	EnableSearch bool

	// SnapshotInterval throttles intermediate answer snapshots.
	SnapshotInterval time.Duration

	// OnAnswer receives throttled answer snapshots and the final text.
	OnAnswer func(text string, final bool)

	// OnStatus receives human-readable status updates.
	OnStatus func(status string)

	// OnTurn is called after each successful turn with the history entries
	// that were appended; the transcript archive hangs off this.
	OnTurn func(user, model llm.Message)

	// OnFailure, when set, receives every classified turn failure; the
	// error metrics hang off this.
	OnFailure func(backend llm.Kind, class resilience.Class)

	// Recovery, when set, gates sends during a cool-down and receives
	// transient failures.
	Recovery *resilience.Controller
}

// Session is one live conversation with a resolved backend. Send never
// returns an error: every failure becomes a status update, so a caller's
// control flow is never interrupted by the provider. Safe for concurrent
// use; sends are serialized so history mutation is a critical section.
type Session struct {
	cfg     Config
	caps    llm.Capabilities
	history *History

	sendMu sync.Mutex // serializes the whole send path
	mu     sync.Mutex // guards closed and generation settings
	closed bool
	gen    llm.GenerationConfig
}

// New validates cfg and returns a ready Session.
func New(cfg Config) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: provider is required")
	}
	if cfg.CapRules == nil {
		cfg.CapRules = DefaultCapRules
	}
	if cfg.OnAnswer == nil {
		cfg.OnAnswer = func(string, bool) {}
	}
	if cfg.OnStatus == nil {
		cfg.OnStatus = func(string) {}
	}
	return &Session{
		cfg:     cfg,
		caps:    cfg.Provider.Capabilities(),
		history: NewHistory(cfg.MaxTurns, cfg.MaxImageTurns),
		gen:     cfg.Generation,
	}, nil
}

// Kind returns the session's backend family.
func (s *Session) Kind() llm.Kind {
	return s.cfg.Provider.Kind()
}

// Settings returns the session's immutable initialization settings.
func (s *Session) Settings() Settings {
	return s.cfg.Settings
}

// Send issues one turn to the backend and returns the final answer text, or
// "" when the turn produced nothing: closed session, active cool-down,
// unusable input, or a classified failure. All failures surface through the
// status callback, never as an error.
func (s *Session) Send(ctx context.Context, in Input) string {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.Closed() {
		slog.Debug("session: send after close ignored")
		return ""
	}
	if s.cfg.Recovery != nil && s.cfg.Recovery.Active() {
		slog.Debug("session: send dropped during cool-down",
			"remaining_s", s.cfg.Recovery.Remaining())
		return ""
	}

	turn, hasImage := s.buildTurn(in)
	if len(turn) == 0 {
		slog.Debug("session: nothing sendable in input, ignoring")
		return ""
	}

	stripAll := !hasImage || s.cfg.Settings.Mode == ModeLowLatency
	gen := s.generation()
	gen.MaxOutputTokens = s.cfg.CapRules.Resolve(
		s.cfg.Settings.Mode, hasImage, s.cfg.Settings.Model,
		gen.MaxOutputTokens, s.caps.MaxOutputTokens,
	)

	req := llm.TurnRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		History:      s.history.Messages(stripAll),
		Turn:         turn,
		Generation:   gen,
		EnableSearch: s.cfg.EnableSearch && s.caps.SearchTool,
	}

	ch, err := s.cfg.Provider.StreamTurn(ctx, req)
	if err != nil {
		s.reportFailure(err)
		return ""
	}

	asm := NewAssembler(s.cfg.SnapshotInterval, s.cfg.OnAnswer)
	text, err := asm.Consume(ctx, ch)
	if err != nil {
		s.reportFailure(err)
		return ""
	}
	if strings.TrimSpace(text) == "" {
		slog.Info("session: backend returned an empty response")
		s.cfg.OnStatus("Ready")
		return ""
	}

	user := llm.Message{Role: llm.RoleUser, Parts: turn}
	model := llm.Message{Role: llm.RoleModel, Parts: []llm.Part{{Text: text}}}
	s.history.AppendTurn(user, model)
	if s.cfg.OnTurn != nil {
		s.cfg.OnTurn(user, model)
	}
	return text
}

// buildTurn converts an Input into provider parts, dropping media the
// backend cannot accept. It reports whether an image part survived.
func (s *Session) buildTurn(in Input) ([]llm.Part, bool) {
	var parts []llm.Part
	if t := strings.TrimSpace(in.Text); t != "" {
		parts = append(parts, llm.Part{Text: t})
	}

	hasImage := false
	if in.Media != nil && len(in.Media.Data) > 0 {
		isImage := strings.HasPrefix(in.Media.MIMEType, "image/")
		isAudio := strings.HasPrefix(in.Media.MIMEType, "audio/")
		switch {
		case isImage && s.caps.Images:
			parts = append(parts, llm.Part{Blob: in.Media})
			hasImage = true
		case isAudio && s.caps.Audio:
			parts = append(parts, llm.Part{Blob: in.Media})
		default:
			slog.Warn("session: dropping media unsupported by backend",
				"mime_type", in.Media.MIMEType,
				"backend", s.cfg.Provider.Kind().String())
		}
	}
	return parts, hasImage
}

func (s *Session) reportFailure(err error) {
	cls := resilience.Classify(err)
	slog.Warn("session: turn failed", "class", cls.Class.String(), "error", err)
	if s.cfg.OnFailure != nil {
		s.cfg.OnFailure(s.cfg.Provider.Kind(), cls.Class)
	}

	switch {
	case cls.Class.Transient() && s.cfg.Recovery != nil:
		s.cfg.Recovery.Trip(cls.Class, cls.RetryHint)
	case cls.Class == resilience.ClassAuth:
		s.cfg.OnStatus("Invalid API key. Update your credentials and reinitialize.")
	case cls.Class == resilience.ClassModelUnavailable:
		s.cfg.OnStatus("Model unavailable upstream. Select a different model.")
	default:
		s.cfg.OnStatus("Request failed. Check your connection.")
	}
}

func (s *Session) generation() llm.GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// UpdateGeneration overrides the sampling settings; nil fields keep their
// current value.
func (s *Session) UpdateGeneration(temperature, topP *float64, maxOutputTokens *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if temperature != nil {
		s.gen.Temperature = *temperature
	}
	if topP != nil {
		s.gen.TopP = *topP
	}
	if maxOutputTokens != nil {
		s.gen.MaxOutputTokens = *maxOutputTokens
	}
}

// Turns returns the number of retained history turns.
func (s *Session) Turns() int {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.history.Turns()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the session closed; all subsequent sends are no-ops. Safe to
// call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
