// Package config provides the configuration schema and loader for the
// overhear daemon.
package config

import (
	"time"

	"github.com/cadewatson/overhear/internal/session"
	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VADMode selects how utterances are finalized.
type VADMode string

const (
	// VADAutomatic finalizes utterances on trailing silence.
	VADAutomatic VADMode = "automatic"

	// VADManual finalizes only on an explicit commit from the control
	// surface.
	VADManual VADMode = "manual"
)

// IsValid reports whether m is a recognised VAD mode.
func (m VADMode) IsValid() bool {
	return m == VADAutomatic || m == VADManual
}

// Config is the root configuration structure for overhear.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Backends   BackendsConfig   `yaml:"backends"`
	Session    SessionConfig    `yaml:"session"`
	Generation GenerationConfig `yaml:"generation"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ControlAddr is the TCP address of the WebSocket control surface
	// (e.g., "127.0.0.1:8391").
	ControlAddr string `yaml:"control_addr"`

	// MetricsAddr serves Prometheus metrics and health endpoints. Empty
	// disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the capture subprocess output format and framing.
type AudioConfig struct {
	// CaptureCommand is the audio subprocess argv; its stdout must emit raw
	// interleaved little-endian 16-bit PCM. Empty disables audio capture and
	// the daemon runs text-only.
	CaptureCommand []string `yaml:"capture_command"`

	// SampleRate of the capture stream in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the capture stream; stereo is downmixed to mono.
	Channels int `yaml:"channels"`

	// FrameDurationMS is the VAD frame length in milliseconds.
	FrameDurationMS int `yaml:"frame_duration_ms"`

	// MaxBacklogMS caps unframed capture input; older excess is dropped.
	MaxBacklogMS int `yaml:"max_backlog_ms"`
}

// FrameDuration returns the frame length as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMS) * time.Millisecond
}

// MaxBacklog returns the backlog cap as a duration.
func (a AudioConfig) MaxBacklog() time.Duration {
	return time.Duration(a.MaxBacklogMS) * time.Millisecond
}

// VADConfig tunes the segmentation state machine.
type VADConfig struct {
	// Onset is the speech probability starting an utterance.
	Onset float64 `yaml:"onset"`

	// Offset is the probability below which trailing silence begins.
	// Zero uses the onset value.
	Offset float64 `yaml:"offset"`

	// HangoverMS is the silence needed to finalize an utterance.
	HangoverMS int `yaml:"hangover_ms"`

	// MaxUtteranceS bounds a single utterance in seconds.
	MaxUtteranceS int `yaml:"max_utterance_s"`

	// Mode is "automatic" or "manual".
	Mode VADMode `yaml:"mode"`

	// EnergyReference is the RMS level mapped to probability 1.0 by the
	// built-in energy scorer.
	EnergyReference float64 `yaml:"energy_reference"`
}

// HangoverFrames converts the hang-over length into whole frames.
func (v VADConfig) HangoverFrames(frameDuration time.Duration) int {
	if frameDuration <= 0 {
		return 0
	}
	return int((time.Duration(v.HangoverMS) * time.Millisecond) / frameDuration)
}

// MaxUtteranceFrames converts the utterance bound into whole frames.
func (v VADConfig) MaxUtteranceFrames(frameDuration time.Duration) int {
	if frameDuration <= 0 {
		return 0
	}
	return int((time.Duration(v.MaxUtteranceS) * time.Second) / frameDuration)
}

// DispatchConfig tunes the speech queue.
type DispatchConfig struct {
	// FlushDelayMS is how long after the last recognizer fragment the
	// buffered fragments combine into one utterance.
	FlushDelayMS int `yaml:"flush_delay_ms"`

	// DuplicateThreshold is the Jaro-Winkler similarity above which
	// consecutive utterances are dropped as repeats. Negative disables.
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
}

// FlushDelay returns the flush delay as a duration.
func (d DispatchConfig) FlushDelay() time.Duration {
	return time.Duration(d.FlushDelayMS) * time.Millisecond
}

// ModelPrefix routes model ids starting with Prefix to Backend
// ("gemini" or "groq"). Checked before the built-in table.
type ModelPrefix struct {
	Prefix  string `yaml:"prefix"`
	Backend string `yaml:"backend"`
}

// BackendsConfig holds credentials and model routing.
type BackendsConfig struct {
	// GeminiAPIKey and GroqAPIKey are the backend credentials. Either may be
	// empty when that backend is unused; initialize may also supply a key.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GroqAPIKey   string `yaml:"groq_api_key"`

	// DefaultModel is used when initialize names no model.
	DefaultModel string `yaml:"default_model"`

	// SearchGrounding attaches the google-search tool on backends that
	// support it.
	SearchGrounding bool `yaml:"search_grounding"`

	// ModelPrefixes extends the model-id routing table.
	ModelPrefixes []ModelPrefix `yaml:"model_prefixes"`
}

// SessionConfig bounds conversation history and UI streaming.
type SessionConfig struct {
	// MaxTurns is the number of retained request/response pairs.
	MaxTurns int `yaml:"max_turns"`

	// MaxImageTurns is how many recent turns keep their image payloads.
	MaxImageTurns int `yaml:"max_image_turns"`

	// SnapshotIntervalMS throttles intermediate answer snapshots.
	SnapshotIntervalMS int `yaml:"snapshot_interval_ms"`
}

// SnapshotInterval returns the snapshot throttle as a duration.
func (s SessionConfig) SnapshotInterval() time.Duration {
	return time.Duration(s.SnapshotIntervalMS) * time.Millisecond
}

// GenerationConfig holds sampling defaults and the output-cap rule table.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	// CapRules overrides the built-in per-request output caps. First match
	// wins; nil keeps the defaults.
	CapRules session.CapTable `yaml:"cap_rules"`
}

// ToLLM converts the configured sampling defaults into provider parameters.
func (g GenerationConfig) ToLLM() llm.GenerationConfig {
	return llm.GenerationConfig{
		Temperature:     g.Temperature,
		TopP:            g.TopP,
		MaxOutputTokens: g.MaxOutputTokens,
	}
}

// ArchiveConfig enables the Postgres transcript archive.
type ArchiveConfig struct {
	// PostgresDSN is the archive connection string. Empty disables archiving.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns a Config with all defaults filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ControlAddr: "127.0.0.1:8391",
			LogLevel:    LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:      24_000,
			Channels:        2,
			FrameDurationMS: 100,
			MaxBacklogMS:    1_000,
		},
		VAD: VADConfig{
			Onset:           0.5,
			Offset:          0.35,
			HangoverMS:      900,
			MaxUtteranceS:   60,
			Mode:            VADAutomatic,
			EnergyReference: 0.1,
		},
		Dispatch: DispatchConfig{
			FlushDelayMS:       1_400,
			DuplicateThreshold: 0.92,
		},
		Backends: BackendsConfig{
			DefaultModel:    "gemini-2.5-flash",
			SearchGrounding: true,
		},
		Session: SessionConfig{
			MaxTurns:           8,
			MaxImageTurns:      3,
			SnapshotIntervalMS: 50,
		},
		Generation: GenerationConfig{
			Temperature: 0.7,
			TopP:        0.95,
		},
	}
}
