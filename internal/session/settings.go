// Package session holds the per-session state of the assistant: the resolved
// backend, the bounded conversation history, and the no-throw send path that
// turns provider failures into status updates instead of errors.
package session

import (
	"strings"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// Operating modes. Low-latency mode trades answer length and image context
// for response speed.
const (
	ModeStandard   = "standard"
	ModeLowLatency = "low_latency"
)

// Settings is the consolidated per-session configuration chosen at
// initialization. It travels as one value so no component reads session state
// from anywhere else.
type Settings struct {
	// Profile selects the system-prompt template (interview, sales, ...).
	Profile string

	// CustomPrompt is appended to the profile template when set.
	CustomPrompt string

	// Language is the reply language directive ("en", "de", ...). Empty means
	// no directive.
	Language string

	// Mode is ModeStandard or ModeLowLatency.
	Mode string

	// Model is the backend model id; its prefix decides the backend family.
	Model string
}

// CapRule selects a max-output-token cap for requests matching its fields.
// Empty Mode or ModelPrefix matches anything; a nil HasImage matches both.
// These thresholds are tuned heuristics, so they live in configuration
// rather than control flow.
type CapRule struct {
	Mode        string `yaml:"mode"`
	HasImage    *bool  `yaml:"has_image"`
	ModelPrefix string `yaml:"model_prefix"`
	MaxTokens   int    `yaml:"max_tokens"`
}

// CapTable is an ordered rule list; the first matching rule wins.
type CapTable []CapRule

func boolPtr(b bool) *bool { return &b }

// DefaultCapRules reproduces the tuned defaults: image-bearing requests in
// standard mode get headroom for code answers, low-latency mode is clamped
// tight, and "pro"-class models get a larger text cap.
var DefaultCapRules = CapTable{
	{Mode: ModeLowLatency, MaxTokens: 1_024},
	{HasImage: boolPtr(true), MaxTokens: 8_192},
	{ModelPrefix: "gemini-2.5-pro", MaxTokens: 4_096},
	{MaxTokens: 2_048},
}

// Resolve returns the output cap for a request, bounded by the model's hard
// maximum. userPref, when positive, overrides the rule table but is still
// clamped to the model maximum. A zero result means no explicit cap.
func (t CapTable) Resolve(mode string, hasImage bool, model string, userPref, modelMax int) int {
	limit := userPref
	if limit <= 0 {
		limit = t.match(mode, hasImage, model)
	}
	if modelMax > 0 && (limit <= 0 || limit > modelMax) {
		limit = modelMax
	}
	return limit
}

func (t CapTable) match(mode string, hasImage bool, model string) int {
	lower := strings.ToLower(model)
	for _, r := range t {
		if r.Mode != "" && r.Mode != mode {
			continue
		}
		if r.HasImage != nil && *r.HasImage != hasImage {
			continue
		}
		if r.ModelPrefix != "" && !strings.HasPrefix(lower, strings.ToLower(r.ModelPrefix)) {
			continue
		}
		return r.MaxTokens
	}
	return 0
}

// Kind resolves the backend family for the settings' model.
func (s Settings) Kind(rules []llm.KindRule) llm.Kind {
	return llm.ResolveKind(s.Model, rules)
}
