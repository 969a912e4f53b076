package llm

import "strings"

// Kind is the backend family a model id routes to. It is resolved exactly
// once, at session initialization, and stored on the session.
type Kind int

const (
	// KindUnknown means the model id matched no known family.
	KindUnknown Kind = iota

	// KindGemini is the streaming multimodal family (Google AI API).
	KindGemini

	// KindGroq is the chat-completions SSE family (Groq's OpenAI-compatible
	// API).
	KindGroq
)

func (k Kind) String() string {
	switch k {
	case KindGemini:
		return "gemini"
	case KindGroq:
		return "groq"
	default:
		return "unknown"
	}
}

// KindRule maps a model-id prefix to a backend family. Rules are checked in
// order; first match wins.
type KindRule struct {
	Prefix string
	Kind   Kind
}

// DefaultKindRules covers the model families both backends serve today.
// Configuration may prepend rules to extend or override the table.
var DefaultKindRules = []KindRule{
	{Prefix: "gemini", Kind: KindGemini},
	{Prefix: "llama", Kind: KindGroq},
	{Prefix: "meta-llama/", Kind: KindGroq},
	{Prefix: "mixtral", Kind: KindGroq},
	{Prefix: "gemma", Kind: KindGroq},
	{Prefix: "qwen", Kind: KindGroq},
	{Prefix: "deepseek", Kind: KindGroq},
	{Prefix: "moonshotai/", Kind: KindGroq},
	{Prefix: "openai/gpt-oss", Kind: KindGroq},
	{Prefix: "compound", Kind: KindGroq},
}

// ResolveKind maps a model id onto its backend family using rules, falling
// back to [DefaultKindRules] when rules is nil. Matching is case-insensitive
// on the model prefix.
func ResolveKind(model string, rules []KindRule) Kind {
	if rules == nil {
		rules = DefaultKindRules
	}
	lower := strings.ToLower(strings.TrimSpace(model))
	for _, r := range rules {
		if strings.HasPrefix(lower, strings.ToLower(r.Prefix)) {
			return r.Kind
		}
	}
	return KindUnknown
}
