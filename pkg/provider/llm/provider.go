// Package llm defines the Provider interface for streaming LLM backends.
//
// A provider wraps one backend family's API (Gemini's streaming multimodal
// endpoint or Groq's chat-completions endpoint) and exposes a uniform
// turn-based streaming interface so the session router never couples to a
// specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamTurn must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Capabilities describes what a provider's backend family supports. The
// result is constant for the lifetime of the Provider instance.
type Capabilities struct {
	// Images reports whether inline image parts are accepted.
	Images bool

	// Audio reports whether inline audio parts are accepted.
	Audio bool

	// SearchTool reports whether the google-search grounding tool can be
	// attached to a turn.
	SearchTool bool

	// MaxOutputTokens is the hard output cap of the selected model; requests
	// asking for more are clamped to it.
	MaxOutputTokens int
}

// Chunk is one incremental fragment of a streamed response.
type Chunk struct {
	// Text is the incremental text content. May be empty on a terminal chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error".
	FinishReason string

	// Err carries the typed provider error when FinishReason is "error", so
	// the failure classifier can inspect status codes and retry hints.
	Err error
}

// Provider is the abstraction over one LLM backend family.
type Provider interface {
	// Kind identifies the backend family this provider implements.
	Kind() Kind

	// StreamTurn sends one conversation turn and returns a read-only channel
	// emitting chunks as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled; callers
	// must drain it. Errors after the stream opens surface as a final Chunk
	// with FinishReason "error" and Err set; the error return is non-nil only
	// when the stream cannot start at all.
	StreamTurn(ctx context.Context, req TurnRequest) (<-chan Chunk, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities
}
