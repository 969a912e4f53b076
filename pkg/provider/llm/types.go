package llm

// Role identifies who produced a conversation message.
type Role string

const (
	// RoleUser marks input from the user side of the conversation.
	RoleUser Role = "user"

	// RoleModel marks a model response.
	RoleModel Role = "model"
)

// Blob is an inline binary attachment (screenshot, audio clip).
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one element of a message: text, an inline blob, or both are
// possible but exactly one field is normally set.
type Part struct {
	Text string
	Blob *Blob
}

// HasBlob reports whether the part carries binary data.
func (p Part) HasBlob() bool {
	return p.Blob != nil && len(p.Blob.Data) > 0
}

// Message is one history entry: a role plus its ordered parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		out += p.Text
	}
	return out
}

// HasBlob reports whether any part of the message carries binary data.
func (m Message) HasBlob() bool {
	for _, p := range m.Parts {
		if p.HasBlob() {
			return true
		}
	}
	return false
}

// GenerationConfig carries the sampling parameters of one turn.
type GenerationConfig struct {
	// Temperature in [0, 2]; zero requests the provider default.
	Temperature float64

	// TopP nucleus sampling parameter in (0, 1]; zero requests the default.
	TopP float64

	// MaxOutputTokens caps the response length. Zero means no explicit cap.
	MaxOutputTokens int
}

// TurnRequest carries everything a provider needs for one streamed turn.
type TurnRequest struct {
	// SystemPrompt is injected ahead of the history in whatever form the
	// backend family supports.
	SystemPrompt string

	// History is the prior conversation, oldest first. Image data older than
	// the session's retention cap arrives already replaced by a placeholder
	// text part.
	History []Message

	// Turn holds the new input parts: text and/or inline media.
	Turn []Part

	// Generation holds the sampling parameters.
	Generation GenerationConfig

	// EnableSearch attaches the google-search grounding tool when the backend
	// supports it; families without tool support ignore it.
	EnableSearch bool
}
