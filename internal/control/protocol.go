package control

import "encoding/json"

// Op names accepted over the control socket.
const (
	OpInitialize         = "initialize"
	OpSendText           = "send_text"
	OpSendImage          = "send_image"
	OpSendImageWithText  = "send_image_with_text"
	OpSendAudioChunk     = "send_audio_chunk"
	OpStartAudioCapture  = "start_audio_capture"
	OpStopAudioCapture   = "stop_audio_capture"
	OpToggleMicrophone   = "toggle_microphone"
	OpUpdateGeneration   = "update_generation_settings"
	OpTranscriptFragment = "transcript_fragment"
	OpCommitUtterance    = "commit_utterance"
	OpCloseSession       = "close_session"
)

// request is one client operation. Params are decoded per op.
type request struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the result object for one request. Operations report failure
// here instead of closing the connection.
type response struct {
	ID    string `json:"id,omitempty"`
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Event names pushed to clients.
const (
	EventStatus      = "status"
	EventAnswerDelta = "answer_delta"
	EventAnswerFinal = "answer_final"
)

// event is a server push: streaming answer snapshots and status lines.
type event struct {
	Event string `json:"event"`
	Text  string `json:"text"`
}

// initializeParams configures a new session.
type initializeParams struct {
	APIKey       string `json:"api_key,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
	Profile      string `json:"profile,omitempty"`
	Language     string `json:"language,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Model        string `json:"model,omitempty"`
}

// sendTextParams carries a user-typed turn.
type sendTextParams struct {
	Text string `json:"text"`
}

// sendImageParams carries a screenshot, optionally with accompanying text.
// Data is base64 (standard encoding, as produced by JSON-marshalling []byte).
type sendImageParams struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
}

// sendAudioChunkParams carries a recorded clip for direct model input.
type sendAudioChunkParams struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// startAudioCaptureParams starts the capture subprocess and VAD pipeline.
type startAudioCaptureParams struct {
	VADEnabled bool   `json:"vad_enabled"`
	VADMode    string `json:"vad_mode,omitempty"`
}

// toggleMicrophoneParams pauses or resumes VAD accumulation.
type toggleMicrophoneParams struct {
	Enabled bool `json:"enabled"`
}

// updateGenerationParams adjusts sampling settings mid-session. Nil fields
// are left unchanged.
type updateGenerationParams struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
}

// transcriptFragmentParams carries one final fragment from an external
// speech recognizer; fragments coalesce in the dispatcher.
type transcriptFragmentParams struct {
	Text string `json:"text"`
}
