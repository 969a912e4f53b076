// Package control is the WebSocket surface the UI talks to.
//
// Clients send JSON request frames ({id, op, params}) and receive a result
// object per request plus asynchronous push events: status lines, streaming
// answer snapshots and final answers. Every operation reports failure in its
// result object; the connection is never torn down for an application error.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Backend is the application surface the control socket drives. All methods
// must be safe for concurrent use; Send* methods are fire-and-forget and
// report outcomes through pushed status/answer events.
type Backend interface {
	// Initialize creates the active session. Errors are reported to the
	// caller in the result object.
	Initialize(ctx context.Context, p InitParams) error

	// SendText, SendImage and SendAudioChunk feed one turn to the active
	// session. Text may be empty for image-only turns; data may be nil for
	// text-only turns.
	SendText(text string)
	SendImage(data []byte, mimeType, text string)
	SendAudioChunk(data []byte, mimeType string)

	// StartCapture launches the audio pipeline. StopCapture halts it.
	StartCapture(vadEnabled bool, vadMode string) error
	StopCapture()

	// ToggleMicrophone pauses (false) or resumes (true) VAD accumulation.
	ToggleMicrophone(enabled bool)

	// UpdateGeneration adjusts sampling settings; nil fields keep their
	// current values.
	UpdateGeneration(temperature, topP *float64, maxOutputTokens *int)

	// TranscriptFragment feeds one recognizer fragment to the dispatcher.
	TranscriptFragment(text string)

	// CommitUtterance finalizes the manual-mode utterance buffer.
	CommitUtterance()

	// CloseSession closes the active session.
	CloseSession()
}

// InitParams mirrors the initialize operation's parameters for the backend.
type InitParams struct {
	APIKey       string
	CustomPrompt string
	Profile      string
	Language     string
	Mode         string
	Model        string
}

// Server accepts control connections and broadcasts push events to every
// connected client.
type Server struct {
	backend Backend

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	// writeMu serializes frames; responses and broadcasts interleave.
	writeMu sync.Mutex
}

// NewServer creates a Server driving backend.
func NewServer(backend Backend) *Server {
	return &Server{
		backend: backend,
		clients: make(map[*client]struct{}),
	}
}

// Register adds the control route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/control", s.handle)
}

// handle upgrades the connection and serves requests until the client
// disconnects.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The UI connects from a file:// or app:// origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("control: accept failed", "error", err)
		return
	}
	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	slog.Info("control: client connected", "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "bye")
		slog.Info("control: client disconnected", "remote", r.RemoteAddr)
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("control: read failed", "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			s.respond(ctx, c, response{OK: false, Error: "malformed request frame"})
			continue
		}
		s.respond(ctx, c, s.dispatch(ctx, req))
	}
}

// dispatch runs one operation and builds its result object.
func (s *Server) dispatch(ctx context.Context, req request) response {
	res := response{ID: req.ID, Op: req.Op, OK: true}

	fail := func(err error) response {
		res.OK = false
		res.Error = err.Error()
		return res
	}

	switch req.Op {
	case OpInitialize:
		var p initializeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if err := s.backend.Initialize(ctx, InitParams(p)); err != nil {
			return fail(err)
		}

	case OpSendText:
		var p sendTextParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if p.Text == "" {
			return fail(errors.New("text must not be empty"))
		}
		s.backend.SendText(p.Text)

	case OpSendImage, OpSendImageWithText:
		var p sendImageParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if len(p.Data) == 0 {
			return fail(errors.New("image data must not be empty"))
		}
		s.backend.SendImage(p.Data, p.MimeType, p.Text)

	case OpSendAudioChunk:
		var p sendAudioChunkParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if len(p.Data) == 0 || p.MimeType == "" {
			return fail(errors.New("audio data and mime_type are required"))
		}
		s.backend.SendAudioChunk(p.Data, p.MimeType)

	case OpStartAudioCapture:
		var p startAudioCaptureParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if err := s.backend.StartCapture(p.VADEnabled, p.VADMode); err != nil {
			return fail(err)
		}

	case OpStopAudioCapture:
		s.backend.StopCapture()

	case OpToggleMicrophone:
		var p toggleMicrophoneParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		s.backend.ToggleMicrophone(p.Enabled)

	case OpUpdateGeneration:
		var p updateGenerationParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		s.backend.UpdateGeneration(p.Temperature, p.TopP, p.MaxOutputTokens)

	case OpTranscriptFragment:
		var p transcriptFragmentParams
		if err := decodeParams(req.Params, &p); err != nil {
			return fail(err)
		}
		if p.Text == "" {
			return fail(errors.New("text must not be empty"))
		}
		s.backend.TranscriptFragment(p.Text)

	case OpCommitUtterance:
		s.backend.CommitUtterance()

	case OpCloseSession:
		s.backend.CloseSession()

	default:
		return fail(fmt.Errorf("unknown op %q", req.Op))
	}
	return res
}

// respond writes one result object to a single client.
func (s *Server) respond(ctx context.Context, c *client, res response) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("control: write failed", "error", err)
	}
}

// PublishStatus pushes a status line to every connected client.
func (s *Server) PublishStatus(text string) {
	s.broadcast(event{Event: EventStatus, Text: text})
}

// PublishDelta pushes an intermediate answer snapshot.
func (s *Server) PublishDelta(text string) {
	s.broadcast(event{Event: EventAnswerDelta, Text: text})
}

// PublishFinal pushes the complete answer for a finished turn.
func (s *Server) PublishFinal(text string) {
	s.broadcast(event{Event: EventAnswerFinal, Text: text})
}

func (s *Server) broadcast(evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		err := c.conn.Write(context.Background(), websocket.MessageText, data)
		c.writeMu.Unlock()
		if err != nil {
			slog.Debug("control: broadcast write failed", "error", err)
		}
	}
}

// decodeParams unmarshals params; type mismatches are programmer errors on
// the client side and rejected synchronously in the result object.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
