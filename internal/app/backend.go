package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadewatson/overhear/internal/archive"
	"github.com/cadewatson/overhear/internal/control"
	"github.com/cadewatson/overhear/internal/dispatch"
	"github.com/cadewatson/overhear/internal/resilience"
	"github.com/cadewatson/overhear/internal/session"
	"github.com/cadewatson/overhear/pkg/audio"
	"github.com/cadewatson/overhear/pkg/provider/llm"
	"github.com/cadewatson/overhear/pkg/vad"
)

// Compile-time check: App is the control surface's backend.
var _ control.Backend = (*App)(nil)

// ── Session operations ───────────────────────────────────────────────────────

// Initialize implements [control.Backend].
func (a *App) Initialize(ctx context.Context, p control.InitParams) error {
	model := p.Model
	if model == "" {
		model = a.cfg.Backends.DefaultModel
	}
	_, err := a.manager.Initialize(ctx, session.InitParams{
		APIKey:       p.APIKey,
		CustomPrompt: p.CustomPrompt,
		Profile:      p.Profile,
		Language:     p.Language,
		Mode:         p.Mode,
		Model:        model,
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	fresh := !a.hasSession
	a.hasSession = true
	a.mu.Unlock()
	if fresh {
		a.metrics.ActiveSessions.Add(ctx, 1)
	}
	a.control.PublishStatus("Ready")
	return nil
}

// CloseSession implements [control.Backend].
func (a *App) CloseSession() {
	a.manager.CloseSession()

	a.mu.Lock()
	had := a.hasSession
	a.hasSession = false
	a.mu.Unlock()
	if had {
		a.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// UpdateGeneration implements [control.Backend].
func (a *App) UpdateGeneration(temperature, topP *float64, maxOutputTokens *int) {
	sess := a.manager.Current()
	if sess == nil {
		a.control.PublishStatus("No active session. Initialize first.")
		return
	}
	sess.UpdateGeneration(temperature, topP, maxOutputTokens)
}

// ── Input operations ─────────────────────────────────────────────────────────

// SendText implements [control.Backend].
func (a *App) SendText(text string) {
	go a.send(context.Background(), session.Input{Text: text})
}

// SendImage implements [control.Backend].
func (a *App) SendImage(data []byte, mimeType, text string) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	go a.send(context.Background(), session.Input{
		Text:  text,
		Media: &llm.Blob{MIMEType: mimeType, Data: data},
	})
}

// SendAudioChunk implements [control.Backend].
func (a *App) SendAudioChunk(data []byte, mimeType string) {
	go a.send(context.Background(), session.Input{
		Media: &llm.Blob{MIMEType: mimeType, Data: data},
	})
}

// TranscriptFragment implements [control.Backend]. Fragments coalesce in the
// dispatcher until its flush timer fires.
func (a *App) TranscriptFragment(text string) {
	a.dispatcher.AddFragment(text)
}

// sendUtterance is the dispatcher's sender: one drained utterance at a time.
func (a *App) sendUtterance(ctx context.Context, text string) error {
	a.send(ctx, session.Input{Text: text})
	return nil
}

// classify wraps the question filter to record dispatch decisions.
func (a *App) classify(text string) bool {
	ok := dispatch.IsQuestion(text)
	decision := "accepted"
	if !ok {
		decision = "discarded"
	}
	a.metrics.RecordDispatchDecision(context.Background(), decision)
	return ok
}

// send issues one turn to the active session. All failures surface as status
// events; send itself never fails.
func (a *App) send(ctx context.Context, in session.Input) {
	sess := a.manager.Current()
	if sess == nil {
		a.control.PublishStatus("No active session. Initialize first.")
		return
	}

	start := time.Now()
	a.turnStart.Store(start.UnixNano())
	text := sess.Send(ctx, in)

	status := "ok"
	if text == "" {
		status = "empty"
	}
	a.metrics.RecordProviderRequest(ctx, sess.Kind().String(), status)
	if text != "" {
		a.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// recordFailure counts classified turn failures and started cool-downs.
func (a *App) recordFailure(backend llm.Kind, class resilience.Class) {
	ctx := context.Background()
	a.metrics.RecordProviderError(ctx, backend.String(), class.String())
	if class == resilience.ClassRateLimit {
		a.metrics.RateLimitWaits.Add(ctx, 1)
	}
}

// publishAnswer fans session answer snapshots out to the control clients.
func (a *App) publishAnswer(text string, final bool) {
	if final {
		a.control.PublishFinal(text)
		return
	}
	a.control.PublishDelta(text)
}

// archiveTurn persists one completed turn in the background.
func (a *App) archiveTurn(user, model llm.Message) {
	sess := a.manager.Current()
	if sess == nil {
		return
	}
	st := sess.Settings()

	var latency time.Duration
	if ns := a.turnStart.Load(); ns > 0 {
		latency = time.Since(time.Unix(0, ns))
	}
	turn := archive.Turn{
		Model:    st.Model,
		Backend:  sess.Kind().String(),
		Profile:  st.Profile,
		Question: user.Text(),
		Answer:   model.Text(),
		HadImage: user.HasBlob(),
		Latency:  latency,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.archiver.InsertTurn(ctx, turn); err != nil {
			slog.Warn("app: archive insert failed", "error", err)
		}
	}()
}

// ── Capture operations ───────────────────────────────────────────────────────

// StartCapture implements [control.Backend]. It launches the audio
// subprocess and, when VAD is enabled, the segmentation pipeline feeding
// finalized utterances into the active session.
func (a *App) StartCapture(vadEnabled bool, vadMode string) error {
	a.mu.Lock()
	if a.capturing {
		a.mu.Unlock()
		return fmt.Errorf("app: capture already running")
	}
	a.mu.Unlock()

	var proc *vad.Processor
	if vadEnabled {
		mode := string(a.cfg.VAD.Mode)
		if vadMode != "" {
			mode = vadMode
		}
		scorer, err := vad.NewEnergyScorer(a.cfg.VAD.EnergyReference)
		if err != nil {
			return fmt.Errorf("app: vad scorer: %w", err)
		}
		frameDur := a.cfg.Audio.FrameDuration()
		proc, err = vad.NewProcessor(vad.ProcessorConfig{
			Scorer:             scorer,
			Onset:              a.cfg.VAD.Onset,
			Offset:             a.cfg.VAD.Offset,
			HangoverFrames:     a.cfg.VAD.HangoverFrames(frameDur),
			MaxUtteranceFrames: a.cfg.VAD.MaxUtteranceFrames(frameDur),
			Mode:               vad.ParseMode(mode),
		})
		if err != nil {
			return fmt.Errorf("app: vad processor: %w", err)
		}
	}

	frames, err := a.runner.Start()
	if err != nil {
		a.control.PublishStatus("Audio capture unavailable. Continuing text-only.")
		return err
	}

	a.mu.Lock()
	a.capturing = true
	a.proc = proc
	a.mu.Unlock()
	a.metrics.CaptureRunning.Add(context.Background(), 1)

	if proc != nil {
		proc.Resume()
	}
	go a.pipelineLoop(frames, proc)
	return nil
}

// pipelineLoop drains capture frames through the VAD processor until the
// frame channel closes.
func (a *App) pipelineLoop(frames <-chan audio.AudioFrame, proc *vad.Processor) {
	for frame := range frames {
		if proc == nil {
			continue
		}
		utt, err := proc.ProcessFrame(frame)
		if err != nil {
			slog.Warn("app: vad scoring failed", "frame", frame.Seq, "error", err)
			continue
		}
		if utt != nil {
			a.handleUtterance(utt)
		}
	}

	a.mu.Lock()
	wasCapturing := a.capturing
	a.capturing = false
	a.proc = nil
	a.mu.Unlock()

	if wasCapturing {
		a.metrics.CaptureRunning.Add(context.Background(), -1)
	}
	if proc != nil {
		proc.Destroy()
	}
	if dropped := a.runner.DroppedBytes(); dropped > 0 {
		a.metrics.FramesDropped.Add(context.Background(), int64(dropped))
	}
	slog.Info("app: capture pipeline stopped")
}

// handleUtterance routes one finalized utterance to the session as inline
// audio.
func (a *App) handleUtterance(u *vad.Utterance) {
	ctx := context.Background()
	mode := "automatic"
	if u.Committed {
		mode = "manual"
	}
	a.metrics.RecordUtterance(ctx, mode, u.Duration().Seconds())
	slog.Debug("app: utterance finalized",
		"seq", u.Seq,
		"frames", u.Frames,
		"duration", u.Duration(),
		"committed", u.Committed,
	)

	mimeType := fmt.Sprintf("audio/pcm;rate=%d", u.SampleRate)
	go a.send(ctx, session.Input{
		Media: &llm.Blob{MIMEType: mimeType, Data: u.PCM},
	})
}

// StopCapture implements [control.Backend]. It halts the subprocess; the
// pipeline loop winds down when the frame channel closes.
func (a *App) StopCapture() {
	a.runner.Stop()
}

// ToggleMicrophone implements [control.Backend]. Disabling discards the
// accumulating utterance buffer; enabling resumes listening.
func (a *App) ToggleMicrophone(enabled bool) {
	a.mu.Lock()
	proc := a.proc
	a.mu.Unlock()
	if proc == nil {
		return
	}
	if enabled {
		proc.Resume()
	} else {
		proc.Pause()
	}
}

// CommitUtterance implements [control.Backend]: the manual-mode finalize.
func (a *App) CommitUtterance() {
	a.mu.Lock()
	proc := a.proc
	a.mu.Unlock()
	if proc == nil {
		return
	}
	if utt := proc.Commit(); utt != nil {
		a.handleUtterance(utt)
	}
}
