package vad

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cadewatson/overhear/pkg/audio"
)

// ProcessorConfig configures a [Processor].
type ProcessorConfig struct {
	// Scorer produces the per-frame speech probability. Required.
	Scorer Scorer

	// Onset is the probability at or above which speech starts (and resumes
	// during trailing silence). Defaults to 0.5 when zero.
	Onset float64

	// Offset is the probability below which an active utterance enters
	// trailing silence. Defaults to Onset when zero.
	Offset float64

	// HangoverFrames is how many consecutive sub-offset frames end an
	// utterance in automatic mode. Defaults to 10 when zero.
	HangoverFrames int

	// MaxUtteranceFrames bounds the utterance buffer. In automatic mode
	// reaching the bound force-finalizes; in manual mode the oldest frames
	// are dropped. Defaults to 600 when zero.
	MaxUtteranceFrames int

	// Mode selects automatic or manual finalization.
	Mode Mode
}

// Processor is the VAD segmentation state machine. Feed it frames with
// [Processor.ProcessFrame]; it returns a finalized [Utterance] when one
// completes. Safe for concurrent use: control calls (Commit, Pause, Resume,
// SetMode, Destroy) may arrive from a different goroutine than the frame
// feed.
type Processor struct {
	mu  sync.Mutex
	cfg ProcessorConfig

	state        State
	silenceCount int
	buf          []byte
	bufFrames    int
	bufStart     time.Duration
	bufEnd       time.Duration
	sampleRate   int
	seq          uint64
}

// NewProcessor validates cfg and returns a Processor in [StateIdle];
// call [Processor.Resume] to start consuming frames.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("vad: processor requires a scorer")
	}
	if cfg.Onset < 0 || cfg.Onset > 1 {
		return nil, fmt.Errorf("vad: onset threshold %v outside [0, 1]", cfg.Onset)
	}
	if cfg.Onset == 0 {
		cfg.Onset = 0.5
	}
	if cfg.Offset == 0 {
		cfg.Offset = cfg.Onset
	}
	if cfg.Offset > cfg.Onset {
		return nil, fmt.Errorf("vad: offset threshold %v above onset %v", cfg.Offset, cfg.Onset)
	}
	if cfg.HangoverFrames <= 0 {
		cfg.HangoverFrames = 10
	}
	if cfg.MaxUtteranceFrames <= 0 {
		cfg.MaxUtteranceFrames = 600
	}
	return &Processor{cfg: cfg, state: StateIdle}, nil
}

// State returns the current segmentation state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ProcessFrame scores one frame and advances the state machine. It returns a
// non-nil Utterance when the frame completed one, nil otherwise. Frames
// arriving in [StateIdle] are discarded without scoring.
func (p *Processor) ProcessFrame(frame audio.AudioFrame) (*Utterance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateIdle {
		return nil, nil
	}

	prob, err := p.cfg.Scorer.Score(audio.PCM16ToFloat32(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("vad: score frame %d: %w", frame.Seq, err)
	}

	switch p.state {
	case StateListening:
		if prob >= p.cfg.Onset {
			p.state = StateSpeechActive
			p.silenceCount = 0
			p.appendLocked(frame)
		}

	case StateSpeechActive:
		p.appendLocked(frame)
		if prob < p.cfg.Offset {
			p.state = StateTrailingSilence
			p.silenceCount = 1
			return p.checkHangoverLocked()
		}

	case StateTrailingSilence:
		p.appendLocked(frame)
		if prob >= p.cfg.Onset {
			p.state = StateSpeechActive
			p.silenceCount = 0
		} else {
			p.silenceCount++
			return p.checkHangoverLocked()
		}
	}

	if p.bufFrames >= p.cfg.MaxUtteranceFrames {
		if p.cfg.Mode == ModeAutomatic {
			slog.Debug("vad: utterance reached frame bound, force-finalizing",
				"frames", p.bufFrames)
			return p.finalizeLocked(false), nil
		}
		p.trimLocked()
	}
	return nil, nil
}

func (p *Processor) checkHangoverLocked() (*Utterance, error) {
	if p.silenceCount < p.cfg.HangoverFrames {
		return nil, nil
	}
	if p.cfg.Mode == ModeManual {
		// Manual mode holds the utterance open; only Commit emits it.
		return nil, nil
	}
	return p.finalizeLocked(false), nil
}

func (p *Processor) appendLocked(frame audio.AudioFrame) {
	if p.bufFrames == 0 {
		p.bufStart = frame.Timestamp
		p.sampleRate = frame.SampleRate
	}
	p.buf = append(p.buf, frame.Data...)
	p.bufFrames++
	p.bufEnd = frame.Timestamp + frame.Duration()
}

// trimLocked drops the oldest frames so the buffer stays within the bound.
// Used in manual mode only, where finalization waits for Commit.
func (p *Processor) trimLocked() {
	if p.bufFrames <= p.cfg.MaxUtteranceFrames {
		return
	}
	frameBytes := len(p.buf) / p.bufFrames
	excess := p.bufFrames - p.cfg.MaxUtteranceFrames
	p.buf = p.buf[:copy(p.buf, p.buf[excess*frameBytes:])]
	p.bufFrames -= excess
}

func (p *Processor) finalizeLocked(committed bool) *Utterance {
	pcm := make([]byte, len(p.buf))
	copy(pcm, p.buf)
	u := &Utterance{
		Seq:        p.seq,
		PCM:        pcm,
		SampleRate: p.sampleRate,
		Frames:     p.bufFrames,
		Start:      p.bufStart,
		End:        p.bufEnd,
		Committed:  committed,
	}
	p.seq++
	p.resetBufferLocked()
	p.state = StateListening
	return u
}

func (p *Processor) resetBufferLocked() {
	p.buf = p.buf[:0]
	p.bufFrames = 0
	p.silenceCount = 0
	p.bufStart = 0
	p.bufEnd = 0
}

// Commit finalizes and returns the currently accumulating utterance. It
// returns nil when nothing is buffered. Commit works in both modes but exists
// for manual mode, where it is the only way an utterance is emitted.
func (p *Processor) Commit() *Utterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bufFrames == 0 {
		return nil
	}
	return p.finalizeLocked(true)
}

// Pause stops frame consumption and discards any accumulating buffer without
// emitting it.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetBufferLocked()
	p.state = StateIdle
}

// Resume (re-)enters [StateListening]. Calling Resume on an already running
// processor is a no-op, so it never interrupts an open utterance.
func (p *Processor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		p.state = StateListening
	}
}

// SetMode switches between automatic and manual finalization. Switching to
// automatic while trailing silence has already exceeded the hang-over leaves
// the open utterance for the next frame to finalize.
func (p *Processor) SetMode(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Mode = m
}

// Destroy unconditionally resets the processor to [StateIdle], discarding any
// buffered audio and restarting utterance numbering. Safe to call repeatedly.
func (p *Processor) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetBufferLocked()
	p.seq = 0
	p.state = StateIdle
}
