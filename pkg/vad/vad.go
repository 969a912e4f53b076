// Package vad segments a continuous stream of audio frames into discrete
// utterances using per-frame speech probabilities from a pluggable scorer.
package vad

import "time"

// State is the segmentation state of a [Processor].
type State int

const (
	// StateIdle means the processor is not consuming frames (capture stopped
	// or microphone muted). Only Resume leaves this state.
	StateIdle State = iota

	// StateListening means frames are scored but no speech has started.
	StateListening

	// StateSpeechActive means speech probability crossed the onset threshold
	// and frames are accumulating into the current utterance.
	StateSpeechActive

	// StateTrailingSilence means probability dropped below the offset
	// threshold while an utterance is open; the hang-over counter is running.
	StateTrailingSilence
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeechActive:
		return "speech_active"
	case StateTrailingSilence:
		return "trailing_silence"
	default:
		return "unknown"
	}
}

// Mode selects how utterances are finalized.
type Mode int

const (
	// ModeAutomatic finalizes an utterance when the hang-over counter expires.
	ModeAutomatic Mode = iota

	// ModeManual keeps accumulating until an explicit Commit call; trailing
	// silence never finalizes on its own.
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "automatic"
}

// ParseMode maps the control-surface mode names onto a [Mode].
// Unrecognized values default to automatic.
func ParseMode(s string) Mode {
	if s == "manual" {
		return ModeManual
	}
	return ModeAutomatic
}

// Scorer classifies one mono float32 frame with a speech probability in
// [0, 1]. Implementations wrap an external model or a simple energy gate;
// the segmentation logic treats them identically.
type Scorer interface {
	Score(frame []float32) (float64, error)
}

// Utterance is one contiguous span of detected speech, including its
// trailing-silence tail, ready for dispatch as a single unit.
type Utterance struct {
	// Seq increases by one per finalized utterance since the last reset.
	Seq uint64

	// PCM is the concatenated little-endian 16-bit mono audio of the span.
	PCM []byte

	// SampleRate of PCM in Hz.
	SampleRate int

	// Frames is the number of audio frames the span covers.
	Frames int

	// Start and End mark the span's position in the capture stream.
	Start, End time.Duration

	// Committed is true when the utterance was finalized by an explicit
	// Commit call rather than by trailing-silence expiry.
	Committed bool
}

// Duration returns the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.PCM)/2) * time.Second / time.Duration(u.SampleRate)
}
