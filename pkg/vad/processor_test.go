package vad

import (
	"errors"
	"testing"
	"time"

	"github.com/cadewatson/overhear/pkg/audio"
	"github.com/cadewatson/overhear/pkg/vad/mock"
)

const testFrameDuration = 100 * time.Millisecond

func testFrame(seq uint64) audio.AudioFrame {
	return audio.AudioFrame{
		Data:       make([]byte, 20), // 10 samples, content irrelevant to the mock scorer
		SampleRate: 100,
		Channels:   1,
		Seq:        seq,
		Timestamp:  time.Duration(seq) * testFrameDuration,
	}
}

func newTestProcessor(t *testing.T, mode Mode, probs []float64) *Processor {
	t.Helper()
	p, err := NewProcessor(ProcessorConfig{
		Scorer:         &mock.Scorer{Probs: probs},
		Onset:          0.5,
		HangoverFrames: 3,
		Mode:           mode,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	p.Resume()
	return p
}

func feed(t *testing.T, p *Processor, n int) []*Utterance {
	t.Helper()
	var out []*Utterance
	for i := range n {
		u, err := p.ProcessFrame(testFrame(uint64(i)))
		if err != nil {
			t.Fatalf("ProcessFrame(%d) error = %v", i, err)
		}
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

var segmentationProbs = []float64{0, 0, 0, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1, 0.1, 0.1}

func TestAutomaticSegmentation(t *testing.T) {
	p := newTestProcessor(t, ModeAutomatic, segmentationProbs)
	got := feed(t, p, len(segmentationProbs))

	if len(got) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(got))
	}
	u := got[0]
	if u.Frames != 6 {
		t.Errorf("utterance spans %d frames, want 6 (speech onset through hang-over expiry)", u.Frames)
	}
	if u.Start != 3*testFrameDuration {
		t.Errorf("utterance starts at %v, want %v", u.Start, 3*testFrameDuration)
	}
	if u.End != 9*testFrameDuration {
		t.Errorf("utterance ends at %v, want %v", u.End, 9*testFrameDuration)
	}
	if u.Committed {
		t.Error("automatic finalization marked as committed")
	}
	if u.Seq != 0 {
		t.Errorf("utterance seq = %d, want 0", u.Seq)
	}
	if p.State() != StateListening {
		t.Errorf("state after finalization = %v, want listening", p.State())
	}
}

func TestManualModeRequiresCommit(t *testing.T) {
	p := newTestProcessor(t, ModeManual, segmentationProbs)
	got := feed(t, p, len(segmentationProbs))

	if len(got) != 0 {
		t.Fatalf("manual mode emitted %d utterances without commit, want 0", len(got))
	}

	u := p.Commit()
	if u == nil {
		t.Fatal("Commit() returned nil with buffered speech")
	}
	if !u.Committed {
		t.Error("Commit() result not marked committed")
	}
	// Manual mode keeps buffering through and past the hang-over window.
	if u.Frames != 8 {
		t.Errorf("committed utterance spans %d frames, want 8", u.Frames)
	}
	if again := p.Commit(); again != nil {
		t.Errorf("second Commit() = %+v, want nil (buffer already emitted)", again)
	}
}

func TestSpeechResumesDuringHangover(t *testing.T) {
	// Silence gap shorter than the hang-over must not split the utterance.
	probs := []float64{0.9, 0.1, 0.1, 0.9, 0.1, 0.1, 0.1}
	p := newTestProcessor(t, ModeAutomatic, probs)
	got := feed(t, p, len(probs))

	if len(got) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(got))
	}
	if got[0].Frames != 7 {
		t.Errorf("utterance spans %d frames, want 7 (gap bridged)", got[0].Frames)
	}
}

func TestIdleDropsFramesWithoutScoring(t *testing.T) {
	scorer := &mock.Scorer{Default: 0.9}
	p, err := NewProcessor(ProcessorConfig{Scorer: scorer, Onset: 0.5, HangoverFrames: 3})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	// No Resume: still idle.
	if u, err := p.ProcessFrame(testFrame(0)); err != nil || u != nil {
		t.Errorf("ProcessFrame in idle = (%v, %v), want (nil, nil)", u, err)
	}
	if scorer.Calls() != 0 {
		t.Errorf("scorer called %d times in idle, want 0", scorer.Calls())
	}
}

func TestPauseDiscardsBuffer(t *testing.T) {
	p := newTestProcessor(t, ModeManual, []float64{0.9, 0.9, 0.9})
	feed(t, p, 3)
	p.Pause()
	if u := p.Commit(); u != nil {
		t.Errorf("Commit() after Pause = %+v, want nil", u)
	}
	if p.State() != StateIdle {
		t.Errorf("state after Pause = %v, want idle", p.State())
	}
	p.Resume()
	if p.State() != StateListening {
		t.Errorf("state after Resume = %v, want listening", p.State())
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	p := newTestProcessor(t, ModeAutomatic, segmentationProbs)
	feed(t, p, len(segmentationProbs))
	p.Destroy()
	p.Destroy()
	if p.State() != StateIdle {
		t.Errorf("state after Destroy = %v, want idle", p.State())
	}
	// Utterance numbering restarts after Destroy.
	p.Resume()
	u, err := p.ProcessFrame(testFrame(0))
	if err != nil || u != nil {
		t.Fatalf("ProcessFrame after Destroy = (%v, %v), want (nil, nil) for silence", u, err)
	}
}

func TestScorerErrorPropagates(t *testing.T) {
	wantErr := errors.New("model not loaded")
	p, err := NewProcessor(ProcessorConfig{Scorer: &mock.Scorer{Err: wantErr}})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	p.Resume()
	if _, err := p.ProcessFrame(testFrame(0)); !errors.Is(err, wantErr) {
		t.Errorf("ProcessFrame error = %v, want wrapped %v", err, wantErr)
	}
}

func TestMaxUtteranceForceFinalizes(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{
		Scorer:             &mock.Scorer{Default: 0.9},
		Onset:              0.5,
		HangoverFrames:     3,
		MaxUtteranceFrames: 5,
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	p.Resume()
	got := feed(t, p, 12)
	if len(got) != 2 {
		t.Fatalf("emitted %d utterances, want 2 force-finalized at the frame bound", len(got))
	}
	for i, u := range got {
		if u.Frames != 5 {
			t.Errorf("utterance %d spans %d frames, want 5", i, u.Frames)
		}
	}
}

func TestEnergyScorer(t *testing.T) {
	s, err := NewEnergyScorer(0.1)
	if err != nil {
		t.Fatalf("NewEnergyScorer() error = %v", err)
	}

	silence := make([]float32, 100)
	if p, _ := s.Score(silence); p != 0 {
		t.Errorf("silence score = %v, want 0", p)
	}

	loud := make([]float32, 100)
	for i := range loud {
		loud[i] = 0.5
	}
	if p, _ := s.Score(loud); p != 1 {
		t.Errorf("loud score = %v, want clamped 1", p)
	}

	quiet := make([]float32, 100)
	for i := range quiet {
		quiet[i] = 0.05
	}
	if p, _ := s.Score(quiet); p <= 0.4 || p >= 0.6 {
		t.Errorf("mid-level score = %v, want ~0.5", p)
	}

	if _, err := NewEnergyScorer(0); err == nil {
		t.Error("NewEnergyScorer(0) expected error")
	}
}
