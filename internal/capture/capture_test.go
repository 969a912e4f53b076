package capture

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/cadewatson/overhear/pkg/audio"
)

func newTestFramer(t *testing.T) *audio.Framer {
	t.Helper()
	// 8 kHz mono, 100ms frames: 1600 bytes per frame.
	f, err := audio.NewFramer(audio.FramerConfig{
		SampleRate:    8_000,
		Channels:      1,
		FrameDuration: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewFramer: %v", err)
	}
	return f
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test subprocess uses /bin/sh")
	}
}

func TestStart_NoCommand(t *testing.T) {
	r, err := NewRunner(Config{Framer: newTestFramer(t)})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Start(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Start() error = %v, want ErrUnavailable", err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	r, err := NewRunner(Config{
		Framer:  newTestFramer(t),
		Command: []string{"overhear-no-such-binary"},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Start(); err == nil {
		t.Error("Start() with missing binary succeeded")
	}
	if r.Running() {
		t.Error("Running() = true after failed start")
	}
}

func TestStart_FramesUntilExit(t *testing.T) {
	requireShell(t)
	r, err := NewRunner(Config{
		Framer: newTestFramer(t),
		// 4800 zero bytes = exactly 3 frames at 1600 bytes each.
		Command: []string{"/bin/sh", "-c", "head -c 4800 /dev/zero"},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	frames, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []audio.AudioFrame
	for frame := range frames {
		got = append(got, frame)
	}
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for i, frame := range got {
		if frame.Seq != uint64(i) {
			t.Errorf("frames[%d].Seq = %d", i, frame.Seq)
		}
		if len(frame.Data) != 1600 {
			t.Errorf("frames[%d] len = %d, want 1600", i, len(frame.Data))
		}
		if frame.Channels != 1 {
			t.Errorf("frames[%d].Channels = %d", i, frame.Channels)
		}
	}

	// Channel closed means the process was reaped.
	if r.Running() {
		t.Error("Running() = true after exit")
	}
}

func TestStop_TerminatesSubprocess(t *testing.T) {
	requireShell(t)
	r, err := NewRunner(Config{
		Framer:      newTestFramer(t),
		Command:     []string{"/bin/sh", "-c", "sleep 30"},
		KillTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	frames, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Running() {
		t.Fatal("Running() = false after start")
	}

	start := time.Now()
	r.Stop()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if _, ok := <-frames; ok {
		t.Error("frame channel not closed after Stop")
	}
	if r.Running() {
		t.Error("Running() = true after Stop")
	}

	// Idempotent.
	r.Stop()
}

func TestStart_WhileRunning(t *testing.T) {
	requireShell(t)
	r, err := NewRunner(Config{
		Framer:  newTestFramer(t),
		Command: []string{"/bin/sh", "-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	frames, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		r.Stop()
		for range frames {
		}
	}()

	if _, err := r.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRestartAfterExit(t *testing.T) {
	requireShell(t)
	r, err := NewRunner(Config{
		Framer:  newTestFramer(t),
		Command: []string{"/bin/sh", "-c", "head -c 1600 /dev/zero"},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	for run := range 2 {
		frames, err := r.Start()
		if err != nil {
			t.Fatalf("Start(run %d): %v", run, err)
		}
		n := 0
		for frame := range frames {
			// Framer resets on Start, so numbering restarts each run.
			if frame.Seq != uint64(n) {
				t.Errorf("run %d frame seq = %d, want %d", run, frame.Seq, n)
			}
			n++
		}
		if n != 1 {
			t.Errorf("run %d frames = %d, want 1", run, n)
		}
	}
}
