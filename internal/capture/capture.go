// Package capture runs the platform audio subprocess and turns its raw PCM
// stdout into [audio.AudioFrame] values.
//
// The subprocess is an external collaborator (typically ffmpeg or a bundled
// loopback helper) configured via audio.capture_command. A missing binary or
// abnormal exit degrades the assistant to text-only operation; it is never
// fatal to the host process.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cadewatson/overhear/pkg/audio"
)

var (
	// ErrUnavailable is returned by Start when no capture command is
	// configured. Callers should degrade to text-only operation.
	ErrUnavailable = errors.New("capture: no capture command configured")

	// ErrAlreadyRunning is returned by Start when the subprocess is live.
	ErrAlreadyRunning = errors.New("capture: already running")
)

// Config configures a [Runner].
type Config struct {
	// Command is the subprocess argv. Its stdout must emit raw interleaved
	// little-endian 16-bit PCM matching the Framer's configured format.
	Command []string

	// Framer cuts the raw stream into frames. The Runner owns it while
	// running; it is Reset on every Start.
	Framer *audio.Framer

	// KillTimeout is how long Stop waits after SIGTERM before SIGKILL.
	// Defaults to 2 seconds.
	KillTimeout time.Duration

	// FrameBuffer is the capacity of the emitted frame channel. Defaults
	// to 16.
	FrameBuffer int
}

// Runner manages one audio subprocess at a time. Safe for concurrent use.
type Runner struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	frames  chan audio.AudioFrame
	done    chan struct{}
	running bool
}

// NewRunner validates cfg and returns a stopped Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Framer == nil {
		return nil, errors.New("capture: framer must not be nil")
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = 2 * time.Second
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 16
	}
	return &Runner{cfg: cfg}, nil
}

// Start launches the subprocess and returns a channel of framed audio. The
// channel is closed when the subprocess exits or Stop is called; consumers
// must keep draining it until then or the read loop stalls. Returns
// [ErrUnavailable] when no command is configured and [ErrAlreadyRunning]
// when a subprocess is already live.
func (r *Runner) Start() (<-chan audio.AudioFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil, ErrAlreadyRunning
	}
	if len(r.cfg.Command) == 0 {
		return nil, ErrUnavailable
	}

	cmd := exec.Command(r.cfg.Command[0], r.cfg.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %q: %w", r.cfg.Command[0], err)
	}

	r.cfg.Framer.Reset()
	r.cmd = cmd
	r.frames = make(chan audio.AudioFrame, r.cfg.FrameBuffer)
	r.done = make(chan struct{})
	r.running = true

	slog.Info("capture: subprocess started", "command", r.cfg.Command[0], "pid", cmd.Process.Pid)

	go logStderr(stderr)
	go r.readLoop(stdout)
	return r.frames, nil
}

// readLoop pumps subprocess stdout through the framer until EOF, then reaps
// the process and closes the frame channel.
func (r *Runner) readLoop(stdout io.Reader) {
	reader := bufio.NewReaderSize(stdout, 64*1024)
	tmp := make([]byte, 16*1024)

	for {
		n, err := reader.Read(tmp)
		if n > 0 {
			for _, frame := range r.cfg.Framer.Push(tmp[:n]) {
				r.frames <- frame
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("capture: read failed", "error", err)
			}
			break
		}
	}

	err := r.cmd.Wait()

	r.mu.Lock()
	r.running = false
	close(r.frames)
	close(r.done)
	r.mu.Unlock()

	if err != nil {
		slog.Warn("capture: subprocess exited abnormally", "error", err)
	} else {
		slog.Info("capture: subprocess exited")
	}
}

// Stop terminates the subprocess and waits for the read loop to finish. The
// process gets KillTimeout after SIGTERM before being killed outright. Stop
// is a no-op when nothing is running.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cmd := r.cmd
	done := r.done
	r.mu.Unlock()

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(r.cfg.KillTimeout):
		slog.Warn("capture: subprocess ignored interrupt, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
}

// Running reports whether the subprocess is live.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// DroppedBytes returns the raw bytes discarded by backlog trimming since the
// last Start.
func (r *Runner) DroppedBytes() uint64 {
	return r.cfg.Framer.DroppedBytes()
}

// logStderr forwards subprocess diagnostics at debug level.
func logStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		slog.Debug("capture: subprocess stderr", "line", sc.Text())
	}
}
