package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// FramerConfig configures a [Framer].
type FramerConfig struct {
	// SampleRate is the input sample rate in Hz (e.g., 24000).
	SampleRate int

	// Channels is the input channel count. 1 passes samples through unchanged;
	// 2 downmixes each interleaved stereo pair to mono by keeping the left
	// sample (see [DownmixLeft]).
	Channels int

	// FrameDuration is the duration of each emitted frame (e.g., 100ms).
	FrameDuration time.Duration

	// MaxBacklog caps the internal accumulation buffer. When unframed input
	// exceeds this duration the oldest excess is dropped — the pipeline
	// prioritises latency over completeness. Defaults to one second when zero.
	MaxBacklog time.Duration
}

// Framer accumulates raw PCM bytes and cuts them into fixed-size mono
// [AudioFrame] values. The sequence of emitted frames depends only on the
// bytes pushed, not on how they were chunked across Push calls.
//
// Framer is not safe for concurrent use; it belongs to the single goroutine
// reading the capture stream.
type Framer struct {
	cfg        FramerConfig
	rawFrame   int // bytes of raw input per emitted frame
	maxBacklog int // raw buffer cap in bytes

	buf []byte
	seq uint64
	pos time.Duration

	droppedBytes uint64
}

// NewFramer validates cfg and returns a ready Framer.
func NewFramer(cfg FramerConfig) (*Framer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: framer sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("audio: framer channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.FrameDuration <= 0 {
		return nil, fmt.Errorf("audio: framer frame duration must be positive, got %v", cfg.FrameDuration)
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = time.Second
	}

	samplesPerFrame := int(int64(cfg.SampleRate) * int64(cfg.FrameDuration) / int64(time.Second))
	if samplesPerFrame <= 0 {
		return nil, fmt.Errorf("audio: frame duration %v too short for %d Hz", cfg.FrameDuration, cfg.SampleRate)
	}

	rawFrame := samplesPerFrame * 2 * cfg.Channels
	maxBacklog := int(int64(cfg.SampleRate)*int64(cfg.MaxBacklog)/int64(time.Second)) * 2 * cfg.Channels

	return &Framer{
		cfg:        cfg,
		rawFrame:   rawFrame,
		maxBacklog: maxBacklog,
		buf:        make([]byte, 0, rawFrame*4),
	}, nil
}

// Push appends raw capture bytes and returns every complete frame now
// available, in order. It never blocks and never fails; partial trailing
// bytes stay buffered for the next call.
func (f *Framer) Push(p []byte) []AudioFrame {
	f.buf = append(f.buf, p...)

	// Overflow: drop the oldest excess, keeping sample alignment.
	if len(f.buf) > f.maxBacklog {
		drop := len(f.buf) - f.maxBacklog
		align := 2 * f.cfg.Channels
		drop = (drop + align - 1) / align * align
		if drop > len(f.buf) {
			drop = len(f.buf)
		}
		f.buf = f.buf[:copy(f.buf, f.buf[drop:])]
		f.droppedBytes += uint64(drop)
		slog.Debug("audio: framer backlog exceeded, dropping oldest input",
			"dropped_bytes", drop,
			"total_dropped", f.droppedBytes,
		)
	}

	var frames []AudioFrame
	for len(f.buf) >= f.rawFrame {
		raw := f.buf[:f.rawFrame]
		var data []byte
		if f.cfg.Channels == 2 {
			data = DownmixLeft(raw)
		} else {
			data = make([]byte, len(raw))
			copy(data, raw)
		}

		frames = append(frames, AudioFrame{
			Data:       data,
			SampleRate: f.cfg.SampleRate,
			Channels:   1,
			Seq:        f.seq,
			Timestamp:  f.pos,
		})
		f.seq++
		f.pos += f.cfg.FrameDuration
		f.buf = f.buf[:copy(f.buf, f.buf[f.rawFrame:])]
	}
	return frames
}

// Pending returns the number of buffered bytes not yet emitted as a frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// DroppedBytes returns the total raw bytes discarded due to backlog overflow.
func (f *Framer) DroppedBytes() uint64 {
	return f.droppedBytes
}

// Reset discards all buffered input and restarts frame numbering.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.seq = 0
	f.pos = 0
	f.droppedBytes = 0
}
