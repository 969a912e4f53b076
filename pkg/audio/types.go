package audio

import "time"

// AudioFrame represents a single fixed-duration frame of audio flowing through
// the pipeline. Frames are the atomic unit of audio transport — produced by the
// Framer from raw capture bytes, scored by VAD, and accumulated into utterances.
type AudioFrame struct {
	// Data is little-endian 16-bit signed PCM. Sample rate and channel count
	// are determined by the pipeline config.
	Data []byte

	// SampleRate in Hz (e.g., 24000 for the capture subprocess).
	SampleRate int

	// Channels: always 1 after framing (stereo capture input is downmixed).
	Channels int

	// Seq is a monotonically increasing frame counter, starting at 0 for the
	// first frame emitted after a Framer reset.
	Seq uint64

	// Timestamp marks this frame's position relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame's PCM payload.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
