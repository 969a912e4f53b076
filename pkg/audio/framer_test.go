package audio

import (
	"bytes"
	"math/rand"
	"testing"
	"time"
)

func monoFramer(t *testing.T) *Framer {
	t.Helper()
	f, err := NewFramer(FramerConfig{
		SampleRate:    24000,
		Channels:      1,
		FrameDuration: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewFramer() error = %v", err)
	}
	return f
}

func TestNewFramerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  FramerConfig
	}{
		{"zero sample rate", FramerConfig{Channels: 1, FrameDuration: 100 * time.Millisecond}},
		{"bad channels", FramerConfig{SampleRate: 24000, Channels: 3, FrameDuration: 100 * time.Millisecond}},
		{"zero frame duration", FramerConfig{SampleRate: 24000, Channels: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFramer(tc.cfg); err == nil {
				t.Errorf("NewFramer(%+v) expected error, got nil", tc.cfg)
			}
		})
	}
}

// Frames must depend only on the bytes pushed, not on how the input was
// chunked across Push calls.
func TestFramerChunkingInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input := make([]byte, 24000*2) // 1s of mono PCM
	rng.Read(input)

	whole := monoFramer(t)
	var wantFrames []AudioFrame
	wantFrames = append(wantFrames, whole.Push(input)...)

	chunked := monoFramer(t)
	var gotFrames []AudioFrame
	for off := 0; off < len(input); {
		n := 1 + rng.Intn(977)
		if off+n > len(input) {
			n = len(input) - off
		}
		gotFrames = append(gotFrames, chunked.Push(input[off:off+n])...)
		off += n
	}

	if len(gotFrames) != len(wantFrames) {
		t.Fatalf("chunked push emitted %d frames, single push emitted %d", len(gotFrames), len(wantFrames))
	}
	for i := range wantFrames {
		if !bytes.Equal(gotFrames[i].Data, wantFrames[i].Data) {
			t.Errorf("frame %d data differs between chunked and single push", i)
		}
		if gotFrames[i].Seq != wantFrames[i].Seq {
			t.Errorf("frame %d seq = %d, want %d", i, gotFrames[i].Seq, wantFrames[i].Seq)
		}
	}
}

func TestFramerStereoDownmix(t *testing.T) {
	f, err := NewFramer(FramerConfig{
		SampleRate:    8000,
		Channels:      2,
		FrameDuration: time.Millisecond, // 8 samples per frame
	})
	if err != nil {
		t.Fatalf("NewFramer() error = %v", err)
	}

	// 8 stereo pairs: left = i, right = 1000+i.
	in := make([]byte, 0, 32)
	for i := range 8 {
		l, r := int16(i), int16(1000+i)
		in = append(in, byte(l), byte(l>>8), byte(r), byte(r>>8))
	}

	frames := f.Push(in)
	if len(frames) != 1 {
		t.Fatalf("Push() emitted %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.Channels != 1 {
		t.Errorf("frame channels = %d, want 1", got.Channels)
	}
	for i := range 8 {
		s := int16(got.Data[i*2]) | int16(got.Data[i*2+1])<<8
		if s != int16(i) {
			t.Errorf("sample %d = %d, want left-channel value %d", i, s, i)
		}
	}
}

// Stereo pairs split across Push boundaries must still downmix correctly.
func TestFramerStereoChunkingInvariance(t *testing.T) {
	mk := func() *Framer {
		f, err := NewFramer(FramerConfig{
			SampleRate:    8000,
			Channels:      2,
			FrameDuration: time.Millisecond,
		})
		if err != nil {
			t.Fatalf("NewFramer() error = %v", err)
		}
		return f
	}

	rng := rand.New(rand.NewSource(11))
	input := make([]byte, 8000*4/10)
	rng.Read(input)

	var want, got []AudioFrame
	want = mk().Push(input)

	odd := mk()
	// Push in chunks of 3 bytes so every stereo pair straddles a boundary.
	for off := 0; off < len(input); off += 3 {
		end := min(off+3, len(input))
		got = append(got, odd.Push(input[off:end])...)
	}

	if len(got) != len(want) {
		t.Fatalf("odd-chunked push emitted %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i].Data, want[i].Data) {
			t.Errorf("frame %d data differs under 3-byte chunking", i)
		}
	}
}

func TestFramerBacklogTrimsOldest(t *testing.T) {
	f, err := NewFramer(FramerConfig{
		SampleRate:    8000,
		Channels:      1,
		FrameDuration: time.Second, // frame larger than backlog, nothing emits
		MaxBacklog:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewFramer() error = %v", err)
	}

	in := make([]byte, 8000*2/10) // 100ms, 10x the backlog cap
	for i := range in {
		in[i] = byte(i)
	}
	frames := f.Push(in)
	if len(frames) != 0 {
		t.Fatalf("Push() emitted %d frames, want 0", len(frames))
	}
	if f.Pending() != 160 { // 10ms at 8kHz mono
		t.Errorf("Pending() = %d, want 160", f.Pending())
	}
	if f.DroppedBytes() == 0 {
		t.Error("DroppedBytes() = 0, want > 0 after overflow")
	}
}

func TestFramerReset(t *testing.T) {
	f := monoFramer(t)
	f.Push(make([]byte, 100))
	f.Reset()
	if f.Pending() != 0 {
		t.Errorf("Pending() after Reset = %d, want 0", f.Pending())
	}
	frames := f.Push(make([]byte, 24000*2/10))
	if len(frames) != 1 || frames[0].Seq != 0 {
		t.Errorf("first frame after Reset: got %d frames, seq %v; want 1 frame with seq 0", len(frames), frames)
	}
}
