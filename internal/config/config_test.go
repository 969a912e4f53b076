package config

import (
	"strings"
	"testing"
	"time"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty) error = %v", err)
	}
	if cfg.Audio.SampleRate != 24_000 || cfg.Audio.Channels != 2 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Session.MaxTurns != 8 || cfg.Session.MaxImageTurns != 3 {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
	if cfg.VAD.Mode != VADAutomatic {
		t.Errorf("vad.mode default = %q", cfg.VAD.Mode)
	}
	if cfg.Server.ControlAddr == "" {
		t.Error("server.control_addr default empty")
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	const doc = `
server:
  control_addr: "127.0.0.1:9000"
  log_level: debug
audio:
  sample_rate: 48000
  channels: 1
vad:
  mode: manual
  onset: 0.6
  offset: 0.4
backends:
  groq_api_key: "qk"
  default_model: "llama-3.3-70b-versatile"
  model_prefixes:
    - prefix: "custom-"
      backend: groq
generation:
  max_output_tokens: 1024
archive:
  postgres_dsn: "postgres://localhost/overhear"
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Audio.SampleRate != 48_000 || cfg.Audio.Channels != 1 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	// Unset fields keep defaults.
	if cfg.Audio.FrameDurationMS != 100 {
		t.Errorf("frame_duration_ms = %d, want default 100", cfg.Audio.FrameDurationMS)
	}
	if cfg.VAD.Mode != VADManual {
		t.Errorf("vad.mode = %q", cfg.VAD.Mode)
	}
	if cfg.Archive.PostgresDSN == "" {
		t.Error("archive.postgres_dsn not loaded")
	}

	rules := cfg.Backends.KindRules()
	if llm.ResolveKind("custom-model-7b", rules) != llm.KindGroq {
		t.Error("configured model prefix not routed to groq")
	}
	if llm.ResolveKind("gemini-2.5-flash", rules) != llm.KindGemini {
		t.Error("default routing lost after configuring prefixes")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("serverr:\n  control_addr: x\n"))
	if err == nil {
		t.Error("unknown top-level field accepted")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Server.LogLevel = "verbose"
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("Validate() error = %v, want log_level failure", err)
	}
}

func TestValidate_InvalidAudio(t *testing.T) {
	cfg := Default()
	cfg.Audio.SampleRate = 0
	cfg.Audio.Channels = 5
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() accepted invalid audio config")
	}
	for _, want := range []string{"sample_rate", "channels"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_VADThresholds(t *testing.T) {
	cfg := Default()
	cfg.VAD.Onset = 0.3
	cfg.VAD.Offset = 0.6
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "vad.offset") {
		t.Errorf("Validate() error = %v, want offset > onset failure", err)
	}
}

func TestValidate_ModelPrefixBackend(t *testing.T) {
	cfg := Default()
	cfg.Backends.ModelPrefixes = []ModelPrefix{{Prefix: "x-", Backend: "anthropic"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "backend") {
		t.Errorf("Validate() error = %v, want backend failure", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	a := AudioConfig{FrameDurationMS: 100, MaxBacklogMS: 1000}
	if a.FrameDuration() != 100*time.Millisecond || a.MaxBacklog() != time.Second {
		t.Errorf("duration helpers = (%v, %v)", a.FrameDuration(), a.MaxBacklog())
	}
	v := VADConfig{HangoverMS: 900, MaxUtteranceS: 60}
	if got := v.HangoverFrames(100 * time.Millisecond); got != 9 {
		t.Errorf("HangoverFrames = %d, want 9", got)
	}
	if got := v.MaxUtteranceFrames(100 * time.Millisecond); got != 600 {
		t.Errorf("MaxUtteranceFrames = %d, want 600", got)
	}
}
