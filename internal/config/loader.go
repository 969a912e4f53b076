package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Missing fields keep the defaults from [Default]. It is a
// convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ControlAddr == "" {
		errs = append(errs, fmt.Errorf("server.control_addr must not be empty"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms must be positive, got %d", cfg.Audio.FrameDurationMS))
	}

	if cfg.VAD.Onset <= 0 || cfg.VAD.Onset > 1 {
		errs = append(errs, fmt.Errorf("vad.onset %v outside (0, 1]", cfg.VAD.Onset))
	}
	if cfg.VAD.Offset < 0 || cfg.VAD.Offset > cfg.VAD.Onset {
		errs = append(errs, fmt.Errorf("vad.offset %v must be in [0, onset]", cfg.VAD.Offset))
	}
	if cfg.VAD.Mode != "" && !cfg.VAD.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("vad.mode %q is invalid; valid values: automatic, manual", cfg.VAD.Mode))
	}
	if cfg.VAD.HangoverFrames(cfg.Audio.FrameDuration()) <= 0 && cfg.Audio.FrameDurationMS > 0 {
		errs = append(errs, fmt.Errorf("vad.hangover_ms %d is shorter than one %dms frame", cfg.VAD.HangoverMS, cfg.Audio.FrameDurationMS))
	}

	if cfg.Dispatch.FlushDelayMS <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.flush_delay_ms must be positive, got %d", cfg.Dispatch.FlushDelayMS))
	}
	if cfg.Dispatch.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("dispatch.duplicate_threshold %v must not exceed 1", cfg.Dispatch.DuplicateThreshold))
	}

	for i, mp := range cfg.Backends.ModelPrefixes {
		if mp.Prefix == "" {
			errs = append(errs, fmt.Errorf("backends.model_prefixes[%d].prefix must not be empty", i))
		}
		if mp.Backend != "gemini" && mp.Backend != "groq" {
			errs = append(errs, fmt.Errorf("backends.model_prefixes[%d].backend %q is invalid; valid values: gemini, groq", i, mp.Backend))
		}
	}

	if cfg.Session.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("session.max_turns must be positive, got %d", cfg.Session.MaxTurns))
	}
	if cfg.Session.MaxImageTurns <= 0 {
		errs = append(errs, fmt.Errorf("session.max_image_turns must be positive, got %d", cfg.Session.MaxImageTurns))
	}

	if cfg.Generation.Temperature < 0 || cfg.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature %v outside [0, 2]", cfg.Generation.Temperature))
	}
	if cfg.Generation.TopP < 0 || cfg.Generation.TopP > 1 {
		errs = append(errs, fmt.Errorf("generation.top_p %v outside [0, 1]", cfg.Generation.TopP))
	}
	for i, r := range cfg.Generation.CapRules {
		if r.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("generation.cap_rules[%d].max_tokens must be positive, got %d", i, r.MaxTokens))
		}
	}

	return errors.Join(errs...)
}

// KindRules builds the model routing table: configured prefixes first, then
// the built-in defaults.
func (b BackendsConfig) KindRules() []llm.KindRule {
	if len(b.ModelPrefixes) == 0 {
		return nil
	}
	rules := make([]llm.KindRule, 0, len(b.ModelPrefixes)+len(llm.DefaultKindRules))
	for _, mp := range b.ModelPrefixes {
		kind := llm.KindGemini
		if mp.Backend == "groq" {
			kind = llm.KindGroq
		}
		rules = append(rules, llm.KindRule{Prefix: mp.Prefix, Kind: kind})
	}
	return append(rules, llm.DefaultKindRules...)
}
