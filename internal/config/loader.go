package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio": {"discord"},
	"stt":   {"deepgram", "whisper"},
}

// localSTT names speech-to-text providers that run in-process. They load a
// model from options.model_path instead of authenticating with an API key.
var localSTT = map[string]bool{"whisper": true}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider names
	validateProviderName("audio", cfg.Audio.Name)
	validateProviderName("stt", cfg.Transcription.Name)

	if cfg.Audio.Name == "discord" {
		if cfg.Audio.Token == "" {
			errs = append(errs, errors.New("audio.token is required for the discord platform"))
		}
		if cfg.Audio.GuildID == "" {
			errs = append(errs, errors.New("audio.guild_id is required for the discord platform"))
		}
	}
	if cfg.Audio.ChannelID == "" {
		slog.Warn("audio.channel_id is empty; waiting for /viz follow before showing any bars")
	}

	// Visualizer
	v := cfg.Visualizer
	if v.Mode != "" && !v.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("visualizer.mode %q is invalid; valid values: volume, spectrum", v.Mode))
	}
	if v.Bars < 1 || v.Bars%2 == 0 {
		errs = append(errs, fmt.Errorf("visualizer.bars %d must be a positive odd number", v.Bars))
	}
	if v.MinAmplitude < 0 || v.MinAmplitude >= 1 {
		errs = append(errs, fmt.Errorf("visualizer.min_amplitude %.3f is out of range [0, 1)", v.MinAmplitude))
	}
	if v.MaxVolume < 0 {
		errs = append(errs, fmt.Errorf("visualizer.max_volume %.1f must be positive", v.MaxVolume))
	}
	if v.MaxEnergy < 0 {
		errs = append(errs, fmt.Errorf("visualizer.max_energy %.1f must be positive", v.MaxEnergy))
	}
	if v.FPS < 0 || v.FPS > 120 {
		errs = append(errs, fmt.Errorf("visualizer.fps %d is out of range [1, 120]", v.FPS))
	}
	if v.Mode == ModeSpectrum && v.Bars != 0 && v.Bars != DefaultBars {
		slog.Warn("visualizer.bars is ignored in spectrum mode; the band layout is fixed",
			"bars", v.Bars,
		)
	}

	// Transcription
	if cfg.Transcription.Enabled() {
		if err := validateSTTCredentials("transcription", cfg.Transcription); err != nil {
			errs = append(errs, err)
		}
	}
	for i, fb := range cfg.Transcription.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
		if err := validateSTTCredentials(fmt.Sprintf("transcription.fallbacks[%d]", i), fb); err != nil {
			errs = append(errs, err)
		}
	}
	if !cfg.Transcription.Enabled() && len(cfg.Transcription.Fallbacks) > 0 {
		errs = append(errs, errors.New("transcription.fallbacks requires transcription.name"))
	}
	if !cfg.Transcription.Enabled() && len(cfg.Transcription.Keywords) > 0 {
		slog.Warn("transcription.keywords set but no transcription provider is configured")
	}

	return errors.Join(errs...)
}

// validateSTTCredentials checks that a hosted provider has an API key and a
// local one has a model file to load.
func validateSTTCredentials(path string, tc TranscriptionConfig) error {
	if localSTT[tc.Name] {
		if mp, _ := tc.Options["model_path"].(string); mp == "" {
			return fmt.Errorf("%s.options.model_path is required when name is %q", path, tc.Name)
		}
		return nil
	}
	if tc.APIKey == "" {
		return fmt.Errorf("%s.api_key is required when name is %q", path, tc.Name)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
