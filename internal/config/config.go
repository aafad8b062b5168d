// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the voxbars server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the voxbars server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching slog level. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode selects how the bar vector is derived from audio.
type Mode string

const (
	// ModeVolume drives the bars from the RMS volume of each buffer.
	ModeVolume Mode = "volume"

	// ModeSpectrum drives the bars from FFT band energies.
	ModeSpectrum Mode = "spectrum"
)

// IsValid reports whether m is a recognised visualiser mode.
func (m Mode) IsValid() bool {
	return m == ModeVolume || m == ModeSpectrum
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = ":8080"
	DefaultAudioName    = "discord"
	DefaultBars         = 15
	DefaultMinAmplitude = 0.1
	DefaultMaxVolume    = 25000
	DefaultMaxEnergy    = 25000
	DefaultFPS          = 30
	DefaultServiceName  = "voxbars"
)

// Config is the root configuration structure for voxbars.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Visualizer    VisualizerConfig    `yaml:"visualizer"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig selects the voice platform and the channel to listen to.
// Name is looked up in the [Registry].
type AudioConfig struct {
	// Name selects the registered platform implementation (e.g., "discord").
	Name string `yaml:"name"`

	// Token is the bot token used to authenticate with the platform.
	Token string `yaml:"token"`

	// GuildID is the Discord server to operate in.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the voice channel joined at startup. When empty the bot
	// waits for a /viz follow command.
	ChannelID string `yaml:"channel_id"`

	// Participant is the user ID whose audio drives the bars. When empty the
	// first participant that speaks is followed.
	Participant string `yaml:"participant"`

	// ControlRoleID restricts /viz follow, stop and dashboard to members
	// holding this role. Empty allows everyone.
	ControlRoleID string `yaml:"control_role_id"`

	// Operator is the user whose spoken "bars ..." commands are obeyed.
	// Defaults to whoever started the session.
	Operator string `yaml:"operator"`

	// Options holds platform-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VisualizerConfig tunes the bar pipeline. Changes are hot-reloaded and take
// effect on the next attach.
type VisualizerConfig struct {
	// Mode is "volume" or "spectrum".
	Mode Mode `yaml:"mode"`

	// Bars is the number of bars in volume mode. Must be odd.
	Bars int `yaml:"bars"`

	// MinAmplitude is the floor value of every bar, in (0, 1). Zero selects
	// the default.
	MinAmplitude float64 `yaml:"min_amplitude"`

	// MaxVolume is the RMS value that maps to a full bar in volume mode.
	MaxVolume float64 `yaml:"max_volume"`

	// MaxEnergy is the band energy that maps to a full bar in spectrum mode.
	MaxEnergy float64 `yaml:"max_energy"`

	// FPS is the push rate of the websocket stream and terminal renderer.
	FPS int `yaml:"fps"`
}

// FrameInterval returns the renderer tick derived from FPS.
func (v VisualizerConfig) FrameInterval() time.Duration {
	if v.FPS <= 0 {
		return time.Second / DefaultFPS
	}
	return time.Second / time.Duration(v.FPS)
}

// TranscriptionConfig selects the STT provider for the transcript panel.
// Transcription is disabled when Name is empty.
type TranscriptionConfig struct {
	// Name selects the registered STT implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language.
	Language string `yaml:"language"`

	// Keywords are boosted at recognition time and used to correct misheard
	// names in finished segments.
	Keywords []string `yaml:"keywords"`

	// Options holds provider-specific configuration values.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this backend cannot open a session.
	// Their own Keywords and Fallbacks are ignored.
	Fallbacks []TranscriptionConfig `yaml:"fallbacks"`
}

// Enabled reports whether a transcription provider is configured.
func (t TranscriptionConfig) Enabled() bool {
	return t.Name != ""
}

// TelemetryConfig configures OpenTelemetry resource attributes.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Defaults to "voxbars".
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills zero-valued fields with their defaults. It does not
// touch fields that were set explicitly.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Name == "" {
		cfg.Audio.Name = DefaultAudioName
	}
	v := &cfg.Visualizer
	if v.Mode == "" {
		v.Mode = ModeVolume
	}
	if v.Bars == 0 {
		v.Bars = DefaultBars
	}
	if v.MinAmplitude == 0 {
		v.MinAmplitude = DefaultMinAmplitude
	}
	if v.MaxVolume == 0 {
		v.MaxVolume = DefaultMaxVolume
	}
	if v.MaxEnergy == 0 {
		v.MaxEnergy = DefaultMaxEnergy
	}
	if v.FPS == 0 {
		v.FPS = DefaultFPS
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
