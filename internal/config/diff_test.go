package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voxbars/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Audio:         config.AudioConfig{Token: "t", GuildID: "g", Participant: "1"},
		Transcription: config.TranscriptionConfig{Keywords: []string{"a", "b"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.VisualizerChanged {
		t.Error("expected VisualizerChanged=false")
	}
}

func TestDiff_Visualizer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		edit  func(*config.VisualizerConfig)
		check func(config.VisualizerDiff) bool
	}{
		{"mode", func(v *config.VisualizerConfig) { v.Mode = config.ModeSpectrum }, func(d config.VisualizerDiff) bool { return d.Mode }},
		{"bars", func(v *config.VisualizerConfig) { v.Bars = 21 }, func(d config.VisualizerDiff) bool { return d.Bars }},
		{"min amplitude", func(v *config.VisualizerConfig) { v.MinAmplitude = 0.2 }, func(d config.VisualizerDiff) bool { return d.MinAmplitude }},
		{"max volume", func(v *config.VisualizerConfig) { v.MaxVolume = 1000 }, func(d config.VisualizerDiff) bool { return d.Reference }},
		{"max energy", func(v *config.VisualizerConfig) { v.MaxEnergy = 1000 }, func(d config.VisualizerDiff) bool { return d.Reference }},
		{"fps", func(v *config.VisualizerConfig) { v.FPS = 5 }, func(d config.VisualizerDiff) bool { return d.FPS }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.edit(&new.Visualizer)
			d := config.Diff(old, new)
			if !d.VisualizerChanged {
				t.Fatal("expected VisualizerChanged=true")
			}
			if !tt.check(d.Visualizer) {
				t.Errorf("field flag not set: %+v", d.Visualizer)
			}
			if d.Empty() {
				t.Error("diff reported empty")
			}
		})
	}
}

func TestDiff_ParticipantChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Audio.Participant = "2"
	d := config.Diff(old, new)
	if !d.ParticipantChanged || d.NewParticipant != "2" {
		t.Errorf("got ParticipantChanged=%v NewParticipant=%q", d.ParticipantChanged, d.NewParticipant)
	}
}

func TestDiff_KeywordsChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Transcription.Keywords = []string{"b", "a"}
	if d := config.Diff(old, new); !d.KeywordsChanged {
		t.Error("reordered keywords should count as a change")
	}
}

func TestDiff_Changed(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug
	new.Visualizer.FPS = 5
	new.Transcription.Keywords = []string{"c"}

	want := []string{"server.log_level", "visualizer.fps", "transcription.keywords"}
	if got := config.Diff(old, new).Changed(); !slices.Equal(got, want) {
		t.Errorf("Changed() = %v, want %v", got, want)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		edit func(*config.Config)
		want []string
	}{
		{"none", func(*config.Config) {}, nil},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, []string{"server.listen_addr"}},
		{"token and guild", func(c *config.Config) {
			c.Audio.Token = "x"
			c.Audio.GuildID = "y"
		}, []string{"audio.token", "audio.guild_id"}},
		{"stt provider", func(c *config.Config) { c.Transcription.Name = "whisper" }, []string{"transcription"}},
		{"keywords are hot", func(c *config.Config) { c.Transcription.Keywords = nil }, nil},
		{"telemetry", func(c *config.Config) { c.Telemetry.ServiceName = "other" }, []string{"telemetry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.edit(new)
			d := config.Diff(old, new)
			if !slices.Equal(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.want)
			}
		})
	}
}
