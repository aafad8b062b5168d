package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VisualizerChanged is true when any tuning value differs. The new
	// values apply on the next attach.
	VisualizerChanged bool
	Visualizer        VisualizerDiff

	// ParticipantChanged is true when audio.participant differs.
	ParticipantChanged bool
	NewParticipant     string

	// KeywordsChanged is true when transcription.keywords differs.
	KeywordsChanged bool

	// RestartRequired lists the YAML keys that changed but only take effect
	// after a restart, such as the bot token or the listen address.
	RestartRequired []string
}

// VisualizerDiff flags the individual visualiser fields that changed.
type VisualizerDiff struct {
	Mode         bool
	Bars         bool
	MinAmplitude bool
	Reference    bool // max_volume or max_energy
	FPS          bool
}

// Any reports whether at least one field changed.
func (v VisualizerDiff) Any() bool {
	return v.Mode || v.Bars || v.MinAmplitude || v.Reference || v.FPS
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VisualizerChanged && !d.ParticipantChanged && !d.KeywordsChanged
}

// Changed lists the YAML keys of the hot-reloadable fields that differ, in
// file order.
func (d ConfigDiff) Changed() []string {
	var keys []string
	if d.LogLevelChanged {
		keys = append(keys, "server.log_level")
	}
	if d.ParticipantChanged {
		keys = append(keys, "audio.participant")
	}
	v := d.Visualizer
	for _, f := range []struct {
		set bool
		key string
	}{
		{v.Mode, "visualizer.mode"},
		{v.Bars, "visualizer.bars"},
		{v.MinAmplitude, "visualizer.min_amplitude"},
		{v.Reference, "visualizer.max_volume/max_energy"},
		{v.FPS, "visualizer.fps"},
	} {
		if f.set {
			keys = append(keys, f.key)
		}
	}
	if d.KeywordsChanged {
		keys = append(keys, "transcription.keywords")
	}
	return keys
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.Visualizer = diffVisualizer(old.Visualizer, new.Visualizer)
	d.VisualizerChanged = d.Visualizer.Any()

	if old.Audio.Participant != new.Audio.Participant {
		d.ParticipantChanged = true
		d.NewParticipant = new.Audio.Participant
	}

	d.KeywordsChanged = !slices.Equal(old.Transcription.Keywords, new.Transcription.Keywords)
	d.RestartRequired = restartOnly(old, new)

	return d
}

// restartOnly returns the keys of fields that are read once at startup.
func restartOnly(old, new *Config) []string {
	var keys []string
	add := func(changed bool, key string) {
		if changed {
			keys = append(keys, key)
		}
	}
	add(old.Server.ListenAddr != new.Server.ListenAddr, "server.listen_addr")
	add(!reflect.DeepEqual(old.Server.TLS, new.Server.TLS), "server.tls")
	add(old.Audio.Name != new.Audio.Name, "audio.name")
	add(old.Audio.Token != new.Audio.Token, "audio.token")
	add(old.Audio.GuildID != new.Audio.GuildID, "audio.guild_id")
	add(old.Audio.ChannelID != new.Audio.ChannelID, "audio.channel_id")
	add(old.Audio.ControlRoleID != new.Audio.ControlRoleID, "audio.control_role_id")
	add(old.Audio.Operator != new.Audio.Operator, "audio.operator")
	add(!reflect.DeepEqual(old.Audio.Options, new.Audio.Options), "audio.options")

	ot, nt := old.Transcription, new.Transcription
	ot.Keywords, nt.Keywords = nil, nil
	add(!reflect.DeepEqual(ot, nt), "transcription")
	add(old.Telemetry != new.Telemetry, "telemetry")
	return keys
}

func diffVisualizer(old, new VisualizerConfig) VisualizerDiff {
	return VisualizerDiff{
		Mode:         old.Mode != new.Mode,
		Bars:         old.Bars != new.Bars,
		MinAmplitude: old.MinAmplitude != new.MinAmplitude,
		Reference:    old.MaxVolume != new.MaxVolume || old.MaxEnergy != new.MaxEnergy,
		FPS:          old.FPS != new.FPS,
	}
}
