// Command voxbars shows live audio bars for one participant of a Discord
// voice channel, served over HTTP and optionally drawn in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxbars/internal/app"
	"github.com/MrWong99/voxbars/internal/config"
	discordbot "github.com/MrWong99/voxbars/internal/discord"
	"github.com/MrWong99/voxbars/internal/discord/commands"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/internal/resilience"
	"github.com/MrWong99/voxbars/internal/tui"
	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
	"github.com/MrWong99/voxbars/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxbars/pkg/provider/stt/whisper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	withTUI := flag.Bool("tui", false, "draw the bars in this terminal")
	logPath := flag.String("log", "", "write logs to this file instead of stderr")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbars: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbars: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logOut, closeLog, err := logOutput(*logPath, *withTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxbars: %v\n", err)
		return 1
	}
	defer closeLog()
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level})))

	slog.Info("voxbars starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:         cfg.Audio.Token,
		GuildID:       cfg.Audio.GuildID,
		ControlRoleID: cfg.Audio.ControlRoleID,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	slog.Info("discord bot connected", "guild_id", cfg.Audio.GuildID)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, bot)

	providers, providerClosers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		_ = bot.Close()
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	if !*withTUI {
		printStartupSummary(cfg)
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithLogLevel(&level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = bot.Close()
		return 1
	}

	// ── Slash commands ────────────────────────────────────────────────────────
	viz := commands.NewVizCommands(ctx, commands.Config{
		Controller:  application.Sessions(),
		Permissions: bot.Permissions(),
		Locate:      bot.VoiceChannelOf,
		Stats:       application.Stats(),
		Sender:      bot.Session(),
	})
	viz.Register(bot.Router())
	application.OnShutdown(func() error {
		viz.StopDashboard()
		return nil
	})
	for _, c := range providerClosers {
		application.OnShutdown(c.Close)
	}

	go func() {
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("discord bot error", "err", err)
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if *withTUI {
		go func() {
			defer cancelRun()
			if err := tui.Run(runCtx, application.TUIConfig()); err != nil {
				slog.Error("terminal view error", "err", err)
			}
		}()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry, bot *discordbot.Bot) {
	reg.RegisterAudio("discord", func(config.AudioConfig) (audio.Platform, error) {
		return bot.Platform(), nil
	})

	reg.RegisterSTT("deepgram", func(entry config.TranscriptionConfig) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if optBool(entry.Options, "diarize") {
			opts = append(opts, deepgram.WithDiarize(true))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.TranscriptionConfig) (stt.Provider, error) {
		modelPath := optString(entry.Options, "model_path")
		if modelPath == "" {
			return nil, errors.New("whisper requires options.model_path")
		}
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if ms := optInt(entry.Options, "silence_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilence(time.Duration(ms)*time.Millisecond))
		}
		return whisper.New(modelPath, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []io.Closer, error) {
	ps := &app.Providers{}
	var closers []io.Closer

	p, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, nil, fmt.Errorf("create audio platform %q: %w", cfg.Audio.Name, err)
	}
	ps.Audio = p
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Name)

	if !cfg.Transcription.Enabled() {
		slog.Info("transcription disabled")
		return ps, nil, nil
	}

	primary, err := reg.CreateSTT(cfg.Transcription)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Transcription.Name, err)
	}
	closers = appendCloser(closers, primary)
	failover := resilience.NewSTTFailover(cfg.Transcription.Name, primary, resilience.BreakerConfig{})
	slog.Info("provider created", "kind", "stt", "name", cfg.Transcription.Name)

	for i, fb := range cfg.Transcription.Fallbacks {
		if fb.Language == "" {
			fb.Language = cfg.Transcription.Language
		}
		p, err := reg.CreateSTT(fb)
		if errors.Is(err, config.ErrProviderNotRegistered) || errors.Is(err, whisper.ErrUnavailable) {
			slog.Warn("fallback provider not available, skipping", "kind", "stt", "name", fb.Name, "index", i, "err", err)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		closers = appendCloser(closers, p)
		failover.Add(fmt.Sprintf("%s#%d", fb.Name, i+1), p)
		slog.Info("provider created", "kind", "stt-fallback", "name", fb.Name)
	}
	ps.STT = failover

	return ps, closers, nil
}

// appendCloser keeps p for shutdown when it holds resources, like a loaded
// whisper model.
func appendCloser(closers []io.Closer, p stt.Provider) []io.Closer {
	if c, ok := p.(io.Closer); ok {
		return append(closers, c)
	}
	return closers
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxbars — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Name)
	printRow("Channel", orNone(cfg.Audio.ChannelID))
	printRow("Participant", orDefault(cfg.Audio.Participant, "first speaker"))
	printRow("Mode", string(cfg.Visualizer.Mode))
	printRow("Bars", fmt.Sprint(cfg.Visualizer.Bars))
	sttName := "(disabled)"
	if cfg.Transcription.Enabled() {
		sttName = cfg.Transcription.Name
		if n := len(cfg.Transcription.Fallbacks); n > 0 {
			sttName = fmt.Sprintf("%s +%d", sttName, n)
		}
	}
	printRow("STT", sttName)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orNone(v string) string {
	return orDefault(v, "(none)")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// logOutput selects where logs go. The terminal view owns stdout and stderr,
// so without a log file its logs are discarded.
func logOutput(path string, withTUI bool) (io.Writer, func(), error) {
	if path == "" {
		if withTUI {
			return io.Discard, func() {}, nil
		}
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
func optString(opts map[string]any, key string) string {
	v, _ := opts[key].(string)
	return v
}

// optInt extracts an integer value from a provider Options map[string]any.
// YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optBool extracts a bool value from a provider Options map[string]any.
func optBool(opts map[string]any, key string) bool {
	v, ok := opts[key].(bool)
	return ok && v
}
