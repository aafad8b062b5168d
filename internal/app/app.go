// Package app wires all voxbars subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API and joins the configured voice
// channel, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithLogLevel) and through [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxbars/internal/agentstate"
	"github.com/MrWong99/voxbars/internal/api"
	"github.com/MrWong99/voxbars/internal/config"
	"github.com/MrWong99/voxbars/internal/discord"
	"github.com/MrWong99/voxbars/internal/discord/voicecmd"
	"github.com/MrWong99/voxbars/internal/health"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/internal/pipeline"
	"github.com/MrWong99/voxbars/internal/resilience"
	"github.com/MrWong99/voxbars/internal/transcript"
	"github.com/MrWong99/voxbars/internal/tui"
	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

const (
	// transcriptLimit caps the segments kept for the transcript panel.
	transcriptLimit = 200

	// statsWindow is the number of processing times kept for percentiles.
	statsWindow = 512

	// staleBars is how long audio may flow without a bar update before the
	// readiness check fails.
	staleBars = 5 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Audio audio.Platform
	STT   stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	stats      *discord.ProcessingStats
	pipeline   *pipeline.Pipeline
	transcript *transcript.Store
	corrector  *transcript.Corrector
	agents     *agentstate.Tracker
	commands   *voicecmd.Filter
	sessions   *SessionManager
	health     *health.Handler
	server     *http.Server
	addr       atomic.Pointer[string]

	flowMu       sync.Mutex
	flowReceived uint64
	flowChanged  time.Time

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects the metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot-reloaded configs change the level of the logger
// built around lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). providers.Audio is
// required.
func New(_ context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Audio == nil {
		return nil, errors.New("app: an audio platform is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Bar pipeline ──────────────────────────────────────────────────
	a.stats = discord.NewProcessingStats(statsWindow)
	a.pipeline = pipeline.New(cfg.Visualizer,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithObserver(a.stats.Record),
	)

	// ── 2. Transcript ────────────────────────────────────────────────────
	a.transcript = transcript.NewStore(transcript.WithLimit(transcriptLimit))
	a.corrector = transcript.NewCorrector(cfg.Transcription.Keywords)

	// ── 3. Agent states ──────────────────────────────────────────────────
	a.agents = agentstate.NewTracker(func(participant string, s agentstate.State) {
		slog.Debug("agent state changed", "participant", participant, "state", s)
	})

	// ── 4. Voice commands ────────────────────────────────────────────────
	a.commands = voicecmd.New(cfg.Audio.Operator)

	// ── 5. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Platform:    providers.Audio,
		Pipeline:    a.pipeline,
		Transcript:  a.transcript,
		Corrector:   a.corrector,
		STT:         providers.STT,
		Language:    cfg.Transcription.Language,
		Keywords:    cfg.Transcription.Keywords,
		Agents:      a.agents,
		Commands:    a.commands,
		Operator:    cfg.Audio.Operator,
		Participant: cfg.Audio.Participant,
		Metrics:     a.metrics,
	})

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	a.health = health.New(
		health.TrackAttached(a.pipeline.Attached),
		health.Fresh("bars", a.barsUpdated, staleBars),
		health.Checker{Name: "analysis", Check: func(context.Context) error { return a.pipeline.Err() }},
	)

	mux := http.NewServeMux()
	api.New(api.Config{
		State:         a.pipeline,
		Transcript:    a.transcript,
		Agents:        a.agents,
		Status:        func() any { return a.StatusView() },
		FrameInterval: a.frameInterval,
	}).Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session manager. Used by the Discord commands.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Stats returns the processing-time window shown on the dashboard.
func (a *App) Stats() *discord.ProcessingStats { return a.stats }

// Addr returns the address the HTTP server listens on, or "" before Run.
func (a *App) Addr() string {
	if p := a.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// TUIConfig returns the terminal view wired to this app.
func (a *App) TUIConfig() tui.Config {
	return tui.Config{
		State:         a.pipeline,
		Transcript:    a.transcript,
		FrameInterval: a.frameInterval,
		Status: func() tui.Status {
			st := a.sessions.Status()
			return tui.Status{Participant: st.Participant, Mode: st.Mode, Err: st.Err}
		},
		ToggleMode: a.toggleMode,
	}
}

// StatusView is the JSON body of /api/status.
type StatusView struct {
	Active      bool            `json:"active"`
	SessionID   string          `json:"session_id,omitempty"`
	ChannelID   string          `json:"channel_id,omitempty"`
	Participant string          `json:"participant,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	Mode        string          `json:"mode"`
	Segments    int             `json:"segments"`
	Err         string          `json:"error,omitempty"`
	Pipeline    *pipeline.Stats `json:"pipeline,omitempty"`

	// STT maps transcription backends to their circuit breaker state.
	STT map[string]string `json:"stt,omitempty"`
}

// StatusView describes the session, the attachment and the transcription
// backends.
func (a *App) StatusView() StatusView {
	st := a.sessions.Status()
	v := StatusView{
		Active:      st.Active,
		SessionID:   st.SessionID,
		ChannelID:   st.ChannelID,
		Participant: st.Participant,
		Mode:        st.Mode,
		Segments:    st.Segments,
		Err:         st.Err,
	}
	if !st.StartedAt.IsZero() {
		v.StartedAt = &st.StartedAt
	}
	if ps, err := a.pipeline.Stats(); err == nil {
		v.Pipeline = &ps
	}
	if f, ok := a.providers.STT.(*resilience.STTFailover); ok {
		backends := f.Backends()
		v.STT = make(map[string]string, len(backends))
		for name, s := range backends {
			v.STT[name] = s.String()
		}
	}
	return v
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, joins the configured voice channel and blocks until ctx
// is cancelled. When ctx is done, Run returns context.Canceled (or the
// underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	addr := ln.Addr().String()
	a.addr.Store(&addr)

	errCh := make(chan error, 1)
	go func() { errCh <- a.serve(ln) }()

	if ch := a.cfg.Audio.ChannelID; ch != "" {
		if err := a.sessions.Start(ctx, ch, ""); err != nil {
			slog.Error("app: cannot join configured voice channel, waiting for /viz follow",
				"channel_id", ch,
				"err", err,
			)
		}
	}

	slog.Info("app running", "listen_addr", addr, "mode", a.pipeline.Config().Mode)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err == nil {
			<-ctx.Done()
			return ctx.Err()
		}
		return fmt.Errorf("app: http server: %w", err)
	}
}

func (a *App) serve(ln net.Listener) error {
	var err error
	if tls := a.cfg.Server.TLS; tls != nil {
		err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = a.server.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// It is the [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}

	if d.VisualizerChanged {
		v := d.Visualizer
		if v.Mode || v.Bars || v.MinAmplitude || v.Reference {
			a.sessions.Reconfigure(new.Visualizer)
		} else {
			// Only the frame rate changed; renderers read it on every tick.
			a.pipeline.Reconfigure(new.Visualizer)
		}
		slog.Info("config: visualiser settings reloaded",
			"mode", new.Visualizer.Mode,
			"bars", new.Visualizer.Bars,
			"fps", new.Visualizer.FPS,
		)
	}

	if d.ParticipantChanged {
		a.sessions.SetParticipant(d.NewParticipant)
		slog.Info("config: followed participant changed", "participant", d.NewParticipant)
	}

	if d.KeywordsChanged {
		a.sessions.SetKeywords(new.Transcription.Keywords)
		slog.Info("config: transcription keywords reloaded", "count", len(new.Transcription.Keywords))
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Leave voice first so no more audio arrives.
		if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// OnShutdown registers fn to run during Shutdown, after the session and the
// HTTP server have stopped.
func (a *App) OnShutdown(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *App) frameInterval() time.Duration {
	return a.pipeline.Config().FrameInterval()
}

func (a *App) toggleMode() error {
	next := config.ModeSpectrum
	if a.pipeline.Config().Mode == config.ModeSpectrum {
		next = config.ModeVolume
	}
	return a.sessions.SetMode(context.Background(), next)
}

// barsUpdated is the freshness source of the "bars" readiness check. While
// no audio arrives the bars legitimately rest, so it reports now.
func (a *App) barsUpdated() time.Time {
	now := time.Now()
	st, err := a.pipeline.Stats()
	if err != nil {
		return now
	}

	a.flowMu.Lock()
	if st.Received != a.flowReceived {
		a.flowReceived = st.Received
		a.flowChanged = now
	}
	changed := a.flowChanged
	a.flowMu.Unlock()

	if now.Sub(changed) > staleBars {
		return now
	}
	updated := a.pipeline.State().Snapshot().Updated
	if updated.Before(st.Since) {
		return st.Since
	}
	return updated
}
