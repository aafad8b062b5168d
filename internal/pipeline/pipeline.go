// Package pipeline connects one live audio track to a [viz.State].
//
// A [Pipeline] owns a single attachment at a time. Attach registers a fresh
// [viz.SampleSink] on the track and starts the worker goroutines for the
// configured mode; Detach tears them down and rests the bars on the floor.
// Visualiser settings changed through [Pipeline.Reconfigure] apply on the
// next Attach.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbars/internal/config"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/viz"
)

// ErrNotAttached is returned by operations that need an active attachment.
var ErrNotAttached = errors.New("pipeline: no track attached")

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBufferSizer overrides the platform buffer-size query used to size the
// spectrum analyzer.
func WithBufferSizer(s viz.BufferSizer) Option {
	return func(p *Pipeline) { p.sizer = s }
}

// WithObserver registers fn to receive the processing time of every buffer
// (volume mode) or spectrum frame (spectrum mode). fn runs on a worker
// goroutine and must not block.
func WithObserver(fn func(mode string, d time.Duration)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// Stats describes the current attachment.
type Stats struct {
	TrackID          string       `json:"track_id"`
	Mode             config.Mode  `json:"mode"`
	Since            time.Time    `json:"since"`
	Format           audio.Format `json:"format"`
	Received         uint64       `json:"received"`
	Dropped          uint64       `json:"dropped"`
	Frames           uint64       `json:"frames"`
	Reconfigurations int64        `json:"reconfigurations"`
}

// Pipeline turns the audio of one attached track into bar vectors.
//
// All exported methods are safe for concurrent use.
type Pipeline struct {
	mu      sync.Mutex // guards cfg, applied, cur
	cfg     config.VisualizerConfig
	applied config.VisualizerConfig
	cur     *attachment

	state atomic.Pointer[viz.State]

	// pubMu orders worker publishes against Detach so that nothing lands in
	// the state after it has been reset.
	pubMu sync.Mutex
	gen   atomic.Uint64

	metrics  *observe.Metrics
	sizer    viz.BufferSizer
	observer func(mode string, d time.Duration)
}

type attachment struct {
	id    string
	gen   uint64
	mode  config.Mode
	since time.Time
	sink  *viz.SampleSink

	cancel context.CancelFunc
	done   chan struct{}

	format   atomic.Pointer[audio.Format]
	frames   atomic.Uint64
	reconfig atomic.Int64
	err      atomic.Pointer[error]
}

// New returns a detached pipeline whose state rests at the floor vector for
// cfg.
func New(cfg config.VisualizerConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		sizer: viz.DefaultBufferSizer,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.applied = cfg
	p.state.Store(newState(cfg))
	return p
}

// State returns the state renderers should read. It is replaced when an
// Attach applies settings that change the bar count or floor.
func (p *Pipeline) State() *viz.State {
	return p.state.Load()
}

// Config returns the settings the next Attach will use.
func (p *Pipeline) Config() config.VisualizerConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Reconfigure stores cfg for the next Attach. The running attachment keeps
// its settings.
func (p *Pipeline) Reconfigure(cfg config.VisualizerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Attach detaches any current track, then starts processing track under id.
// The workers stop when ctx is cancelled or on Detach.
func (p *Pipeline) Attach(ctx context.Context, id string, track audio.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil {
		p.detachLocked()
	}

	cfg := p.cfg
	state := p.state.Load()
	if needsNewState(p.applied, cfg) {
		state = newState(cfg)
		p.state.Store(state)
	}
	p.applied = cfg

	gen := p.gen.Add(1)
	sink := viz.NewSampleSink(viz.WithDropHook(func() {
		p.metrics.BuffersDropped.Add(context.Background(), 1)
	}))
	wctx, cancel := context.WithCancel(ctx)
	at := &attachment{
		id:     id,
		gen:    gen,
		mode:   cfg.Mode,
		since:  time.Now(),
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	f := audio.DefaultFormat
	at.format.Store(&f)

	g, gctx := errgroup.WithContext(wctx)
	g.Go(func() error { return p.watchFormat(gctx, at) })
	switch cfg.Mode {
	case config.ModeSpectrum:
		analyzer := viz.NewSpectrumAnalyzer(viz.WithBufferSizer(p.sizer))
		if err := analyzer.Configure(audio.DefaultFormat); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("pipeline: attach %q: %w", id, err)
		}
		smoother := viz.NewBandSmoother(smootherOptions(cfg, cfg.MaxEnergy)...)
		g.Go(func() error { return p.feedAnalyzer(gctx, at, analyzer) })
		g.Go(func() error { return p.foldFrames(gctx, at, state, analyzer, smoother) })
	default:
		smoother := viz.NewVolumeSmoother(smootherOptions(cfg, cfg.MaxVolume)...)
		g.Go(func() error { return p.measureVolume(gctx, at, state, smoother) })
	}

	go func() {
		defer close(at.done)
		err := g.Wait()
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		at.err.Store(&err)
		slog.Error("pipeline: attachment failed, bars frozen", "track", id, "err", err)
	}()

	if err := sink.Attach(track); err != nil {
		cancel()
		<-at.done
		return fmt.Errorf("pipeline: attach %q: %w", id, err)
	}
	p.cur = at
	p.metrics.ActiveTracks.Add(ctx, 1)

	slog.Info("pipeline: track attached", "track", id, "mode", cfg.Mode, "bars", state.Len())
	return nil
}

// Detach stops the current attachment, waits for its workers and resets the
// state to the floor vector. It returns [ErrNotAttached] when idle.
func (p *Pipeline) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ErrNotAttached
	}
	p.detachLocked()
	return nil
}

func (p *Pipeline) detachLocked() {
	at := p.cur
	p.cur = nil

	at.sink.Detach()

	p.pubMu.Lock()
	p.gen.Add(1)
	p.state.Load().Reset()
	p.pubMu.Unlock()

	at.cancel()
	<-at.done

	p.metrics.ActiveTracks.Add(context.Background(), -1)
	slog.Info("pipeline: track detached", "track", at.id, "stats", at.sink.Stats())
}

// Attached returns the id of the attached track, or "" when idle.
func (p *Pipeline) Attached() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.id
}

// Err returns the error that stopped the current attachment, if any. A
// [*viz.ConfigurationError] means the track's format cannot be analysed.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	at := p.cur
	p.mu.Unlock()
	if at == nil {
		return nil
	}
	if err := at.err.Load(); err != nil {
		return *err
	}
	return nil
}

// Stats returns counters for the current attachment.
func (p *Pipeline) Stats() (Stats, error) {
	p.mu.Lock()
	at := p.cur
	p.mu.Unlock()
	if at == nil {
		return Stats{}, ErrNotAttached
	}
	ss := at.sink.Stats()
	return Stats{
		TrackID:          at.id,
		Mode:             at.mode,
		Since:            at.since,
		Format:           *at.format.Load(),
		Received:         ss.Received,
		Dropped:          ss.Dropped,
		Frames:           at.frames.Load(),
		Reconfigurations: at.reconfig.Load(),
	}, nil
}

// ─── Workers ─────────────────────────────────────────────────────────────────

func (p *Pipeline) watchFormat(ctx context.Context, at *attachment) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-at.sink.FormatChanges():
			at.format.Store(&f)
			slog.Debug("pipeline: format changed", "track", at.id, "format", f)
		}
	}
}

func (p *Pipeline) measureVolume(ctx context.Context, at *attachment, state *viz.State, s *viz.VolumeSmoother) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-at.sink.Buffers():
			start := time.Now()
			vol := viz.EstimateVolume(b.Data)
			at.sink.Release(b)
			p.metrics.BuffersReceived.Add(ctx, 1)
			p.publish(at.gen, state, s.Update(vol), s.Normalize(vol))
			p.record(ctx, config.ModeVolume, time.Since(start))
		}
	}
}

// feedAnalyzer is the only goroutine that touches analyzer after Attach.
func (p *Pipeline) feedAnalyzer(ctx context.Context, at *attachment, analyzer *viz.SpectrumAnalyzer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-at.sink.Buffers():
			p.metrics.BuffersReceived.Add(ctx, 1)
			if analyzer.State() != viz.Configured || b.Format != analyzer.Format() {
				if err := analyzer.Configure(b.Format); err != nil {
					at.sink.Release(b)
					p.metrics.ConfigErrors.Add(ctx, 1)
					return err
				}
				at.reconfig.Add(1)
				p.metrics.Reconfigurations.Add(ctx, 1)
				slog.Info("pipeline: analyzer reconfigured", "track", at.id, "format", b.Format, "threshold", analyzer.Threshold())
			}
			analyzer.QueueInput(b.Data)
			at.sink.Release(b)
		}
	}
}

func (p *Pipeline) foldFrames(ctx context.Context, at *attachment, state *viz.State, analyzer *viz.SpectrumAnalyzer, s *viz.BandSmoother) error {
	frames := analyzer.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-frames:
			start := time.Now()
			bars := s.Update(frame)
			p.publish(at.gen, state, bars, s.Level())
			at.frames.Add(1)
			p.metrics.SpectrumFrames.Add(ctx, 1)
			p.record(ctx, config.ModeSpectrum, time.Since(start))
		}
	}
}

func (p *Pipeline) publish(gen uint64, state *viz.State, bars []float32, level float32) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	if p.gen.Load() != gen {
		return
	}
	if err := state.Store(bars, level); err != nil {
		slog.Warn("pipeline: dropping malformed bar vector", "err", err)
	}
}

func (p *Pipeline) record(ctx context.Context, mode config.Mode, d time.Duration) {
	p.metrics.RecordProcessing(ctx, string(mode), d)
	if p.observer != nil {
		p.observer(string(mode), d)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func barCount(cfg config.VisualizerConfig) int {
	if cfg.Mode == config.ModeSpectrum {
		return viz.Bands
	}
	if cfg.Bars < 1 {
		return viz.DefaultBars
	}
	return cfg.Bars
}

func minAmplitude(cfg config.VisualizerConfig) float32 {
	if cfg.MinAmplitude <= 0 || cfg.MinAmplitude > 1 {
		return viz.DefaultMinAmplitude
	}
	return float32(cfg.MinAmplitude)
}

func newState(cfg config.VisualizerConfig) *viz.State {
	return viz.NewState(barCount(cfg), minAmplitude(cfg))
}

func needsNewState(old, cfg config.VisualizerConfig) bool {
	return barCount(old) != barCount(cfg) || minAmplitude(old) != minAmplitude(cfg)
}

func smootherOptions(cfg config.VisualizerConfig, reference float64) []viz.SmootherOption {
	return []viz.SmootherOption{
		viz.WithBars(barCount(cfg)),
		viz.WithMinAmplitude(minAmplitude(cfg)),
		viz.WithReference(reference),
	}
}
