package pipeline_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxbars/internal/config"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/internal/pipeline"
	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/audio/mock"
	"github.com/MrWong99/voxbars/pkg/viz"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

var (
	mono48   = audio.Format{BitsPerSample: 16, SampleRate: 48000, Channels: 1}
	stereo44 = audio.Format{BitsPerSample: 16, SampleRate: 44100, Channels: 2}
)

func volumeConfig() config.VisualizerConfig {
	return config.VisualizerConfig{
		Mode:         config.ModeVolume,
		Bars:         15,
		MinAmplitude: 0.1,
		MaxVolume:    25000,
		MaxEnergy:    25000,
		FPS:          30,
	}
}

func spectrumConfig() config.VisualizerConfig {
	cfg := volumeConfig()
	cfg.Mode = config.ModeSpectrum
	return cfg
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var total int64
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newPipeline(t *testing.T, cfg config.VisualizerConfig, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	m, _ := newTestMetrics(t)
	p := pipeline.New(cfg, append([]pipeline.Option{pipeline.WithMetrics(m)}, opts...)...)
	t.Cleanup(func() { _ = p.Detach() })
	return p
}

// constantPCM returns n interleaved samples all equal to v.
func constantPCM(n int, v int16) []byte {
	buf := make([]byte, 2*n)
	for i := range n {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

// waitFor polls cond until it holds or fails the test after two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func pushUntilPublished(t *testing.T, p *pipeline.Pipeline, track *mock.Track, pcm []byte, f audio.Format) viz.Snapshot {
	t.Helper()
	before := p.State().Version()
	deadline := time.Now().Add(2 * time.Second)
	for p.State().Version() == before {
		if time.Now().After(deadline) {
			t.Fatal("no bar vector published")
		}
		track.Push(pcm, f)
		time.Sleep(time.Millisecond)
	}
	return p.State().Snapshot()
}

// ─── Scenarios ───────────────────────────────────────────────────────────────

func TestScenarioSilenceRestsOnFloor(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	track := &mock.Track{}
	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	snap := pushUntilPublished(t, p, track, constantPCM(1024, 0), mono48)
	if len(snap.Bars) != 15 {
		t.Fatalf("len(bars) = %d, want 15", len(snap.Bars))
	}
	for i, b := range snap.Bars {
		if b != 0.1 {
			t.Errorf("bars[%d] = %v, want 0.1", i, b)
		}
	}
}

func TestScenarioFullScaleSquareWave(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	track := &mock.Track{}
	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	snap := pushUntilPublished(t, p, track, constantPCM(1024, 32767), mono48)
	if snap.Bars[7] != 1 {
		t.Errorf("center bar = %v, want 1", snap.Bars[7])
	}
	if snap.Bars[6] != snap.Bars[8] {
		t.Errorf("bars not symmetric: %v vs %v", snap.Bars[6], snap.Bars[8])
	}
	if snap.Level != 1 {
		t.Errorf("level = %v, want 1", snap.Level)
	}
}

func TestScenarioMidStreamFormatChange(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	p := pipeline.New(spectrumConfig(), pipeline.WithMetrics(m))
	t.Cleanup(func() { _ = p.Detach() })

	track := &mock.Track{}
	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := p.State().Len(); got != viz.Bands {
		t.Fatalf("spectrum state has %d bars, want %d", got, viz.Bands)
	}

	// Same format as the initial configuration: no reconfiguration.
	track.Push(constantPCM(4800, 1000), mono48)
	time.Sleep(20 * time.Millisecond)

	// One large stereo buffer: reconfigures once and carries enough audio
	// past the 250 ms threshold to emit a frame.
	track.Push(constantPCM(2*25000, 1000), stereo44)

	waitFor(t, "a spectrum frame", func() bool {
		st, err := p.Stats()
		return err == nil && st.Frames >= 1
	})

	st, err := p.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Reconfigurations != 1 {
		t.Errorf("Reconfigurations = %d, want 1", st.Reconfigurations)
	}
	if got := counter(t, reader, "voxbars.analyzer.reconfigurations"); got != 1 {
		t.Errorf("reconfiguration metric = %d, want 1", got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	waitFor(t, "format cell update", func() bool {
		st, _ := p.Stats()
		return st.Format == stereo44
	})

	bars := p.State().Bars()
	if len(bars) != viz.Bands {
		t.Fatalf("len(bars) = %d, want %d", len(bars), viz.Bands)
	}
	for i, b := range bars {
		if b < 0.1 || b > 1 {
			t.Errorf("bars[%d] = %v, want within [0.1, 1]", i, b)
		}
	}
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestAttachDetach(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	track := &mock.Track{}

	if got := p.Attached(); got != "" {
		t.Errorf("Attached() before attach = %q, want empty", got)
	}
	if err := p.Detach(); !errors.Is(err, pipeline.ErrNotAttached) {
		t.Errorf("Detach() on idle pipeline = %v, want ErrNotAttached", err)
	}
	if _, err := p.Stats(); !errors.Is(err, pipeline.ErrNotAttached) {
		t.Errorf("Stats() on idle pipeline = %v, want ErrNotAttached", err)
	}

	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := p.Attached(); got != "user-1" {
		t.Errorf("Attached() = %q, want user-1", got)
	}
	if track.Sinks() != 1 {
		t.Errorf("track has %d sinks, want 1", track.Sinks())
	}

	pushUntilPublished(t, p, track, constantPCM(1024, 20000), mono48)

	if err := p.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if track.Sinks() != 0 {
		t.Errorf("track has %d sinks after detach, want 0", track.Sinks())
	}
	for i, b := range p.State().Bars() {
		if b != 0.1 {
			t.Errorf("bars[%d] after detach = %v, want floor", i, b)
		}
	}

	// Deliveries after detach must not reach the state.
	v := p.State().Version()
	track.Push(constantPCM(1024, 20000), mono48)
	time.Sleep(10 * time.Millisecond)
	if got := p.State().Version(); got != v {
		t.Errorf("state changed after detach: version %d -> %d", v, got)
	}
}

func TestAttachReplacesPreviousTrack(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	first, second := &mock.Track{}, &mock.Track{}

	if err := p.Attach(t.Context(), "user-1", first); err != nil {
		t.Fatalf("Attach first: %v", err)
	}
	if err := p.Attach(t.Context(), "user-2", second); err != nil {
		t.Fatalf("Attach second: %v", err)
	}
	if first.Sinks() != 0 {
		t.Errorf("first track still has %d sinks", first.Sinks())
	}
	if second.Sinks() != 1 {
		t.Errorf("second track has %d sinks, want 1", second.Sinks())
	}
	if got := p.Attached(); got != "user-2" {
		t.Errorf("Attached() = %q, want user-2", got)
	}
}

func TestReconfigureAppliesOnNextAttach(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	before := p.State()
	if before.Len() != 15 {
		t.Fatalf("initial bars = %d, want 15", before.Len())
	}

	p.Reconfigure(spectrumConfig())
	if p.State() != before {
		t.Error("Reconfigure must not replace the state of a running pipeline")
	}
	if p.Config().Mode != config.ModeSpectrum {
		t.Errorf("Config().Mode = %q, want spectrum", p.Config().Mode)
	}

	if err := p.Attach(t.Context(), "user-1", &mock.Track{}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := p.State().Len(); got != viz.Bands {
		t.Errorf("bars after reconfigured attach = %d, want %d", got, viz.Bands)
	}
	st, err := p.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Mode != config.ModeSpectrum {
		t.Errorf("Stats().Mode = %q, want spectrum", st.Mode)
	}
}

func TestUnsupportedFormatFreezesBars(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	p := pipeline.New(spectrumConfig(), pipeline.WithMetrics(m))
	t.Cleanup(func() { _ = p.Detach() })

	track := &mock.Track{}
	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	v := p.State().Version()

	track.Push(make([]byte, 960), audio.Format{BitsPerSample: 8, SampleRate: 48000, Channels: 1})
	waitFor(t, "configuration error", func() bool { return p.Err() != nil })

	var cfgErr *viz.ConfigurationError
	if !errors.As(p.Err(), &cfgErr) {
		t.Fatalf("Err() = %v, want *viz.ConfigurationError", p.Err())
	}
	if !errors.Is(p.Err(), viz.ErrUnsupportedFormat) {
		t.Errorf("Err() = %v, want wrapping ErrUnsupportedFormat", p.Err())
	}
	if got := counter(t, reader, "voxbars.analyzer.config_errors"); got != 1 {
		t.Errorf("config error metric = %d, want 1", got)
	}

	track.Push(constantPCM(48000, 1000), mono48)
	time.Sleep(10 * time.Millisecond)
	if got := p.State().Version(); got != v {
		t.Errorf("state changed after fatal error: version %d -> %d", v, got)
	}

	if err := p.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if p.Err() != nil {
		t.Errorf("Err() after detach = %v, want nil", p.Err())
	}
}

func TestAttachFailsWhenAnalyzerCannotBeSized(t *testing.T) {
	t.Parallel()

	sizer := viz.BufferSizerFunc(func(audio.Format) (int, error) {
		return 0, viz.ErrUnsupportedFormat
	})
	p := newPipeline(t, spectrumConfig(), pipeline.WithBufferSizer(sizer))
	track := &mock.Track{}

	err := p.Attach(t.Context(), "user-1", track)
	var cfgErr *viz.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Attach() = %v, want *viz.ConfigurationError", err)
	}
	if track.Sinks() != 0 {
		t.Errorf("track has %d sinks after failed attach, want 0", track.Sinks())
	}
	if p.Attached() != "" {
		t.Errorf("Attached() = %q after failed attach, want empty", p.Attached())
	}
}

func TestObserverReceivesProcessingTimes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	var lastMode atomic.Value
	p := newPipeline(t, volumeConfig(), pipeline.WithObserver(func(mode string, d time.Duration) {
		lastMode.Store(mode)
		calls.Add(1)
	}))
	track := &mock.Track{}
	if err := p.Attach(t.Context(), "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	pushUntilPublished(t, p, track, constantPCM(1024, 5000), mono48)
	waitFor(t, "observer call", func() bool { return calls.Load() > 0 })
	if got := lastMode.Load(); got != "volume" {
		t.Errorf("observer mode = %v, want volume", got)
	}
}

func TestContextCancelStopsWorkers(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, volumeConfig())
	track := &mock.Track{}
	ctx, cancel := context.WithCancel(t.Context())
	if err := p.Attach(ctx, "user-1", track); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)

	v := p.State().Version()
	track.Push(constantPCM(1024, 20000), mono48)
	time.Sleep(10 * time.Millisecond)
	if got := p.State().Version(); got != v {
		t.Errorf("state changed after cancel: version %d -> %d", v, got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() after cancel = %v, want nil", err)
	}
}
