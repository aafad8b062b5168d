package viz_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/viz"
)

// configured returns an analyzer configured for f.
func configured(t *testing.T, f audio.Format) *viz.SpectrumAnalyzer {
	t.Helper()
	a := viz.NewSpectrumAnalyzer()
	if err := a.Configure(f); err != nil {
		t.Fatalf("Configure(%v): %v", f, err)
	}
	return a
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSpectrumAnalyzer_UnconfiguredIgnoresInput(t *testing.T) {
	t.Parallel()

	a := viz.NewSpectrumAnalyzer()
	if a.State() != viz.Unconfigured {
		t.Fatalf("State = %v, want unconfigured", a.State())
	}
	a.QueueInput(constantPCM(40000, 1000))
	if a.Pending() != 0 || a.Emitted() != 0 {
		t.Errorf("Pending = %d, Emitted = %d, want 0, 0", a.Pending(), a.Emitted())
	}
}

func TestSpectrumAnalyzer_EmptyInput(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(nil)
	if a.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", a.Pending())
	}
}

func TestSpectrumAnalyzer_ConfigurationError(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(1000, 5))

	bad := audio.Format{BitsPerSample: 16, SampleRate: 48000, Channels: 6}
	err := a.Configure(bad)

	var cerr *viz.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("Configure error = %v, want *ConfigurationError", err)
	}
	if cerr.Format != bad {
		t.Errorf("ConfigurationError.Format = %v, want %v", cerr.Format, bad)
	}
	if !errors.Is(err, viz.ErrUnsupportedFormat) {
		t.Errorf("error does not wrap ErrUnsupportedFormat: %v", err)
	}
	if a.State() != viz.Unconfigured {
		t.Errorf("State = %v, want unconfigured", a.State())
	}
	if a.Pending() != 0 {
		t.Errorf("Pending = %d, want accumulation flushed", a.Pending())
	}

	a.QueueInput(constantPCM(40000, 5))
	if a.Emitted() != 0 {
		t.Error("analyzer emitted a frame after a failed Configure")
	}
}

func TestSpectrumAnalyzer_ThresholdAndFrameShape(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	if a.Threshold() != 24000 {
		t.Fatalf("Threshold = %d, want 24000", a.Threshold())
	}

	// Exactly at the threshold: nothing is emitted yet.
	a.QueueInput(constantPCM(12000, 258))
	if a.Emitted() != 0 {
		t.Fatalf("Emitted = %d at threshold, want 0", a.Emitted())
	}

	a.QueueInput(constantPCM(1, 258))
	if a.Emitted() != 1 {
		t.Fatalf("Emitted = %d, want 1", a.Emitted())
	}
	if want := 24002 - 2*viz.SampleSize; a.Pending() != want {
		t.Errorf("Pending = %d, want %d after compaction", a.Pending(), want)
	}

	frame := <-a.Frames()
	if len(frame) != viz.FrameLen {
		t.Fatalf("frame length = %d, want %d", len(frame), viz.FrameLen)
	}
}

// TestSpectrumAnalyzer_FixedPointRule checks the byte-pair combination
// through the DC bin: a constant signal transforms to SampleSize times the
// normalised sample value at bin 0 and nothing elsewhere.
func TestSpectrumAnalyzer_FixedPointRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample int16
		norm   float64
	}{
		// 0x0102: high byte 1, low byte 2.
		{name: "positive bytes", sample: 0x0102, norm: (1*127 + 2) / 16129.0},
		// 0x00FF: the low byte is read as signed -1.
		{name: "signed low byte", sample: 0x00FF, norm: -1 / 16129.0},
		// 0xFF00 (-256): high byte -1.
		{name: "signed high byte", sample: -256, norm: -127 / 16129.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := configured(t, mono48)
			a.QueueInput(constantPCM(12001, tc.sample))
			frame, ok := pendingFrame(a)
			if !ok {
				t.Fatal("no frame emitted")
			}
			want := viz.SampleSize * tc.norm
			if !approx(float64(frame[0]), want, 1e-3) {
				t.Errorf("bin 0 real = %v, want %v", frame[0], want)
			}
			if !approx(float64(frame[1]), 0, 1e-3) {
				t.Errorf("bin 0 imag = %v, want 0", frame[1])
			}
			for i := 2; i < len(frame); i++ {
				if !approx(float64(frame[i]), 0, 1e-3) {
					t.Fatalf("frame[%d] = %v, want 0 for a DC signal", i, frame[i])
				}
			}
		})
	}
}

func TestSpectrumAnalyzer_DownmixesChannels(t *testing.T) {
	t.Parallel()

	a := configured(t, stereo44)
	// L=600, R=-84 averages to 258 = 0x0102.
	s := make([]int16, 2*22051)
	for i := 0; i < len(s); i += 2 {
		s[i], s[i+1] = 600, -84
	}
	a.QueueInput(samplesToBytes(s))

	frame, ok := pendingFrame(a)
	if !ok {
		t.Fatal("no frame emitted")
	}
	if want := viz.SampleSize * (129 / 16129.0); !approx(float64(frame[0]), want, 1e-3) {
		t.Errorf("bin 0 real = %v, want %v", frame[0], want)
	}
}

func TestSpectrumAnalyzer_FramesDropOldest(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(24289, 100))
	if a.Emitted() < 2 {
		t.Fatalf("Emitted = %d, want several frames", a.Emitted())
	}
	if n := len(a.Frames()); n != 1 {
		t.Errorf("frames pending = %d, want only the latest", n)
	}
}

func TestSpectrumAnalyzer_FreshFramePerEmission(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(12001, 258))
	first := <-a.Frames()
	first[0] = -1

	a.QueueInput(constantPCM(viz.SampleSize, 258))
	second := <-a.Frames()
	if second[0] == -1 {
		t.Error("analyzer reused a frame slice already handed to the consumer")
	}
}

func TestSpectrumAnalyzer_ReconfigureFlushes(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(5000, 1234))
	if a.Pending() != 10000 {
		t.Fatalf("Pending = %d, want 10000", a.Pending())
	}

	if err := a.Configure(stereo44); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if a.Pending() != 0 {
		t.Errorf("Pending = %d after reconfigure, want 0", a.Pending())
	}
	if a.Format() != stereo44 {
		t.Errorf("Format = %v, want %v", a.Format(), stereo44)
	}
}

// TestSpectrumAnalyzer_FormatSwitch feeds 48 kHz mono and then 44.1 kHz
// stereo; the frame after the switch holds only post-switch samples.
func TestSpectrumAnalyzer_FormatSwitch(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(11000, 32000))

	if err := a.Configure(stereo44); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if a.Configurations() != 2 {
		t.Errorf("Configurations = %d, want 2", a.Configurations())
	}

	// 22051 stereo frames of 258 down-mix to 44102 bytes, one frame over
	// the 44100 threshold.
	a.QueueInput(constantPCM(2*22051, 258))
	if a.Emitted() != 1 {
		t.Fatalf("Emitted = %d, want 1", a.Emitted())
	}
	frame := <-a.Frames()
	want := viz.SampleSize * (129 / 16129.0)
	if !approx(float64(frame[0]), want, 1e-3) {
		t.Errorf("bin 0 real = %v, want %v (contaminated by pre-switch samples?)", frame[0], want)
	}
	for i, v := range frame {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("frame[%d] = %v", i, v)
		}
	}
}

func TestSpectrumAnalyzer_Reset(t *testing.T) {
	t.Parallel()

	a := configured(t, mono48)
	a.QueueInput(constantPCM(100, 1))
	a.Reset()
	if a.State() != viz.Unconfigured || a.Pending() != 0 {
		t.Errorf("after Reset: State = %v, Pending = %d", a.State(), a.Pending())
	}
}

func TestAnalyzerState_String(t *testing.T) {
	t.Parallel()
	if viz.Configured.String() != "configured" || viz.AnalyzerState(7).String() != "unknown" {
		t.Error("unexpected AnalyzerState names")
	}
}
