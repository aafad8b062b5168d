package viz_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/viz"
)

func TestSteadyStateBufferSize(t *testing.T) {
	t.Parallel()

	fixed := func(n int) viz.BufferSizer {
		return viz.BufferSizerFunc(func(audio.Format) (int, error) { return n, nil })
	}

	tests := []struct {
		name  string
		sizer viz.BufferSizer
		f     audio.Format
		want  int
	}{
		// 4 x 3840 = 15360 is below the 250 ms floor of 24000.
		{name: "48k mono floor", sizer: viz.DefaultBufferSizer, f: mono48, want: 24000},
		{name: "44.1k stereo floor", sizer: viz.DefaultBufferSizer, f: stereo44, want: 44100},
		{name: "nominal inside range", sizer: fixed(10000), f: mono48, want: 40000},
		{name: "ceiling", sizer: fixed(30000), f: mono48, want: 72000},
		{name: "ceiling never below minimum", sizer: fixed(100000), f: mono48, want: 100000},
		{name: "rounded to whole frame", sizer: fixed(150001), f: stereo44, want: 150000},
		{name: "nominal stereo", sizer: fixed(12345), f: stereo44, want: 49380},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := viz.SteadyStateBufferSize(tc.sizer, tc.f)
			if err != nil {
				t.Fatalf("SteadyStateBufferSize: %v", err)
			}
			if got != tc.want {
				t.Errorf("SteadyStateBufferSize = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultBufferSizer_Unsupported(t *testing.T) {
	t.Parallel()

	for _, f := range []audio.Format{
		{BitsPerSample: 16, SampleRate: 48000, Channels: 0},
		{BitsPerSample: 16, SampleRate: 48000, Channels: 6},
		{BitsPerSample: 8, SampleRate: 48000, Channels: 1},
		{BitsPerSample: 16, SampleRate: 1000, Channels: 1},
	} {
		if _, err := viz.SteadyStateBufferSize(viz.DefaultBufferSizer, f); !errors.Is(err, viz.ErrUnsupportedFormat) {
			t.Errorf("%v: err = %v, want ErrUnsupportedFormat", f, err)
		}
	}
}
