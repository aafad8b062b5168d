package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestSample(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, -1, 32767, -32768})
	want := []int16{1, -1, 32767, -32768}
	for i, w := range want {
		if got := audio.Sample(pcm, i); got != w {
			t.Errorf("Sample(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{name: "mono passthrough", in: []int16{5, -7, 9}, channels: 1, want: []int16{5, -7, 9}},
		{name: "stereo average", in: []int16{100, 200, -100, -200}, channels: 2, want: []int16{150, -150}},
		{name: "truncates toward zero", in: []int16{1, 2, -1, -2}, channels: 2, want: []int16{1, -1}},
		{name: "three channels", in: []int16{3, 3, 4}, channels: 3, want: []int16{3}},
		{name: "full scale stereo", in: []int16{32767, 32767, -32768, -32768}, channels: 2, want: []int16{32767, -32768}},
		{name: "partial frame ignored", in: []int16{10, 20, 30}, channels: 2, want: []int16{15}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Downmix(nil, samplesToBytes(tc.in), tc.channels))
			if len(got) != len(tc.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestDownmix_ReusesCapacity(t *testing.T) {
	t.Parallel()
	dst := make([]byte, 0, 64)
	out := audio.Downmix(dst, samplesToBytes([]int16{1, 2, 3, 4}), 2)
	if &out[:1][0] != &dst[:1][0] {
		t.Error("Downmix allocated although dst had enough capacity")
	}
	if len(out) != 4 {
		t.Errorf("len = %d, want 4", len(out))
	}
}

func TestDownmix_InvalidChannels(t *testing.T) {
	t.Parallel()
	if got := audio.Downmix(nil, samplesToBytes([]int16{1, 2}), 0); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestInt16sToBytes(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 1234}
	got := bytesToSamples(audio.Int16sToBytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}
