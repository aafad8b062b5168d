package viz_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/viz"
)

var (
	mono48   = audio.Format{BitsPerSample: 16, SampleRate: 48000, Channels: 1}
	stereo44 = audio.Format{BitsPerSample: 16, SampleRate: 44100, Channels: 2}
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// constantPCM returns n samples all equal to v.
func constantPCM(n int, v int16) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return samplesToBytes(s)
}

func assertBarsInRange(t *testing.T, bars []float32, lo float32) {
	t.Helper()
	for i, b := range bars {
		if b < lo || b > 1 {
			t.Errorf("bar %d = %v, want within [%v, 1]", i, b, lo)
		}
	}
}

// pendingFrame returns the frame waiting in a's output, if any.
func pendingFrame(a *viz.SpectrumAnalyzer) ([]float32, bool) {
	select {
	case f := <-a.Frames():
		return f, true
	default:
		return nil, false
	}
}
