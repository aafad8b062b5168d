package viz

import (
	"encoding/binary"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/madelynnblue/go-dsp/fft"
)

const (
	// SampleSize is the number of mono samples in one FFT window.
	SampleSize = 4096

	// FrameLen is the length of an emitted spectrum frame: interleaved
	// real/imaginary parts of bins 0..SampleSize/2.
	FrameLen = SampleSize + 2

	frameBytes = SampleSize * 2

	// bufferExtraSize is preallocated on top of the steady-state threshold
	// so bursts do not immediately regrow the accumulation buffer.
	bufferExtraSize = SampleSize * 8
)

// AnalyzerState is the configuration state of a [SpectrumAnalyzer].
type AnalyzerState int

const (
	// Unconfigured analyzers ignore input.
	Unconfigured AnalyzerState = iota
	// Configured analyzers accumulate input and emit frames.
	Configured
)

// String returns the human-readable name of the state.
func (s AnalyzerState) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	default:
		return "unknown"
	}
}

// AnalyzerOption configures a [SpectrumAnalyzer].
type AnalyzerOption func(*SpectrumAnalyzer)

// WithBufferSizer replaces [DefaultBufferSizer].
func WithBufferSizer(b BufferSizer) AnalyzerOption {
	return func(a *SpectrumAnalyzer) { a.sizer = b }
}

// SpectrumAnalyzer down-mixes PCM to mono, accumulates it and, whenever more
// than the steady-state threshold is buffered, transforms the oldest
// [SampleSize] samples into a spectrum frame.
//
// An analyzer is owned by a single goroutine: Configure, QueueInput and
// Reset must not be called concurrently. Frames are consumed from
// [SpectrumAnalyzer.Frames] on any goroutine.
type SpectrumAnalyzer struct {
	sizer BufferSizer

	state     AnalyzerState
	format    audio.Format
	threshold int

	scratch []byte    // down-mixed input, little-endian
	acc     []byte    // pending mono samples, big-endian; len is the byte position
	src     []float64 // FFT input window

	frames         *Latest[[]float32]
	configurations int
	emitted        uint64
}

// NewSpectrumAnalyzer returns an Unconfigured analyzer.
func NewSpectrumAnalyzer(opts ...AnalyzerOption) *SpectrumAnalyzer {
	a := &SpectrumAnalyzer{
		sizer:  DefaultBufferSizer,
		src:    make([]float64, SampleSize),
		frames: NewLatest[[]float32](),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Configure (re)enters the Configured state for f, discarding any bytes
// accumulated under a previous format. On failure the analyzer is left
// Unconfigured and a [*ConfigurationError] is returned.
func (a *SpectrumAnalyzer) Configure(f audio.Format) error {
	a.acc = a.acc[:0]
	a.configurations++

	size, err := SteadyStateBufferSize(a.sizer, f)
	if err != nil {
		a.state = Unconfigured
		a.threshold = 0
		return &ConfigurationError{Format: f, Err: err}
	}

	a.state = Configured
	a.format = f
	a.threshold = size
	if cap(a.acc) < size+bufferExtraSize {
		a.acc = make([]byte, 0, size+bufferExtraSize)
	}
	return nil
}

// QueueInput appends interleaved 16-bit little-endian pcm in the configured
// format and emits a frame for every full window beyond the threshold.
// It is a no-op while Unconfigured or for empty input.
func (a *SpectrumAnalyzer) QueueInput(pcm []byte) {
	if a.state != Configured || len(pcm) == 0 {
		return
	}

	a.scratch = audio.Downmix(a.scratch, pcm, a.format.Channels)
	for i := range len(a.scratch) / 2 {
		a.acc = binary.BigEndian.AppendUint16(a.acc, uint16(audio.Sample(a.scratch, i)))
	}

	for len(a.acc) > a.threshold && len(a.acc) >= frameBytes {
		a.frames.Offer(a.transform())
		a.emitted++
		a.acc = a.acc[:copy(a.acc, a.acc[frameBytes:])]
	}
}

// transform converts the first window of acc to a fresh spectrum frame.
func (a *SpectrumAnalyzer) transform() []float32 {
	for i := range SampleSize {
		hi := float32(int8(a.acc[2*i]))
		lo := float32(int8(a.acc[2*i+1]))
		a.src[i] = float64((hi*127 + lo) / (127 * 127))
	}
	bins := fft.FFTReal(a.src)

	frame := make([]float32, FrameLen)
	for k := 0; k <= SampleSize/2; k++ {
		frame[2*k] = float32(real(bins[k]))
		frame[2*k+1] = float32(imag(bins[k]))
	}
	return frame
}

// Reset flushes accumulated input and returns to Unconfigured.
func (a *SpectrumAnalyzer) Reset() {
	a.state = Unconfigured
	a.threshold = 0
	a.acc = a.acc[:0]
}

// Frames delivers emitted spectrum frames, latest only. Each frame is owned
// by the receiver.
func (a *SpectrumAnalyzer) Frames() <-chan []float32 {
	return a.frames.C()
}

// State returns the current configuration state.
func (a *SpectrumAnalyzer) State() AnalyzerState { return a.state }

// Format returns the configured format. It is meaningless while Unconfigured.
func (a *SpectrumAnalyzer) Format() audio.Format { return a.format }

// Threshold returns the steady-state byte threshold; 0 while Unconfigured.
func (a *SpectrumAnalyzer) Threshold() int { return a.threshold }

// Pending returns the number of accumulated, unprocessed bytes.
func (a *SpectrumAnalyzer) Pending() int { return len(a.acc) }

// Configurations returns how many times Configure has been called.
func (a *SpectrumAnalyzer) Configurations() int { return a.configurations }

// Emitted returns the number of frames produced.
func (a *SpectrumAnalyzer) Emitted() uint64 { return a.emitted }
