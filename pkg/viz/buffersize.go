package viz

import (
	"fmt"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// BufferSizer reports the minimum playback buffer size, in bytes, a platform
// accepts for a format. It stands in for the device buffer-size query used to
// derive a [SpectrumAnalyzer]'s steady-state threshold.
type BufferSizer interface {
	MinBufferSize(f audio.Format) (int, error)
}

// BufferSizerFunc adapts a function to [BufferSizer].
type BufferSizerFunc func(f audio.Format) (int, error)

// MinBufferSize implements [BufferSizer].
func (fn BufferSizerFunc) MinBufferSize(f audio.Format) (int, error) { return fn(f) }

const (
	minSupportedRate = 4000
	maxSupportedRate = 192000

	// defaultMinBufferDuration approximates a typical device's minimum
	// playback buffer.
	defaultMinBufferDuration = 40 * time.Millisecond

	bufferMultiplier  = 4
	minBufferDuration = 250 * time.Millisecond
	maxBufferDuration = 750 * time.Millisecond
)

// DefaultBufferSizer models a device that accepts 16-bit mono or stereo PCM
// between 4 kHz and 192 kHz with a 40 ms minimum buffer.
var DefaultBufferSizer BufferSizer = BufferSizerFunc(func(f audio.Format) (int, error) {
	switch {
	case f.BitsPerSample != 16:
		return 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, f.BitsPerSample)
	case f.Channels != 1 && f.Channels != 2:
		return 0, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	case f.SampleRate < minSupportedRate || f.SampleRate > maxSupportedRate:
		return 0, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	return f.FramesFor(defaultMinBufferDuration) * f.FrameSize(), nil
})

// SteadyStateBufferSize derives the accumulation threshold for f: four times
// the platform minimum, clamped between 250 ms and 750 ms of audio (the upper
// bound never below the minimum itself), rounded down to a whole frame.
func SteadyStateBufferSize(sizer BufferSizer, f audio.Format) (int, error) {
	minSize, err := sizer.MinBufferSize(f)
	if err != nil {
		return 0, err
	}
	frameSize := f.FrameSize()
	if minSize <= 0 || frameSize <= 0 {
		return 0, fmt.Errorf("%w: no buffer size for %s", ErrUnsupportedFormat, f)
	}
	lo := f.FramesFor(minBufferDuration) * frameSize
	hi := max(minSize, f.FramesFor(maxBufferDuration)*frameSize)
	size := min(max(minSize*bufferMultiplier, lo), hi)
	return size / frameSize * frameSize, nil
}
