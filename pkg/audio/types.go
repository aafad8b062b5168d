package audio

import (
	"fmt"
	"time"
)

// Format describes the PCM layout of an audio stream. Format is comparable;
// two formats are the same stream format exactly when they are ==.
type Format struct {
	// BitsPerSample is the sample width. Only 16 is produced by the
	// platforms in this module.
	BitsPerSample int

	// SampleRate in Hz (e.g., 48000 for Discord Opus).
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

// DefaultFormat is the format a freshly attached consumer assumes before the
// first buffer arrives: 16-bit mono at 48 kHz.
var DefaultFormat = Format{BitsPerSample: 16, SampleRate: 48000, Channels: 1}

// FrameSize returns the number of bytes in one interleaved frame (one sample
// for every channel).
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// FramesFor returns how many frames span d at this format's sample rate.
func (f Format) FramesFor(d time.Duration) int {
	return int(int64(d/time.Microsecond) * int64(f.SampleRate) / 1_000_000)
}

// String returns a compact description such as "48000Hz stereo s16".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 || f.Channels < 1 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s s%d", f.SampleRate, ch, f.BitsPerSample)
}

// AudioFrame represents a single frame of audio data delivered by a
// [Connection] input stream.
type AudioFrame struct {
	// PCM audio data: interleaved signed 16-bit little-endian samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for Discord Opus).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo (Discord input).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format returns the PCM layout of the frame.
func (f AudioFrame) Format() Format {
	return Format{BitsPerSample: 16, SampleRate: f.SampleRate, Channels: f.Channels}
}

// Frames returns the number of complete interleaved frames in Data.
func (f AudioFrame) Frames() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / (2 * f.Channels)
}
