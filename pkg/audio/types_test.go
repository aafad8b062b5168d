package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

func TestFormat_FrameSize(t *testing.T) {
	t.Parallel()
	f := audio.Format{BitsPerSample: 16, SampleRate: 48000, Channels: 2}
	if got := f.FrameSize(); got != 4 {
		t.Errorf("FrameSize = %d, want 4", got)
	}
}

func TestFormat_FramesFor(t *testing.T) {
	t.Parallel()
	f := audio.Format{BitsPerSample: 16, SampleRate: 44100, Channels: 1}
	if got := f.FramesFor(250 * time.Millisecond); got != 11025 {
		t.Errorf("FramesFor(250ms) = %d, want 11025", got)
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.DefaultFormat, "48000Hz mono s16"},
		{audio.Format{BitsPerSample: 16, SampleRate: 44100, Channels: 2}, "44100Hz stereo s16"},
		{audio.Format{BitsPerSample: 16, SampleRate: 16000, Channels: 6}, "16000Hz 6ch s16"},
	}
	for _, tc := range tests {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestAudioFrame_Frames(t *testing.T) {
	t.Parallel()
	f := audio.AudioFrame{Data: make([]byte, 3840), SampleRate: 48000, Channels: 2}
	if got := f.Frames(); got != 960 {
		t.Errorf("Frames = %d, want 960", got)
	}
	if got := (audio.AudioFrame{Data: make([]byte, 4)}).Frames(); got != 0 {
		t.Errorf("Frames with zero channels = %d, want 0", got)
	}
}

func TestEventType_String(t *testing.T) {
	t.Parallel()
	tests := map[audio.EventType]string{
		audio.EventJoin:       "JOIN",
		audio.EventLeave:      "LEAVE",
		audio.EventAttributes: "ATTRIBUTES",
		audio.EventDisconnect: "DISCONNECT",
		audio.EventType(99):   "UNKNOWN",
	}
	for e, want := range tests {
		if got := e.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(e), got, want)
		}
	}
}
