package audio_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

type sinkCall struct {
	bytes, bits, rate, channels, frames int
}

func (r *recordingSink) OnData(data []byte, bits, rate, channels, frames int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sinkCall{len(data), bits, rate, channels, frames})
}

func (r *recordingSink) snapshot() []sinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkCall(nil), r.calls...)
}

func TestStreamTrack_DeliversToSinks(t *testing.T) {
	t.Parallel()

	in := make(chan audio.AudioFrame, 4)
	tr := audio.NewStreamTrack("u1", in)
	if tr.ID() != "u1" {
		t.Errorf("ID = %q, want u1", tr.ID())
	}

	a, b := &recordingSink{}, &recordingSink{}
	tr.AddSink(a)
	tr.AddSink(a) // duplicate is ignored
	tr.AddSink(b)

	in <- audio.AudioFrame{Data: make([]byte, 3840), SampleRate: 48000, Channels: 2}
	in <- audio.AudioFrame{Data: make([]byte, 3), SampleRate: 48000, Channels: 2} // odd, dropped
	close(in)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pump to finish")
	}

	for name, s := range map[string]*recordingSink{"a": a, "b": b} {
		calls := s.snapshot()
		if len(calls) != 1 {
			t.Fatalf("sink %s: got %d calls, want 1", name, len(calls))
		}
		want := sinkCall{bytes: 3840, bits: 16, rate: 48000, channels: 2, frames: 960}
		if calls[0] != want {
			t.Errorf("sink %s: call = %+v, want %+v", name, calls[0], want)
		}
	}
}

func TestStreamTrack_RemoveSink(t *testing.T) {
	t.Parallel()

	in := make(chan audio.AudioFrame)
	tr := audio.NewStreamTrack("u1", in)
	s := &recordingSink{}
	tr.AddSink(s)

	in <- audio.AudioFrame{Data: make([]byte, 4), SampleRate: 48000, Channels: 1}
	deadline := time.Now().Add(time.Second)
	for len(s.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for first delivery")
		}
		time.Sleep(time.Millisecond)
	}
	tr.RemoveSink(s)
	in <- audio.AudioFrame{Data: make([]byte, 4), SampleRate: 48000, Channels: 1}
	close(in)
	<-tr.Done()

	if got := len(s.snapshot()); got != 1 {
		t.Errorf("got %d calls, want 1 (none after RemoveSink)", got)
	}
}
