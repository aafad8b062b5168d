package audio

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Sink receives raw PCM from a live [Track]. OnData is called on the track's
// delivery goroutine; data is only valid for the duration of the call and
// must be copied if retained. Implementations must not block.
type Sink interface {
	OnData(data []byte, bitsPerSample, sampleRate, channels, frames int, captured time.Duration)
}

// Track is a live audio track that pushes PCM to registered sinks.
type Track interface {
	// AddSink registers s. Adding the same sink twice has no effect.
	AddSink(s Sink)

	// RemoveSink unregisters s. After RemoveSink returns, s receives no
	// further calls.
	RemoveSink(s Sink)
}

// Compile-time interface assertion.
var _ Track = (*StreamTrack)(nil)

// StreamTrack adapts a per-participant input channel from a [Connection]
// into a push-style [Track]. A single pump goroutine reads frames and hands
// each to every registered sink in turn.
//
// StreamTrack is safe for concurrent use.
type StreamTrack struct {
	id string

	// mu is held for reading across each delivery so that RemoveSink blocks
	// until an in-flight OnData call has returned.
	mu    sync.RWMutex
	sinks []Sink

	done chan struct{}
}

// NewStreamTrack starts pumping frames from in. The pump stops when in is
// closed, after which [StreamTrack.Done] is closed.
func NewStreamTrack(id string, in <-chan AudioFrame) *StreamTrack {
	t := &StreamTrack{
		id:   id,
		done: make(chan struct{}),
	}
	go t.pump(in)
	return t
}

// ID returns the participant ID this track belongs to.
func (t *StreamTrack) ID() string { return t.id }

// Done is closed once the source stream has ended.
func (t *StreamTrack) Done() <-chan struct{} { return t.done }

// AddSink implements [Track].
func (t *StreamTrack) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.Contains(t.sinks, s) {
		return
	}
	t.sinks = append(t.sinks, s)
}

// RemoveSink implements [Track].
func (t *StreamTrack) RemoveSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = slices.DeleteFunc(t.sinks, func(x Sink) bool { return x == s })
}

func (t *StreamTrack) pump(in <-chan AudioFrame) {
	defer close(t.done)
	var warned bool
	for frame := range in {
		if len(frame.Data)%2 != 0 {
			if !warned {
				slog.Warn("audio: odd byte count in PCM data, dropping frame",
					"track", t.id,
					"bytes", len(frame.Data),
				)
				warned = true
			}
			continue
		}
		frames := frame.Frames()
		t.mu.RLock()
		for _, s := range t.sinks {
			s.OnData(frame.Data, 16, frame.SampleRate, frame.Channels, frames, frame.Timestamp)
		}
		t.mu.RUnlock()
	}
}
