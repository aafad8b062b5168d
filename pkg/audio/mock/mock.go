// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Connection], and [audio.Track] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	track := &mock.Track{}
//	p.Attach(ctx, "user-1", track)
//	track.Push(pcm, audio.Format{BitsPerSample: 16, SampleRate: 48000, Channels: 2})
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// InputStreamsResult is returned by [Connection.InputStreams].
	// Defaults to an empty (non-nil) map if left nil.
	InputStreamsResult map[string]<-chan audio.AudioFrame

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountInputStreams records how many times InputStreams was called.
	CallCountInputStreams int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// CallCountOnParticipantChange records how many times OnParticipantChange was called.
	CallCountOnParticipantChange int

	// RecordedCallbacks holds the callbacks registered via OnParticipantChange,
	// in order of registration.
	RecordedCallbacks []func(audio.Event)
}

// InputStreams implements [audio.Connection]. Returns InputStreamsResult.
// If InputStreamsResult is nil, an empty non-nil map is returned.
func (c *Connection) InputStreams() map[string]<-chan audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountInputStreams++
	if c.InputStreamsResult == nil {
		return map[string]<-chan audio.AudioFrame{}
	}
	return c.InputStreamsResult
}

// SetInputStreams replaces InputStreamsResult under the mock's lock.
func (c *Connection) SetInputStreams(streams map[string]<-chan audio.AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InputStreamsResult = streams
}

// OnParticipantChange implements [audio.Connection].
// The callback is appended to RecordedCallbacks. To simulate events in tests,
// call [Connection.EmitEvent].
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOnParticipantChange++
	c.RecordedCallbacks = append(c.RecordedCallbacks, cb)
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// EmitEvent calls all registered participant-change callbacks with the given event.
// Use this in tests to simulate participants joining, leaving or updating
// attributes.
func (c *Connection) EmitEvent(ev audio.Event) {
	c.mu.Lock()
	cbs := make([]func(audio.Event), len(c.RecordedCallbacks))
	copy(cbs, c.RecordedCallbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform]. Records the call and returns ConnectResult / ConnectError.
func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	return p.ConnectResult, p.ConnectError
}

// ConnectCallCount returns the number of Connect calls. Thread-safe.
func (p *Platform) ConnectCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// ─── Track ────────────────────────────────────────────────────────────────────

// Track is a mock implementation of [audio.Track]. Tests drive it with
// [Track.Push], which calls every registered sink synchronously on the
// caller's goroutine.
type Track struct {
	mu    sync.Mutex
	sinks []audio.Sink

	// CallCountAddSink records how many times AddSink was called.
	CallCountAddSink int

	// CallCountRemoveSink records how many times RemoveSink was called.
	CallCountRemoveSink int
}

// AddSink implements [audio.Track].
func (t *Track) AddSink(s audio.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountAddSink++
	if !slices.Contains(t.sinks, s) {
		t.sinks = append(t.sinks, s)
	}
}

// RemoveSink implements [audio.Track].
func (t *Track) RemoveSink(s audio.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountRemoveSink++
	t.sinks = slices.DeleteFunc(t.sinks, func(x audio.Sink) bool { return x == s })
}

// Sinks returns the number of currently registered sinks.
func (t *Track) Sinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// Push delivers pcm in format f to every registered sink. Like a real
// track, the buffer is reused by the caller after Push returns.
func (t *Track) Push(pcm []byte, f audio.Format) {
	t.mu.Lock()
	sinks := slices.Clone(t.sinks)
	t.mu.Unlock()
	frames := 0
	if fs := f.FrameSize(); fs > 0 {
		frames = len(pcm) / fs
	}
	for _, s := range sinks {
		s.OnData(pcm, f.BitsPerSample, f.SampleRate, f.Channels, frames, time.Duration(0))
	}
}
