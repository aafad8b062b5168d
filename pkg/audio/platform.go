// Package audio defines the interfaces and types for audio platform
// connectivity and per-participant track access within voxbars.
//
// The primary abstractions are:
//
//   - [Platform] connects to a voice channel and returns a [Connection].
//   - [Connection] represents an active, receive-only session on that channel,
//     giving callers per-participant input streams and lifecycle events.
//   - [Track] and [Sink] form the push contract between a live audio track and
//     an analysis consumer. [StreamTrack] adapts a [Connection] input stream
//     into a [Track].
//
// Implementations of [Platform] are provided by adapter packages (e.g.,
// audio/discord). This package lives under pkg/ because external code is
// expected to implement [Platform], [Connection] and [Track].
package audio

import (
	"context"
)

// EventType classifies participant lifecycle events emitted by a [Connection].
type EventType int

const (
	// EventJoin is emitted when a participant enters the voice channel.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the voice channel.
	EventLeave

	// EventAttributes is emitted when a participant's key/value attributes
	// change. Only platforms that carry participant metadata emit it.
	EventAttributes

	// EventDisconnect is emitted once when the platform drops the voice
	// connection without [Connection.Disconnect] being called. UserID is
	// empty.
	EventDisconnect
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	case EventAttributes:
		return "ATTRIBUTES"
	case EventDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Event describes a participant change on a voice channel.
// Callbacks registered via [Connection.OnParticipantChange] receive values of this type.
type Event struct {
	// Type indicates what changed.
	Type EventType

	// UserID is the platform-specific unique identifier for the participant.
	UserID string

	// Username is the human-readable display name of the participant.
	Username string

	// Attributes holds the participant's full attribute set for
	// [EventAttributes]; nil otherwise.
	Attributes map[string]string
}

// Connection represents an active receive-only session on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called. All channels returned by
// [Connection] methods are closed automatically when the connection
// terminates.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// InputStreams returns a snapshot of the current per-participant audio channels.
	// The map key is the platform-specific participant ID; the value is a read-only
	// channel that delivers [AudioFrame] values as they arrive from that
	// participant.
	//
	// Callers should call InputStreams again after receiving an [EventJoin] event to
	// pick up newly added channels.
	InputStreams() map[string]<-chan AudioFrame

	// OnParticipantChange registers cb as the callback to invoke whenever a
	// participant joins, leaves or changes attributes. Only one callback may be
	// registered at a time; subsequent calls replace the previous registration.
	// The callback is invoked on an internal goroutine; callers must not block.
	OnParticipantChange(cb func(Event))

	// Disconnect cleanly tears down the connection and closes all channels.
	// It is safe to call Disconnect more than once; subsequent calls are no-ops
	// and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an active
	// [Connection]. The supplied ctx governs the connection attempt only.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
