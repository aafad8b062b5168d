// Package agentstate follows the conversational state that voice agents
// publish as a participant attribute.
package agentstate

import (
	"maps"
	"sync"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// Attribute keys carrying the state. AttributeKey wins when both are set.
const (
	AttributeKey       = "lk.agent.state"
	LegacyAttributeKey = "voice_assistant.state"
)

// State is what an agent is currently doing.
type State int

const (
	Unknown State = iota
	Listening
	Thinking
	Speaking
)

// String returns the attribute value for s, or "unknown".
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Parse maps an attribute value to a State. Matching is exact; anything
// unrecognised is [Unknown].
func Parse(v string) State {
	switch v {
	case "listening":
		return Listening
	case "thinking":
		return Thinking
	case "speaking":
		return Speaking
	default:
		return Unknown
	}
}

// FromAttributes reads the state from a participant attribute set. ok is
// false when neither key is present.
func FromAttributes(attrs map[string]string) (s State, ok bool) {
	if v, found := attrs[AttributeKey]; found {
		return Parse(v), true
	}
	if v, found := attrs[LegacyAttributeKey]; found {
		return Parse(v), true
	}
	return Unknown, false
}

// Tracker keeps the latest state per participant. It is safe for concurrent
// use and is fed from [audio.Connection.OnParticipantChange].
type Tracker struct {
	mu       sync.RWMutex
	states   map[string]State
	onChange func(participant string, s State)
}

// NewTracker returns an empty tracker. onChange, if non-nil, is called
// outside the lock whenever a participant's state changes.
func NewTracker(onChange func(participant string, s State)) *Tracker {
	return &Tracker{states: make(map[string]State), onChange: onChange}
}

// Handle applies ev. Attribute events without a state key leave the tracked
// state untouched; leave events forget the participant.
func (t *Tracker) Handle(ev audio.Event) {
	switch ev.Type {
	case audio.EventAttributes:
		s, ok := FromAttributes(ev.Attributes)
		if !ok {
			return
		}
		t.set(ev.UserID, s)
	case audio.EventLeave:
		t.mu.Lock()
		delete(t.states, ev.UserID)
		t.mu.Unlock()
	}
}

func (t *Tracker) set(id string, s State) {
	t.mu.Lock()
	prev, had := t.states[id]
	t.states[id] = s
	t.mu.Unlock()
	if (!had || prev != s) && t.onChange != nil {
		t.onChange(id, s)
	}
}

// Get returns the state of participant id, or [Unknown].
func (t *Tracker) Get(id string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[id]
}

// All returns a copy of every tracked state.
func (t *Tracker) All() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.states)
}
