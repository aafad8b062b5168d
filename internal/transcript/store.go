// Package transcript keeps the scrolling transcript shown next to the bars.
//
// Recognition results arrive as repeated updates of the same utterance: a
// partial is refined several times and finally committed. Each utterance is
// one [Segment] keyed by ID. Merging an update replaces the text and
// last-seen time but keeps the first-seen time, and readers always receive
// segments ordered by first-seen time so a refined line never jumps.
package transcript

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Segment is one utterance of one speaker.
type Segment struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Final     bool      `json:"final"`
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithLimit caps the number of retained segments. When exceeded the segments
// with the oldest FirstSeen are evicted. Zero means unlimited.
func WithLimit(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// Store is a mapping from segment ID to the latest version of that segment.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	segments map[string]Segment
	limit    int
	version  uint64
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{segments: make(map[string]Segment)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Merge applies updates in order. For an ID already present, Text, LastSeen
// and Final are replaced and FirstSeen is preserved; Speaker is only filled
// in when previously empty. Unknown IDs are inserted as given, with a zero
// LastSeen defaulting to FirstSeen. Updates without an ID are ignored.
func (s *Store) Merge(updates ...Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		cur, ok := s.segments[u.ID]
		if !ok {
			if u.LastSeen.IsZero() {
				u.LastSeen = u.FirstSeen
			}
			s.segments[u.ID] = u
			continue
		}
		cur.Text = u.Text
		cur.LastSeen = u.LastSeen
		cur.Final = u.Final
		if cur.Speaker == "" {
			cur.Speaker = u.Speaker
		}
		s.segments[u.ID] = cur
	}
	s.version++
	s.evict()
}

func (s *Store) evict() {
	if s.limit == 0 || len(s.segments) <= s.limit {
		return
	}
	ordered := s.orderedLocked()
	for _, seg := range ordered[:len(ordered)-s.limit] {
		delete(s.segments, seg.ID)
	}
}

// Get returns the segment with the given ID.
func (s *Store) Get(id string) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	return seg, ok
}

// Ordered returns a copy of all segments sorted by FirstSeen ascending, with
// ties broken by ID.
func (s *Store) Ordered() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderedLocked()
}

func (s *Store) orderedLocked() []Segment {
	out := make([]Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	slices.SortFunc(out, compareSegments)
	return out
}

func compareSegments(a, b Segment) int {
	if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Len returns the number of segments held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Version increases on every Merge and Clear.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Clear removes all segments.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.segments)
	s.version++
}
