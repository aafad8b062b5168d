package viz

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one published visualisation vector.
type Snapshot struct {
	// Bars are the bar heights, left to right, each in [MinAmplitude, 1].
	Bars []float32 `json:"bars"`

	// Level is an overall loudness indicator in [MinAmplitude, 1]: the
	// normalised volume, or the mean band energy in spectrum mode.
	Level float32 `json:"level"`

	// Version increases by one on every Store or Reset.
	Version uint64 `json:"version"`

	// Updated is when the snapshot was published.
	Updated time.Time `json:"updated"`
}

// State is the continuously updated bar vector a renderer polls. Readers
// always observe a complete vector of the configured length.
//
// State is safe for concurrent use.
type State struct {
	n            int
	minAmplitude float32

	mu  sync.Mutex // serialises writers
	cur atomic.Pointer[Snapshot]
}

// NewState returns a state of n bars resting at minAmplitude.
func NewState(n int, minAmplitude float32) *State {
	s := &State{n: n, minAmplitude: minAmplitude}
	s.cur.Store(&Snapshot{
		Bars:    floorBars(n, minAmplitude),
		Level:   minAmplitude,
		Updated: time.Now(),
	})
	return s
}

// Len returns the fixed bar count.
func (s *State) Len() int { return s.n }

// MinAmplitude returns the floor value used by Reset.
func (s *State) MinAmplitude() float32 { return s.minAmplitude }

// Bars returns a copy of the current bar vector.
func (s *State) Bars() []float32 {
	return slices.Clone(s.cur.Load().Bars)
}

// Snapshot returns a copy of the current snapshot.
func (s *State) Snapshot() Snapshot {
	snap := *s.cur.Load()
	snap.Bars = slices.Clone(snap.Bars)
	return snap
}

// Version returns the current snapshot version.
func (s *State) Version() uint64 { return s.cur.Load().Version }

// Store publishes a copy of bars with the given level. It fails if bars does
// not have the configured length.
func (s *State) Store(bars []float32, level float32) error {
	if len(bars) != s.n {
		return fmt.Errorf("viz: store %d bars into state of %d", len(bars), s.n)
	}
	s.publish(slices.Clone(bars), level)
	return nil
}

// Reset publishes the floor vector.
func (s *State) Reset() {
	s.publish(floorBars(s.n, s.minAmplitude), s.minAmplitude)
}

func (s *State) publish(bars []float32, level float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(&Snapshot{
		Bars:    bars,
		Level:   level,
		Version: s.cur.Load().Version + 1,
		Updated: time.Now(),
	})
}
