package viz

import "sync"

// Latest is a single-slot, drop-oldest handoff. Producers never block: when
// the slot already holds an unread value, [Latest.Offer] replaces it. The
// consumer receives from [Latest.C].
//
// Any number of goroutines may call Offer; the slot is meant for a single
// consumer.
type Latest[T any] struct {
	mu   sync.Mutex // serialises producers
	ch   chan T
	last T
	set  bool
}

// NewLatest returns an empty slot.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ch: make(chan T, 1)}
}

// Offer publishes v. If an unread value was pending it is removed and
// returned with dropped set to true.
func (l *Latest[T]) Offer(v T) (old T, dropped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last, l.set = v, true
	select {
	case l.ch <- v:
		return old, false
	default:
	}
	select {
	case old = <-l.ch:
		dropped = true
	default:
		// The consumer drained the slot in between.
	}
	l.ch <- v
	return old, dropped
}

// C returns the receive side of the slot.
func (l *Latest[T]) C() <-chan T {
	return l.ch
}

// Last returns the most recently offered value, whether or not it has been
// consumed. ok is false if nothing was ever offered.
func (l *Latest[T]) Last() (v T, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.set
}
