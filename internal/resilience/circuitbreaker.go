// Package resilience keeps the transcript flowing when a speech backend
// misbehaves. [Breaker] stops hammering a backend that keeps failing and
// [STTFailover] moves new sessions to the next healthy backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Breaker defaults.
const (
	defaultMaxFailures  = 3
	defaultResetTimeout = 30 * time.Second
)

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// Closed forwards every call.
	Closed BreakerState = iota

	// Open rejects calls with [ErrCircuitOpen] until the reset timeout.
	Open

	// HalfOpen lets a single trial call through; its outcome closes or re-opens
	// the breaker.
	HalfOpen
)

// String returns the lower-case name of the state.
func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Defaults to 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before it admits a
	// trial call. Defaults to 30s.
	ResetTimeout time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		now:          cfg.Now,
	}
	if b.maxFailures <= 0 {
		b.maxFailures = defaultMaxFailures
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = defaultResetTimeout
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Do runs fn unless the breaker is open. fn's error is returned unchanged
// and counted as a failure.
func (b *Breaker) Do(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(trial, err)
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = HalfOpen
		slog.Info("resilience: breaker half-open", "name", b.name)
		fallthrough
	case HalfOpen:
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.probing = false
	}
	if err == nil {
		if b.state != Closed {
			slog.Info("resilience: breaker closed", "name", b.name)
		}
		b.state = Closed
		b.failures = 0
		return
	}

	b.failures++
	if trial || b.failures >= b.maxFailures {
		if b.state != Open {
			slog.Warn("resilience: breaker opened", "name", b.name, "failures", b.failures, "err", err)
		}
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current state. An open breaker whose timeout has passed
// reports [HalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return HalfOpen
	}
	return b.state
}
