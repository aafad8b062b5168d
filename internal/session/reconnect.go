// Package session keeps a voice connection alive for the lifetime of a
// visualiser session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// Default redial parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrGaveUp is passed to OnGiveUp once every redial attempt has failed.
var ErrGaveUp = errors.New("session: reconnect attempts exhausted")

// Reconnector owns the voice connection of one session and redials the
// same channel when the platform drops it.
//
// The session obtains the first connection with [Reconnector.Connect] and
// starts [Reconnector.Monitor]. When the connection reports
// [audio.EventDisconnect] the session calls [Reconnector.NotifyDisconnect];
// the monitor then redials with exponential backoff and hands the new
// connection to OnReconnect so the followed participant can be re-attached.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	platform    audio.Platform
	channelID   string
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(audio.Connection)
	onGiveUp    func(error)

	mu   sync.Mutex
	conn audio.Connection

	attempts atomic.Int64
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Platform dials the voice channel.
	Platform audio.Platform

	// ChannelID is the voice channel to keep joined.
	ChannelID string

	// MaxRetries bounds the redials per outage. Defaults to 10.
	MaxRetries int

	// Backoff is the wait after the first failed redial. It doubles on each
	// further failure up to MaxBackoff. Defaults to 1s.
	Backoff time.Duration

	// MaxBackoff caps the wait between redials. Defaults to 30s.
	MaxBackoff time.Duration

	// OnReconnect receives each replacement connection. Optional.
	OnReconnect func(audio.Connection)

	// OnGiveUp is called when an outage outlasts MaxRetries. Optional.
	OnGiveUp func(error)
}

// NewReconnector creates a [Reconnector]. Zero durations and retries take
// their defaults.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		platform:    cfg.Platform,
		channelID:   cfg.ChannelID,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
		onReconnect: cfg.OnReconnect,
		onGiveUp:    cfg.OnGiveUp,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	return r
}

// ChannelID returns the voice channel this reconnector dials.
func (r *Reconnector) ChannelID() string { return r.channelID }

// Connect dials the channel for the first time.
func (r *Reconnector) Connect(ctx context.Context) (audio.Connection, error) {
	conn, err := r.platform.Connect(ctx, r.channelID)
	if err != nil {
		return nil, fmt.Errorf("session: connect %s: %w", r.channelID, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return conn, nil
}

// Connection returns the live connection, or nil before Connect, after
// Stop, and while an outage is being redialled.
func (r *Reconnector) Connection() audio.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// Attempts returns the number of redials made so far.
func (r *Reconnector) Attempts() int64 { return r.attempts.Load() }

// Monitor starts the redial loop. It exits when ctx is done or Stop is
// called.
func (r *Reconnector) Monitor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-r.wake:
				r.redial(ctx)
			}
		}
	}()
}

// NotifyDisconnect reports that the current connection dropped. Repeated
// notifications during one outage collapse into one.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop ends monitoring and disconnects the live connection. Safe to call
// more than once.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Disconnect()
}

func (r *Reconnector) redial(ctx context.Context) {
	r.mu.Lock()
	dropped := r.conn
	r.conn = nil
	r.mu.Unlock()
	if dropped != nil {
		_ = dropped.Disconnect()
	}

	wait := r.backoff
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if r.stopped(ctx) {
			return
		}
		r.attempts.Add(1)

		conn, err := r.platform.Connect(ctx, r.channelID)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.mu.Unlock()
			slog.Info("session: voice reconnected", "channel_id", r.channelID, "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect(conn)
			}
			return
		}
		slog.Warn("session: reconnect failed",
			"channel_id", r.channelID,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"err", err,
		)

		if attempt == r.maxRetries {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-r.stop:
			t.Stop()
			return
		case <-t.C:
		}
		wait = min(wait*2, r.maxBackoff)
	}

	slog.Error("session: giving up on voice channel", "channel_id", r.channelID, "retries", r.maxRetries)
	if r.onGiveUp != nil {
		r.onGiveUp(fmt.Errorf("%w after %d attempts", ErrGaveUp, r.maxRetries))
	}
}

func (r *Reconnector) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-r.stop:
		return true
	default:
		return false
	}
}
