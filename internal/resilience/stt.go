package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

// ErrAllFailed is returned when no backend could open a session.
var ErrAllFailed = errors.New("resilience: all stt backends failed")

// Compile-time interface assertion.
var _ stt.Provider = (*STTFailover)(nil)

type sttBackend struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// STTFailover opens sessions against the first backend whose breaker is
// closed, in registration order. A session that has started is never moved;
// only new sessions fail over.
type STTFailover struct {
	backends []sttBackend
	cfg      BreakerConfig
}

// NewSTTFailover creates a failover with primary as the preferred backend.
// cfg is the template for every backend's breaker; its Name is replaced.
func NewSTTFailover(primaryName string, primary stt.Provider, cfg BreakerConfig) *STTFailover {
	f := &STTFailover{cfg: cfg}
	f.Add(primaryName, primary)
	return f
}

// Add registers a further backend. It must not be called concurrently with
// StartStream.
func (f *STTFailover) Add(name string, p stt.Provider) {
	cfg := f.cfg
	cfg.Name = "stt/" + name
	f.backends = append(f.backends, sttBackend{name: name, provider: p, breaker: NewBreaker(cfg)})
}

// Backends returns the registered names with their breaker states.
func (f *STTFailover) Backends() map[string]BreakerState {
	out := make(map[string]BreakerState, len(f.backends))
	for _, b := range f.backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// StartStream implements [stt.Provider].
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var errs []error
	for _, b := range f.backends {
		var sess stt.SessionHandle
		err := b.breaker.Do(func() error {
			var err error
			sess, err = b.provider.StartStream(ctx, cfg)
			return err
		})
		if err == nil {
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("resilience: stt backend failed, trying next", "backend", b.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
