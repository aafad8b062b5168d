package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to constructors for voice platforms and
// speech-to-text backends. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]func(AudioConfig) (audio.Platform, error)
	stt   map[string]func(TranscriptionConfig) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio: make(map[string]func(AudioConfig) (audio.Platform, error)),
		stt:   make(map[string]func(TranscriptionConfig) (stt.Provider, error)),
	}
}

// RegisterAudio registers an audio platform factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(TranscriptionConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateAudio instantiates an audio platform using the factory registered
// under cfg.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Platform, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateSTT instantiates an STT provider using the factory registered under
// cfg.Name.
func (r *Registry) CreateSTT(cfg TranscriptionConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}
