// Package stt defines the Provider interface for speech-to-text backends.
//
// The transcript panel next to the bars is fed by one streaming session per
// followed participant. A session accepts raw little-endian PCM and emits two
// streams of [Transcript] values: interim partials that may still change and
// finals that close an utterance.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional session operations the backend
// cannot perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (48000 for Discord decode output).
	SampleRate int

	// Channels is the number of interleaved channels in each chunk.
	Channels int

	// Language is the BCP-47 language tag. Empty lets the provider decide.
	Language string

	// Keywords are vocabulary hints for names the recogniser would otherwise miss.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when done. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM in the format agreed in StreamConfig.
	// Returns ErrSessionClosed after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword list mid-session. Backends without
	// support return an error wrapping ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close flushes pending audio and releases the session. Safe to call twice.
	Close() error
}

// Provider opens streaming sessions against one backend.
type Provider interface {
	// StartStream opens a session ready to accept audio. The caller owns the
	// returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
