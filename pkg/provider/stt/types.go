package stt

import "time"

// Transcript is a single recognition result. Partials and finals share the type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal is true once the provider has committed to Text.
	IsFinal bool

	// Confidence in [0, 1]. Zero when the provider does not report it.
	Confidence float64

	// Words holds per-word detail when available.
	Words []WordDetail

	// SpeakerID identifies the speaker when diarization is active.
	SpeakerID string

	// Timestamp is the utterance start relative to session start.
	Timestamp time.Duration

	// Duration is the length of the recognised audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost raises the recognition probability of Keyword by Boost
// (provider-specific scale).
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
