package whisper

import (
	"math"
	"time"
)

// utterance is a finished stretch of speech at 16 kHz.
type utterance struct {
	samples  []float32
	start    time.Duration
	duration time.Duration
}

// segmenter cuts a 16 kHz sample stream into utterances. Leading pauses are
// dropped; an utterance ends after a long enough pause or once it reaches
// the maximum length.
type segmenter struct {
	threshold  float32 // RMS in [-1, 1] units
	pauseLimit int     // samples
	maxLen     int     // samples

	buf       []float32
	hadSpeech bool
	paused    int
	start     int // stream offset of buf[0]
	pos       int // samples seen so far
}

func newSegmenter(threshold float64, pause, maxLen time.Duration) *segmenter {
	return &segmenter{
		threshold:  float32(threshold / 32768),
		pauseLimit: samplesIn(pause),
		maxLen:     samplesIn(maxLen),
	}
}

// push adds a chunk and returns an utterance when the chunk completes one.
func (s *segmenter) push(chunk []float32) *utterance {
	if len(chunk) == 0 {
		return nil
	}
	offset := s.pos
	s.pos += len(chunk)

	if rms(chunk) < s.threshold {
		if !s.hadSpeech {
			return nil
		}
		s.buf = append(s.buf, chunk...)
		s.paused += len(chunk)
		if s.paused >= s.pauseLimit {
			return s.flush()
		}
		return nil
	}

	if !s.hadSpeech {
		s.hadSpeech = true
		s.start = offset
	}
	s.paused = 0
	s.buf = append(s.buf, chunk...)
	if s.maxLen > 0 && len(s.buf) >= s.maxLen {
		return s.flush()
	}
	return nil
}

// flush returns the buffered utterance, if it contains speech, and resets.
func (s *segmenter) flush() *utterance {
	defer func() {
		s.buf = nil
		s.hadSpeech = false
		s.paused = 0
	}()
	if !s.hadSpeech || len(s.buf) == 0 {
		return nil
	}
	return &utterance{
		samples:  s.buf,
		start:    durationOf(s.start),
		duration: durationOf(len(s.buf)),
	}
}

func rms(samples []float32) float32 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

func samplesIn(d time.Duration) int {
	return int(d * modelRate / time.Second)
}

func durationOf(samples int) time.Duration {
	return time.Duration(samples) * time.Second / modelRate
}
