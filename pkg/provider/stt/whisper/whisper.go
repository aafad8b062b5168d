// Package whisper provides a local whisper.cpp speech-to-text backend, used
// as an offline fallback behind a hosted provider.
//
// whisper.cpp transcribes whole clips, so a session buffers incoming audio,
// cuts it into utterances at pauses, and transcribes each utterance once it
// is complete. Every utterance is emitted as a partial and a final carrying
// the same text.
//
// The model runs in-process through the whisper.cpp cgo bindings. They are
// compiled in with the "whisper" build tag and need libwhisper and
// whisper.h at link time; without the tag [New] returns [ErrUnavailable].
package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

// ErrUnavailable is returned by [New] in builds without whisper.cpp.
var ErrUnavailable = errors.New("whisper: built without whisper.cpp support (rebuild with -tags whisper)")

// modelRate is the only sample rate whisper.cpp accepts.
const modelRate = 16000

const (
	defaultLanguage     = "en"
	defaultSilence      = 500 * time.Millisecond
	defaultMaxUtterance = 10 * time.Second

	// defaultThreshold is the RMS level, in 16-bit sample units, below which
	// audio counts as a pause.
	defaultThreshold = 300.0
)

// Compile-time interface assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)
)

// Transcriber turns 16 kHz mono samples in [-1, 1] into text.
type Transcriber interface {
	Transcribe(samples []float32, language string) (string, error)
	Close() error
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language used when a stream does not name one.
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilence sets how long a pause must last to end an utterance.
// Defaults to 500ms.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.silence = d }
}

// WithMaxUtterance forces a cut once an utterance grows this long.
// Defaults to 10s.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.maxUtterance = d }
}

// Provider implements [stt.Provider] on a whisper.cpp model shared by all
// sessions.
type Provider struct {
	model        Transcriber
	language     string
	silence      time.Duration
	maxUtterance time.Duration
	threshold    float64
}

// New loads the model file at modelPath.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := loadModel(modelPath)
	if err != nil {
		return nil, err
	}
	return newProvider(model, opts...), nil
}

func newProvider(model Transcriber, opts ...Option) *Provider {
	p := &Provider{
		model:        model,
		language:     defaultLanguage,
		silence:      defaultSilence,
		maxUtterance: defaultMaxUtterance,
		threshold:    defaultThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close releases the model.
func (p *Provider) Close() error {
	return p.model.Close()
}

// StartStream opens a session. The stream's sample rate must be a multiple
// of 16 kHz; audio is down-mixed and decimated before segmentation.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = modelRate
	}
	if rate%modelRate != 0 {
		return nil, fmt.Errorf("whisper: sample rate %d is not a multiple of %d", rate, modelRate)
	}
	channels := max(cfg.Channels, 1)
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	s := &session{
		model:    p.model,
		language: lang,
		channels: channels,
		factor:   rate / modelRate,
		seg:      newSegmenter(p.threshold, p.silence, p.maxUtterance),
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// session buffers audio and transcribes finished utterances. All segmenter
// state is owned by the run goroutine.
type session struct {
	model    Transcriber
	language string
	channels int
	factor   int
	seg      *segmenter

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio implements [stt.SessionHandle].
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials implements [stt.SessionHandle].
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals implements [stt.SessionHandle].
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords implements [stt.SessionHandle]. whisper.cpp has no keyword
// boosting.
func (s *session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("whisper: keywords: %w", stt.ErrNotSupported)
}

// Close transcribes the pending utterance and ends the session.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var mono []byte
	for {
		select {
		case <-ctx.Done():
			s.emit(s.seg.flush())
			return
		case <-s.done:
			s.emit(s.seg.flush())
			return
		case chunk := <-s.audioCh:
			mono = audio.Downmix(mono, chunk, s.channels)
			s.emit(s.seg.push(decimate(mono, s.factor)))
		}
	}
}

func (s *session) emit(u *utterance) {
	if u == nil {
		return
	}
	text, err := s.model.Transcribe(u.samples, s.language)
	if err != nil {
		slog.Warn("whisper: transcription failed", "err", err, "duration", u.duration)
		return
	}
	if text == "" {
		return
	}
	t := stt.Transcript{Text: text, Timestamp: u.start, Duration: u.duration}
	select {
	case s.partials <- t:
	default:
	}
	t.IsFinal = true
	select {
	case s.finals <- t:
	default:
	}
}

// decimate converts 16-bit mono PCM to float samples, averaging each run of
// factor samples into one.
func decimate(pcm []byte, factor int) []float32 {
	n := len(pcm) / 2 / factor
	out := make([]float32, n)
	for i := range n {
		var sum int32
		for j := range factor {
			sum += int32(audio.Sample(pcm, i*factor+j))
		}
		out[i] = float32(sum) / float32(factor) / 32768
	}
	return out
}
