package transcript

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithCorrector applies c to every final before it is merged.
func WithCorrector(c *Corrector) RecorderOption {
	return func(r *Recorder) { r.corrector = c }
}

// WithMetrics records segment updates on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithIDFunc replaces the random segment ID generator. Intended for tests.
func WithIDFunc(fn func() string) RecorderOption {
	return func(r *Recorder) { r.newID = fn }
}

// WithOnFinal calls fn with every closed segment after it is merged. fn runs
// on the recorder goroutine and must not block.
func WithOnFinal(fn func(ctx context.Context, seg Segment)) RecorderOption {
	return func(r *Recorder) { r.onFinal = fn }
}

// Recorder turns the partial and final transcripts of one STT session into
// segment updates for a [Store]. All partials up to and including the next
// final belong to the same segment.
type Recorder struct {
	store     *Store
	speaker   string
	corrector *Corrector
	metrics   *observe.Metrics
	now       func() time.Time
	newID     func() string
	onFinal   func(context.Context, Segment)

	current   string // ID of the open utterance, "" when none
	firstSeen time.Time
}

// NewRecorder returns a recorder that attributes every segment to speaker.
func NewRecorder(store *Store, speaker string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		speaker: speaker,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Run consumes sess until both of its channels are closed or ctx is done.
// Pending finals are handled before partials so an utterance is closed
// before the next one opens. Run does not close sess.
func (r *Recorder) Run(ctx context.Context, sess stt.SessionHandle) error {
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			r.handle(ctx, t)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			r.handle(ctx, t)
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			r.handle(ctx, t)
		}
	}
	return nil
}

func (r *Recorder) handle(ctx context.Context, t stt.Transcript) {
	now := r.now()

	if r.current == "" {
		// An empty final with nothing open has nothing to close.
		if t.Text == "" {
			return
		}
		r.current = r.newID()
		r.firstSeen = now
	}

	text := t.Text
	if t.IsFinal && r.corrector != nil {
		corrected, corrections := r.corrector.Correct(text)
		for _, c := range corrections {
			slog.Debug("transcript: corrected keyword",
				"segment", r.current,
				"original", c.Original,
				"corrected", c.Corrected,
				"confidence", c.Confidence,
			)
		}
		text = corrected
	}

	speaker := r.speaker
	if t.SpeakerID != "" && speaker == "" {
		speaker = t.SpeakerID
	}

	seg := Segment{
		ID:        r.current,
		Speaker:   speaker,
		Text:      text,
		FirstSeen: r.firstSeen,
		LastSeen:  now,
		Final:     t.IsFinal,
	}
	r.store.Merge(seg)
	r.metrics.RecordTranscriptSegment(ctx, t.IsFinal)

	if t.IsFinal {
		r.current = ""
		if r.onFinal != nil {
			r.onFinal(ctx, seg)
		}
	}
}
