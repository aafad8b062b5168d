package viz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// Buffer is a private copy of one PCM delivery from a track.
type Buffer struct {
	// Data holds interleaved signed 16-bit little-endian samples.
	Data []byte

	// Format is the format the producer reported for this delivery.
	Format audio.Format

	// Frames is the frame count the producer reported.
	Frames int

	// Captured is the producer's capture timestamp.
	Captured time.Duration
}

// SinkStats are running totals for a [SampleSink].
type SinkStats struct {
	// Received counts deliveries accepted into the handoff slot.
	Received uint64
	// Dropped counts accepted deliveries replaced before the consumer read them.
	Dropped uint64
	// Ignored counts deliveries that arrived after Detach.
	Ignored uint64
}

// SinkOption configures a [SampleSink].
type SinkOption func(*SampleSink)

// WithDropHook registers fn to be called on the producer goroutine each time
// an unread buffer is replaced. fn must not block.
func WithDropHook(fn func()) SinkOption {
	return func(s *SampleSink) { s.onDrop = fn }
}

// Compile-time interface assertion.
var _ audio.Sink = (*SampleSink)(nil)

// SampleSink receives PCM pushed by a live [audio.Track] and republishes it
// through a capacity-1 drop-oldest slot plus a format cell. The producer
// callback copies the borrowed buffer and returns without blocking.
//
// A SampleSink serves one attachment: create a new one for every track.
type SampleSink struct {
	mu     sync.Mutex // guards format and track
	format audio.Format
	track  audio.Track

	detached atomic.Bool

	formats *Latest[audio.Format]
	buffers *Latest[*Buffer]
	pool    sync.Pool

	received atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64

	onDrop func()
}

// NewSampleSink returns an unattached sink whose format cell holds
// [audio.DefaultFormat].
func NewSampleSink(opts ...SinkOption) *SampleSink {
	s := &SampleSink{
		format:  audio.DefaultFormat,
		formats: NewLatest[audio.Format](),
		buffers: NewLatest[*Buffer](),
	}
	s.pool.New = func() any { return new(Buffer) }
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attach registers the sink with track.
func (s *SampleSink) Attach(track audio.Track) error {
	if s.detached.Load() {
		return ErrDetached
	}
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	track.AddSink(s)
	return nil
}

// Detach unregisters the sink from its track. Deliveries racing with Detach
// are discarded. Detach is idempotent.
func (s *SampleSink) Detach() {
	if s.detached.Swap(true) {
		return
	}
	s.mu.Lock()
	track := s.track
	s.track = nil
	s.mu.Unlock()
	if track != nil {
		track.RemoveSink(s)
	}
	s.drain()
}

// drain releases whatever the consumer never picked up.
func (s *SampleSink) drain() {
	select {
	case b := <-s.buffers.C():
		s.Release(b)
	default:
	}
}

// OnData implements [audio.Sink].
func (s *SampleSink) OnData(data []byte, bitsPerSample, sampleRate, channels, frames int, captured time.Duration) {
	if s.detached.Load() {
		s.ignored.Add(1)
		return
	}

	f := audio.Format{BitsPerSample: bitsPerSample, SampleRate: sampleRate, Channels: channels}
	s.mu.Lock()
	if f != s.format {
		s.format = f
		s.formats.Offer(f)
	}
	s.mu.Unlock()

	b := s.pool.Get().(*Buffer)
	b.Data = append(b.Data[:0], data...)
	b.Format = f
	b.Frames = frames
	b.Captured = captured

	s.received.Add(1)
	if old, dropped := s.buffers.Offer(b); dropped {
		s.dropped.Add(1)
		s.Release(old)
		if s.onDrop != nil {
			s.onDrop()
		}
	}
	// A delivery that passed the check above while Detach was draining
	// must not leave its buffer behind.
	if s.detached.Load() {
		s.drain()
	}
}

// Buffers returns the drop-oldest handoff of copied deliveries. Consumers
// should hand each buffer back with [SampleSink.Release] once done.
func (s *SampleSink) Buffers() <-chan *Buffer {
	return s.buffers.C()
}

// FormatChanges delivers the new format each time a delivery's format
// differs from the previous one. Only the latest unread change is kept.
func (s *SampleSink) FormatChanges() <-chan audio.Format {
	return s.formats.C()
}

// Format returns the last observed format, or [audio.DefaultFormat] before
// the first delivery.
func (s *SampleSink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Release returns b to the sink's pool. b must not be used afterwards.
func (s *SampleSink) Release(b *Buffer) {
	if b == nil {
		return
	}
	s.pool.Put(b)
}

// Stats returns the sink's running totals.
func (s *SampleSink) Stats() SinkStats {
	return SinkStats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Ignored:  s.ignored.Load(),
	}
}
