package app

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

// sttSampleRate is the rate of the audio sent to transcription sessions. It
// matches the Discord decoder output so no resampling is needed.
const sttSampleRate = 48000

// sttQueueSize is the number of mono chunks buffered between the track and
// the transcription session.
const sttQueueSize = 64

// speechThreshold is the peak sample magnitude that counts as speech.
const speechThreshold = 256

// Compile-time interface assertions.
var (
	_ audio.Sink = (*sttFeed)(nil)
	_ audio.Sink = (*speakerDetector)(nil)
)

// sttFeed forwards a track to a transcription session as 16-bit mono. OnData
// never blocks: chunks that do not fit the queue are dropped.
type sttFeed struct {
	sess stt.SessionHandle
	rate int

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	dropped atomic.Uint64
	warned  atomic.Bool
}

func newSTTFeed(sess stt.SessionHandle, rate int) *sttFeed {
	f := &sttFeed{
		sess:  sess,
		rate:  rate,
		queue: make(chan []byte, sttQueueSize),
		done:  make(chan struct{}),
	}
	go f.run()
	return f
}

// OnData implements [audio.Sink]. It must not be called after Close.
func (f *sttFeed) OnData(data []byte, bitsPerSample, sampleRate, channels, _ int, _ time.Duration) {
	if bitsPerSample != 16 || sampleRate != f.rate {
		if !f.warned.Swap(true) {
			slog.Warn("session: audio format not accepted by transcription, skipping",
				"bits", bitsPerSample,
				"rate", sampleRate,
				"want_rate", f.rate,
			)
		}
		return
	}
	select {
	case f.queue <- audio.Downmix(nil, data, channels):
	default:
		f.dropped.Add(1)
	}
}

// Close stops forwarding after the queued chunks have been sent.
func (f *sttFeed) Close() {
	f.closeOnce.Do(func() { close(f.queue) })
	<-f.done
	if n := f.dropped.Load(); n > 0 {
		slog.Debug("session: transcription feed dropped chunks", "dropped", n)
	}
}

func (f *sttFeed) run() {
	defer close(f.done)
	var closed bool
	for chunk := range f.queue {
		if closed {
			continue
		}
		if err := f.sess.SendAudio(chunk); err != nil {
			if errors.Is(err, stt.ErrSessionClosed) {
				closed = true
				continue
			}
			slog.Debug("session: send audio to transcription", "err", err)
		}
	}
}

// speakerDetector reports the first buffer of id that carries speech.
type speakerDetector struct {
	id   string
	fire func(id string)
	once sync.Once
}

// OnData implements [audio.Sink].
func (p *speakerDetector) OnData(data []byte, bitsPerSample, _, _, _ int, _ time.Duration) {
	if bitsPerSample != 16 || !loud(data) {
		return
	}
	p.once.Do(func() { go p.fire(p.id) })
}

func loud(pcm []byte) bool {
	for i := range len(pcm) / 2 {
		s := audio.Sample(pcm, i)
		if s >= speechThreshold || s <= -speechThreshold {
			return true
		}
	}
	return false
}
