package viz_test

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/audio/mock"
	"github.com/MrWong99/voxbars/pkg/viz"
)

func TestSampleSink_CopiesBorrowedBuffer(t *testing.T) {
	t.Parallel()

	track := &mock.Track{}
	s := viz.NewSampleSink()
	if err := s.Attach(track); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	track.Push(pcm, mono48)
	pcm[0] = 0xff // producer reuses its buffer

	b := <-s.Buffers()
	if !bytes.Equal(b.Data, samplesToBytes([]int16{1, 2, 3, 4})) {
		t.Errorf("buffer data was not copied: %v", b.Data)
	}
	if b.Format != mono48 || b.Frames != 4 {
		t.Errorf("buffer = {Format: %v, Frames: %d}, want {%v, 4}", b.Format, b.Frames, mono48)
	}
	s.Release(b)
}

func TestSampleSink_DropOldest(t *testing.T) {
	t.Parallel()

	var drops atomic.Int32
	track := &mock.Track{}
	s := viz.NewSampleSink(viz.WithDropHook(func() { drops.Add(1) }))
	_ = s.Attach(track)

	track.Push(samplesToBytes([]int16{1}), mono48)
	track.Push(samplesToBytes([]int16{2}), mono48)

	b := <-s.Buffers()
	if got := int16(b.Data[0]) | int16(b.Data[1])<<8; got != 2 {
		t.Errorf("consumer saw sample %d, want 2 (the second buffer)", got)
	}
	select {
	case <-s.Buffers():
		t.Error("first buffer should have been dropped")
	default:
	}

	st := s.Stats()
	if st.Received != 2 || st.Dropped != 1 {
		t.Errorf("Stats = %+v, want Received 2, Dropped 1", st)
	}
	if drops.Load() != 1 {
		t.Errorf("drop hook called %d times, want 1", drops.Load())
	}
}

func TestSampleSink_FormatCell(t *testing.T) {
	t.Parallel()

	track := &mock.Track{}
	s := viz.NewSampleSink()
	_ = s.Attach(track)

	if got := s.Format(); got != audio.DefaultFormat {
		t.Errorf("initial Format = %v, want %v", got, audio.DefaultFormat)
	}

	// Same as the initial format: no change signalled.
	track.Push(make([]byte, 8), mono48)
	select {
	case f := <-s.FormatChanges():
		t.Errorf("unexpected format change to %v", f)
	default:
	}

	track.Push(make([]byte, 8), stereo44)
	track.Push(make([]byte, 8), stereo44)
	select {
	case f := <-s.FormatChanges():
		if f != stereo44 {
			t.Errorf("format change = %v, want %v", f, stereo44)
		}
	default:
		t.Fatal("format change not signalled")
	}
	select {
	case f := <-s.FormatChanges():
		t.Errorf("repeated format signalled again: %v", f)
	default:
	}
	if got := s.Format(); got != stereo44 {
		t.Errorf("Format = %v, want %v", got, stereo44)
	}
}

func TestSampleSink_DetachStopsDelivery(t *testing.T) {
	t.Parallel()

	track := &mock.Track{}
	s := viz.NewSampleSink()
	_ = s.Attach(track)
	track.Push(make([]byte, 4), mono48)

	s.Detach()
	s.Detach() // idempotent

	if track.Sinks() != 0 {
		t.Errorf("track still has %d sinks after Detach", track.Sinks())
	}
	select {
	case <-s.Buffers():
		t.Error("pending buffer not released on Detach")
	default:
	}

	// A push racing with detach is a silent no-op.
	s.OnData(make([]byte, 4), 16, 48000, 1, 2, 0)
	if st := s.Stats(); st.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", st.Ignored)
	}
	select {
	case <-s.Buffers():
		t.Error("buffer delivered after Detach")
	default:
	}

	if err := s.Attach(track); !errors.Is(err, viz.ErrDetached) {
		t.Errorf("Attach after Detach = %v, want ErrDetached", err)
	}
}

func TestSampleSink_DetachDuringDelivery(t *testing.T) {
	t.Parallel()

	for i := range 200 {
		s := viz.NewSampleSink()
		_ = s.Attach(&mock.Track{})

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			s.OnData(make([]byte, 4), 16, 48000, 1, 2, 0)
		}()
		go func() {
			defer wg.Done()
			<-start
			s.Detach()
		}()
		close(start)
		wg.Wait()

		select {
		case <-s.Buffers():
			t.Fatalf("iteration %d: buffer left in a detached sink", i)
		default:
		}
	}
}
