package transcript_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxbars/internal/transcript"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func ids(segs []transcript.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}

func TestStore_MergePreservesFirstSeen(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	s.Merge(transcript.Segment{ID: "a", Speaker: "alice", Text: "hel", FirstSeen: at(1)})
	s.Merge(transcript.Segment{ID: "a", Text: "hello there", FirstSeen: at(9), LastSeen: at(3), Final: true})

	got, ok := s.Get("a")
	if !ok {
		t.Fatal("segment a missing")
	}
	if !got.FirstSeen.Equal(at(1)) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, at(1))
	}
	if !got.LastSeen.Equal(at(3)) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, at(3))
	}
	if got.Text != "hello there" || !got.Final {
		t.Errorf("got %+v, want replaced text and Final", got)
	}
	if got.Speaker != "alice" {
		t.Errorf("Speaker = %q, want alice", got.Speaker)
	}
}

func TestStore_NewSegmentLastSeenDefaults(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	s.Merge(transcript.Segment{ID: "a", FirstSeen: at(4)})
	got, _ := s.Get("a")
	if !got.LastSeen.Equal(at(4)) {
		t.Errorf("LastSeen = %v, want FirstSeen", got.LastSeen)
	}
}

func TestStore_OrderedByFirstSeen(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	s.Merge(
		transcript.Segment{ID: "late", FirstSeen: at(30)},
		transcript.Segment{ID: "early", FirstSeen: at(10)},
		transcript.Segment{ID: "mid", FirstSeen: at(20)},
	)
	// A later update to the earliest segment must not move it.
	s.Merge(transcript.Segment{ID: "early", Text: "updated", LastSeen: at(40)})

	want := []string{"early", "mid", "late"}
	got := ids(s.Ordered())
	if len(got) != len(want) {
		t.Fatalf("Ordered() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ordered() = %v, want %v", got, want)
		}
	}
}

func TestStore_TiesBrokenByID(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	s.Merge(
		transcript.Segment{ID: "b", FirstSeen: at(1)},
		transcript.Segment{ID: "a", FirstSeen: at(1)},
	)
	if got := ids(s.Ordered()); got[0] != "a" || got[1] != "b" {
		t.Errorf("Ordered() = %v, want [a b]", got)
	}
}

func TestStore_IgnoresEmptyID(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	s.Merge(transcript.Segment{Text: "orphan", FirstSeen: at(1)})
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_Limit(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore(transcript.WithLimit(2))
	s.Merge(
		transcript.Segment{ID: "a", FirstSeen: at(1)},
		transcript.Segment{ID: "b", FirstSeen: at(2)},
		transcript.Segment{ID: "c", FirstSeen: at(3)},
	)
	got := ids(s.Ordered())
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Ordered() = %v, want [b c]", got)
	}
}

func TestStore_VersionAndClear(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	v0 := s.Version()
	s.Merge(transcript.Segment{ID: "a", FirstSeen: at(1)})
	if s.Version() <= v0 {
		t.Error("Merge did not advance Version")
	}
	v1 := s.Version()
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d", s.Len())
	}
	if s.Version() <= v1 {
		t.Error("Clear did not advance Version")
	}
}

func TestStore_ConcurrentMerge(t *testing.T) {
	t.Parallel()

	s := transcript.NewStore()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				s.Merge(transcript.Segment{ID: string(rune('a' + w)), Text: "x", FirstSeen: at(w), LastSeen: at(i)})
				_ = s.Ordered()
			}
		}()
	}
	wg.Wait()

	got := s.Ordered()
	if len(got) != 8 {
		t.Fatalf("Len = %d, want 8", len(got))
	}
	for i, seg := range got {
		if !seg.FirstSeen.Equal(at(i)) {
			t.Errorf("segment %d FirstSeen = %v, want %v", i, seg.FirstSeen, at(i))
		}
	}
}
