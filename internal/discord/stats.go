package discord

import (
	"math"
	"slices"
	"sync"
	"time"
)

// ProcessingStats collects bar-processing latency samples for the status
// embed. It keeps a bounded ring buffer of recent observations per mode from
// which percentiles are computed on demand.
//
// Thread-safe for concurrent use.
type ProcessingStats struct {
	mu sync.Mutex

	volume   latencyBuffer
	spectrum latencyBuffer

	updates int64
	errors  int64
}

// NewProcessingStats creates a ProcessingStats with the given window size
// (maximum number of latency samples retained per mode).
func NewProcessingStats(windowSize int) *ProcessingStats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &ProcessingStats{
		volume:   newLatencyBuffer(windowSize),
		spectrum: newLatencyBuffer(windowSize),
	}
}

// Record records the time taken to turn one buffer ("volume") or spectrum
// frame ("spectrum") into bars. Its signature matches pipeline.WithObserver.
func (ps *ProcessingStats) Record(mode string, d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	switch mode {
	case "spectrum":
		ps.spectrum.add(d)
	default:
		ps.volume.add(d)
	}
	ps.updates++
}

// IncrErrors increments the error counter.
func (ps *ProcessingStats) IncrErrors() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.errors++
}

// LatencyPercentiles holds p50 and p95 values for one mode.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// StatsSnapshot captures a point-in-time view of all processing statistics.
type StatsSnapshot struct {
	Volume   LatencyPercentiles
	Spectrum LatencyPercentiles
	Updates  int64
	Errors   int64
}

// Snapshot returns a point-in-time view of all processing statistics.
func (ps *ProcessingStats) Snapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return StatsSnapshot{
		Volume:   ps.volume.percentiles(),
		Spectrum: ps.spectrum.percentiles(),
		Updates:  ps.updates,
		Errors:   ps.errors,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := slices.Clone(lb.data[:n])
	slices.Sort(sorted)

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}
