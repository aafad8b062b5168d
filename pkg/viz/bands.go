package viz

import (
	"math"
)

// BandLimits are the upper edges, in Hz, of the ISO preferred audio
// frequency bands folded by a [BandSmoother].
var BandLimits = [...]int{
	20, 25, 32, 40, 50, 63, 80, 100, 125, 160, 200, 250, 315, 400, 500, 630,
	800, 1000, 1250, 1600, 2000, 2500, 3150, 4000, 5000, 6300, 8000, 10000,
	12500, 16000, 20000,
}

// Bands is the number of bars a [BandSmoother] produces.
const Bands = len(BandLimits)

const (
	// bandSpan is how many leading values of a spectrum frame are folded.
	bandSpan = SampleSize / 2

	// historyDepth is the number of previous values averaged with the
	// current one.
	historyDepth = 3

	maxBandFrequency = 20000
)

// history is a fixed-depth ring of previous band energies.
type history struct {
	vals [historyDepth]float32
	next int
}

// push adds v and returns the mean of v and the previous historyDepth values.
func (h *history) push(v float32) float32 {
	sum := v
	for _, p := range h.vals {
		sum += p
	}
	h.vals[h.next] = v
	h.next = (h.next + 1) % historyDepth
	return sum / (historyDepth + 1)
}

// bandWeights holds the Hamming weight per band index. The window runs
// across bands rather than bins so it does not favour the upper bins.
var bandWeights = func() [Bands]float32 {
	var w [Bands]float32
	m := Bands / 2
	for i := range w {
		w[i] = float32(0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(m+1)))
	}
	return w
}()

// bandEdges holds the exclusive end position, within a spectrum frame, of
// every band.
var bandEdges = func() [Bands]int {
	var e [Bands]int
	for i, limit := range BandLimits {
		e[i] = int(math.Floor(float64(float32(limit) / maxBandFrequency * bandSpan)))
	}
	return e
}()

// BandSmoother folds spectrum frames into [Bands] bars, smoothing every band
// over time with a moving average of the current and three previous values.
// History persists across calls; Reset clears it.
//
// A BandSmoother is not safe for concurrent use.
type BandSmoother struct {
	minAmplitude float32
	maxEnergy    float64
	history      [Bands]history
	mean         float32
}

// NewBandSmoother returns a smoother with [DefaultMinAmplitude] and
// [DefaultMaxEnergy] unless overridden.
func NewBandSmoother(opts ...SmootherOption) *BandSmoother {
	c := smootherConfig{minAmplitude: DefaultMinAmplitude, reference: DefaultMaxEnergy}
	for _, o := range opts {
		o(&c)
	}
	return &BandSmoother{minAmplitude: c.minAmplitude, maxEnergy: c.reference}
}

// Bars returns the length of the vectors produced.
func (b *BandSmoother) Bars() int { return Bands }

// MinAmplitude returns the bar floor.
func (b *BandSmoother) MinAmplitude() float32 { return b.minAmplitude }

// Update folds frame into the band history and returns the new bar
// vector. Frames shorter than the folded span contribute zero energy for the
// missing positions; an empty frame leaves the history untouched and
// returns the floor.
func (b *BandSmoother) Update(frame []float32) []float32 {
	if len(frame) == 0 {
		return b.Floor()
	}
	bars := make([]float32, Bands)
	pos := 0
	var mean float32
	for band, next := range bandEdges {
		var accum float32
		for j := 0; j < next-pos; j += 2 {
			re := float64(at(frame, pos+j))
			im := float64(at(frame, pos+j+1))
			accum += float32(re*re+im*im) * bandWeights[band]
		}
		if width := next - pos; width != 0 {
			accum /= float32(width)
		} else {
			accum = 0
		}
		pos = next

		smoothed := b.history[band].push(accum)
		mean += smoothed / float32(Bands)
		bars[band] = b.height(smoothed)
	}
	b.mean = mean
	return bars
}

func at(frame []float32, i int) float32 {
	if i < len(frame) {
		return frame[i]
	}
	return 0
}

func (b *BandSmoother) height(energy float32) float32 {
	h := float32(min(float64(energy)/b.maxEnergy, 1))
	return max(h, b.minAmplitude)
}

// Level returns the average smoothed band energy of the last update as a
// bar height: the average line drawn across the bands.
func (b *BandSmoother) Level() float32 { return b.height(b.mean) }

// Reset clears the band history.
func (b *BandSmoother) Reset() {
	b.history = [Bands]history{}
	b.mean = 0
}

// Floor returns the resting bar vector.
func (b *BandSmoother) Floor() []float32 {
	return floorBars(Bands, b.minAmplitude)
}
