package viz

const (
	// DefaultBars is the bar count of the volume-driven visualisation.
	DefaultBars = 15

	// DefaultMinAmplitude is the floor every published bar sits on.
	DefaultMinAmplitude float32 = 0.1

	// DefaultMaxVolume is the RMS value that maps to a full-height bar.
	DefaultMaxVolume = 25000.0

	// DefaultMaxEnergy is the smoothed band energy that maps to a
	// full-height bar.
	DefaultMaxEnergy = 25000.0

	falloff float32 = 0.8
)

type smootherConfig struct {
	bars         int
	minAmplitude float32
	reference    float64
}

// SmootherOption configures a [VolumeSmoother] or [BandSmoother].
type SmootherOption func(*smootherConfig)

// WithBars sets the bar count of a [VolumeSmoother]. Values below 1 are
// ignored. A [BandSmoother] always has one bar per band.
func WithBars(n int) SmootherOption {
	return func(c *smootherConfig) {
		if n >= 1 {
			c.bars = n
		}
	}
}

// WithMinAmplitude sets the bar floor. Values outside (0, 1] are ignored.
func WithMinAmplitude(a float32) SmootherOption {
	return func(c *smootherConfig) {
		if a > 0 && a <= 1 {
			c.minAmplitude = a
		}
	}
}

// WithReference sets the input value that maps to a full-height bar: the
// maximum RMS volume for a [VolumeSmoother] or the maximum band energy for a
// [BandSmoother]. Non-positive values are ignored.
func WithReference(v float64) SmootherOption {
	return func(c *smootherConfig) {
		if v > 0 {
			c.reference = v
		}
	}
}

func floorBars(n int, minAmplitude float32) []float32 {
	bars := make([]float32, n)
	for i := range bars {
		bars[i] = minAmplitude
	}
	return bars
}

// VolumeSmoother turns an RMS volume into a symmetric bar profile: the
// normalised volume sits in the middle bar and every step outward keeps 80%
// of its inner neighbour, never dropping below the floor.
type VolumeSmoother struct {
	bars         int
	minAmplitude float32
	maxVolume    float64
	minVolume    float64
}

// NewVolumeSmoother returns a smoother with [DefaultBars], [DefaultMinAmplitude]
// and [DefaultMaxVolume] unless overridden.
func NewVolumeSmoother(opts ...SmootherOption) *VolumeSmoother {
	c := smootherConfig{bars: DefaultBars, minAmplitude: DefaultMinAmplitude, reference: DefaultMaxVolume}
	for _, o := range opts {
		o(&c)
	}
	return &VolumeSmoother{
		bars:         c.bars,
		minAmplitude: c.minAmplitude,
		maxVolume:    c.reference,
		minVolume:    c.reference * float64(c.minAmplitude),
	}
}

// Bars returns the length of the vectors produced.
func (s *VolumeSmoother) Bars() int { return s.bars }

// MinAmplitude returns the bar floor.
func (s *VolumeSmoother) MinAmplitude() float32 { return s.minAmplitude }

// Normalize maps an RMS volume onto [MinAmplitude, 1].
func (s *VolumeSmoother) Normalize(volume float64) float32 {
	return float32(min(max(volume, s.minVolume), s.maxVolume) / s.maxVolume)
}

// Update returns a new bar vector for volume.
func (s *VolumeSmoother) Update(volume float64) []float32 {
	bars := make([]float32, s.bars)
	mid := s.bars / 2
	cur := s.Normalize(volume)
	bars[mid] = cur
	for i := 1; i <= mid; i++ {
		cur = max(cur*falloff, s.minAmplitude)
		bars[mid-i] = cur
		if mid+i < s.bars {
			bars[mid+i] = cur
		}
	}
	return bars
}

// Floor returns the resting bar vector.
func (s *VolumeSmoother) Floor() []float32 {
	return floorBars(s.bars, s.minAmplitude)
}
