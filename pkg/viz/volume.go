package viz

import (
	"math"

	"github.com/MrWong99/voxbars/pkg/audio"
)

// EstimateVolume returns the rounded RMS of the signed 16-bit little-endian
// samples in pcm. Every sample counts individually: interleaved channels are
// not down-mixed first. The mean of squares uses integer division. An empty
// buffer yields 0; a trailing odd byte is ignored.
func EstimateVolume(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := range n {
		v := int64(audio.Sample(pcm, i))
		sum += v * v
	}
	return math.Round(math.Sqrt(float64(sum / int64(n))))
}
