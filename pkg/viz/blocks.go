package viz

import "strings"

// blockRunes are the eighth-height block elements, from empty to full.
var blockRunes = []rune(" ▁▂▃▄▅▆▇█")

// Blocks renders bars as one line of block elements. A bar at minAmplitude
// (or below) renders as the lowest visible block; 1 renders as a full block.
func Blocks(bars []float32, minAmplitude float32) string {
	var sb strings.Builder
	sb.Grow(len(bars) * 3)
	for _, b := range bars {
		sb.WriteRune(blockRunes[BlockLevel(b, minAmplitude, len(blockRunes)-1)])
	}
	return sb.String()
}

// BlockLevel maps a bar in [minAmplitude, 1] onto 1..steps, so that a
// resting bar stays visible.
func BlockLevel(bar, minAmplitude float32, steps int) int {
	span := 1 - minAmplitude
	if span <= 0 {
		return steps
	}
	frac := (bar - minAmplitude) / span
	frac = min(max(frac, 0), 1)
	return 1 + int(frac*float32(steps-1)+0.5)
}
