package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voxbars/pkg/viz"
)

// eighths are the block elements for a partially filled cell.
var eighths = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderBars draws bars as vertical columns height rows tall, each
// barWidth cells wide with one space between. Rows are returned top first.
// A resting bar keeps its lowest eighth visible.
func renderBars(bars []float32, minAmplitude float32, height, barWidth int) []string {
	height = max(height, 1)
	barWidth = max(barWidth, 1)

	levels := make([]int, len(bars))
	styles := make([]lipgloss.Style, len(bars))
	for i, b := range bars {
		levels[i] = viz.BlockLevel(b, minAmplitude, height*8)
		styles[i] = barStyle(float32(levels[i]) / float32(height*8))
	}

	rows := make([]string, height)
	for r := range height {
		base := (height - 1 - r) * 8
		var sb strings.Builder
		for i, lvl := range levels {
			cell := min(max(lvl-base, 0), 8)
			sb.WriteString(styles[i].Render(strings.Repeat(eighths[cell], barWidth)))
			if i < len(levels)-1 {
				sb.WriteByte(' ')
			}
		}
		rows[r] = sb.String()
	}
	return rows
}

func barStyle(frac float32) lipgloss.Style {
	switch {
	case frac > 0.75:
		return barHighStyle
	case frac > 0.45:
		return barMidStyle
	default:
		return barLowStyle
	}
}

// fitBarWidth returns the widest bar that fits n bars into width cells.
func fitBarWidth(n, width int) int {
	if n <= 0 {
		return 1
	}
	return max((width-(n-1))/n, 1)
}
