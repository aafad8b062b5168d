package viz_test

import (
	"testing"

	"github.com/MrWong99/voxbars/pkg/viz"
)

func TestBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bars []float32
		want string
	}{
		{"empty", nil, ""},
		{"floor", []float32{0.1, 0.1, 0.1}, "▁▁▁"},
		{"full", []float32{1}, "█"},
		{"symmetric ramp", []float32{0.1, 0.6, 1, 0.6, 0.1}, "▁▅█▅▁"},
		{"below floor clamps", []float32{0}, "▁"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := viz.Blocks(tt.bars, 0.1); got != tt.want {
				t.Errorf("Blocks(%v) = %q, want %q", tt.bars, got, tt.want)
			}
		})
	}
}

func TestBlockLevel(t *testing.T) {
	t.Parallel()

	if got := viz.BlockLevel(0.1, 0.1, 8); got != 1 {
		t.Errorf("floor level = %d, want 1", got)
	}
	if got := viz.BlockLevel(1, 0.1, 8); got != 8 {
		t.Errorf("full level = %d, want 8", got)
	}
	if got := viz.BlockLevel(0.5, 1, 8); got != 8 {
		t.Errorf("degenerate span level = %d, want 8", got)
	}
}
