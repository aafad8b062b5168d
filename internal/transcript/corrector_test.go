package transcript_test

import (
	"testing"

	"github.com/MrWong99/voxbars/internal/transcript"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keywords  []string
		text      string
		want      string
		wantFixes int
	}{
		{
			name:      "split name is joined",
			keywords:  []string{"Eldrinax"},
			text:      "I met elder nacks yesterday.",
			want:      "I met Eldrinax yesterday.",
			wantFixes: 1,
		},
		{
			name:      "trailing punctuation kept",
			keywords:  []string{"Grimjaw"},
			text:      "ask grimjaw, then leave",
			want:      "ask Grimjaw, then leave",
			wantFixes: 1,
		},
		{
			name:      "multi word keyword",
			keywords:  []string{"Tower of Whispers"},
			text:      "we reach the tower of wispers soon",
			want:      "we reach the Tower of Whispers soon",
			wantFixes: 1,
		},
		{
			name:     "exact spelling is left alone",
			keywords: []string{"Eldrinax"},
			text:     "Eldrinax speaks",
			want:     "Eldrinax speaks",
		},
		{
			name:     "no keywords",
			text:     "hello world",
			want:     "hello world",
			keywords: nil,
		},
		{
			name:     "empty text",
			keywords: []string{"Eldrinax"},
			text:     "",
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := transcript.NewCorrector(tt.keywords)
			got, fixes := c.Correct(tt.text)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(fixes) != tt.wantFixes {
				t.Errorf("corrections = %+v, want %d", fixes, tt.wantFixes)
			}
		})
	}
}

func TestCorrector_SetKeywords(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	if got, _ := c.Correct("ask grimjaw"); got != "ask grimjaw" {
		t.Fatalf("Correct without keywords changed text: %q", got)
	}
	c.SetKeywords([]string{"Grimjaw"})
	if got, _ := c.Correct("ask grimjaw"); got != "ask Grimjaw" {
		t.Errorf("Correct after SetKeywords = %q, want %q", got, "ask Grimjaw")
	}
}
