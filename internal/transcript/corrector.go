package transcript

import (
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/MrWong99/voxbars/internal/transcript/phonetic"
)

// minSingleWordRunes keeps short function words out of the matcher.
const minSingleWordRunes = 3

// Correction records one substitution made by a [Corrector].
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Corrector replaces misheard spellings of configured keywords (speaker
// names, channel jargon) in finished segment text. The keyword list can be
// swapped at runtime; Correct is safe for concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   atomic.Pointer[phonetic.Vocabulary]
}

// NewCorrector returns a corrector for keywords.
func NewCorrector(keywords []string, opts ...phonetic.Option) *Corrector {
	c := &Corrector{matcher: phonetic.New(opts...)}
	c.SetKeywords(keywords)
	return c
}

// SetKeywords replaces the keyword list.
func (c *Corrector) SetKeywords(keywords []string) {
	c.vocab.Store(phonetic.NewVocabulary(keywords))
}

// Correct returns text with keyword corrections applied.
//
// At every word it scores windows from one word up to one word longer than
// the longest keyword, since recognisers tend to split an unknown name in
// two, and keeps the best scoring window. A window is skipped when dropping
// its first word scores at least as well; that word is then emitted as is.
// Trailing punctuation of a window is kept.
func (c *Corrector) Correct(text string) (string, []Correction) {
	vocab := c.vocab.Load()
	tokens := strings.Fields(text)
	if vocab.Len() == 0 || len(tokens) == 0 {
		return text, nil
	}
	maxWords := vocab.MaxWords() + 1

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		best := c.bestWindow(tokens, i, min(maxWords, len(tokens)-i), vocab)
		if best.n == 0 || (best.n > 1 && c.score(tokens[i+1:i+best.n], vocab) >= best.score) {
			out = append(out, tokens[i])
			i++
			continue
		}
		if best.name != best.window {
			corrections = append(corrections, Correction{Original: best.window, Corrected: best.name, Confidence: best.score})
		}
		out = append(out, best.name+best.suffix)
		i += best.n
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

type window struct {
	n      int
	window string
	suffix string
	name   string
	score  float64
}

func (c *Corrector) bestWindow(tokens []string, i, maxN int, vocab *phonetic.Vocabulary) window {
	var best window
	for n := 1; n <= maxN; n++ {
		phrase, suffix := joinWindow(tokens[i : i+n])
		if n == 1 && len([]rune(phrase)) < minSingleWordRunes {
			continue
		}
		name, score, ok := c.matcher.Match(phrase, vocab)
		if ok && score > best.score {
			best = window{n: n, window: phrase, suffix: suffix, name: name, score: score}
		}
	}
	return best
}

func (c *Corrector) score(tokens []string, vocab *phonetic.Vocabulary) float64 {
	phrase, _ := joinWindow(tokens)
	_, score, _ := c.matcher.Match(phrase, vocab)
	return score
}

// joinWindow joins tokens with single spaces and splits off the trailing
// punctuation of the last one.
func joinWindow(tokens []string) (phrase, suffix string) {
	last := tokens[len(tokens)-1]
	trimmed := strings.TrimRightFunc(last, unicode.IsPunct)
	words := append(append([]string(nil), tokens[:len(tokens)-1]...), trimmed)
	return strings.Join(words, " "), last[len(trimmed):]
}
