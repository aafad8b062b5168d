// Package phonetic matches misheard words against a small vocabulary of
// names using Double Metaphone codes and Jaro-Winkler similarity.
//
// A candidate is accepted in one of two ways:
//
//  1. Its Metaphone codes overlap the input's and the Jaro-Winkler score
//     reaches the phonetic threshold (default 0.70).
//  2. No phonetic candidate exists and the plain Jaro-Winkler score reaches
//     the stricter fuzzy threshold (default 0.85).
//
// Scores compare whole phrases, both as written and with spaces removed, so
// "elder nacks" can resolve to "Eldrinax". Candidates of very different
// length are never considered.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minLengthRatio rejects candidates whose letter count differs too much
	// from the input, so "tower" never expands to "Tower of Whispers".
	minLengthRatio = 0.6
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically overlapping candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate
// without phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type entry struct {
	name   string
	lower  string
	concat string
	codes  map[string]struct{}
}

// Vocabulary is a prepared list of names. Build it once with
// [NewVocabulary] and share it between goroutines.
type Vocabulary struct {
	entries  []entry
	maxWords int
}

// NewVocabulary prepares names for matching. Blank names are skipped.
func NewVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{}
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, entry{
			name:   strings.TrimSpace(name),
			lower:  lower,
			concat: strings.Join(tokens, ""),
			codes:  codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of prepared names.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// MaxWords returns the word count of the longest name, or 0 when empty.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Match returns the vocabulary name most similar to phrase. When matched is
// false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, vocab *Vocabulary) (corrected string, confidence float64, matched bool) {
	if vocab.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	codes := codesForTokens(tokens)
	concat := strings.Join(tokens, "")

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range vocab.entries {
		if !comparableLength(concat, e.concat) {
			continue
		}
		score := matchr.JaroWinkler(lower, e.lower, false)
		if s := matchr.JaroWinkler(concat, e.concat, false); s > score {
			score = s
		}

		if codesOverlap(codes, e.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = e.name, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = e.name, score
		}
	}

	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

func comparableLength(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) >= minLengthRatio*float64(lb)
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
