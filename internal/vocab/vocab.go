// Package vocab fixes misrecognized domain vocabulary in exported lecture
// text using Double Metaphone phonetic encoding combined with Jaro-Winkler
// string similarity.
//
// Recognition engines routinely mangle course-specific terms ("kubernets"
// for "kubernetes", "fotosynthesis" for "photosynthesis"). The corrector
// holds a configured term list and rewrites words that phonetically match a
// term with sufficient string similarity. It runs only on the final export,
// never on the live transcript, so annotation offsets are never disturbed.
//
// Matching proceeds in two stages per word:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the word
//     and each term; a term becomes a candidate when any code overlaps.
//  2. Jaro-Winkler ranking: the candidate with the highest similarity wins,
//     provided it clears the phonetic threshold. Without any phonetic
//     candidate, a stricter pure-similarity fallback applies.
package vocab

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minWordLen guards short function words ("to", "the") from ever being
	// rewritten; phonetic codes are too coarse below this length.
	minWordLen = 4
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// term is one vocabulary entry with its precomputed phonetic codes.
type term struct {
	text  string
	lower string
	codes map[string]struct{}
}

// Corrector rewrites misrecognized vocabulary in text. All methods are safe
// for concurrent use — the Corrector is read-only after construction.
type Corrector struct {
	terms             []term
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Corrector over the given vocabulary. Blank terms are
// ignored. An empty vocabulary yields a Corrector whose Correct is the
// identity function.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		c.terms = append(c.terms, term{
			text:  v,
			lower: lower,
			codes: codesForTokens(strings.Fields(lower)),
		})
	}
	return c
}

// Correct returns text with misrecognized vocabulary rewritten. Word
// boundaries, punctuation and whitespace are preserved exactly; only the
// letters of matched words change. A word already spelled as a known term
// is left alone.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	runes := []rune(text)
	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		b.WriteString(c.correctWord(string(runes[i:j])))
		i = j
	}
	return b.String()
}

// correctWord returns the replacement for a single word, or the word itself
// when nothing matches.
func (c *Corrector) correctWord(word string) string {
	if len([]rune(word)) < minWordLen {
		return word
	}
	lower := strings.ToLower(word)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	wordCodes := codesForTokens([]string{lower})

	for i := range c.terms {
		t := &c.terms[i]
		if lower == t.lower {
			// Already spelled correctly.
			return word
		}

		phonetic := codesOverlap(wordCodes, t.codes)
		score := bestSimilarity(lower, t.lower)

		if phonetic {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
		} else if !bestPhonetic {
			if score >= c.fuzzyThreshold && score > bestScore {
				best, bestScore = t, score
			}
		}
	}

	if best == nil {
		return word
	}
	return matchCase(word, best.text)
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a token is too short or contains
// no consonants) are excluded.
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

// codesOverlap returns true if the two code sets share at least one code.
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

// bestSimilarity computes the highest Jaro-Winkler similarity between the
// word and the term, comparing against the full term and, for multi-word
// terms, against its space-stripped form and each individual token.
func bestSimilarity(word, termLower string) float64 {
	score := matchr.JaroWinkler(word, termLower, false)

	tokens := strings.Fields(termLower)
	if len(tokens) > 1 {
		if s := matchr.JaroWinkler(word, strings.Join(tokens, ""), false); s > score {
			score = s
		}
		for _, tok := range tokens {
			if s := matchr.JaroWinkler(word, tok, false); s > score {
				score = s
			}
		}
	}
	return score
}

// matchCase carries the original word's leading capitalization over to the
// replacement.
func matchCase(original, replacement string) string {
	or := []rune(original)
	rr := []rune(replacement)
	if len(or) == 0 || len(rr) == 0 {
		return replacement
	}
	if unicode.IsUpper(or[0]) {
		rr[0] = unicode.ToUpper(rr[0])
		return string(rr)
	}
	return replacement
}

// isWordRune reports whether r belongs to a word token.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
