// Package phonetic matches spoken words to glossary terms by pronunciation.
//
// Matching runs in two passes. Double Metaphone codes are computed for every
// token of the input and of each glossary term; a shared code makes the term
// a phonetic candidate, and candidates are then ranked by Jaro-Winkler
// similarity on the original strings. When no phonetic candidate exists, a
// stricter pure Jaro-Winkler pass runs against the whole glossary.
//
// Double Metaphone only encodes Latin script, so Cyrillic tokens are
// transliterated before encoding. That keeps the phonetic pass meaningful
// for the mixed Russian/Latin vocabulary a voice agent carries ("Яндекс"
// and "Yandex" land on the same codes).
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score a phonetic
// candidate needs. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the fallback
// pass when no phonetic candidate exists. Default: 0.85.
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

// New returns a [Matcher] with the supplied options applied.
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

// Match finds the glossary term most phonetically similar to phrase.
//
// phrase may be a single word or a space-separated n-gram. Multi-word input
// aligns token-wise against multi-word terms; ranking uses the best of
// full-string, concatenated, and pairwise token Jaro-Winkler scores.
//
// When matched is false, corrected equals phrase unchanged and confidence
// is 0.
func (m *Matcher) Match(phrase string, glossary []string) (corrected string, confidence float64, matched bool) {
	if len(glossary) == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	// Similarity runs on transliterated text so a Cyrillic rendering of a
	// Latin term (or vice versa) can still outscore the thresholds.
	phraseLower := Transliterate(strings.ToLower(strings.TrimSpace(phrase)))
	phraseTokens := strings.Fields(phraseLower)
	phraseCodes := codesForTokens(phraseTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, term := range glossary {
		termLower := Transliterate(strings.ToLower(strings.TrimSpace(term)))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)

		phoneticHit := codesOverlap(phraseCodes, codesForTokens(termTokens))
		score := bestSimilarity(phraseTokens, termTokens, phraseLower, termLower)

		if phoneticHit {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{term: term, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{term: term, score: score, phonetic: false}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return phrase, 0, false
}

// codesForTokens returns the union of Double Metaphone codes for the
// already-transliterated tokens. Empty codes are dropped.
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

// bestSimilarity takes the highest Jaro-Winkler score across three views of
// the pair: the full strings, the space-stripped strings (a spoken term
// often splits into several recognized tokens), and the best pairwise token
// combination.
func bestSimilarity(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)

	if len(aTokens) > 1 || len(bTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
