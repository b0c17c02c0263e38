// Package transcript aligns recognized finals against an agent glossary.
//
// Streaming recognition of Russian speech reliably garbles proper nouns:
// product names, brand names, and people the agent talks about come out as
// near-homophones ("Яндекс" as "я некст", "Voxloop" as "вокс луп"). The
// [Corrector] repairs those before the turn is committed, in two stages:
//
//  1. Phonetic alignment: every token window of the final is matched against
//     the glossary by pronunciation similarity. Fast, in-process, runs on
//     every final.
//
//  2. Model-assisted correction: words the recognizer itself flagged as
//     low-confidence and the phonetic pass left unchanged are handed to a
//     chat model together with the glossary. Optional, one completion round
//     trip, enabled per agent.
//
// Each [Correction] records which stage produced it so callers can log or
// audit the substitutions.
package transcript

// Correction is a single substitution applied to a recognized final.
type Correction struct {
	// Original is the span as produced by the recognizer.
	Original string

	// Corrected is the glossary term that replaced it.
	Corrected string

	// Confidence is the similarity score behind the substitution, in
	// [0.0, 1.0].
	Confidence float64

	// Method is "phonetic" or "llm".
	Method string
}

// Matcher resolves a word or short phrase to a glossary term by
// pronunciation similarity. Implementations must be safe for concurrent use
// and fast enough for the real-time path.
type Matcher interface {
	// Match returns the glossary term most similar to phrase. When matched
	// is false, corrected equals phrase unchanged and confidence is 0.
	Match(phrase string, glossary []string) (corrected string, confidence float64, matched bool)
}
