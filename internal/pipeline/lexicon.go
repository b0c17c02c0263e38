package pipeline

import (
	"strings"
	"unicode"
)

// Word classes used by the adaptive endpointer. A phrase ending on one of
// these almost always continues, so the confirm threshold is pushed out.
var (
	conjunctions = wordSet(
		"и", "а", "но", "или", "либо", "что", "чтобы", "потому",
		"также", "если", "когда", "пока", "хотя", "зато", "однако",
		"причем", "поэтому", "будто", "словно",
	)
	prepositions = wordSet(
		"в", "во", "на", "с", "со", "к", "ко", "по", "за", "из",
		"у", "о", "об", "обо", "от", "до", "без", "для", "при",
		"про", "через", "над", "под", "перед", "между", "около",
		"возле", "среди", "вокруг",
	)
	particles = wordSet(
		"не", "ни", "же", "ли", "бы", "б", "ведь", "вот", "вон",
		"даже", "лишь", "только", "уже", "еще", "ещё", "пусть",
	)
	fillers = wordSet("э", "эм", "ну", "типа", "короче", "значит", "мм")

	// badEndings is the broader set that disqualifies a phrase from being a
	// good stopping point regardless of its length class.
	badEndings = wordSet(
		"и", "а", "но", "или", "что", "если", "то", "который",
		"которая", "которые", "чтобы", "потому", "также", "либо",
		"вот", "это", "так", "как", "где", "куда", "откуда", "зачем",
		"почему", "когда", "тогда", "здесь", "там", "тут",
	)
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func lastWord(text string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// isMeaningful reports whether text is substantial enough to act on:
// minChars runes and minWords words.
func isMeaningful(text string, minChars, minWords int) bool {
	t := strings.TrimSpace(text)
	return len([]rune(t)) >= minChars && wordCount(t) >= minWords
}

// isGoodEnd reports whether text looks finished: at least three words and a
// final word that is not a known continuation marker.
func isGoodEnd(text string) bool {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) < 3 {
		return false
	}
	_, bad := badEndings[fields[len(fields)-1]]
	return !bad
}

// continuationPenaltyMs grades how strongly the final word of text signals
// that the speaker is mid-sentence.
func continuationPenaltyMs(text string) int {
	w := lastWord(text)
	if w == "" {
		return 0
	}
	if _, ok := conjunctions[w]; ok {
		return 450
	}
	if _, ok := prepositions[w]; ok {
		return 450
	}
	if _, ok := particles[w]; ok {
		return 300
	}
	if _, ok := fillers[w]; ok {
		return 300
	}
	if len([]rune(w)) <= 2 {
		return 250
	}
	if isAllDigits(w) {
		return 300
	}
	return 0
}

func isAllDigits(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

// commonPrefixLen returns the length in runes of the shared prefix of a and b.
func commonPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n
}

// maxTailJitterRunes bounds the hypothesis churn still treated as recognizer
// noise rather than new speech.
const maxTailJitterRunes = 3

// isTailJitter reports whether the difference between the new and old partial
// is confined to the last few runes past their common prefix. Such churn must
// not reset the stability clock or the endpointer never fires.
func isTailJitter(newText, oldText string) bool {
	newText = strings.TrimSpace(newText)
	oldText = strings.TrimSpace(oldText)
	if oldText == "" || newText == "" || newText == oldText {
		return false
	}
	cp := commonPrefixLen(newText, oldText)
	tailNew := len([]rune(newText)) - cp
	tailOld := len([]rune(oldText)) - cp
	return max(tailNew, tailOld) <= maxTailJitterRunes
}

// shouldRestartLLM decides whether a revised final transcript warrants
// cancelling the in-flight generation: the text grew by more than 30%, or it
// was rebuilt so that the common prefix covers less than half of the old text.
func shouldRestartLLM(newText, oldText string) bool {
	newText = strings.TrimSpace(newText)
	oldText = strings.TrimSpace(oldText)
	if oldText == "" {
		return true
	}
	if newText == oldText {
		return false
	}
	oldLen := len([]rune(oldText))
	if len([]rune(newText)) > oldLen*13/10 {
		return true
	}
	return commonPrefixLen(newText, oldText) < max(1, oldLen/2)
}
