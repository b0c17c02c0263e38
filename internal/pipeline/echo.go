package pipeline

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Anti-echo tuning. Finals shorter than the minimum can never be classified
// as echo; the similarity floor catches near-misses the recognizer introduces
// while transcribing the assistant's own playback.
const (
	echoMinRunes        = 8
	echoPrefixRunes     = 40
	echoSimilarityFloor = 0.92
)

// normText lowercases and collapses whitespace for comparison.
func normText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// isEchoLike reports whether a final transcript is probably the assistant's
// own speech picked up by the microphone: a substring match either way, an
// identical leading stretch, or a near-identical string overall.
func isEchoLike(finalText, lastAssistant string) bool {
	u := normText(finalText)
	if len([]rune(u)) < echoMinRunes {
		return false
	}
	a := normText(lastAssistant)
	if a == "" {
		return false
	}
	if strings.Contains(a, u) || strings.Contains(u, a) {
		return true
	}
	if prefixRunes(u, echoPrefixRunes) == prefixRunes(a, echoPrefixRunes) {
		return true
	}
	return matchr.JaroWinkler(u, a, true) >= echoSimilarityFloor
}

func prefixRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
