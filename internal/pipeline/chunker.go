package pipeline

import "strings"

// Chunking limits, in runes. A chunk is cut at the earliest sentence break;
// failing that, long buffers are split at the last space or comma past the
// boundary minimum, or hard-cut at the maximum.
const (
	chunkMaxRunes      = 120
	chunkBoundaryRunes = 50
	chunkMinRunes      = 10
)

var sentenceSeparators = []rune{'.', '!', '?', '\n'}

func isSentenceSeparator(r rune) bool {
	for _, s := range sentenceSeparators {
		if r == s {
			return true
		}
	}
	return false
}

// splitForTTS greedily carves speakable chunks off the front of buf and
// returns them together with the unsplit remainder.
func splitForTTS(buf string) (chunks []string, rest string) {
	runes := []rune(buf)
	for {
		cut := -1
		for i, r := range runes {
			if isSentenceSeparator(r) {
				cut = i
				break
			}
		}

		if cut != -1 {
			chunk := strings.TrimSpace(string(runes[:cut+1]))
			runes = []rune(strings.TrimLeft(string(runes[cut+1:]), " \t\n"))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			continue
		}

		if len(runes) >= chunkMaxRunes {
			best := -1
			for i := chunkMaxRunes - 1; i >= 0; i-- {
				if runes[i] == ' ' || runes[i] == ',' {
					best = i
					break
				}
			}
			var chunk string
			if best > chunkBoundaryRunes {
				chunk = strings.TrimSpace(string(runes[:best+1]))
				runes = []rune(strings.TrimLeft(string(runes[best+1:]), " \t\n"))
			} else {
				chunk = strings.TrimSpace(string(runes[:chunkMaxRunes]))
				runes = []rune(strings.TrimLeft(string(runes[chunkMaxRunes:]), " \t\n"))
			}
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			continue
		}

		break
	}
	return chunks, string(runes)
}

// chunkTooSmall defers a fragment for more context unless it already ends a
// sentence or clause.
func chunkTooSmall(chunk string) bool {
	runes := []rune(chunk)
	if len(runes) >= chunkMinRunes {
		return false
	}
	if len(runes) == 0 {
		return true
	}
	last := runes[len(runes)-1]
	return !isSentenceSeparator(last) && last != ','
}

// appendDeduped joins a streamed token onto the buffer and drops immediate
// word repeats. Models under pressure occasionally emit the same word twice
// in a row; short words are left alone since genuine doubling ("да да") is
// common in Russian.
func appendDeduped(buf, token string) string {
	words := strings.Fields(buf + token)
	out := words[:0]
	for _, w := range words {
		if len(out) > 0 && w == out[len(out)-1] && len([]rune(w)) > 3 {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
