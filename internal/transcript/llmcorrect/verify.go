package llmcorrect

import "strings"

// anchor pairs a token index in the original sequence with its match in the
// corrected sequence.
type anchor struct {
	origIdx int
	corrIdx int
}

// diffSpan is a contiguous region where the two token sequences differ.
type diffSpan struct {
	origTokens []string
	corrTokens []string
}

// tokenLCS returns the longest common subsequence of a and b as ordered
// anchor pairs. Standard O(m*n) DP; inputs are single sentences.
func tokenLCS(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	length := dp[m][n]
	if length == 0 {
		return nil
	}

	anchors := make([]anchor, length)
	i, j, k := m, n, length-1
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			anchors[k] = anchor{origIdx: i - 1, corrIdx: j - 1}
			i--
			j--
			k--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// diffSpans collects the gaps between anchored tokens.
func diffSpans(orig, corr []string, anchors []anchor) []diffSpan {
	var spans []diffSpan
	oi, ci := 0, 0
	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			spans = append(spans, diffSpan{
				origTokens: orig[oi:a.origIdx],
				corrTokens: corr[ci:a.corrIdx],
			})
		}
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(orig) || ci < len(corr) {
		spans = append(spans, diffSpan{
			origTokens: orig[oi:],
			corrTokens: corr[ci:],
		})
	}
	return spans
}

// normalizeSpan lowercases s and strips trailing punctuation so a span like
// "Яндекс." matches a correction declared as "Яндекс".
func normalizeSpan(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// verifyCorrectedText cross-references the actual token changes between
// original and corrected against the declared corrections. Undeclared edits
// are reverted to the original tokens. Returns the verified text and only
// the confirmed corrections.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, corrections
	}

	origTokens := strings.Fields(original)
	corrTokens := strings.Fields(corrected)

	anchors := tokenLCS(origTokens, corrTokens)
	spans := diffSpans(origTokens, corrTokens, anchors)

	type spanKey struct{ orig, corr string }
	declared := make(map[spanKey]Correction, len(corrections))
	for _, c := range corrections {
		declared[spanKey{normalizeSpan(c.Original), normalizeSpan(c.Corrected)}] = c
	}

	resolve := func(span diffSpan) ([]string, *Correction) {
		key := spanKey{
			normalizeSpan(strings.Join(span.origTokens, " ")),
			normalizeSpan(strings.Join(span.corrTokens, " ")),
		}
		if c, ok := declared[key]; ok {
			return span.corrTokens, &c
		}
		return span.origTokens, nil
	}

	var result []string
	var confirmed []Correction
	oi, ci, spanIdx := 0, 0, 0

	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			tokens, c := resolve(spans[spanIdx])
			spanIdx++
			result = append(result, tokens...)
			if c != nil {
				confirmed = append(confirmed, *c)
			}
		}
		result = append(result, origTokens[a.origIdx])
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(origTokens) || ci < len(corrTokens) {
		tokens, c := resolve(spans[spanIdx])
		result = append(result, tokens...)
		if c != nil {
			confirmed = append(confirmed, *c)
		}
	}

	return strings.Join(result, " "), confirmed
}
