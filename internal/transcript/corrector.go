package transcript

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxloop/voxloop/internal/transcript/llmcorrect"
	"github.com/voxloop/voxloop/internal/transcript/phonetic"
	"github.com/voxloop/voxloop/pkg/provider/asr"
)

const defaultLLMThreshold = 0.5

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m Matcher) Option {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// WithLLM attaches the model-assisted second stage. Nil (the default)
// disables it.
func WithLLM(lc *llmcorrect.Corrector) Option {
	return func(c *Corrector) {
		c.llm = lc
	}
}

// WithLLMThreshold sets the recognizer word confidence below which a word is
// handed to the model stage. Default: 0.5.
func WithLLMThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.llmThreshold = threshold
	}
}

// Corrector repairs glossary terms in recognized finals. A nil *Corrector is
// valid and returns input unchanged, so callers can hold one without a nil
// check. Non-nil Correctors are safe for concurrent use.
type Corrector struct {
	glossary     []string
	matcher      Matcher
	llm          *llmcorrect.Corrector
	llmThreshold float64
}

// New builds a Corrector over glossary. An empty glossary yields a corrector
// that passes text through unchanged.
func New(glossary []string, opts ...Option) *Corrector {
	c := &Corrector{
		glossary:     glossary,
		matcher:      phonetic.New(),
		llmThreshold: defaultLLMThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct aligns the recognized final in res against the glossary and
// returns the corrected text plus the substitutions made. The model stage
// degrades gracefully: on error the phonetic result is returned and the
// error is logged, never surfaced, since a garbled proper noun must not
// abort the turn.
func (c *Corrector) Correct(ctx context.Context, res asr.Result) (string, []Correction) {
	text := strings.TrimSpace(res.Text)
	if c == nil || len(c.glossary) == 0 || text == "" {
		return text, nil
	}

	working, corrections := c.applyPhonetic(text)

	if c.llm != nil {
		corrected := make(map[string]struct{}, len(corrections))
		for _, corr := range corrections {
			corrected[strings.ToLower(corr.Original)] = struct{}{}
		}
		spans := lowConfidenceWords(res.Words, c.llmThreshold, corrected)

		// Without per-word confidence every final is a candidate; with it,
		// only flagged spans warrant the round trip.
		if len(res.Words) == 0 || len(spans) > 0 {
			llmText, llmCorrs, err := c.llm.Correct(ctx, working, c.glossary, spans)
			if err != nil {
				slog.Debug("glossary model stage failed", "error", err)
				return working, corrections
			}
			working = llmText
			for _, lc := range llmCorrs {
				corrections = append(corrections, Correction{
					Original:   lc.Original,
					Corrected:  lc.Corrected,
					Confidence: lc.Confidence,
					Method:     "llm",
				})
			}
		}
	}

	return working, corrections
}

// applyPhonetic slides n-gram windows over the final and replaces windows
// that align with a glossary term. Longer windows win so that multi-word
// terms take precedence over partial single-word matches.
func (c *Corrector) applyPhonetic(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	maxWindow := maxTermWords(c.glossary)
	if len(tokens) == 0 || maxWindow == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		n := maxWindow
		if i+n > len(tokens) {
			n = len(tokens) - i
		}

		matched := false
		for ; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.glossary)
			if !ok || strings.EqualFold(window, term) {
				continue
			}
			out = append(out, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
				Method:     "phonetic",
			})
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	return strings.Join(out, " "), corrections
}

// lowConfidenceWords returns words below threshold that the phonetic stage
// did not already replace.
func lowConfidenceWords(words []asr.Word, threshold float64, already map[string]struct{}) []string {
	var spans []string
	for _, w := range words {
		if _, ok := already[strings.ToLower(w.Word)]; ok {
			continue
		}
		if w.Conf > 0 && w.Conf < threshold {
			spans = append(spans, w.Word)
		}
	}
	return spans
}

func maxTermWords(glossary []string) int {
	max := 0
	for _, term := range glossary {
		if n := len(strings.Fields(term)); n > max {
			max = n
		}
	}
	return max
}
