// Package llmcorrect is the model-assisted stage of glossary correction.
//
// The [Corrector] sends a recognized final to an [llm.Provider] together
// with the glossary and a conservative system prompt, and expects structured
// JSON back: the corrected text plus an itemised substitution list. Model
// output is then verified token by token; any edit the model made without
// declaring it in the substitution list is reverted, so a chatty model
// cannot rewrite the user's words.
//
// Unparseable responses degrade to the original text with no error. The
// voice turn must proceed regardless of what the model returned.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

const defaultTemperature = 0.1

// systemPromptTemplate is the base system prompt; the glossary is appended
// at call time.
const systemPromptTemplate = `You are a transcript correction assistant for a realtime Russian voice assistant.

Your task: fix glossary term misspellings in the recognized transcript text. The transcript is usually Russian and may mix in Latin-script names.

Rules:
- ONLY correct words that appear to be misheard versions of the glossary terms listed below.
- Do NOT change ordinary words, grammar, punctuation, or sentence structure.
- Be conservative: if you are not confident a word is a misheard glossary term, leave it unchanged.
- Glossary terms in the corrected text must match the canonical spelling from the list exactly.

Glossary:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original span>", "corrected": "<glossary term>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction is one substitution reported by the model.
type Correction struct {
	// Original is the span as it appeared in the input.
	Original string

	// Corrected is the glossary term the model put in its place.
	Corrected string

	// Confidence is the model's reported confidence, in [0.0, 1.0].
	Confidence float64
}

// modelResponse is the JSON structure the model is asked to return.
type modelResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector asks a chat model to repair glossary terms in transcript text.
// It is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct sends text and the glossary to the model and returns the verified
// corrected text. lowConfidence lists words the recognizer flagged; they are
// highlighted in the user message as likely mishearings.
//
// Network and context errors are returned; a response the model formatted
// wrongly is not, the original text comes back unchanged instead.
func (c *Corrector) Correct(
	ctx context.Context,
	text string,
	glossary []string,
	lowConfidence []string,
) (string, []Correction, error) {
	if len(glossary) == 0 {
		return text, nil, nil
	}

	userMsg := text
	if len(lowConfidence) > 0 {
		userMsg = fmt.Sprintf(
			"Transcript: %s\n\nLow-confidence words that may be misheard: %s",
			text, strings.Join(lowConfidence, ", "),
		)
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(glossary),
		Temperature:  c.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
	})
	if err != nil {
		return text, nil, fmt.Errorf("glossary correction: complete: %w", err)
	}
	if resp == nil {
		return text, nil, nil
	}

	corrected, corrections, parseErr := parseResponse(resp.Content, text)
	if parseErr != nil {
		return text, nil, nil
	}

	verified, confirmed := verifyCorrectedText(text, corrected, corrections)
	return verified, confirmed, nil
}

func buildSystemPrompt(glossary []string) string {
	var sb strings.Builder
	for _, term := range glossary {
		sb.WriteString("- ")
		sb.WriteString(term)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse unmarshals the model output, tolerating markdown fences.
func parseResponse(content, originalText string) (string, []Correction, error) {
	var r modelResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil {
		return "", nil, fmt.Errorf("glossary correction: parse response: %w", err)
	}
	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}
	return r.CorrectedText, corrections, nil
}

// stripFences removes the ```json fences some models wrap JSON output in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
