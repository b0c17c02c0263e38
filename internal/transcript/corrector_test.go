package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/voxloop/voxloop/internal/transcript/llmcorrect"
	"github.com/voxloop/voxloop/pkg/provider/asr"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	llmmock "github.com/voxloop/voxloop/pkg/provider/llm/mock"
)

// tableMatcher replaces phrases via a fixed lookup table.
type tableMatcher struct {
	table map[string]string
}

func (m *tableMatcher) Match(phrase string, _ []string) (string, float64, bool) {
	if term, ok := m.table[strings.ToLower(phrase)]; ok {
		return term, 0.9, true
	}
	return phrase, 0, false
}

func TestNilCorrectorPassesThrough(t *testing.T) {
	t.Parallel()
	var c *Corrector

	text, corrs := c.Correct(context.Background(), asr.Result{Text: " привет "})
	if text != "привет" || corrs != nil {
		t.Errorf("got %q %+v", text, corrs)
	}
}

func TestEmptyGlossaryPassesThrough(t *testing.T) {
	t.Parallel()
	c := New(nil)

	text, corrs := c.Correct(context.Background(), asr.Result{Text: "включи я некст"})
	if text != "включи я некст" || corrs != nil {
		t.Errorf("got %q %+v", text, corrs)
	}
}

func TestPhoneticSingleWord(t *testing.T) {
	t.Parallel()
	c := New([]string{"Яндекс"}, WithMatcher(&tableMatcher{
		table: map[string]string{"яндекс": "Яндекс", "ендекс": "Яндекс"},
	}))

	text, corrs := c.Correct(context.Background(), asr.Result{Text: "открой ендекс карты"})
	if text != "открой Яндекс карты" {
		t.Errorf("text = %q", text)
	}
	if len(corrs) != 1 || corrs[0].Method != "phonetic" || corrs[0].Original != "ендекс" {
		t.Errorf("corrections = %+v", corrs)
	}
}

func TestPhoneticMultiWordWindowWins(t *testing.T) {
	t.Parallel()
	// "вокс луп" must be consumed as one window, not two single words.
	c := New([]string{"Voxloop"}, WithMatcher(&tableMatcher{
		table: map[string]string{"вокс луп": "Voxloop"},
	}))

	text, corrs := c.Correct(context.Background(), asr.Result{Text: "запусти вокс луп быстро"})
	if text != "запусти Voxloop быстро" {
		t.Errorf("text = %q", text)
	}
	if len(corrs) != 1 || corrs[0].Original != "вокс луп" {
		t.Errorf("corrections = %+v", corrs)
	}
}

func TestIdentityMatchNotRecorded(t *testing.T) {
	t.Parallel()
	c := New([]string{"Яндекс"}, WithMatcher(&tableMatcher{
		table: map[string]string{"яндекс": "Яндекс"},
	}))

	// Already spelled correctly up to case; no substitution to report.
	text, corrs := c.Correct(context.Background(), asr.Result{Text: "открой яндекс"})
	if text != "открой яндекс" {
		t.Errorf("text = %q", text)
	}
	if len(corrs) != 0 {
		t.Errorf("corrections = %+v", corrs)
	}
}

func TestLLMStageOnLowConfidence(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "позвони в Альфа-Банк",
				"corrections": [{"original": "альфабанк", "corrected": "Альфа-Банк", "confidence": 0.8}]}`,
		},
	}
	c := New([]string{"Альфа-Банк"},
		WithMatcher(&tableMatcher{}),
		WithLLM(llmcorrect.New(p)))

	res := asr.Result{
		Text: "позвони в альфабанк",
		Words: []asr.Word{
			{Word: "позвони", Conf: 0.95},
			{Word: "в", Conf: 0.99},
			{Word: "альфабанк", Conf: 0.31},
		},
	}
	text, corrs := c.Correct(context.Background(), res)
	if text != "позвони в Альфа-Банк" {
		t.Errorf("text = %q", text)
	}
	if len(corrs) != 1 || corrs[0].Method != "llm" {
		t.Errorf("corrections = %+v", corrs)
	}
	if len(p.CompleteCalls) != 1 {
		t.Errorf("model calls = %d", len(p.CompleteCalls))
	}
}

func TestLLMStageSkippedWhenAllConfident(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	c := New([]string{"Яндекс"},
		WithMatcher(&tableMatcher{}),
		WithLLM(llmcorrect.New(p)))

	res := asr.Result{
		Text: "какая сегодня погода",
		Words: []asr.Word{
			{Word: "какая", Conf: 0.97},
			{Word: "сегодня", Conf: 0.94},
			{Word: "погода", Conf: 0.96},
		},
	}
	if text, _ := c.Correct(context.Background(), res); text != "какая сегодня погода" {
		t.Errorf("text = %q", text)
	}
	if len(p.CompleteCalls) != 0 {
		t.Error("model called despite confident words")
	}
}

func TestLLMStageErrorKeepsPhoneticResult(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteErr: context.DeadlineExceeded}
	c := New([]string{"Яндекс"},
		WithMatcher(&tableMatcher{table: map[string]string{"ендекс": "Яндекс"}}),
		WithLLM(llmcorrect.New(p)))

	// Wordless final always reaches the model stage; its failure must not
	// lose the phonetic substitution.
	text, corrs := c.Correct(context.Background(), asr.Result{Text: "открой ендекс"})
	if text != "открой Яндекс" {
		t.Errorf("text = %q", text)
	}
	if len(corrs) != 1 || corrs[0].Method != "phonetic" {
		t.Errorf("corrections = %+v", corrs)
	}
}
