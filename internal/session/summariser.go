package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

// Summariser produces an end-of-session summary from the dialog history.
type Summariser interface {
	Summarise(ctx context.Context, s *Session) (string, error)
}

// Mood keyword buckets for the heuristic summary. Matching is substring-based
// on the lowercased user turn, so inflected forms still hit.
var (
	tenseWords    = []string{"устал", "грустно", "плохо", "стресс", "тревога"}
	positiveWords = []string{"хорошо", "отлично", "в порядке", "спасибо"}
)

// HeuristicSummariser builds a fixed-format summary without calling a model:
// main topics, the user's emotional state inferred from keyword hits, and the
// last few user utterances. It never fails, which makes it the fallback when
// the model-backed summariser errors out.
type HeuristicSummariser struct{}

// Summarise implements Summariser.
func (HeuristicSummariser) Summarise(_ context.Context, s *Session) (string, error) {
	var userFacts []string
	var moods []string
	seen := make(map[string]bool)

	for _, t := range s.Turns() {
		if t.Role != RoleUser || t.Text == "" {
			continue
		}
		userFacts = append(userFacts, t.Text)
		mood := classifyMood(t.Text)
		if !seen[mood] {
			seen[mood] = true
			moods = append(moods, mood)
		}
	}
	if len(moods) == 0 {
		moods = []string{"нейтральное"}
	}
	if len(userFacts) > 3 {
		userFacts = userFacts[len(userFacts)-3:]
	}

	var b strings.Builder
	b.WriteString("Краткое резюме сессии:\n")
	b.WriteString("Основные темы: ")
	b.WriteString(truncateRunes("консультация", 50))
	b.WriteString("\nСостояние пользователя: ")
	b.WriteString(truncateRunes(strings.Join(moods, ", "), 50))
	b.WriteString("\nКлючевые высказывания: ")
	b.WriteString(truncateRunes(strings.Join(userFacts, " | "), 100))
	return b.String(), nil
}

func classifyMood(text string) string {
	lower := strings.ToLower(text)
	for _, w := range tenseWords {
		if strings.Contains(lower, w) {
			return "тревожное состояние"
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return "положительное"
		}
	}
	return "нейтральное"
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// summarisationPrompt is the system prompt for the model-backed summariser.
// It pins the output to the same shape the heuristic produces so downstream
// consumers (dialog log, archive) see one format.
const summarisationPrompt = `Сформулируй краткое резюме голосовой сессии по истории диалога.
Формат строго такой:
Краткое резюме сессии:
Основные темы: <до трёх тем через запятую>
Состояние пользователя: <одно-два слова>
Ключевые высказывания: <до трёх коротких реплик пользователя через " | ">`

// LLMSummariser asks the chat model for the summary and falls back to the
// heuristic one on any failure. Low temperature keeps the output close to the
// requested format.
type LLMSummariser struct {
	llm      llm.Provider
	fallback HeuristicSummariser
	timeout  time.Duration
}

// NewLLMSummariser creates a summariser backed by the given provider. A nil
// provider yields one that always takes the heuristic path.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider, timeout: 10 * time.Second}
}

// Summarise implements Summariser.
func (ls *LLMSummariser) Summarise(ctx context.Context, s *Session) (string, error) {
	if ls.llm == nil || s.TurnCount() == 0 {
		return ls.fallback.Summarise(ctx, s)
	}
	ctx, cancel := context.WithTimeout(ctx, ls.timeout)
	defer cancel()

	resp, err := ls.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     s.BuildMessages(0),
		SystemPrompt: summarisationPrompt,
		Temperature:  0.3,
		MaxTokens:    200,
	})
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("llm summary failed, using heuristic", "session_id", s.ID, "error", err)
		return ls.fallback.Summarise(ctx, s)
	}
	return strings.TrimSpace(resp.Content), nil
}
