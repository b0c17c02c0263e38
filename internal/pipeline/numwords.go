package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

const (
	numwordsPrompt = "Перепиши текст, заменив все числа и цифры словами на русском языке. " +
		"Сохрани остальной текст без изменений. Ответь только переписанным текстом."
	numwordsTimeout = 3 * time.Second
)

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// spellNumbers rewrites digits in a synthesis chunk to words through the LLM.
// Any failure returns the chunk unchanged; a spoken "25" beats a stalled
// audio stream.
func spellNumbers(ctx context.Context, provider llm.Provider, chunk string) string {
	if !containsDigit(chunk) {
		return chunk
	}
	ctx, cancel := context.WithTimeout(ctx, numwordsTimeout)
	defer cancel()

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: numwordsPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: chunk}},
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil || resp == nil {
		slog.Debug("number spelling failed, using original chunk", "error", err)
		return chunk
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return chunk
	}
	return out
}
