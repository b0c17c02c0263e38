package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/pkg/protocol"
	"github.com/voxloop/voxloop/pkg/provider/llm"
)

func (p *Pipeline) systemPrompt() string {
	if p.agent.SystemPrompt != "" {
		return p.agent.SystemPrompt
	}
	return config.DefaultSystemPrompt
}

// runLLM streams one generation for utterance u, feeding tokens to the client
// and, when this utterance owns the audio path, to the synthesis queue.
// It runs as a goroutine; a restart or abort cancels ctx.
func (p *Pipeline) runLLM(ctx context.Context, u uint32, prompt string) {
	p.send(ctx, protocol.NLUStart{Type: "nlu_start", UtteranceID: u, Text: prompt})

	sess := p.deps.Session
	sess.OpenBuffer(u)
	req := llm.CompletionRequest{
		Messages:     sess.BuildMessages(p.historyTurns()),
		SystemPrompt: p.systemPrompt(),
		Temperature:  p.agent.Temperature,
		MaxTokens:    p.agent.MaxTokens,
	}

	started := time.Now()
	endCtx := context.WithoutCancel(ctx)

	defer func() {
		// A run that ended naturally must deliver its sentinel even when the
		// queue is momentarily full: without it the consumer never closes the
		// audio window. Cancelled runs skip it; their queue entries were
		// drained and the window belongs to a newer utterance.
		if ctx.Err() == nil {
			select {
			case p.ttsQ <- ttsToken{u: u}:
			case <-ctx.Done():
			}
		}
		p.send(endCtx, protocol.LLMEnd{Type: "llm_end", UtteranceID: u})
		p.metrics.LLMDuration.Record(endCtx, time.Since(started).Seconds())
	}()

	ch, err := p.deps.LLM.StreamCompletion(ctx, req)
	if err != nil {
		p.metrics.RecordProviderError(ctx, "llm", "stream")
		p.send(endCtx, protocol.LLMError{Type: "llm_error", UtteranceID: u, Error: err.Error()})
		return
	}

	first := true
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			p.metrics.RecordProviderError(ctx, "llm", "stream")
			p.send(endCtx, protocol.LLMError{Type: "llm_error", UtteranceID: u, Error: chunk.Text})
			return
		}
		if chunk.Text == "" {
			continue
		}
		if first {
			first = false
			delta := time.Since(started)
			p.metrics.LLMFirstToken.Record(ctx, delta.Seconds())
			p.send(ctx, protocol.Metric{Type: "metric", UtteranceID: u, LLMFirstTokenMs: delta.Milliseconds()})
		}

		sess.AppendBuffer(u, chunk.Text)
		p.send(ctx, protocol.LLMDelta{Type: "llm_delta", UtteranceID: u, Delta: chunk.Text})

		p.mu.Lock()
		allowed := p.ttsAllowedU == u
		p.mu.Unlock()
		if !allowed {
			continue
		}
		select {
		case p.ttsQ <- ttsToken{u: u, tok: chunk.Text}:
		default:
			slog.Warn("tts queue full, token dropped", "utterance_id", u)
		}
	}
}
