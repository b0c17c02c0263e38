package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/pkg/protocol"
)

// ttsLoop is the long-lived synthesis consumer. It owns the client-facing
// audio window: exactly one tts_start and one tts_end per utterance that
// reaches it, in order, regardless of how the producer ended.
func (p *Pipeline) ttsLoop(ctx context.Context) {
	// currentU starts below any real utterance id so the first token always
	// opens a window.
	currentU := int64(-1)
	var buf string
	var localEpoch uint64

	for {
		var t ttsToken
		select {
		case <-ctx.Done():
			return
		case t = <-p.ttsQ:
		}

		if int64(t.u) != currentU {
			p.mu.Lock()
			if p.ttsSending && currentU >= 0 {
				// The previous utterance never delivered its sentinel; close
				// its window before opening the next one.
				p.send(ctx, protocol.TTSEnd{Type: "tts_end", UtteranceID: uint32(currentU)})
				p.ttsSending = false
			}
			if !p.outputActive || t.u != p.activeOutputU {
				// Ownership moved while this token sat in the queue. Opening
				// a window for a dead utterance would mute recognition with
				// no sentinel left to unmute it.
				p.mu.Unlock()
				continue
			}
			currentU = int64(t.u)
			buf = ""
			localEpoch = p.ttsEpoch
			p.state = StateAssistantTTS
			p.ttsSending = true
			p.send(ctx, protocol.TTSStart{Type: "tts_start", UtteranceID: t.u, Mime: p.mime.String()})
			// Hard mute: while assistant audio flows, inbound PCM is not
			// worth decoding at all.
			p.asrEnabled = false
			p.asrWarmingUp = false
			p.mu.Unlock()
		}

		if t.tok == "" {
			buf = p.finishUtterance(ctx, t.u, localEpoch, buf)
			continue
		}

		buf = appendDeduped(buf, t.tok)
		var chunks []string
		chunks, buf = splitForTTS(buf)
		for i, chunk := range chunks {
			if chunkTooSmall(chunk) {
				// Too short to speak naturally; hold it for more context.
				if i+1 < len(chunks) {
					chunks[i+1] = chunk + " " + chunks[i+1]
				} else {
					buf = strings.TrimSpace(chunk + " " + buf)
				}
				continue
			}
			p.synthesizeAndSend(ctx, t.u, localEpoch, chunk)
		}
	}
}

// finishUtterance handles the end sentinel: flush the tail, close the audio
// window, commit the assistant turn and re-arm recognition.
func (p *Pipeline) finishUtterance(ctx context.Context, u uint32, localEpoch uint64, buf string) string {
	// Flush everything that is left, short tails included. Dropping a tail
	// truncates the spoken answer mid-thought.
	chunks, rest := splitForTTS(buf)
	if tail := strings.TrimSpace(rest); tail != "" {
		chunks = append(chunks, tail)
	}
	for _, chunk := range chunks {
		p.synthesizeAndSend(ctx, u, localEpoch, chunk)
	}

	warmup := p.deps.Config.Audio.WarmupMs
	if warmup <= 0 {
		warmup = 200
	}

	p.mu.Lock()
	if u == p.activeOutputU {
		p.outputActive = false
		p.activeOutputU = 0
	}
	p.ttsPlaying = false
	if p.state != StateAssistantTTS {
		p.protoViolation(ctx, "audio window closing outside assistant playback")
	}
	p.state = StateIdle
	// An abort may already have paired the window; a second tts_end would
	// leave the client with an unbalanced stream.
	if p.ttsSending {
		p.send(ctx, protocol.TTSEnd{Type: "tts_end", UtteranceID: u})
		p.ttsSending = false
	}

	// Post-playback reset: clean recognizer state and a short warmup that
	// buffers audio while the room echo of our own voice dies down.
	p.rec.Reset()
	now := p.now()
	p.lastVoiceMs = now
	p.lastPartialChangeMs = now
	p.lastTTSChunk = 0
	p.lastPartial = ""
	p.ep = epListening
	p.ackSentForTurn = false
	p.asrEnabled = true
	p.asrWarmingUp = true
	p.asrWarmupDeadMs = now + int64(warmup)
	p.llmStarted = false
	p.currentLLMInput = ""
	p.ttsAllowedU = 0
	p.mu.Unlock()

	// TakeBuffer empties the utterance's buffer, so a duplicate sentinel can
	// never commit the turn twice.
	text := p.deps.Session.TakeBuffer(u)
	if text != "" {
		p.deps.Session.AddTurn(session.RoleAssistant, text, u)
		p.deps.Dialog.PushTurn(p.deps.Session.ID, session.RoleAssistant, text)
		p.archiveTurn(session.RoleAssistant, text, u)
	}
	return ""
}

// synthesizeAndSend renders one chunk and, if the utterance still owns the
// output path after the synthesis round trip, ships it to the client.
func (p *Pipeline) synthesizeAndSend(ctx context.Context, u uint32, localEpoch uint64, chunk string) {
	if p.agent.SpellNumbers {
		chunk = spellNumbers(ctx, p.deps.LLM, chunk)
	}

	start := time.Now()
	wav, err := p.deps.TTS.Synthesize(ctx, chunk, p.ttsParams())
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", "synthesize")
		p.send(ctx, protocol.TTSError{Type: "tts_error", UtteranceID: u, Error: err.Error()})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Ownership can change while synthesis is in flight; every guard here is
	// a different way this chunk may have gone stale.
	if !p.outputActive || u != p.activeOutputU || localEpoch != p.ttsEpoch || p.ttsAllowedU != u {
		slog.Debug("stale synthesis result dropped", "utterance_id", u)
		return
	}
	p.ttsPlaying = true
	if err := p.sendAudioLocked(ctx, u, wav); err != nil {
		slog.Warn("audio send failed", "utterance_id", u, "error", err)
		return
	}
	p.lastTTSChunk = p.now()
}
