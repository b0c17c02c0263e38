package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/protocol"
	"github.com/voxloop/voxloop/pkg/provider/asr"
)

// handleFinalText runs the full acceptance path for a recognized final:
// echo gates, turn commit, then generation start or restart.
func (p *Pipeline) handleFinalText(ctx context.Context, text, reason string) {
	p.acceptUserText(ctx, text, reason, false)
}

// correctFinal repairs glossary terms in a committed recognition result. The
// wire "final" event keeps the raw recognizer text; the corrected form is
// what the turn commits and the model answers. Must be called without p.mu
// held: the optional model stage blocks on a completion round trip.
func (p *Pipeline) correctFinal(ctx context.Context, res asr.Result) string {
	text, corrections := p.deps.Corrector.Correct(ctx, res)
	if len(corrections) > 0 {
		slog.Debug("glossary corrections applied",
			"session_id", p.deps.Session.ID,
			"count", len(corrections),
			"corrected", text,
		)
	}
	return text
}

// acceptUserText commits user text and drives the generation lifecycle.
// Trusted text (typed chat) bypasses the acoustic echo gates, which only
// make sense for microphone input.
func (p *Pipeline) acceptUserText(ctx context.Context, text, reason string, trusted bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := p.now()

	if !trusted {
		p.mu.Lock()
		playing := p.ttsPlaying
		sinceChunk := int64(-1)
		if p.lastTTSChunk != 0 {
			sinceChunk = now - p.lastTTSChunk
		}
		p.mu.Unlock()

		ignoreMs := int64(p.deps.Config.BargeIn.IgnoreAfterTTSMs)
		if playing || (sinceChunk >= 0 && sinceChunk < ignoreMs) {
			p.metrics.EchoDrops.Add(ctx, 1)
			slog.Debug("final dropped during assistant playback",
				"session_id", p.deps.Session.ID, "reason", reason)
			return
		}
		if isEchoLike(text, p.deps.Session.LastAssistantText()) {
			p.metrics.EchoDrops.Add(ctx, 1)
			slog.Debug("final dropped as echo of assistant speech",
				"session_id", p.deps.Session.ID, "reason", reason)
			return
		}
	}

	p.deps.Session.AddTurn(session.RoleUser, text, 0)
	p.deps.Dialog.PushTurn(p.deps.Session.ID, session.RoleUser, text)
	p.archiveTurn(session.RoleUser, text, 0)
	p.metrics.RecordUtterance(ctx, p.deps.Session.AgentID)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.llmStarted:
		playAck := p.agent.Ack && !p.ackSentForTurn
		p.startOrRestartLocked(ctx, text, reason, playAck, true)
		if playAck {
			p.ackSentForTurn = true
		}
	case shouldRestartLLM(text, p.currentLLMInput):
		if now-p.lastRestartMs < int64(p.deps.Config.Endpoint.RestartDebounceMs) {
			slog.Debug("generation restart debounced", "session_id", p.deps.Session.ID)
			return
		}
		p.lastRestartMs = now
		p.startOrRestartLocked(ctx, text, reason+"_restart", false, true)
	default:
		// Same utterance, minor revision: keep the current run, just make
		// sure its audio is allowed out.
		if p.ttsAllowedU == 0 && p.activeOutputU != 0 {
			p.ttsAllowedU = p.activeOutputU
		}
	}
}

// startOrRestartLocked supersedes whatever generation is in flight with a new
// one for text. Callers hold p.mu.
func (p *Pipeline) startOrRestartLocked(ctx context.Context, text, reason string, playAck, allowTTS bool) {
	now := p.now()

	// A new turn disarms interruption handling completely.
	p.bargeArmed = false
	p.silentRunMs = 0
	p.voiceRunMs = 0
	p.ttsPlaying = false

	prevU := p.activeOutputU
	hadLLM := p.llmCancel != nil
	if hadLLM {
		p.llmCancel()
		p.llmCancel = nil
	}

	p.utteranceID++
	u := p.utteranceID
	if allowTTS {
		p.ttsAllowedU = u
	} else {
		p.ttsAllowedU = 0
	}

	if prevU != 0 {
		if hadLLM {
			p.send(ctx, protocol.Abort{Type: "abort", Scope: "llm", UtteranceID: prevU, Reason: reason})
		}
		p.send(ctx, protocol.Abort{Type: "abort", Scope: "tts", UtteranceID: prevU, Reason: reason})
	}

	// Everything queued before this instant belongs to a dead utterance.
	p.ttsEpoch++
	p.drainTTSQueueLocked()

	p.activeOutputU = u
	p.outputActive = true
	p.currentLLMInput = text
	p.llmStarted = true
	p.llmStartedAtMs = now

	p.send(ctx, protocol.LLMStart{Type: "llm_start", UtteranceID: u, Text: text})

	if playAck && allowTTS {
		p.playAckLocked(ctx, u)
		p.ttsPlaying = true
		p.lastTTSChunk = p.now()
	}

	base := p.runCtx
	if base == nil {
		base = context.Background()
	}
	llmCtx, cancel := context.WithCancel(base)
	p.llmCancel = cancel
	go p.runLLM(llmCtx, u, text)
}

// playAckLocked plays a short canned acknowledgement in its own audio window
// while the real answer is still being generated. Callers hold p.mu; the lock
// is dropped around on-demand synthesis when the cache is cold.
//
// The turn state intentionally stays assistant_tts afterwards: the main
// window opens right behind the ack, and input in the gap is playback echo.
func (p *Pipeline) playAckLocked(ctx context.Context, u uint32) {
	switch {
	case p.ttsSending:
		p.protoViolation(ctx, "ack requested with an audio window open")
		return
	case p.state == StateAssistantTTS:
		p.protoViolation(ctx, "ack requested during assistant playback")
		return
	}

	var phrase string
	var wav []byte
	if p.deps.Acks != nil {
		phrase, wav = p.deps.Acks.Random()
	}
	if wav == nil && phrase != "" {
		epoch := p.ttsEpoch
		params := p.ttsParams()
		p.mu.Unlock()
		rendered, err := p.deps.TTS.Synthesize(ctx, phrase, params)
		p.mu.Lock()
		if err != nil {
			slog.Warn("ack synthesis failed", "error", err)
			return
		}
		if p.ttsEpoch != epoch || p.activeOutputU != u || p.ttsSending || p.state == StateAssistantTTS {
			return
		}
		wav = rendered
	}
	if wav == nil {
		return
	}

	p.state = StateAssistantTTS
	p.ttsSending = true
	p.send(ctx, protocol.TTSStart{Type: "tts_start", UtteranceID: u, Mime: p.mime.String(), Note: "ack"})
	if err := p.sendAudioLocked(ctx, u, wav); err != nil {
		slog.Warn("ack audio send failed", "error", err)
	}
	p.send(ctx, protocol.TTSEnd{Type: "tts_end", UtteranceID: u})
	p.ttsSending = false
}

// sendAudioLocked emits one synthesized WAV as binary frames in the
// negotiated codec, each announced by a tts_audio event. Callers hold p.mu.
func (p *Pipeline) sendAudioLocked(ctx context.Context, u uint32, wav []byte) error {
	if p.mime == protocol.MimeOpus && p.opus != nil {
		info, err := audio.ParseWAV(wav)
		if err != nil {
			return err
		}
		pcm := info.Data
		if info.Channels == 2 {
			pcm = audio.StereoToMono(pcm)
		}
		packets, err := p.opus.EncodePCM(pcm, info.SampleRate)
		if err != nil {
			return err
		}
		for _, pkt := range packets {
			p.send(ctx, protocol.TTSAudio{Type: "tts_audio", UtteranceID: u, Mime: p.mime.String()})
			if err := p.deps.Sender.SendBinary(ctx, protocol.EncodeFrame(u, protocol.MimeOpus, pkt)); err != nil {
				return err
			}
		}
		return nil
	}

	p.send(ctx, protocol.TTSAudio{Type: "tts_audio", UtteranceID: u, Mime: p.mime.String()})
	return p.deps.Sender.SendBinary(ctx, protocol.EncodeFrame(u, protocol.MimeWAV, wav))
}

// abortOutput cancels all in-flight generation and playback for the active
// utterance. It is a no-op when nothing is active, which makes duplicate
// triggers harmless.
func (p *Pipeline) abortOutput(ctx context.Context, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.outputActive || p.activeOutputU == 0 {
		return
	}
	u := p.activeOutputU

	p.outputActive = false
	p.activeOutputU = 0
	p.ttsEpoch++
	p.ttsPlaying = false
	if p.ttsSending {
		// The consumer opened an audio window between the abort decision and
		// this lock. Its producer is about to be cancelled and will never
		// deliver the end sentinel, so the window must be paired and
		// recognition unmuted right here or the microphone stays dead.
		p.send(ctx, protocol.TTSEnd{Type: "tts_end", UtteranceID: u})
		p.ttsSending = false
		p.asrEnabled = true
		p.asrWarmingUp = false
	}
	p.bargeArmed = false
	p.silentRunMs = 0
	p.voiceRunMs = 0
	if p.state == StateAssistantTTS {
		p.state = StateUserSpeaking
	}
	p.ttsAllowedU = 0
	p.llmStarted = false
	p.currentLLMInput = ""
	p.lastBargeInMs = p.now()

	if p.llmCancel != nil {
		p.llmCancel()
		p.llmCancel = nil
	}

	p.send(ctx, protocol.Abort{Type: "abort", Scope: "llm", UtteranceID: u, Reason: reason})
	p.send(ctx, protocol.Abort{Type: "abort", Scope: "tts", UtteranceID: u, Reason: reason})
	p.drainTTSQueueLocked()

	slog.Info("assistant output aborted", "session_id", p.deps.Session.ID,
		"utterance_id", u, "reason", reason)
}

// drainTTSQueueLocked empties the synthesis queue without blocking.
func (p *Pipeline) drainTTSQueueLocked() {
	for {
		select {
		case <-p.ttsQ:
		default:
			return
		}
	}
}
