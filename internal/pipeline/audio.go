package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxloop/voxloop/pkg/protocol"
)

// ProcessPCM ingests one binary message of PCM16 audio from the client. It
// runs on the connection's read goroutine; everything latency-critical
// happens inline here.
func (p *Pipeline) ProcessPCM(ctx context.Context, data []byte) {
	p.mu.Lock()
	if !p.handshakeDone {
		p.mu.Unlock()
		p.protoViolation(ctx, "pcm before config handshake")
		return
	}
	if p.state == StateAssistantTTS {
		p.mu.Unlock()
		p.protoViolation(ctx, "pcm during assistant playback dropped")
		return
	}
	if len(data)%2 != 0 {
		p.mu.Unlock()
		p.protoViolation(ctx, "odd pcm payload length")
		return
	}
	if len(data) != p.frameBytes {
		p.mu.Unlock()
		p.protoViolation(ctx, "unexpected pcm frame size")
		return
	}
	if !p.asrEnabled {
		p.mu.Unlock()
		return
	}
	if p.asrWarmingUp {
		p.audioBuf = append(p.audioBuf, data...)
		if p.now() < p.asrWarmupDeadMs {
			p.mu.Unlock()
			return
		}
		// Warmup over; drain what accumulated plus this frame.
		p.asrWarmingUp = false
	} else {
		p.audioBuf = append(p.audioBuf, data...)
	}

	for len(p.audioBuf) >= p.frameBytes {
		frame := p.audioBuf[:p.frameBytes:p.frameBytes]
		p.audioBuf = p.audioBuf[p.frameBytes:]
		p.mu.Unlock()
		p.processFrame(ctx, frame)
		p.mu.Lock()
		if !p.asrEnabled || p.asrWarmingUp {
			break
		}
	}
	p.mu.Unlock()
}

// processFrame drives one 20 ms frame through detection, interruption
// handling, recognition and endpointing.
func (p *Pipeline) processFrame(ctx context.Context, frame []byte) {
	ev, err := p.vadSess.ProcessFrame(frame)
	if err != nil {
		slog.Warn("vad frame rejected", "error", err)
		return
	}
	isVoice := ev.Voice()
	now := p.now()

	p.metrics.AudioFrames.Add(ctx, 1)

	p.mu.Lock()
	if isVoice {
		p.lastVoiceMs = now
		if p.state == StateIdle {
			p.state = StateUserSpeaking
		}
		if p.ep != epListening {
			p.ep = epListening
		}
	}
	p.stats.observeFrame(isVoice, now)
	fireBarge := p.updateBargeLocked(isVoice, now)
	skipDecode := p.outputActive &&
		(p.ttsPlaying || now-p.lastTTSChunk < int64(p.deps.Config.BargeIn.IgnoreAfterTTSMs))
	p.mu.Unlock()

	if fireBarge {
		p.metrics.BargeIns.Add(ctx, 1)
		p.abortOutput(ctx, "barge_in_user_speaking")
		return
	}
	if skipDecode {
		return
	}

	boundary, err := p.decode(ctx, frame)
	if err != nil {
		slog.Warn("asr decode failed", "error", err)
		return
	}

	if boundary {
		p.onBoundaryFinal(ctx)
		return
	}

	p.onPartialTick(ctx, now, isVoice)
}

// updateBargeLocked advances the interruption detector by one frame and
// reports whether sustained user voice should abort assistant output.
// Callers hold p.mu.
func (p *Pipeline) updateBargeLocked(isVoice bool, now int64) bool {
	cfg := p.deps.Config.BargeIn
	if !cfg.Enabled {
		return false
	}
	if !p.outputActive {
		p.bargeArmed = false
		p.silentRunMs = 0
		p.voiceRunMs = 0
		return false
	}

	frameMs := frameMsOrDefault(p.deps.Config.Audio.FrameMs)

	if !isVoice {
		p.silentRunMs += frameMs
		p.voiceRunMs = 0
		if !p.bargeArmed && p.silentRunMs >= cfg.ArmSilenceMs {
			p.bargeArmed = true
		}
		return false
	}

	// Voice frame during assistant output. Each early return below is a
	// reason to distrust it as a real interruption.
	switch {
	case p.ttsPlaying:
		p.voiceRunMs = 0
	case !p.bargeArmed:
		p.voiceRunMs = 0
	case p.lastBargeInMs != 0 && now-p.lastBargeInMs < int64(cfg.CooldownMs):
		// Cooldown holds the accumulated run without growing it.
	case p.lastTTSChunk != 0 && now-p.lastTTSChunk < int64(cfg.IgnoreAfterTTSMs):
		p.voiceRunMs = 0
	default:
		p.voiceRunMs += frameMs
		if p.voiceRunMs >= cfg.MinVoiceMs {
			p.voiceRunMs = 0
			p.silentRunMs = 0
			return true
		}
	}
	return false
}

// decode feeds one frame to the recognizer, optionally through the shared
// bounded worker semaphore so a slow model cannot monopolise every core.
func (p *Pipeline) decode(ctx context.Context, frame []byte) (bool, error) {
	if p.deps.Config.Audio.DecodeInWorker && p.deps.Decode != nil {
		if err := p.deps.Decode.Acquire(ctx, 1); err != nil {
			return false, err
		}
		defer p.deps.Decode.Release(1)
	}
	return p.rec.AcceptWaveform(ctx, frame)
}

// onBoundaryFinal handles the recognizer committing an utterance on its own.
func (p *Pipeline) onBoundaryFinal(ctx context.Context) {
	p.mu.Lock()
	res := p.rec.Result()
	text := strings.TrimSpace(res.Text)
	if text != "" {
		p.send(ctx, protocol.Final{Type: "final", Text: text, Result: wordsPayload(res.Words)})
		if p.state == StateUserSpeaking {
			p.state = StateIdle
		}
	}
	p.lastPartial = ""
	p.lastPartialChangeMs = p.now()
	p.ep = epListening
	p.mu.Unlock()

	if text != "" {
		p.handleFinalText(ctx, p.correctFinal(ctx, res), "final_asr_result")
	}

	// A fresh phrase starts a fresh generation decision. The ack flag
	// survives: one acknowledgement per turn, not per revision.
	p.mu.Lock()
	p.llmStarted = false
	p.currentLLMInput = ""
	p.mu.Unlock()
}

// onPartialTick runs the rate-limited partial update, the endpointer state
// machine and the forced finalization check for one frame.
func (p *Pipeline) onPartialTick(ctx context.Context, now int64, isVoice bool) {
	epc := p.deps.Config.Endpoint

	p.mu.Lock()

	if now-p.lastPartialSentMs >= int64(epc.PartialRateLimitMs) {
		part := p.rec.PartialResult()
		text := strings.TrimSpace(part.Partial)
		if text != "" && text != p.lastPartial {
			if p.state == StateIdle {
				p.state = StateUserSpeaking
			}
			if !isTailJitter(text, p.lastPartial) {
				p.lastPartialChangeMs = now
				p.stats.observeWords(wordCount(text), now)
				p.ep = epListening
			}
			p.lastPartial = text
			p.send(ctx, protocol.Partial{Type: "partial", Partial: text, Result: wordsPayload(part.Words)})
			p.lastPartialSentMs = now
		}
	}

	silent := now - p.lastVoiceMs
	stable := now - p.lastPartialChangeMs

	th := defaultThresholds
	if p.lastPartial != "" {
		th = adaptiveThresholds(p.lastPartial, p.stats.wpsEma, p.stats.pauseEmaMs)
	}

	switch p.ep {
	case epListening:
		if !isVoice && p.lastPartial != "" &&
			isMeaningful(p.lastPartial, epc.MinCharsEarly, epc.MinWordsEarly) &&
			stable >= tentativeStableMs && silent >= int64(th.TentMs) {
			p.ep = epTentative
			p.send(ctx, protocol.TentativePause{
				Type:        "asr_tentative_pause",
				Text:        p.lastPartial,
				SilentMs:    silent,
				StableMs:    stable,
				TentativeMs: th.TentMs,
				ConfirmMs:   th.ConfMs,
			})
		}
	case epTentative:
		if !isVoice && silent >= int64(th.ConfMs) && stable >= confirmStableMs && isGoodEnd(p.lastPartial) {
			p.ep = epConfirmed
			p.metrics.EndpointConfirm.Record(ctx, float64(silent)/1000.0)
			p.send(ctx, protocol.ConfirmedEnd{
				Type:        "asr_confirmed_end",
				Text:        p.lastPartial,
				SilentMs:    silent,
				StableMs:    stable,
				ConfirmMs:   th.ConfMs,
				TentativeMs: th.TentMs,
				FinalMs:     th.FinMs,
				PauseEmaMs:  p.stats.pauseEmaMs,
				WpsEma:      p.stats.wpsEma,
				WordCount:   wordCount(p.lastPartial),
				IsGoodEnd:   isGoodEnd(p.lastPartial),
			})
		}
	case epConfirmed:
		if silent >= int64(th.FinMs) {
			p.ep = epFinal
		}
	}

	force := p.lastPartial != "" && silent >= int64(th.FinMs)
	if !force {
		p.mu.Unlock()
		return
	}

	res := p.rec.FinalResult()
	text := strings.TrimSpace(res.Text)
	if text != "" {
		p.send(ctx, protocol.Final{Type: "final", Text: text, Result: wordsPayload(res.Words)})
		if p.state == StateUserSpeaking {
			p.state = StateIdle
		}
	}
	p.lastPartial = ""
	p.lastPartialChangeMs = now
	p.mu.Unlock()

	if text != "" {
		p.handleFinalText(ctx, p.correctFinal(ctx, res), "final_pause")
	}

	p.mu.Lock()
	p.resetTurnLocked()
	if err := p.rebuildRecognizerLocked(); err != nil {
		slog.Warn("recognizer rebuild failed after final", "error", err)
	}
	p.mu.Unlock()
}
