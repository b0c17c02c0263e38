// Package pipeline fuses streaming recognition, voice activity detection,
// adaptive endpointing, a streaming language model and incremental speech
// synthesis into the per-connection voice machine.
//
// One Pipeline serves one WebSocket connection. Inbound PCM frames drive the
// recognizer and the endpointing detector on the caller's goroutine; a
// language-model streamer and a long-lived synthesis consumer run as
// background goroutines. Utterance ids and the synthesis epoch counter make
// cancellation definitive: output tagged with a stale id or epoch is dropped
// before it reaches the wire.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxloop/voxloop/internal/archive"
	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/dialoglog"
	"github.com/voxloop/voxloop/internal/notify"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/transcript"
	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/protocol"
	"github.com/voxloop/voxloop/pkg/provider/asr"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	ttsprov "github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/provider/vad"
)

// State is the connection-level turn state. Exactly one holds at any time.
type State int

const (
	// StateIdle waits for the user to start speaking.
	StateIdle State = iota

	// StateUserSpeaking accumulates user audio into the recognizer.
	StateUserSpeaking

	// StateAssistantTTS plays assistant audio; inbound PCM is dropped.
	StateAssistantTTS
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSpeaking:
		return "user_speaking"
	case StateAssistantTTS:
		return "assistant_tts"
	}
	return "unknown"
}

// Sender delivers messages to the client. Implementations must serialize:
// two concurrent calls may not interleave bytes on the wire, and the call
// order of a single goroutine must be preserved.
type Sender interface {
	SendJSON(ctx context.Context, v any) error
	SendBinary(ctx context.Context, data []byte) error
}

// Deps carries everything a Pipeline needs. Sender, Session, Config, ASR,
// VAD, LLM and TTS are required; the rest degrade gracefully when nil.
type Deps struct {
	Sender  Sender
	Session *session.Session
	Agent   config.AgentConfig
	Config  *config.Config

	ASR asr.Engine
	VAD vad.Engine
	LLM llm.Provider
	TTS ttsprov.Provider

	// Acks serves pre-rendered acknowledgement audio. Nil disables the
	// cache; acks are then synthesized on demand.
	Acks *ttsprov.AckCache

	// Corrector repairs glossary terms in recognized finals before the turn
	// is committed. May be nil.
	Corrector *transcript.Corrector

	// Summariser builds the end-of-session summary. Nil falls back to the
	// heuristic summariser.
	Summariser session.Summariser

	// Dialog pushes committed turns to the control plane. Nil is a no-op.
	Dialog *dialoglog.Pusher

	// Archive persists committed turns and summaries. May be nil.
	Archive archive.Store

	// Notifier receives the end-of-session summary. May be nil.
	Notifier notify.Notifier

	// Metrics records pipeline instrumentation. Nil uses the default set.
	Metrics *observe.Metrics

	// Decode bounds concurrent recognition decode across all connections.
	// May be nil, in which case decode runs inline.
	Decode *semaphore.Weighted
}

// ttsToken is one unit of the LLM to TTS stream. An empty token is the end
// sentinel for its utterance.
type ttsToken struct {
	u   uint32
	tok string
}

const ttsQueueDepth = 5000

// Pipeline is the per-connection voice machine. Public methods are safe to
// call from the connection's read loop; internal goroutines coordinate
// through the single mutex.
type Pipeline struct {
	deps    Deps
	agent   config.AgentConfig
	metrics *observe.Metrics
	summar  session.Summariser

	// now is stubbed in tests to drive the silence clocks deterministically.
	now func() int64

	runCtx    context.Context
	cancelRun context.CancelFunc

	ttsQ chan ttsToken
	mime protocol.Mime
	opus *audio.OpusEncoder

	mu sync.Mutex

	state         State
	handshakeDone bool

	rec        asr.Recognizer
	vadSess    vad.SessionHandle
	sampleRate int
	frameBytes int
	asrWords   bool
	phraseList []string
	audioBuf   []byte

	// Partial tracking.
	lastVoiceMs         int64
	lastPartial         string
	lastPartialChangeMs int64
	lastPartialSentMs   int64

	// Turn control.
	ackSentForTurn  bool
	llmStarted      bool
	currentLLMInput string
	llmStartedAtMs  int64
	lastRestartMs   int64

	// Output ownership.
	utteranceID   uint32
	activeOutputU uint32
	outputActive  bool
	ttsEpoch      uint64
	ttsAllowedU   uint32
	ttsPlaying    bool
	ttsSending    bool
	lastTTSChunk  int64

	// Barge-in runtime.
	bargeArmed    bool
	silentRunMs   int
	voiceRunMs    int
	lastBargeInMs int64

	stats *speechStats
	ep    epState

	// Recognition gating.
	asrEnabled      bool
	asrWarmingUp    bool
	asrWarmupDeadMs int64

	llmCancel context.CancelFunc
}

// New builds a pipeline for one connection, opening a recognizer and a VAD
// session with the configured audio parameters.
func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Sender == nil:
		return nil, errors.New("pipeline: nil sender")
	case d.Session == nil:
		return nil, errors.New("pipeline: nil session")
	case d.Config == nil:
		return nil, errors.New("pipeline: nil config")
	case d.ASR == nil, d.VAD == nil, d.LLM == nil, d.TTS == nil:
		return nil, errors.New("pipeline: missing provider")
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	if d.Summariser == nil {
		d.Summariser = session.HeuristicSummariser{}
	}
	if d.Agent.ID == "" {
		d.Agent = config.DefaultAgent()
	}

	p := &Pipeline{
		deps:    d,
		agent:   d.Agent,
		metrics: d.Metrics,
		summar:  d.Summariser,
		now:     func() int64 { return time.Now().UnixMilli() },
		ttsQ:    make(chan ttsToken, ttsQueueDepth),
		mime:    protocol.MimeWAV,
		state:   StateIdle,
		ep:      epListening,
		stats:   newSpeechStats(d.Config.Endpoint),
	}

	audioCfg := d.Config.Audio
	p.sampleRate = audioCfg.SampleRate
	if p.sampleRate == 0 {
		p.sampleRate = 16000
	}
	p.frameBytes = audio.FrameBytes(p.sampleRate, frameMsOrDefault(audioCfg.FrameMs))

	if audioCfg.Output == config.OutputOpus {
		enc, err := audio.NewOpusEncoder()
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		p.opus = enc
		p.mime = protocol.MimeOpus
	}

	rec, err := d.ASR.NewRecognizer(asr.Config{SampleRate: p.sampleRate})
	if err != nil {
		return nil, fmt.Errorf("pipeline: open recognizer: %w", err)
	}
	p.rec = rec

	vs, err := d.VAD.NewSession(vad.Config{
		SampleRate:  p.sampleRate,
		FrameSizeMs: frameMsOrDefault(audioCfg.FrameMs),
		Mode:        audioCfg.VADMode,
	})
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("pipeline: open vad session: %w", err)
	}
	p.vadSess = vs

	p.lastVoiceMs = p.now()
	p.lastPartialChangeMs = p.now()
	p.asrEnabled = true
	return p, nil
}

func frameMsOrDefault(ms int) int {
	if ms == 10 || ms == 20 || ms == 30 {
		return ms
	}
	return 20
}

// Start launches the synthesis consumer. The pipeline runs until ctx is
// cancelled or Close is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.runCtx, p.cancelRun = context.WithCancel(ctx)
	go p.ttsLoop(p.runCtx)
}

// Close cancels background work and releases the recognizer and VAD session.
func (p *Pipeline) Close() {
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.mu.Lock()
	if p.llmCancel != nil {
		p.llmCancel()
		p.llmCancel = nil
	}
	rec, vs := p.rec, p.vadSess
	p.mu.Unlock()
	if rec != nil {
		if err := rec.Close(); err != nil {
			slog.Debug("recognizer close failed", "error", err)
		}
	}
	if vs != nil {
		if err := vs.Close(); err != nil {
			slog.Debug("vad session close failed", "error", err)
		}
	}
}

// State returns the current turn state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// send delivers one JSON event, logging failures without propagating them:
// a client that stopped reading must not wedge the state machine.
func (p *Pipeline) send(ctx context.Context, v any) {
	if err := p.deps.Sender.SendJSON(ctx, v); err != nil {
		slog.Debug("event send failed", "session_id", p.deps.Session.ID, "error", err)
	}
}

func (p *Pipeline) protoViolation(ctx context.Context, msg string) {
	slog.Warn("protocol violation", "session_id", p.deps.Session.ID, "detail", msg)
	p.metrics.ProtocolViolations.Add(ctx, 1)
}

// SendReady announces the stream parameters. The initial copy carries the
// static endpointing defaults; the post-config copy omits them.
func (p *Pipeline) SendReady(ctx context.Context, initial bool) {
	cfg := p.deps.Config
	ev := protocol.Ready{
		Event:        "ready",
		SampleRate:   p.sampleRate,
		FrameMs:      frameMsOrDefault(cfg.Audio.FrameMs),
		VadMode:      cfg.Audio.VADMode,
		EarlyPauseMs: cfg.Endpoint.EarlyPauseMs,
	}
	if initial {
		ev.FinalPauseMs = cfg.Endpoint.FinalPauseMs
		ev.StableMs = cfg.Endpoint.StableMs
	}
	p.send(ctx, ev)
}

// Configure applies the client's handshake. The sample rate is forced to
// 16 kHz; a differing request earns a reconfigured notice. A duplicate
// config is a soft violation: the client gets a warning and the connection
// stays up.
func (p *Pipeline) Configure(ctx context.Context, req protocol.ConfigRequest) error {
	p.mu.Lock()
	if p.handshakeDone {
		p.mu.Unlock()
		p.protoViolation(ctx, "duplicate config")
		p.send(ctx, protocol.Warning{Event: "warning", Reason: "config_already_applied"})
		return nil
	}

	if req.SampleRate != 0 && req.SampleRate != p.sampleRate {
		p.send(ctx, protocol.Reconfigured{
			Event:      "reconfigured",
			SampleRate: p.sampleRate,
			Note:       "server supports pcm16 mono 16000 only",
		})
	}

	p.asrWords = req.Words
	p.phraseList = req.PhraseList
	p.audioBuf = nil

	if err := p.rebuildRecognizerLocked(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: apply config: %w", err)
	}
	p.handshakeDone = true
	p.asrEnabled = true
	p.mu.Unlock()

	p.SendReady(ctx, false)
	return nil
}

// rebuildRecognizerLocked replaces the recognizer with a fresh one for the
// current config. Callers hold p.mu.
func (p *Pipeline) rebuildRecognizerLocked() error {
	rec, err := p.deps.ASR.NewRecognizer(asr.Config{
		SampleRate: p.sampleRate,
		Words:      p.asrWords,
		PhraseList: p.phraseList,
	})
	if err != nil {
		return err
	}
	if p.rec != nil {
		if cerr := p.rec.Close(); cerr != nil {
			slog.Debug("recognizer close failed", "error", cerr)
		}
	}
	p.rec = rec
	return nil
}

// Ping answers a keep-alive by echoing the client's value.
func (p *Pipeline) Ping(ctx context.Context, value []byte) {
	p.send(ctx, protocol.Pong{Pong: value})
}

// Reset finalizes the current phrase, runs the usual final-text path, and
// rebuilds the recognizer for the next utterance.
func (p *Pipeline) Reset(ctx context.Context) {
	p.mu.Lock()
	res := p.rec.FinalResult()
	text := strings.TrimSpace(res.Text)
	if text != "" {
		p.send(ctx, protocol.Final{Type: "final", Text: text, Result: wordsPayload(res.Words)})
		if p.state == StateUserSpeaking {
			p.state = StateIdle
		}
	}
	p.mu.Unlock()

	if text != "" {
		text = p.correctFinal(ctx, res)
	}
	p.handleFinalText(ctx, text, "final_reset")

	p.mu.Lock()
	p.resetTurnLocked()
	if err := p.rebuildRecognizerLocked(); err != nil {
		slog.Warn("recognizer rebuild failed on reset", "error", err)
	}
	p.lastPartial = ""
	p.mu.Unlock()
}

// EOF finalizes the current phrase and returns. The caller closes the
// connection with a normal status afterwards.
func (p *Pipeline) EOF(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.rec.FinalResult()
	text := strings.TrimSpace(res.Text)
	if text != "" {
		p.send(ctx, protocol.Final{Type: "final", Text: text, Result: wordsPayload(res.Words)})
	}
	p.resetTurnLocked()
}

// wordsPayload boxes per-word detail for a partial or final event, or nil so
// the field is omitted entirely when there is none.
func wordsPayload(words []asr.Word) any {
	if len(words) == 0 {
		return nil
	}
	return words
}

// resetTurnLocked clears per-turn state for a fresh user utterance. Callers
// hold p.mu.
func (p *Pipeline) resetTurnLocked() {
	p.ackSentForTurn = false
	p.llmStarted = false
	p.currentLLMInput = ""
	p.stats.resetTurn()
	p.ep = epListening
}

// Chat answers a typed question through the regular voice path with audio
// enabled. Unlike recognized finals it skips the anti-echo gates: typed text
// cannot be playback leakage.
func (p *Pipeline) Chat(ctx context.Context, question string) {
	question = strings.TrimSpace(question)
	if question == "" {
		return
	}
	p.send(ctx, protocol.ChatStart{Type: "chat_start", Question: question})
	p.acceptUserText(ctx, question, "chat", true)
}

// InjectPartial applies a synthetic recognition partial, used by protocol
// tests to drive the endpointer without audio.
func (p *Pipeline) InjectPartial(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.mu.Lock()
	p.lastPartial = text
	p.lastPartialChangeMs = p.now()
	p.mu.Unlock()
	p.send(ctx, protocol.Partial{Type: "partial", Partial: text})
}

// InjectFinal runs the full final-text path for a synthetic transcript.
func (p *Pipeline) InjectFinal(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.handleFinalText(ctx, text, "final_json")
	p.send(ctx, protocol.Final{Type: "final", Text: text})

	p.mu.Lock()
	if p.state == StateUserSpeaking {
		p.state = StateIdle
	}
	p.resetTurnLocked()
	p.mu.Unlock()
}

// EndSession builds the summary, reports it to the client, marks the session
// ended and fans the summary out to the archive and the notifier. The caller
// closes the connection afterwards.
func (p *Pipeline) EndSession(ctx context.Context) string {
	sess := p.deps.Session

	summary := sess.Summary()
	if summary == "" {
		if sess.TurnCount() > 0 {
			var err error
			summary, err = p.summar.Summarise(ctx, sess)
			if err != nil {
				summary = "summary_error: " + err.Error()
			}
		} else {
			summary = "Сессия пуста или не найдена"
		}
	}

	p.send(ctx, protocol.SessionSummary{
		Type:      "session_summary",
		SessionID: sess.ID,
		AgentID:   sess.AgentID,
		Summary:   summary,
	})
	p.send(ctx, protocol.SessionEnd{Type: "session_end", SessionID: sess.ID})

	sess.SetSummary(summary)
	sess.End()
	slog.Info("session ended by client", "session_id", sess.ID, "turns", sess.TurnCount())

	if p.deps.Archive != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.deps.Archive.SaveSummary(actx, sess.ID, sess.AgentID, summary); err != nil {
			slog.Warn("archive summary write failed", "session_id", sess.ID, "error", err)
		}
	}
	if p.deps.Notifier != nil {
		p.deps.Notifier.SessionEnded(sess.ID, sess.AgentID, summary)
	}
	return summary
}

// archiveTurn persists one committed turn without blocking the realtime path.
func (p *Pipeline) archiveTurn(role, text string, utteranceID uint32) {
	if p.deps.Archive == nil {
		return
	}
	rec := archive.TurnRecord{
		SessionID:   p.deps.Session.ID,
		AgentID:     p.deps.Session.AgentID,
		Role:        role,
		Text:        text,
		UtteranceID: utteranceID,
		TS:          time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.deps.Archive.SaveTurn(ctx, rec); err != nil {
			slog.Warn("archive turn write failed", "session_id", rec.SessionID, "error", err)
		}
	}()
}

func (p *Pipeline) ttsParams() ttsprov.Params {
	v := p.agent.Voice
	return ttsprov.Params{
		Voice:                 v.Voice,
		Speed:                 v.Speed,
		Emotion:               v.Emotion,
		PauseBetweenSentences: v.PauseBetweenSentences,
	}
}

func (p *Pipeline) historyTurns() int {
	if p.agent.HistoryTurns > 0 {
		return p.agent.HistoryTurns
	}
	return 12
}
