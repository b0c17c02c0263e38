// Package protocol defines the wire protocol spoken between the voxloop
// server and its clients: the JSON event payloads carried as WebSocket text
// frames, the binary audio framing, and the close codes.
//
// Three server events use an "event" discriminator (ready, reconfigured,
// warning); everything else uses "type". Clients send one JSON object per
// text frame and raw PCM16 as binary frames.
package protocol

import "encoding/json"

// Close codes used by the server. 4001 is a private-range code; the rest are
// standard RFC 6455 codes.
const (
	CloseAuthFailed    = 4001 // missing or invalid token
	ClosePolicy        = 1008 // unknown agent or disallowed origin
	CloseInternalError = 1011
	CloseNormal        = 1000
)

// ─── Client → server ─────────────────────────────────────────────────────────

// ConfigRequest is the client's opening handshake payload.
type ConfigRequest struct {
	SampleRate int      `json:"sample_rate"`
	Words      bool     `json:"words"`
	PhraseList []string `json:"phrase_list"`
}

// ClientMessage is the union of every JSON control a client may send.
// Pointer fields distinguish "absent" from "zero" where the field's mere
// presence is the trigger (ping, chat).
type ClientMessage struct {
	Config *ConfigRequest   `json:"config"`
	Reset  int              `json:"reset"`
	EOF    int              `json:"eof"`
	Ping   *json.RawMessage `json:"ping"`
	Chat   *string          `json:"chat"`

	// Type selects end_session or a synthetic ASR injection
	// ("partial" / "final") used by protocol-level tests.
	Type    string `json:"type"`
	Partial string `json:"partial"`
	Text    string `json:"text"`
}

// ─── Server → client, "event" family ─────────────────────────────────────────

// Ready announces the negotiated stream parameters. The copy sent right
// after accept also carries the default final-pause and stable thresholds;
// the copy sent after a config handshake omits them.
type Ready struct {
	Event        string `json:"event"`
	SampleRate   int    `json:"sample_rate"`
	FrameMs      int    `json:"frame_ms"`
	VadMode      int    `json:"vad_mode"`
	EarlyPauseMs int    `json:"early_pause_ms"`
	FinalPauseMs int    `json:"final_pause_ms,omitempty"`
	StableMs     int    `json:"stable_ms,omitempty"`
}

// Reconfigured tells the client its requested sample rate was overridden.
type Reconfigured struct {
	Event      string `json:"event"`
	SampleRate int    `json:"sample_rate"`
	Note       string `json:"note"`
}

// Warning reports a soft protocol issue that did not close the connection.
type Warning struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

// Pong answers a ping, echoing the client's value.
type Pong struct {
	Pong json.RawMessage `json:"pong"`
}

// ─── Server → client, "type" family ──────────────────────────────────────────

// Partial carries an interim recognition hypothesis. Result holds per-word
// detail when the client asked for words in its config.
type Partial struct {
	Type    string `json:"type"`
	Partial string `json:"partial"`
	Result  any    `json:"result,omitempty"`
}

// Final carries a committed recognition result.
type Final struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Result any    `json:"result,omitempty"`
}

// TentativePause reports the endpointer entering its tentative state.
// Emitted as "asr_tentative_pause".
type TentativePause struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	SilentMs    int64  `json:"silent_ms"`
	StableMs    int64  `json:"stable_ms"`
	TentativeMs int    `json:"tentative_ms"`
	ConfirmMs   int    `json:"confirm_ms"`
}

// ConfirmedEnd reports the endpointer entering its confirmed state, with the
// full adaptive-threshold picture for observability. Emitted as
// "asr_confirmed_end".
type ConfirmedEnd struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	SilentMs    int64   `json:"silent_ms"`
	StableMs    int64   `json:"stable_ms"`
	ConfirmMs   int     `json:"confirm_ms"`
	TentativeMs int     `json:"tentative_ms"`
	FinalMs     int     `json:"final_ms"`
	PauseEmaMs  float64 `json:"pause_ema_ms"`
	WpsEma      float64 `json:"wps_ema"`
	WordCount   int     `json:"word_count"`
	IsGoodEnd   bool    `json:"is_good_end"`
}

// NLUStart marks the accepted user text entering language processing.
type NLUStart struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Text        string `json:"text"`
}

// LLMStart marks the beginning of a generation for one utterance.
type LLMStart struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Text        string `json:"text"`
}

// LLMDelta carries one streamed token.
type LLMDelta struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Delta       string `json:"delta"`
}

// LLMEnd marks the end of a generation, success or not.
type LLMEnd struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
}

// LLMError reports a failed generation.
type LLMError struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Error       string `json:"error"`
}

// Metric carries a single latency measurement.
type Metric struct {
	Type            string `json:"type"`
	UtteranceID     uint32 `json:"utterance_id"`
	LLMFirstTokenMs int64  `json:"llm_first_token_ms"`
}

// Abort tells the client that in-flight output for an utterance was
// cancelled. Scope is "llm" or "tts".
type Abort struct {
	Type        string `json:"type"`
	Scope       string `json:"scope"`
	UtteranceID uint32 `json:"utterance_id,omitempty"`
	Reason      string `json:"reason"`
}

// TTSStart opens an audio window for one utterance. Note is "ack" on the
// short acknowledgement window played while the real answer is generated.
type TTSStart struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Mime        string `json:"mime"`
	Note        string `json:"note,omitempty"`
}

// TTSAudio announces the binary frame that immediately follows it.
type TTSAudio struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Mime        string `json:"mime"`
}

// TTSEnd closes the audio window for one utterance.
type TTSEnd struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
}

// TTSError reports a synthesis failure inside an open window.
type TTSError struct {
	Type        string `json:"type"`
	UtteranceID uint32 `json:"utterance_id"`
	Error       string `json:"error"`
}

// ChatStart acknowledges a text-chat request before generation begins.
type ChatStart struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

// SessionSummary delivers the end-of-session summary.
type SessionSummary struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Summary   string `json:"summary"`
}

// SessionEnd confirms the session was marked ended.
type SessionEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}
