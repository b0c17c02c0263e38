// Package session provides per-conversation dialog state for voxloop: the
// ordered turn history, in-flight assistant buffers, end-of-session summaries,
// and the registry that keeps sessions alive across brief reconnects.
//
// A [Session] is shared between the WebSocket connection that drives it and
// the operational HTTP surface (summary/end/transcript endpoints), so all
// methods are safe for concurrent use.
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single dialog utterance.
type Turn struct {
	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Text is the trimmed utterance text. Never empty.
	Text string `json:"text"`

	// TS is the epoch-millisecond timestamp of the turn.
	TS int64 `json:"ts"`

	// UtteranceID labels assistant turns with the utterance that produced
	// them. Zero for user turns.
	UtteranceID uint32 `json:"utterance_id,omitempty"`
}

// Session holds the dialog state for one session id. Sessions outlive the
// WebSocket connection that created them and are garbage-collected by the
// [Registry] once ended.
type Session struct {
	// ID is the stable session identifier (JWT "sub" or a generated local id).
	ID string

	// AgentID names the agent profile serving this session.
	AgentID string

	mu         sync.Mutex
	turns      []Turn
	llmBuffers map[uint32]string
	summary    string
	ended      bool
	endedAtMs  int64
}

// New creates an empty session.
func New(id, agentID string) *Session {
	return &Session{
		ID:         id,
		AgentID:    agentID,
		llmBuffers: make(map[uint32]string),
	}
}

// AddTurn appends a turn. Empty (after trimming) text is dropped and false is
// returned; the history never contains blank turns.
func (s *Session) AddTurn(role, text string, utteranceID uint32) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	s.mu.Lock()
	s.turns = append(s.turns, Turn{
		Role:        role,
		Text:        text,
		TS:          time.Now().UnixMilli(),
		UtteranceID: utteranceID,
	})
	n := len(s.turns)
	s.mu.Unlock()
	slog.Debug("session turn added", "session_id", s.ID, "role", role, "turns", n)
	return true
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// TurnCount returns the number of turns recorded so far.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// LastAssistantText returns the text of the most recent assistant turn, or ""
// when there is none.
func (s *Session) LastAssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant && s.turns[i].Text != "" {
			return s.turns[i].Text
		}
	}
	return ""
}

// BuildMessages converts the last maxTurns turns into LLM messages. The
// system prompt is carried separately in the completion request, so the
// returned slice holds history only.
func (s *Session) BuildMessages(maxTurns int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.turns
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := llm.RoleAssistant
		if t.Role == RoleUser {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}

// OpenBuffer creates (or clears) the in-flight assistant buffer for an
// utterance. Called when an LLM run starts.
func (s *Session) OpenBuffer(utteranceID uint32) {
	s.mu.Lock()
	s.llmBuffers[utteranceID] = ""
	s.mu.Unlock()
}

// AppendBuffer accumulates one streamed token into the utterance buffer.
func (s *Session) AppendBuffer(utteranceID uint32, token string) {
	s.mu.Lock()
	s.llmBuffers[utteranceID] += token
	s.mu.Unlock()
}

// TakeBuffer removes and returns the trimmed buffer for an utterance. The
// second call for the same utterance returns "", which is what makes the
// assistant-turn commit strictly once.
func (s *Session) TakeBuffer(utteranceID uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.llmBuffers[utteranceID]
	if !ok {
		return ""
	}
	delete(s.llmBuffers, utteranceID)
	return strings.TrimSpace(text)
}

// Summary returns the stored summary, or "".
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// SetSummary stores the end-of-session summary.
func (s *Session) SetSummary(summary string) {
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
}

// End marks the session ended. The first call records the end timestamp;
// later calls are no-ops. Ended sessions stay readable until the registry
// sweep collects them.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.endedAtMs = time.Now().UnixMilli()
}

// Ended reports whether the session has ended and, if so, when.
func (s *Session) Ended() (bool, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended, s.endedAtMs
}
