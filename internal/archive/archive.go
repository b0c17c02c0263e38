// Package archive defines the persistent transcript store: finished
// conversation turns and end-of-session summaries, with search over past
// sessions.
//
// Two backends implement [Store]: postgres (pgx + pgvector, semantic search
// over turn embeddings) and badger (embedded key-value store, substring
// search). Archiving is optional; with no backend configured every write is
// skipped and the transcript endpoints fall back to in-memory session state.
package archive

import "context"

// TurnRecord is one archived conversation turn.
type TurnRecord struct {
	// ID is a unique record id assigned by the backend.
	ID string `json:"id" msgpack:"id"`

	// SessionID groups turns into a conversation.
	SessionID string `json:"session_id" msgpack:"session_id"`

	// AgentID names the agent profile that served the session.
	AgentID string `json:"agent_id" msgpack:"agent_id"`

	// Role is "user" or "assistant".
	Role string `json:"role" msgpack:"role"`

	// Text is the turn text.
	Text string `json:"text" msgpack:"text"`

	// UtteranceID labels assistant turns. Zero for user turns.
	UtteranceID uint32 `json:"utterance_id,omitempty" msgpack:"utterance_id"`

	// TS is the epoch-millisecond timestamp of the turn.
	TS int64 `json:"ts" msgpack:"ts"`
}

// SearchHit is one result of a transcript search.
type SearchHit struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	TS        int64  `json:"ts"`

	// Score ranks hits. The postgres backend reports cosine similarity in
	// [0, 1]; substring backends report 0.
	Score float64 `json:"score"`
}

// Store is the abstraction over any archive backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveTurn appends one turn. The backend assigns rec.ID when empty.
	SaveTurn(ctx context.Context, rec TurnRecord) error

	// SaveSummary stores (or replaces) the summary for a session.
	SaveSummary(ctx context.Context, sessionID, agentID, summary string) error

	// Transcript returns all turns of a session in chronological order.
	// A session with no archived turns yields an empty slice, not an error.
	Transcript(ctx context.Context, sessionID string) ([]TurnRecord, error)

	// Search returns up to limit turns matching the query across all
	// sessions, best match first.
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// Close releases backend resources.
	Close() error
}
