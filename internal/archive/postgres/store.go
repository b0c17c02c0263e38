// Package postgres implements the transcript archive on PostgreSQL.
//
// Turns live in the voice_turns table with an optional pgvector embedding
// column; summaries are upserted into voice_summaries. Search is cosine
// nearest-neighbour over turn embeddings when an embeddings provider is
// configured, and falls back to substring matching otherwise. The pgvector
// extension must be available; [Migrate] installs it via CREATE EXTENSION
// IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxloop/voxloop/internal/archive"
	"github.com/voxloop/voxloop/pkg/provider/embeddings"
)

var _ archive.Store = (*Store)(nil)

// Store is the PostgreSQL-backed archive. All methods are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection and runs [Migrate].
//
// embeddingDimensions must match the embedder's output dimension. embedder
// may be nil; turns are then stored without vectors and Search degrades to
// substring matching.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive postgres: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// SaveTurn implements [archive.Store]. Embedding failures degrade the record
// to text-only rather than losing the turn.
func (s *Store) SaveTurn(ctx context.Context, rec archive.TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	var vec *pgvector.Vector
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, rec.Text)
		if err != nil {
			slog.Warn("turn embedding failed, storing without vector",
				"session_id", rec.SessionID, "error", err)
		} else {
			v := pgvector.NewVector(emb)
			vec = &v
		}
	}

	const q = `
		INSERT INTO voice_turns
		    (id, session_id, agent_id, role, text, utterance_id, ts, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		rec.ID, rec.SessionID, rec.AgentID, rec.Role, rec.Text, rec.UtteranceID, rec.TS, vec)
	if err != nil {
		return fmt.Errorf("archive postgres: save turn: %w", err)
	}
	return nil
}

// SaveSummary implements [archive.Store].
func (s *Store) SaveSummary(ctx context.Context, sessionID, agentID, summary string) error {
	const q = `
		INSERT INTO voice_summaries (session_id, agent_id, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
		    agent_id   = EXCLUDED.agent_id,
		    summary    = EXCLUDED.summary,
		    created_at = now()`

	if _, err := s.pool.Exec(ctx, q, sessionID, agentID, summary); err != nil {
		return fmt.Errorf("archive postgres: save summary: %w", err)
	}
	return nil
}

// Transcript implements [archive.Store].
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]archive.TurnRecord, error) {
	const q = `
		SELECT id, session_id, agent_id, role, text, utterance_id, ts
		FROM   voice_turns
		WHERE  session_id = $1
		ORDER  BY ts, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: transcript: %w", err)
	}
	return collectTurns(rows)
}

// Search implements [archive.Store]. With an embedder it ranks turns by
// cosine similarity to the query embedding; otherwise it matches substrings
// case-insensitively, newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]archive.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, query)
		if err == nil {
			return s.searchVector(ctx, emb, limit)
		}
		slog.Warn("query embedding failed, falling back to text search", "error", err)
	}
	return s.searchText(ctx, query, limit)
}

func (s *Store) searchVector(ctx context.Context, emb []float32, limit int) ([]archive.SearchHit, error) {
	const q = `
		SELECT session_id, role, text, ts, 1 - (embedding <=> $1) AS similarity
		FROM   voice_turns
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(emb), limit)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: vector search: %w", err)
	}
	return collectHits(rows, true)
}

func (s *Store) searchText(ctx context.Context, query string, limit int) ([]archive.SearchHit, error) {
	const q = `
		SELECT session_id, role, text, ts
		FROM   voice_turns
		WHERE  text ILIKE '%' || $1 || '%'
		ORDER  BY ts DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: text search: %w", err)
	}
	return collectHits(rows, false)
}

// Close implements [archive.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func collectTurns(rows pgx.Rows) ([]archive.TurnRecord, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.TurnRecord, error) {
		var t archive.TurnRecord
		err := row.Scan(&t.ID, &t.SessionID, &t.AgentID, &t.Role, &t.Text, &t.UtteranceID, &t.TS)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive postgres: scan turns: %w", err)
	}
	if turns == nil {
		turns = []archive.TurnRecord{}
	}
	return turns, nil
}

func collectHits(rows pgx.Rows, withScore bool) ([]archive.SearchHit, error) {
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.SearchHit, error) {
		var h archive.SearchHit
		var err error
		if withScore {
			err = row.Scan(&h.SessionID, &h.Role, &h.Text, &h.TS, &h.Score)
		} else {
			err = row.Scan(&h.SessionID, &h.Role, &h.Text, &h.TS)
		}
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive postgres: scan hits: %w", err)
	}
	if hits == nil {
		hits = []archive.SearchHit{}
	}
	return hits, nil
}
