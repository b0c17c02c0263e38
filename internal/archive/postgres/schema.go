package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS voice_turns (
    id           TEXT         PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    agent_id     TEXT         NOT NULL DEFAULT '',
    role         TEXT         NOT NULL,
    text         TEXT         NOT NULL,
    utterance_id BIGINT       NOT NULL DEFAULT 0,
    ts           BIGINT       NOT NULL,
    embedding    vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_voice_turns_session_ts
    ON voice_turns (session_id, ts);
`

const ddlSummaries = `
CREATE TABLE IF NOT EXISTS voice_summaries (
    session_id  TEXT         PRIMARY KEY,
    agent_id    TEXT         NOT NULL DEFAULT '',
    summary     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// HNSW over cosine distance. Kept separate from the table DDL because index
// creation on a populated table can take a while.
const ddlVectorIndex = `
CREATE INDEX IF NOT EXISTS idx_voice_turns_embedding
    ON voice_turns USING hnsw (embedding vector_cosine_ops);
`

// Migrate creates the pgvector extension, tables and indexes.
// embeddingDimensions fixes the vector column width; changing it after the
// first migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		embeddingDimensions = 1536
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(ddlTurns, embeddingDimensions),
		ddlSummaries,
		ddlVectorIndex,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
