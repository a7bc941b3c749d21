// Package postgres provides a PostgreSQL-backed implementation of the
// ingestion pipeline's persistent store: a sources table for video-level
// metadata and a segments table for speaker-attributed, embedded transcript
// units with pgvector approximate nearest-neighbour search.
//
// A single [pgxpool.Pool] backs both tables. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSources = `
CREATE TABLE IF NOT EXISTS sources (
    id             BIGSERIAL    PRIMARY KEY,
    source_type    TEXT         NOT NULL,
    source_id      TEXT         NOT NULL,
    title          TEXT         NOT NULL DEFAULT '',
    published_at   TIMESTAMPTZ,
    duration_s     DOUBLE PRECISION NOT NULL DEFAULT 0,
    view_count     BIGINT       NOT NULL DEFAULT 0,
    channel_name   TEXT         NOT NULL DEFAULT '',
    channel_url    TEXT         NOT NULL DEFAULT '',
    thumbnail_url  TEXT         NOT NULL DEFAULT '',
    like_count     BIGINT       NOT NULL DEFAULT 0,
    comment_count  BIGINT       NOT NULL DEFAULT 0,
    description    TEXT         NOT NULL DEFAULT '',
    tags           TEXT[]       NOT NULL DEFAULT '{}',
    url            TEXT         NOT NULL DEFAULT '',
    metadata       JSONB        NOT NULL DEFAULT '{}',
    transcript_method TEXT      NOT NULL DEFAULT '',
    model_identifier  TEXT      NOT NULL DEFAULT '',
    profile_version   INT       NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_sources_source_type ON sources (source_type);
`

// ddlSegments returns the segments DDL with the embedding vector dimension
// substituted; the dimension is baked into the column type at creation time.
func ddlSegments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS segments (
    id                 BIGSERIAL    PRIMARY KEY,
    video_id           TEXT         NOT NULL,
    source_id          BIGINT       NOT NULL REFERENCES sources (id) ON DELETE CASCADE,
    start_s            DOUBLE PRECISION NOT NULL,
    end_s              DOUBLE PRECISION NOT NULL,
    text               TEXT         NOT NULL,
    normalized_text    TEXT         NOT NULL,
    speaker_label      TEXT         NOT NULL,
    speaker_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_logprob        DOUBLE PRECISION NOT NULL DEFAULT 0,
    compression_ratio  DOUBLE PRECISION NOT NULL DEFAULT 0,
    no_speech_prob     DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_overlap         BOOLEAN      NOT NULL DEFAULT false,
    embedding          vector(%d)  NOT NULL,
    attributed_with_profile_version INT NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    CONSTRAINT chk_segments_speaker_label CHECK (speaker_label IN ('HOST', 'GUEST', 'UNKNOWN')),
    CONSTRAINT chk_segments_timing CHECK (start_s >= 0 AND start_s < end_s),
    UNIQUE (video_id, normalized_text)
);

CREATE INDEX IF NOT EXISTS idx_segments_video_id ON segments (video_id);
CREATE INDEX IF NOT EXISTS idx_segments_source_id ON segments (source_id);

CREATE INDEX IF NOT EXISTS idx_segments_embedding
    ON segments USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, constraints, and
// extensions exist. It is idempotent (CREATE TABLE/INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match config.Embed.Dimension; changing it after
// the first migration requires a manual schema change, since the vector
// column's dimension is fixed at creation.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlSources, ddlSegments(embeddingDimensions)}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
