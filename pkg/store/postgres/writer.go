package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Commit implements the Store Writer contract: it upserts source and
// inserts segments atomically. Source metadata already present in the
// database is preserved via COALESCE on every nullable-ish column so a
// re-ingestion with thinner metadata never clobbers previously captured
// fields. Segment uniqueness conflicts on (video_id, normalized_text) are
// treated as a no-op — the existing row wins — and counted rather than
// raised, per spec.
func (s *Store) Commit(ctx context.Context, source types.Source, segments []types.OptimizedSegment) (types.CommitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.CommitResult{}, ingerr.NewCommitError(true, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	sourceID, err := upsertSource(ctx, tx, source)
	if err != nil {
		return types.CommitResult{}, err
	}

	inserted, conflicted, err := insertSegments(ctx, tx, sourceID, source.VideoID, segments)
	if err != nil {
		return types.CommitResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.CommitResult{}, ingerr.NewCommitError(true, fmt.Errorf("commit transaction: %w", err))
	}

	return types.CommitResult{
		SourceID:           sourceID,
		SegmentsInserted:   inserted,
		SegmentsConflicted: conflicted,
	}, nil
}

func upsertSource(ctx context.Context, tx pgx.Tx, source types.Source) (int64, error) {
	metadata := source.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, ingerr.NewCommitError(false, fmt.Errorf("marshal source metadata: %w", err))
	}

	const q = `
		INSERT INTO sources
		    (source_type, source_id, title, published_at, duration_s, view_count,
		     channel_name, channel_url, thumbnail_url, like_count, comment_count,
		     description, tags, url, metadata, transcript_method, model_identifier,
		     profile_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
		ON CONFLICT (source_type, source_id) DO UPDATE SET
		    title             = COALESCE(NULLIF(EXCLUDED.title, ''), sources.title),
		    published_at      = COALESCE(EXCLUDED.published_at, sources.published_at),
		    duration_s        = COALESCE(NULLIF(EXCLUDED.duration_s, 0), sources.duration_s),
		    view_count        = COALESCE(NULLIF(EXCLUDED.view_count, 0), sources.view_count),
		    channel_name      = COALESCE(NULLIF(EXCLUDED.channel_name, ''), sources.channel_name),
		    channel_url       = COALESCE(NULLIF(EXCLUDED.channel_url, ''), sources.channel_url),
		    thumbnail_url     = COALESCE(NULLIF(EXCLUDED.thumbnail_url, ''), sources.thumbnail_url),
		    like_count        = COALESCE(NULLIF(EXCLUDED.like_count, 0), sources.like_count),
		    comment_count     = COALESCE(NULLIF(EXCLUDED.comment_count, 0), sources.comment_count),
		    description       = COALESCE(NULLIF(EXCLUDED.description, ''), sources.description),
		    tags              = CASE WHEN array_length(EXCLUDED.tags, 1) > 0 THEN EXCLUDED.tags ELSE sources.tags END,
		    url               = COALESCE(NULLIF(EXCLUDED.url, ''), sources.url),
		    metadata          = sources.metadata || EXCLUDED.metadata,
		    transcript_method = COALESCE(NULLIF(EXCLUDED.transcript_method, ''), sources.transcript_method),
		    model_identifier  = COALESCE(NULLIF(EXCLUDED.model_identifier, ''), sources.model_identifier),
		    profile_version   = GREATEST(EXCLUDED.profile_version, sources.profile_version),
		    updated_at        = now()
		RETURNING id`

	var sourceID int64
	err = tx.QueryRow(ctx, q,
		string(source.SourceType),
		source.VideoID,
		source.Title,
		nullableTime(source.PublishedAt),
		source.DurationSeconds,
		source.ViewCount,
		source.ChannelName,
		source.ChannelURL,
		source.ThumbnailURL,
		source.LikeCount,
		source.CommentCount,
		source.Description,
		source.Tags,
		source.URL,
		metadataJSON,
		source.TranscriptMethod,
		source.ModelIdentifier,
		source.ProfileVersion,
	).Scan(&sourceID)
	if err != nil {
		return 0, ingerr.NewCommitError(isRetriableDBError(err), fmt.Errorf("upsert source: %w", err))
	}
	return sourceID, nil
}

// isRetriableDBError classifies a PostgreSQL error for the CommitError
// taxonomy: connection loss, serialization failures, and resource exhaustion
// (SQLSTATE classes 08/40/53) are transient and worth retrying; constraint
// violations and everything else classified by the driver are terminal.
// Errors the driver doesn't classify at all (network timeouts, context
// deadlines) default to retriable since they're usually transient.
func isRetriableDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "40", "53":
			return true
		default:
			return false
		}
	}
	return true
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func insertSegments(ctx context.Context, tx pgx.Tx, sourceID int64, videoID string, segments []types.OptimizedSegment) (inserted, conflicted int, err error) {
	const q = `
		INSERT INTO segments
		    (video_id, source_id, start_s, end_s, text, normalized_text, speaker_label,
		     speaker_confidence, avg_logprob, compression_ratio, no_speech_prob,
		     is_overlap, embedding, attributed_with_profile_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (video_id, normalized_text) DO NOTHING`

	for _, seg := range segments {
		tag, err := tx.Exec(ctx, q,
			videoID,
			sourceID,
			seg.Start,
			seg.End,
			seg.Text,
			NormalizeText(seg.Text),
			string(seg.SpeakerLabel),
			seg.SpeakerConfidence,
			seg.AvgLogprob,
			seg.CompressionRatio,
			seg.NoSpeechProb,
			seg.IsOverlap,
			pgvector.NewVector(seg.Embedding),
			seg.AttributedWithProfileVersion,
		)
		if err != nil {
			return inserted, conflicted, ingerr.NewCommitError(isRetriableDBError(err), fmt.Errorf("insert segment: %w", err))
		}
		if tag.RowsAffected() == 0 {
			conflicted++
		} else {
			inserted++
		}
	}
	return inserted, conflicted, nil
}

var normalizeWhitespace = regexp.MustCompile(`\s+`)
var normalizePunctuation = regexp.MustCompile(`[^\w\s]`)

// NormalizeText lowercases, collapses whitespace, and trims punctuation,
// matching the Segment Optimizer's deduplication comparison so the
// database's unique constraint enforces the same identity the optimizer
// already computed.
func NormalizeText(text string) string {
	t := strings.ToLower(text)
	t = normalizePunctuation.ReplaceAllString(t, "")
	t = normalizeWhitespace.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
