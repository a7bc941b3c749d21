package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// AlreadyIngested implements spec.md §4.1's prefilter rule: a video is
// considered already persisted if a Source row exists and a non-zero count
// of OptimizedSegments references it and the stored profile_version
// matches the one currently in effect. A profile-version bump does not by
// itself trigger re-ingestion (see SPEC_FULL.md's open-question decision);
// it only changes what AlreadyIngested reports for videos attributed under
// the old version.
func (s *Store) AlreadyIngested(ctx context.Context, sourceType types.SourceType, videoID string, profileVersion int) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM segments seg
		JOIN sources src ON src.id = seg.source_id
		WHERE src.source_type = $1 AND src.source_id = $2 AND src.profile_version = $3
	`, string(sourceType), videoID, profileVersion).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("postgres store: already ingested check: %w", err)
	}
	return count > 0, nil
}

// NearestSegment is one result row from NearestSegments: a persisted
// segment plus its cosine distance to the query vector (0 = identical
// direction, 2 = opposite).
type NearestSegment struct {
	VideoID  string
	Start    float64
	End      float64
	Text     string
	Distance float64
}

// NearestSegments runs an approximate nearest-neighbour search over the
// segments.embedding HNSW index (pkg/store/postgres/schema.go's
// vector_cosine_ops index), returning the k closest segments to query.
// No ingestion stage calls it; segment dedup on write relies only on the
// (video_id, normalized_text) unique constraint.
func (s *Store) NearestSegments(ctx context.Context, query []float32, k int) ([]NearestSegment, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT video_id, start_s, end_s, text, embedding <=> $1 AS distance
		FROM segments
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest segments: %w", err)
	}
	defer rows.Close()

	var out []NearestSegment
	for rows.Next() {
		var n NearestSegment
		if err := rows.Scan(&n.VideoID, &n.Start, &n.End, &n.Text, &n.Distance); err != nil {
			return nil, fmt.Errorf("postgres store: scan nearest segment: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: nearest segments: %w", err)
	}
	return out, nil
}
