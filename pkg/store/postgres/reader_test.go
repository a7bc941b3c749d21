package postgres_test

import (
	"context"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

func TestAlreadyIngested_FalseBeforeCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AlreadyIngested(ctx, types.SourceYouTube, "notyet", 1)
	if err != nil {
		t.Fatalf("AlreadyIngested: %v", err)
	}
	if ok {
		t.Error("expected false before any commit")
	}
}

func TestAlreadyIngested_TrueAfterCommitAtMatchingProfileVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := testSource("profv")
	source.ProfileVersion = 2
	segments := []types.OptimizedSegment{
		{Start: 0, End: 2, Text: "Hello.", Embedding: make([]float32, testEmbeddingDim)},
	}
	if _, err := store.Commit(ctx, source, segments); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ok, err := store.AlreadyIngested(ctx, types.SourceYouTube, "profv", 2)
	if err != nil {
		t.Fatalf("AlreadyIngested: %v", err)
	}
	if !ok {
		t.Error("expected true at the matching profile version")
	}

	ok, err = store.AlreadyIngested(ctx, types.SourceYouTube, "profv", 3)
	if err != nil {
		t.Fatalf("AlreadyIngested: %v", err)
	}
	if ok {
		t.Error("expected false at a newer profile version — a version bump does not retroactively count as ingested")
	}
}

func TestNearestSegments_OrdersByCosineDistance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := testSource("nn1")
	segments := []types.OptimizedSegment{
		{Start: 0, End: 1, Text: "exact match direction.", Embedding: []float32{1, 0, 0, 0}},
		{Start: 1, End: 2, Text: "orthogonal direction.", Embedding: []float32{0, 1, 0, 0}},
		{Start: 2, End: 3, Text: "opposite direction.", Embedding: []float32{-1, 0, 0, 0}},
	}
	if _, err := store.Commit(ctx, source, segments); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	out, err := store.NearestSegments(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("NearestSegments: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Text != "exact match direction." {
		t.Errorf("out[0].Text = %q, want the exact-match segment first", out[0].Text)
	}
	if out[0].Distance > out[1].Distance {
		t.Errorf("results not ordered by ascending distance: %v then %v", out[0].Distance, out[1].Distance)
	}
}
