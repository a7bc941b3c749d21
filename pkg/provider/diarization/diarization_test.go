package diarization

import (
	"context"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed/mock"
)

// stubEmbedder returns a fixed embedding per sample-slice length so
// tests can control which segments cluster together without a real encoder.
type stubEmbedder struct {
	byOffset map[int][]float32
	def      []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if emb, ok := s.byOffset[len(samples)]; ok {
		return emb, nil
	}
	return s.def, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

func TestDiarize_GroupsSimilarSegmentsIntoOneCluster(t *testing.T) {
	embedder := &stubEmbedder{
		byOffset: map[int][]float32{
			16000: {1, 0}, // segment 0: 1s @ 16kHz
			32000: {0, 1}, // segment 1: 2s @ 16kHz, distinct speaker
		},
		def: []float32{1, 0},
	}
	d := &Diarizer{Embedder: embedder, Threshold: 0.5}

	samples := make([]float32, 5*16000)
	segments := []Segment{
		{Start: 0, End: 1},
		{Start: 1, End: 3},
		{Start: 3, End: 4}, // same length as segment 0 -> same stub embedding -> same cluster
	}

	turns, clusters, err := d.Diarize(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[0].ClusterID != turns[2].ClusterID {
		t.Errorf("expected segments 0 and 2 in the same cluster, got %d and %d", turns[0].ClusterID, turns[2].ClusterID)
	}
	if turns[0].ClusterID == turns[1].ClusterID {
		t.Errorf("expected segment 1 in a different cluster from 0, both got %d", turns[0].ClusterID)
	}
	if len(clusters) != 2 {
		t.Fatalf("len(clusters) = %d, want 2", len(clusters))
	}
}

func TestDiarize_SkipsSegmentsBelowMinimumDuration(t *testing.T) {
	embedder := &stubEmbedder{def: []float32{1, 0}}
	d := New(embedder)

	samples := make([]float32, 16000)
	segments := []Segment{{Start: 0, End: 0.05}} // 50ms, below the 100ms floor

	turns, clusters, err := d.Diarize(context.Background(), samples, 16000, segments)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 0 || len(clusters) != 0 {
		t.Errorf("expected no turns/clusters for a too-short segment, got %d/%d", len(turns), len(clusters))
	}
}

func TestDiarize_EmptySegments(t *testing.T) {
	d := New(&mock.Embedder{})
	turns, clusters, err := d.Diarize(context.Background(), nil, 16000, nil)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if turns != nil || clusters != nil {
		t.Errorf("expected nil turns/clusters for empty input")
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); d > 1e-9 {
		t.Errorf("identical vectors: got distance %v, want ~0", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); d < 0.99 || d > 1.01 {
		t.Errorf("orthogonal vectors: got distance %v, want ~1", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); d < 1.99 {
		t.Errorf("opposite vectors: got distance %v, want ~2", d)
	}
}

func TestClusterByThreshold_TransitiveClosure(t *testing.T) {
	// A~B close, B~C close, A~C not directly close: single-linkage should
	// still merge all three via transitivity.
	embeddings := [][]float32{
		{1.0, 0.0},       // 0 degrees
		{0.866, 0.5},     // 30 degrees from A: cos distance ~0.134, within threshold
		{0.5, 0.866},     // 60 degrees from A (~0.5, NOT within threshold), 30 from B (~0.134, within threshold)
	}
	result := clusterByThreshold(embeddings, 0.2)
	if result[0] != result[1] || result[1] != result[2] {
		t.Errorf("expected all three in one cluster via transitive closure, got %v", result)
	}
}
