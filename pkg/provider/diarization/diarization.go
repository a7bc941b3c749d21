// Package diarization groups ASR segments into speaker turns by clustering
// per-segment speaker embeddings with a similarity threshold. It does not
// itself decide HOST/GUEST/UNKNOWN labels: that comparison against enrolled
// voice profiles is the attribution layer's job. This package only answers
// "which segments were probably spoken by the same person".
package diarization

import (
	"context"
	"fmt"
	"math"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
)

// Segment is the minimal timing window diarization needs from a RawSegment.
type Segment struct {
	Start float64
	End   float64
}

// Turn is one input Segment's cluster assignment.
type Turn struct {
	SegmentIndex int
	ClusterID    int
}

// Cluster is a diarized speaker turn group with its centroid embedding,
// ready to be compared against the host and guest voice profiles.
type Cluster struct {
	ID       int
	Centroid []float32
	Count    int
}

// DefaultThreshold is the cosine-distance cutoff below which two segment
// embeddings are considered the same speaker. Lower is stricter.
const DefaultThreshold = 0.35

// minSegmentSeconds skips segments too short to embed reliably (under
// 100ms), the same floor askidmobile-AIWisper's Diarizer uses before
// calling its speaker encoder.
const minSegmentSeconds = 0.1

// Diarizer extracts an embedding per segment from the full audio track and
// clusters segments whose embeddings are close enough to be the same
// speaker.
type Diarizer struct {
	Embedder  speakerembed.Embedder
	Threshold float64
}

// New returns a Diarizer using embedder and DefaultThreshold.
func New(embedder speakerembed.Embedder) *Diarizer {
	return &Diarizer{Embedder: embedder, Threshold: DefaultThreshold}
}

// Diarize embeds each segment window from samples (sampleRate Hz) and
// clusters them. Segments shorter than minSegmentSeconds or whose embedding
// extraction fails are left out of turns and do not form their own cluster;
// callers should treat absent segments as UNKNOWN.
func (d *Diarizer) Diarize(ctx context.Context, samples []float32, sampleRate int, segments []Segment) ([]Turn, []Cluster, error) {
	if len(segments) == 0 {
		return nil, nil, nil
	}
	if d.Embedder == nil {
		return nil, nil, fmt.Errorf("diarization: no embedder configured")
	}

	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	type indexed struct {
		segIdx int
		emb    []float32
	}
	var embedded []indexed

	for i, seg := range segments {
		if seg.End-seg.Start < minSegmentSeconds {
			continue
		}
		start := max(0, int(seg.Start*float64(sampleRate)))
		end := min(len(samples), int(seg.End*float64(sampleRate)))
		if start >= end {
			continue
		}
		emb, err := d.Embedder.Embed(ctx, samples[start:end], sampleRate)
		if err != nil {
			continue
		}
		embedded = append(embedded, indexed{segIdx: i, emb: emb})
	}

	if len(embedded) == 0 {
		return nil, nil, nil
	}

	embeddings := make([][]float32, len(embedded))
	for i, e := range embedded {
		embeddings[i] = e.emb
	}
	assignments := clusterByThreshold(embeddings, threshold)

	turns := make([]Turn, len(embedded))
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, e := range embedded {
		clusterID := assignments[i]
		turns[i] = Turn{SegmentIndex: e.segIdx, ClusterID: clusterID}
		if sums[clusterID] == nil {
			sums[clusterID] = make([]float64, len(e.emb))
		}
		for j, v := range e.emb {
			sums[clusterID][j] += float64(v)
		}
		counts[clusterID]++
	}

	clusters := make([]Cluster, 0, len(sums))
	for id, sum := range sums {
		centroid := make([]float32, len(sum))
		for j, v := range sum {
			centroid[j] = float32(v / float64(counts[id]))
		}
		clusters = append(clusters, Cluster{ID: id, Centroid: normalize(centroid), Count: counts[id]})
	}

	return turns, clusters, nil
}

// clusterByThreshold assigns each embedding a cluster ID via union-find over
// all pairs within threshold cosine distance. This is equivalent to
// connected-components clustering with transitive closure: if A is close to
// B and B is close to C, A and C land in the same cluster even if their
// direct distance exceeds the threshold.
func clusterByThreshold(embeddings [][]float32, threshold float64) []int {
	n := len(embeddings)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[ri] = rj
		}
	}

	for i := range n {
		for j := i + 1; j < n; j++ {
			if CosineDistance(embeddings[i], embeddings[j]) < threshold {
				union(i, j)
			}
		}
	}

	normalized := make(map[int]int)
	result := make([]int, n)
	next := 0
	for i := range n {
		root := find(i)
		id, ok := normalized[root]
		if !ok {
			id = next
			normalized[root] = id
			next++
		}
		result[i] = id
	}
	return result
}

// CosineDistance returns 1 - cosine_similarity(a, b), ranging [0, 2]: 0 for
// identical direction, 1 for orthogonal, 2 for opposite.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	sim = math.Max(-1.0, math.Min(1.0, sim))
	return 1.0 - sim
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-9 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
