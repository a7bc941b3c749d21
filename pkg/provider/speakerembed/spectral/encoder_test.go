package spectral

import (
	"context"
	"math"
	"testing"
)

func sineWave(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return out
}

func TestEncoder_EmbedReturnsNormalizedVector(t *testing.T) {
	enc := NewEncoder(16000)
	samples := sineWave(220, 16000, 16000) // 1 second of a 220Hz tone

	emb, err := enc.Embed(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(emb) != enc.Dimension() {
		t.Fatalf("len(emb) = %d, want %d", len(emb), enc.Dimension())
	}

	var sumSq float64
	for _, v := range emb {
		sumSq += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sumSq)-1.0) > 1e-3 {
		t.Errorf("embedding not unit-normalized: norm = %v", math.Sqrt(sumSq))
	}
}

func TestEncoder_RejectsMismatchedSampleRate(t *testing.T) {
	enc := NewEncoder(16000)
	samples := sineWave(220, 8000, 8000)
	if _, err := enc.Embed(context.Background(), samples, 8000); err == nil {
		t.Fatal("expected error for mismatched sample rate, got nil")
	}
}

func TestEncoder_RejectsTooShortAudio(t *testing.T) {
	enc := NewEncoder(16000)
	samples := make([]float32, 10)
	if _, err := enc.Embed(context.Background(), samples, 16000); err == nil {
		t.Fatal("expected error for too-short audio, got nil")
	}
}

func TestEncoder_SimilarAudioProducesSimilarEmbeddings(t *testing.T) {
	enc := NewEncoder(16000)
	a, err := enc.Embed(context.Background(), sineWave(220, 16000, 16000), 16000)
	if err != nil {
		t.Fatalf("Embed a: %v", err)
	}
	b, err := enc.Embed(context.Background(), sineWave(220, 16000, 16000), 16000)
	if err != nil {
		t.Fatalf("Embed b: %v", err)
	}
	c, err := enc.Embed(context.Background(), sineWave(880, 16000, 16000), 16000)
	if err != nil {
		t.Fatalf("Embed c: %v", err)
	}

	simAB := dot(a, b)
	simAC := dot(a, c)
	if simAB <= simAC {
		t.Errorf("expected identical tones to be more similar than different tones: sim(a,b)=%v sim(a,c)=%v", simAB, simAC)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
