// Package speakerembed computes fixed-length speaker embeddings from mono
// float32 audio samples, used both for the monologue probe and for
// diarization cluster centroids.
package speakerembed

import "context"

// Embedder turns a window of mono audio samples into a fixed-dimension
// vector comparable by cosine similarity against a persisted VoiceProfile
// centroid.
type Embedder interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)
	Dimension() int
}
