// Package asr defines the batch transcription Provider used by the ASR +
// Speaker Attribution stage. Unlike pkg/provider/stt (built for live
// streaming sessions), a Provider here transcribes one whole AudioArtifact
// at a time and returns every segment up front.
package asr

import (
	"context"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// Segment is one timed span of text produced by a Provider, before speaker
// attribution has run. Fields mirror the ASR-only subset of
// types.RawSegment; attribution fills in SpeakerLabel/SpeakerConfidence
// afterward.
type Segment struct {
	Start            float64
	End              float64
	Text             string
	AvgLogprob       float64
	CompressionRatio float64
	NoSpeechProb     float64
}

// Options configures a single Transcribe call.
type Options struct {
	Language         string
	ComputePrecision string
	ChunkLengthS     int
	BeamSize         int
}

// Provider transcribes a whole audio file in one call. Implementations
// classify failures via ingerr.ModelError: OOM conditions must set OOM=true
// so the caller's degradation ladder can step down precision, chunk length,
// or model size and retry.
type Provider interface {
	Transcribe(ctx context.Context, artifact *types.AudioArtifact, opts Options) ([]Segment, error)
	ModelID() string
}
