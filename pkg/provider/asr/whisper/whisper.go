// Package whisper implements asr.Provider using the whisper.cpp CGO
// bindings, adapted from the teacher's streaming-session NativeProvider
// (pkg/provider/stt/whisper/native.go) into a single synchronous
// whole-file transcription call: there is no silence-detection buffering
// here because an AudioArtifact is already a complete, bounded file.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// defaultChunkLengthS bounds how much audio is fed to whisper.cpp per
// Process call when the caller doesn't specify one. whisper.cpp handles
// long inputs internally, but chunking keeps peak memory bounded and gives
// the degradation ladder (smaller chunk length) something to act on.
const defaultChunkLengthS = 30

// Provider wraps a single loaded whisper.cpp model, shared across
// concurrent Transcribe calls (each call creates its own context, same as
// the teacher's per-session context pattern).
type Provider struct {
	model     whisperlib.Model
	modelPath string
}

// New loads the whisper.cpp model at modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Provider{model: model, modelPath: modelPath}, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// ModelID returns the model's file path, used as the persisted
// model_identifier provenance field.
func (p *Provider) ModelID() string {
	return p.modelPath
}

// Transcribe implements asr.Provider. It reads artifact.Path as a WAV file,
// splits it into opts.ChunkLengthS-second windows, runs a fresh whisper.cpp
// context per window (contexts are not thread-safe, models are shareable),
// and returns every segment with timestamps offset to the whole file.
func (p *Provider) Transcribe(ctx context.Context, artifact *types.AudioArtifact, opts asr.Options) ([]asr.Segment, error) {
	samples, sampleRate, err := LoadWAV(artifact.Path)
	if err != nil {
		return nil, err
	}

	chunkLengthS := opts.ChunkLengthS
	if chunkLengthS <= 0 {
		chunkLengthS = defaultChunkLengthS
	}
	chunkSamples := chunkLengthS * sampleRate
	if chunkSamples <= 0 {
		chunkSamples = len(samples)
	}

	var segments []asr.Segment
	for start := 0; start < len(samples); start += chunkSamples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+chunkSamples, len(samples))
		offsetS := float64(start) / float64(sampleRate)

		chunkSegments, err := p.transcribeChunk(samples[start:end], opts.Language)
		if err != nil {
			return nil, err
		}
		for _, seg := range chunkSegments {
			seg.Start += offsetS
			seg.End += offsetS
			segments = append(segments, seg)
		}
	}
	return segments, nil
}

// transcribeChunk runs one whisper.cpp inference pass over samples using a
// fresh context, mirroring the teacher's nativeSession.infer but returning
// full per-segment timing instead of joined text.
func (p *Provider) transcribeChunk(samples []float32, language string) ([]asr.Segment, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "error", err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var out []asr.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		out = append(out, asr.Segment{
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
			Text:  text,
		})
	}
	return out, nil
}
