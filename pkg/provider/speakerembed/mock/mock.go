// Package mock provides a test double for the speakerembed.Embedder interface.
package mock

import (
	"context"
	"sync"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	Ctx        context.Context
	Samples    []float32
	SampleRate int
}

// Embedder is a mock implementation of speakerembed.Embedder.
type Embedder struct {
	mu sync.Mutex

	EmbedResult    []float32
	EmbedErr       error
	DimensionValue int

	EmbedCalls []EmbedCall
}

// Embed records the call and returns EmbedResult, EmbedErr.
func (e *Embedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EmbedCalls = append(e.EmbedCalls, EmbedCall{Ctx: ctx, Samples: samples, SampleRate: sampleRate})
	if e.EmbedErr != nil {
		return nil, e.EmbedErr
	}
	return e.EmbedResult, nil
}

// Dimension returns DimensionValue.
func (e *Embedder) Dimension() int {
	return e.DimensionValue
}

// Reset clears all recorded calls. Thread-safe.
func (e *Embedder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EmbedCalls = nil
}

var _ speakerembed.Embedder = (*Embedder)(nil)
