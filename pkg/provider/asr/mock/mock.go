// Package mock provides a test double for the asr.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx      context.Context
	Artifact *types.AudioArtifact
	Opts     asr.Options
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	TranscribeResult []asr.Segment
	TranscribeErr    error
	ModelIDValue     string

	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, artifact *types.AudioArtifact, opts asr.Options) ([]asr.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Artifact: artifact, Opts: opts})
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
