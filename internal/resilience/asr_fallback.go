package resilience

import (
	"context"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// ASRFallback implements [asr.Provider] with automatic failover across
// multiple ASR backends. Each backend has its own circuit breaker.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
}

// Compile-time interface assertion.
var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred backend.
func NewASRFallback(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional ASR provider as a fallback.
func (f *ASRFallback) AddFallback(name string, provider asr.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs artifact through the first healthy backend. If the
// primary's circuit breaker is open or the call itself fails, the next
// fallback is tried in registration order.
func (f *ASRFallback) Transcribe(ctx context.Context, artifact *types.AudioArtifact, opts asr.Options) ([]asr.Segment, error) {
	return ExecuteWithResult(f.group, func(p asr.Provider) ([]asr.Segment, error) {
		return p.Transcribe(ctx, artifact, opts)
	})
}

// ModelID reports the currently-healthy backend's model identifier. Callers
// that need the ladder rung in effect should prefer
// internal/ingest/modelpool.Pool.CurrentASRParams — this is a best-effort
// label for logging when an ASRFallback itself is used directly.
func (f *ASRFallback) ModelID() string {
	for _, e := range f.group.entries {
		if e.breaker.State() != StateOpen {
			return e.value.ModelID()
		}
	}
	return f.group.entries[0].value.ModelID()
}
