// Package modelpool implements spec.md §4.7's Model Pool: the single owner
// of the long-lived ASR, speaker-embedding, and text-embedding model
// handles. Loading is lazy and one-shot per model; workers never construct
// or mutate a model directly, they lease a Handle and Release it on every
// exit path. A golang.org/x/sync/semaphore.Weighted enforces
// config.PoolConfig.VRAMBudgetBytes across whichever handles are currently
// held. It is the weighted sibling of the errgroup the orchestrator's worker
// pools use for concurrency (see internal/ingest/orchestrator), following the
// teacher's errgroup-based concurrency idiom (internal/hotctx.Assembler,
// internal/mcp/mcphost.Calibrate) one level down the golang.org/x/sync
// toolkit.
package modelpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/embeddings"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
)

// ASRParams is one rung of the ASR degradation ladder (spec.md §4.1,
// §4.7): compute precision steps down first, then chunk length, then model
// identifier, in that fixed order — a smaller model is the most
// disruptive and slowest-to-reload step, so it is always the last resort.
type ASRParams struct {
	ModelIdentifier  string
	ComputePrecision string
	ChunkLengthS     int
}

// ASRFactory constructs an asr.Provider for one ladder rung. Callers supply
// this (typically wrapping pkg/provider/asr/whisper.New) rather than the
// pool importing a concrete backend, so the pool stays backend-agnostic
// and trivially testable with a stub factory.
type ASRFactory func(params ASRParams) (asr.Provider, error)

// DefaultLadder builds the degradation ladder described by spec.md §4.7
// starting from the configured ASR settings. degradedModel may be empty if
// no smaller fallback model is configured, in which case the ladder has no
// model-identifier rung and exhausting precision/chunk-length steps alone
// is terminal.
func DefaultLadder(cfg config.ASRConfig, degradedModel string) []ASRParams {
	base := ASRParams{
		ModelIdentifier:  cfg.ModelIdentifier,
		ComputePrecision: cfg.ComputePrecision,
		ChunkLengthS:     cfg.ChunkLengthS,
	}
	ladder := []ASRParams{base}

	if base.ComputePrecision != "int8" {
		step := ladder[len(ladder)-1]
		step.ComputePrecision = "int8"
		ladder = append(ladder, step)
	}

	if half := base.ChunkLengthS / 2; half > 0 && half != base.ChunkLengthS {
		step := ladder[len(ladder)-1]
		step.ChunkLengthS = half
		ladder = append(ladder, step)
	}

	if degradedModel != "" && degradedModel != base.ModelIdentifier {
		step := ladder[len(ladder)-1]
		step.ModelIdentifier = degradedModel
		ladder = append(ladder, step)
	}

	return ladder
}

// Pool owns the ASR, speaker-embedding, and text-embedding model handles
// and the single semaphore gating their combined VRAM footprint. The
// speaker-embedding and text-embedding models serve both the monologue
// probe/diarizer and the embed stage respectively, so they are loaded once
// and shared across every lease; only the ASR model is subject to the
// degradation ladder, per spec.md §4.7.
type Pool struct {
	sem *semaphore.Weighted

	asrCost          int64
	speakerEmbedCost int64
	embeddingsCost   int64

	asrFactory ASRFactory

	mu       sync.Mutex
	ladder   []ASRParams
	rung     int
	asrModel asr.Provider

	speakerEmbed speakerembed.Embedder
	embedModel   embeddings.Provider
}

// Costs bundles the estimated VRAM footprint (bytes) of each model kind.
// These are deployment constants, not measured at runtime — spec.md §5
// requires the budget to be enforced conservatively against the worst
// case, not against live GPU introspection.
type Costs struct {
	ASR          int64
	SpeakerEmbed int64
	Embeddings   int64
}

// New constructs a Pool. asrFactory loads the ASR model for a given ladder
// rung; ladder must have at least one rung (DefaultLadder's output).
// speakerEmbed and embedModel are already-constructed, ready-to-use
// providers — both are long-lived for the process and shared rather than
// lazily loaded, since the pool has no backend-specific way to reload a
// provider it didn't construct itself.
func New(budgetBytes int64, costs Costs, asrFactory ASRFactory, ladder []ASRParams, speakerEmbed speakerembed.Embedder, embedModel embeddings.Provider) (*Pool, error) {
	if len(ladder) == 0 {
		return nil, fmt.Errorf("modelpool: ladder must have at least one rung")
	}
	if asrFactory == nil {
		return nil, fmt.Errorf("modelpool: asrFactory must not be nil")
	}
	return &Pool{
		sem:              semaphore.NewWeighted(budgetBytes),
		asrCost:          costs.ASR,
		speakerEmbedCost: costs.SpeakerEmbed,
		embeddingsCost:   costs.Embeddings,
		asrFactory:       asrFactory,
		ladder:           ladder,
		speakerEmbed:     speakerEmbed,
		embedModel:       embedModel,
	}, nil
}

// ASRHandle is a leased reference to the currently loaded ASR model and
// the ladder rung that produced it. Release must be called exactly once,
// on every exit path (success, failure, cancellation).
type ASRHandle struct {
	Provider asr.Provider
	Params   ASRParams
	pool     *Pool
	cost     int64
}

// Release returns the handle's VRAM claim to the pool.
func (h *ASRHandle) Release() {
	if h.cost > 0 {
		h.pool.sem.Release(h.cost)
	}
}

// AcquireASR blocks until the ASR model's VRAM cost is available, lazily
// loading the model on first use, then returns a handle bound to whichever
// ladder rung is currently active. A worker that receives an OOM
// ingerr.ModelError from Transcribe should Release its handle, call
// Degrade, and re-acquire before retrying.
func (p *Pool) AcquireASR(ctx context.Context) (*ASRHandle, error) {
	if err := p.sem.Acquire(ctx, p.asrCost); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.asrModel == nil {
		model, err := p.asrFactory(p.ladder[p.rung])
		if err != nil {
			p.sem.Release(p.asrCost)
			return nil, ingerr.NewModelInvalidOutputError(fmt.Errorf("modelpool: load ASR model: %w", err))
		}
		p.asrModel = model
	}

	return &ASRHandle{Provider: p.asrModel, Params: p.ladder[p.rung], pool: p, cost: p.asrCost}, nil
}

// Degrade steps the ASR model to the next rung of the degradation ladder
// and forces a reload on the next AcquireASR call. It must be called with
// no outstanding ASRHandle held by the caller (the caller should Release
// first). Returns a terminal *ingerr.ModelError if the ladder is already
// exhausted.
func (p *Pool) Degrade(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rung+1 >= len(p.ladder) {
		return &ingerr.ModelError{OOM: true, Err: fmt.Errorf("modelpool: degradation ladder exhausted at rung %d", p.rung)}
	}
	p.rung++

	if closer, ok := p.asrModel.(interface{ Close() error }); ok && p.asrModel != nil {
		_ = closer.Close()
	}
	p.asrModel = nil

	return nil
}

// CurrentASRParams reports the ladder rung currently in effect, for
// logging and telemetry.
func (p *Pool) CurrentASRParams() ASRParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ladder[p.rung]
}

// SpeakerEmbedHandle is a leased reference to the shared speaker-embedding
// model. Release must be called exactly once.
type SpeakerEmbedHandle struct {
	Embedder speakerembed.Embedder
	pool     *Pool
	cost     int64
}

func (h *SpeakerEmbedHandle) Release() {
	if h.cost > 0 {
		h.pool.sem.Release(h.cost)
	}
}

// AcquireSpeakerEmbedder blocks until the speaker-embedding model's VRAM
// cost is available. The underlying model is a single shared instance
// (it is not subject to the degradation ladder); the semaphore still
// tracks its footprint so concurrent monologue-probe/diarizer callers
// cannot collectively exceed the VRAM budget.
func (p *Pool) AcquireSpeakerEmbedder(ctx context.Context) (*SpeakerEmbedHandle, error) {
	if err := p.sem.Acquire(ctx, p.speakerEmbedCost); err != nil {
		return nil, err
	}
	return &SpeakerEmbedHandle{Embedder: p.speakerEmbed, pool: p, cost: p.speakerEmbedCost}, nil
}

// EmbeddingsHandle is a leased reference to the shared text-embedding
// model. Release must be called exactly once.
type EmbeddingsHandle struct {
	Provider embeddings.Provider
	pool     *Pool
	cost     int64
}

func (h *EmbeddingsHandle) Release() {
	if h.cost > 0 {
		h.pool.sem.Release(h.cost)
	}
}

// AcquireEmbeddings blocks until the text-embedding model's VRAM cost is
// available. Per spec.md §4.1, embed workers share the same model
// instance; the semaphore reservation represents one worker's active
// batch rather than a separate load.
func (p *Pool) AcquireEmbeddings(ctx context.Context) (*EmbeddingsHandle, error) {
	if err := p.sem.Acquire(ctx, p.embeddingsCost); err != nil {
		return nil, err
	}
	return &EmbeddingsHandle{Provider: p.embedModel, pool: p, cost: p.embeddingsCost}, nil
}

// Close releases the loaded ASR model, if any. Speaker-embedding and
// embedding providers are owned by the caller that constructed the Pool
// and are closed by that caller, not here.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if closer, ok := p.asrModel.(interface{ Close() error }); ok && p.asrModel != nil {
		err := closer.Close()
		p.asrModel = nil
		return err
	}
	return nil
}
