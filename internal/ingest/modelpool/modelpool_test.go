package modelpool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chaffee-dev/chaffee-ingest/internal/config"
	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

type stubASRProvider struct {
	id     string
	closed bool
}

func (s *stubASRProvider) Transcribe(ctx context.Context, artifact *types.AudioArtifact, opts asr.Options) ([]asr.Segment, error) {
	return nil, nil
}
func (s *stubASRProvider) ModelID() string { return s.id }
func (s *stubASRProvider) Close() error    { s.closed = true; return nil }

func countingFactory(calls *int) ASRFactory {
	return func(params ASRParams) (asr.Provider, error) {
		*calls++
		return &stubASRProvider{id: fmt.Sprintf("%s@%s:%d", params.ModelIdentifier, params.ComputePrecision, params.ChunkLengthS)}, nil
	}
}

func TestDefaultLadder_StepsPrecisionThenChunkThenModel(t *testing.T) {
	cfg := config.ASRConfig{ModelIdentifier: "large", ComputePrecision: "fp16", ChunkLengthS: 30}
	ladder := DefaultLadder(cfg, "small")

	if len(ladder) != 4 {
		t.Fatalf("len(ladder) = %d, want 4 (base + precision + chunk + model)", len(ladder))
	}
	if ladder[0] != (ASRParams{"large", "fp16", 30}) {
		t.Errorf("rung 0 = %+v, want base", ladder[0])
	}
	if ladder[1].ComputePrecision != "int8" {
		t.Errorf("rung 1 precision = %q, want int8", ladder[1].ComputePrecision)
	}
	if ladder[2].ChunkLengthS != 15 {
		t.Errorf("rung 2 chunk = %d, want 15", ladder[2].ChunkLengthS)
	}
	if ladder[3].ModelIdentifier != "small" {
		t.Errorf("rung 3 model = %q, want small", ladder[3].ModelIdentifier)
	}
}

func TestDefaultLadder_NoDegradedModelOmitsFinalRung(t *testing.T) {
	cfg := config.ASRConfig{ModelIdentifier: "large", ComputePrecision: "int8", ChunkLengthS: 1}
	ladder := DefaultLadder(cfg, "")
	if len(ladder) != 1 {
		t.Fatalf("len(ladder) = %d, want 1 (already at floor precision, chunk too small to halve)", len(ladder))
	}
}

func TestPool_AcquireASR_LoadsLazilyOnce(t *testing.T) {
	var calls int
	ladder := []ASRParams{{ModelIdentifier: "m", ComputePrecision: "fp16", ChunkLengthS: 30}}
	p, err := New(100, Costs{ASR: 10, SpeakerEmbed: 5, Embeddings: 5}, countingFactory(&calls), ladder, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h1, err := p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR: %v", err)
	}
	h1.Release()

	h2, err := p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR: %v", err)
	}
	h2.Release()

	if calls != 1 {
		t.Errorf("factory calls = %d, want 1 (lazy one-shot load)", calls)
	}
	if h1.Provider != h2.Provider {
		t.Error("expected the same loaded model instance across acquisitions")
	}
}

func TestPool_AcquireASR_BlocksOnVRAMBudget(t *testing.T) {
	var calls int
	ladder := []ASRParams{{ModelIdentifier: "m", ComputePrecision: "fp16", ChunkLengthS: 30}}
	p, err := New(10, Costs{ASR: 10}, countingFactory(&calls), ladder, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.AcquireASR(ctx)
	if err == nil {
		t.Fatal("expected a timeout while the budget is exhausted")
	}

	h.Release()
	_, err = p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR after release: %v", err)
	}
}

func TestPool_Degrade_StepsRungAndReloads(t *testing.T) {
	var calls int
	ladder := []ASRParams{
		{ModelIdentifier: "m", ComputePrecision: "fp16", ChunkLengthS: 30},
		{ModelIdentifier: "m", ComputePrecision: "int8", ChunkLengthS: 30},
	}
	p, err := New(100, Costs{ASR: 10}, countingFactory(&calls), ladder, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR: %v", err)
	}
	stub := h.Provider.(*stubASRProvider)
	h.Release()

	if err := p.Degrade(context.Background()); err != nil {
		t.Fatalf("Degrade: %v", err)
	}
	if !stub.closed {
		t.Error("expected the old model to be closed on degrade")
	}

	h2, err := p.AcquireASR(context.Background())
	if err != nil {
		t.Fatalf("AcquireASR after degrade: %v", err)
	}
	if h2.Params.ComputePrecision != "int8" {
		t.Errorf("Params.ComputePrecision = %q, want int8", h2.Params.ComputePrecision)
	}
	if calls != 2 {
		t.Errorf("factory calls = %d, want 2 (one per rung)", calls)
	}
}

func TestPool_Degrade_ExhaustedLadderIsTerminal(t *testing.T) {
	var calls int
	ladder := []ASRParams{{ModelIdentifier: "m", ComputePrecision: "fp16", ChunkLengthS: 30}}
	p, err := New(100, Costs{ASR: 10}, countingFactory(&calls), ladder, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = p.Degrade(context.Background())
	var modErr *ingerr.ModelError
	if !errors.As(err, &modErr) {
		t.Fatalf("expected *ingerr.ModelError, got %v", err)
	}
	if !modErr.OOM {
		t.Error("expected OOM=true for an exhausted ladder")
	}
}

func TestNew_RejectsEmptyLadder(t *testing.T) {
	_, err := New(100, Costs{}, func(ASRParams) (asr.Provider, error) { return nil, nil }, nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for an empty ladder")
	}
}
