package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	asrmock "github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr/mock"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

func TestASRFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &asrmock.Provider{TranscribeResult: []asr.Segment{{Text: "hello"}}}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	segs, err := fb.Transcribe(context.Background(), &types.AudioArtifact{}, asr.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "hello" {
		t.Fatalf("segments = %+v, want one segment with text hello", segs)
	}
	if len(primary.TranscribeCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.TranscribeCalls))
	}
	if len(secondary.TranscribeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.TranscribeCalls))
	}
}

func TestASRFallback_Transcribe_Failover(t *testing.T) {
	primary := &asrmock.Provider{TranscribeErr: errors.New("oom")}
	secondary := &asrmock.Provider{TranscribeResult: []asr.Segment{{Text: "fallback"}}}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	segs, err := fb.Transcribe(context.Background(), &types.AudioArtifact{}, asr.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "fallback" {
		t.Fatalf("segments = %+v, want the secondary's result", segs)
	}
	if len(secondary.TranscribeCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.TranscribeCalls))
	}
}

func TestASRFallback_Transcribe_AllFail(t *testing.T) {
	primary := &asrmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &asrmock.Provider{TranscribeErr: errors.New("secondary down")}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), &types.AudioArtifact{}, asr.Options{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestASRFallback_ModelID(t *testing.T) {
	primary := &asrmock.Provider{ModelIDValue: "ggml-medium.en.bin"}
	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	if got := fb.ModelID(); got != "ggml-medium.en.bin" {
		t.Errorf("ModelID() = %q, want ggml-medium.en.bin", got)
	}
}
