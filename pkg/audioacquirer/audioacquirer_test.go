package audioacquirer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := audioacquirer.WithRetry(context.Background(), audioacquirer.RetryPolicy{MaxAttempts: 3},
		func(ctx context.Context) (*types.AudioArtifact, error) {
			calls++
			return &types.AudioArtifact{Path: "ok"}, nil
		})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if got.Path != "ok" {
		t.Errorf("Path = %q, want ok", got.Path)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_RetriesRetriableError(t *testing.T) {
	calls := 0
	got, err := audioacquirer.WithRetry(context.Background(), audioacquirer.RetryPolicy{MaxAttempts: 3, InitialBackoff: 0.001, MaxBackoff: 0.001},
		func(ctx context.Context) (*types.AudioArtifact, error) {
			calls++
			if calls < 3 {
				return nil, ingerr.NewAcquisitionError(true, errors.New("transient"))
			}
			return &types.AudioArtifact{Path: "ok"}, nil
		})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if got.Path != "ok" {
		t.Errorf("Path = %q, want ok", got.Path)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_StopsOnNonRetriableError(t *testing.T) {
	calls := 0
	_, err := audioacquirer.WithRetry(context.Background(), audioacquirer.RetryPolicy{MaxAttempts: 5},
		func(ctx context.Context) (*types.AudioArtifact, error) {
			calls++
			return nil, ingerr.NewAcquisitionError(false, errors.New("removed"))
		})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retriable should not retry)", calls)
	}
}

func TestWithRetry_ExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	_, err := audioacquirer.WithRetry(context.Background(), audioacquirer.RetryPolicy{MaxAttempts: 2, InitialBackoff: 0.001, MaxBackoff: 0.001},
		func(ctx context.Context) (*types.AudioArtifact, error) {
			calls++
			return nil, ingerr.NewAcquisitionError(true, errors.New("always transient"))
		})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_RespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := audioacquirer.WithRetry(ctx, audioacquirer.RetryPolicy{MaxAttempts: 3},
		func(ctx context.Context) (*types.AudioArtifact, error) {
			calls++
			return nil, ingerr.NewAcquisitionError(true, errors.New("transient"))
		})
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (context already canceled)", calls)
	}
}
