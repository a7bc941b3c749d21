package localfile_test

import (
	"context"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer"
	"github.com/chaffee-dev/chaffee-ingest/pkg/audioacquirer/localfile"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

func TestAcquire_MissingLocalPathIsTerminal(t *testing.T) {
	a := localfile.New(audioacquirer.RetryPolicy{MaxAttempts: 3, InitialBackoff: 0.001, MaxBackoff: 0.001})
	ref := types.VideoReference{VideoID: "v1"}

	_, err := a.Acquire(context.Background(), ref, t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing LocalPath, got nil")
	}
	if ingerr.IsRetriable(err) {
		t.Errorf("missing LocalPath should be terminal, got retriable error %v", err)
	}
}

func TestAcquire_NonexistentFileIsTerminal(t *testing.T) {
	a := localfile.New(audioacquirer.RetryPolicy{MaxAttempts: 3, InitialBackoff: 0.001, MaxBackoff: 0.001})
	ref := types.VideoReference{VideoID: "v1", LocalPath: "/nonexistent/path/video.mp4"}

	_, err := a.Acquire(context.Background(), ref, t.TempDir())
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
	if ingerr.IsRetriable(err) {
		t.Errorf("nonexistent file should be terminal, got retriable error %v", err)
	}
}
