package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/asr/whisper"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
)

// testModelPath returns the path to a whisper model for integration tests,
// the same WHISPER_MODEL_PATH convention used by pkg/provider/stt/whisper.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping batch whisper test")
	}
	return p
}

func TestNew_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNew_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.New("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestTranscribe_ReturnsSegments(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.New(modelPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	wavPath := os.Getenv("WHISPER_TEST_WAV_PATH")
	if wavPath == "" {
		t.Skip("WHISPER_TEST_WAV_PATH not set; skipping transcription test")
	}

	artifact := &types.AudioArtifact{Path: wavPath, SampleRate: 16000, Channels: 1}
	segments, err := p.Transcribe(context.Background(), artifact, asr.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segments) == 0 {
		t.Fatal("expected at least one segment")
	}
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].Start {
			t.Errorf("segments not monotonically non-decreasing at index %d", i)
		}
	}
}
